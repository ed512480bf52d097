package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"letterpress/internal/domain"
	"letterpress/internal/sanitize"
)

const wordsPerMinute = 200

var (
	slugRegexp     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugRunes   = regexp.MustCompile(`[^\w\s-]`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
	dashRuns       = regexp.MustCompile(`-+`)
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
)

type postService struct {
	repo domain.PostRepository
	now  func() time.Time
}

// NewPostService creates the PostService for post content management.
func NewPostService(repo domain.PostRepository) domain.PostService {
	return &postService{repo: repo, now: time.Now}
}

// GenerateSlug derives a URL-safe slug from a title.
func GenerateSlug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonSlugRunes.ReplaceAllString(s, "")
	s = whitespaceRuns.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ReadingTime estimates reading minutes for an HTML body, floor 1.
func ReadingTime(html string) int {
	text := tagPattern.ReplaceAllString(html, " ")
	words := len(strings.Fields(text))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func validatePostInput(input domain.PostInput) error {
	title := strings.TrimSpace(input.Title)
	if len(title) < 3 {
		return domain.NewValidationError("title must be at least 3 characters")
	}
	if len(title) > 200 {
		return domain.NewValidationError("title must be at most 200 characters")
	}
	if input.Slug != "" && !slugRegexp.MatchString(input.Slug) {
		return domain.NewValidationError("invalid slug format")
	}
	if len(input.Excerpt) > 500 {
		return domain.NewValidationError("excerpt must be at most 500 characters")
	}
	if input.Status != "" && !input.Status.Valid() {
		return domain.NewValidationError(fmt.Sprintf("unknown post status %q", input.Status))
	}
	if input.Status == domain.PostStatusScheduled && input.ScheduledFor == nil {
		return domain.NewValidationError("scheduled posts require scheduled_for")
	}
	return nil
}

func (s *postService) Create(ctx context.Context, input domain.PostInput) (*domain.Post, error) {
	if err := validatePostInput(input); err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = domain.PostStatusDraft
	}
	slug := input.Slug
	if slug == "" {
		slug = GenerateSlug(input.Title)
	}
	now := s.now()
	post := domain.NewPost(slug, strings.TrimSpace(input.Title), input.Excerpt, input.BodyHTML, status, now, now)
	post.ScheduledFor = input.ScheduledFor
	if status == domain.PostStatusPublished {
		// Publishing at creation time is the first publish.
		post.PublishedAt = &now
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	post.ReadingTime = ReadingTime(post.BodyHTML)
	return post, nil
}

func (s *postService) Update(ctx context.Context, id string, input domain.PostInput) (*domain.Post, error) {
	if err := validatePostInput(input); err != nil {
		return nil, err
	}
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	post.Title = strings.TrimSpace(input.Title)
	post.Excerpt = input.Excerpt
	post.BodyHTML = input.BodyHTML
	if input.Slug != "" {
		post.Slug = input.Slug
	}
	if err := s.repo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	post.ReadingTime = ReadingTime(post.BodyHTML)
	return post, nil
}

func (s *postService) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	post.ReadingTime = ReadingTime(post.BodyHTML)
	return post, nil
}

// GetPublishedBySlug serves the public post page, so every content field is
// sanitized on the way out.
func (s *postService) GetPublishedBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	post, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if post.Status != domain.PostStatusPublished {
		return nil, domain.ErrPostNotFound
	}
	post.Title = sanitize.Sanitize(post.Title)
	post.Excerpt = sanitize.Sanitize(post.Excerpt)
	post.BodyHTML = sanitize.Sanitize(post.BodyHTML)
	post.ReadingTime = ReadingTime(post.BodyHTML)
	return post, nil
}

func (s *postService) List(ctx context.Context, status domain.PostStatus, publicOnly bool, p domain.PaginationParams) ([]*domain.Post, int, error) {
	if publicOnly {
		status = domain.PostStatusPublished
	} else if status != "" && !status.Valid() {
		return nil, 0, domain.NewValidationError(fmt.Sprintf("unknown post status %q", status))
	}
	posts, total, err := s.repo.List(ctx, status, p)
	if err != nil {
		return nil, 0, err
	}
	for _, post := range posts {
		if publicOnly {
			post.Title = sanitize.Sanitize(post.Title)
			post.Excerpt = sanitize.Sanitize(post.Excerpt)
			post.BodyHTML = sanitize.Sanitize(post.BodyHTML)
		}
		post.ReadingTime = ReadingTime(post.BodyHTML)
	}
	return posts, total, nil
}
