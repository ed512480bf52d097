package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for post operations.
var (
	ErrPostNotFound = errors.New("post not found")
	ErrSlugTaken    = errors.New("slug already in use")
)

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
	PostStatusArchived  PostStatus = "archived"
)

// Valid reports whether s is one of the known post statuses.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusPublished, PostStatusArchived:
		return true
	}
	return false
}

// Post represents a publishable article.
// PublishedAt is stamped on the first transition into published and never
// overwritten. EmailSent only moves false to true; re-sends are explicit.
// swagger:model Post
type Post struct {
	ID           string     `json:"id"`
	Slug         string     `json:"slug"`
	Title        string     `json:"title"`
	Excerpt      string     `json:"excerpt"`
	BodyHTML     string     `json:"body_html"`
	Status       PostStatus `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	EmailSent    bool       `json:"email_sent"`
	EmailSentAt  *time.Time `json:"email_sent_at,omitempty"`
	ReadingTime  int        `json:"reading_time_minutes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewPost returns a new Post with the given content fields. ID is set by the
// repository on create.
func NewPost(slug, title, excerpt, bodyHTML string, status PostStatus, createdAt, updatedAt time.Time) *Post {
	return &Post{
		Slug:      slug,
		Title:     title,
		Excerpt:   excerpt,
		BodyHTML:  bodyHTML,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// PostRepository defines the interface for post storage.
//
// Transition is the single guarded write for lifecycle changes: the update
// applies only while the row's status is still one of from, and stamps
// published_at on the first entry into published. It returns ErrConflict when
// a concurrent writer moved the row first, ErrPostNotFound when no row exists.
type PostRepository interface {
	Create(ctx context.Context, post *Post) error
	GetByID(ctx context.Context, id string) (*Post, error)
	GetBySlug(ctx context.Context, slug string) (*Post, error)
	List(ctx context.Context, status PostStatus, p PaginationParams) ([]*Post, int, error)
	Update(ctx context.Context, post *Post) error
	Transition(ctx context.Context, id string, from []PostStatus, to PostStatus, scheduledFor *time.Time) (*Post, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time) error
	FindDue(ctx context.Context, now time.Time) ([]*Post, error)
}

// PostInput carries caller-supplied post fields for create and update.
type PostInput struct {
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Excerpt      string     `json:"excerpt"`
	BodyHTML     string     `json:"body_html"`
	Status       PostStatus `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// PostService defines content management for posts. Lifecycle transitions and
// dispatch live on PublisherService.
type PostService interface {
	Create(ctx context.Context, input PostInput) (*Post, error)
	Update(ctx context.Context, id string, input PostInput) (*Post, error)
	GetByID(ctx context.Context, id string) (*Post, error)
	// GetPublishedBySlug returns a published post with sanitized content for
	// the public page. Non-published posts are reported as ErrPostNotFound.
	GetPublishedBySlug(ctx context.Context, slug string) (*Post, error)
	List(ctx context.Context, status PostStatus, publicOnly bool, p PaginationParams) ([]*Post, int, error)
}
