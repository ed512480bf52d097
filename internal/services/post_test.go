package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letterpress/internal/domain"
)

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "simple title", title: "Hello World", want: "hello-world"},
		{name: "punctuation stripped", title: "Go 1.26: What's New?", want: "go-126-whats-new"},
		{name: "whitespace collapsed", title: "  lots   of \t space  ", want: "lots-of-space"},
		{name: "leading and trailing dashes trimmed", title: "---edge case---", want: "edge-case"},
		{name: "already a slug", title: "already-a-slug", want: "already-a-slug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateSlug(tt.title))
		})
	}
}

func TestReadingTime(t *testing.T) {
	tests := []struct {
		name string
		html string
		want int
	}{
		{name: "empty body floors at one", html: "", want: 1},
		{name: "short paragraph", html: "<p>a few words only</p>", want: 1},
		{name: "two hundred words", html: "<p>" + strings.Repeat("word ", 200) + "</p>", want: 1},
		{name: "rounds up", html: "<p>" + strings.Repeat("word ", 201) + "</p>", want: 2},
		{name: "tags do not count as words", html: "<div><span><b>" + strings.Repeat("word ", 400) + "</b></span></div>", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadingTime(tt.html))
		})
	}
}

func TestPostService_Create_Validation(t *testing.T) {
	svc := NewPostService(newFakePostRepo(time.Now()))

	tests := []struct {
		name  string
		input domain.PostInput
	}{
		{name: "title too short", input: domain.PostInput{Title: "ab"}},
		{name: "title too long", input: domain.PostInput{Title: strings.Repeat("x", 201)}},
		{name: "bad slug", input: domain.PostInput{Title: "Valid Title", Slug: "Not A Slug!"}},
		{name: "excerpt too long", input: domain.PostInput{Title: "Valid Title", Excerpt: strings.Repeat("x", 501)}},
		{name: "unknown status", input: domain.PostInput{Title: "Valid Title", Status: "limbo"}},
		{name: "scheduled without time", input: domain.PostInput{Title: "Valid Title", Status: domain.PostStatusScheduled}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestPostService_Create_Defaults(t *testing.T) {
	repo := newFakePostRepo(time.Now())
	svc := NewPostService(repo)

	post, err := svc.Create(context.Background(), domain.PostInput{
		Title:    "My First Post",
		BodyHTML: "<p>hello</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-first-post", post.Slug)
	assert.Equal(t, domain.PostStatusDraft, post.Status)
	assert.Nil(t, post.PublishedAt)
	assert.Equal(t, 1, post.ReadingTime)
}

func TestPostService_Create_PublishedStampsTimestamp(t *testing.T) {
	repo := newFakePostRepo(time.Now())
	svc := NewPostService(repo)

	post, err := svc.Create(context.Background(), domain.PostInput{
		Title:    "Launch Day",
		BodyHTML: "<p>we are live</p>",
		Status:   domain.PostStatusPublished,
	})
	require.NoError(t, err)
	require.NotNil(t, post.PublishedAt)
}

func TestPostService_GetPublishedBySlug(t *testing.T) {
	now := time.Now()
	draft := draftPost("p1")
	published := &domain.Post{
		ID:          "p2",
		Slug:        "live-post",
		Title:       "Live <script>alert(1)</script>Post",
		BodyHTML:    `<p onclick="x()">content</p>`,
		Status:      domain.PostStatusPublished,
		PublishedAt: &now,
	}
	svc := NewPostService(newFakePostRepo(now, draft, published))

	t.Run("draft is invisible", func(t *testing.T) {
		_, err := svc.GetPublishedBySlug(context.Background(), draft.Slug)
		require.ErrorIs(t, err, domain.ErrPostNotFound)
	})

	t.Run("missing slug", func(t *testing.T) {
		_, err := svc.GetPublishedBySlug(context.Background(), "nope")
		require.ErrorIs(t, err, domain.ErrPostNotFound)
	})

	t.Run("content is sanitized", func(t *testing.T) {
		post, err := svc.GetPublishedBySlug(context.Background(), "live-post")
		require.NoError(t, err)
		assert.NotContains(t, post.Title, "<script>")
		assert.NotContains(t, post.BodyHTML, "onclick")
		assert.Contains(t, post.BodyHTML, "content")
	})
}

func TestPostService_List_PublicOnlyForcesPublished(t *testing.T) {
	now := time.Now()
	draft := draftPost("p1")
	published := &domain.Post{ID: "p2", Slug: "live", Title: "Live", BodyHTML: "<p>x</p>", Status: domain.PostStatusPublished, PublishedAt: &now}
	svc := NewPostService(newFakePostRepo(now, draft, published))

	posts, total, err := svc.List(context.Background(), domain.PostStatusDraft, true, domain.PaginationParams{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "public listings never leak drafts, whatever filter was asked for")
	require.Len(t, posts, 1)
	assert.Equal(t, "p2", posts[0].ID)
}
