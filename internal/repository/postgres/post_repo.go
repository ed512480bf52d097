package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"letterpress/internal/domain"
)

const postColumns = `id, slug, title, excerpt, body_html, status, scheduled_for, published_at, email_sent, email_sent_at, created_at, updated_at`

type postRepository struct {
	DB *sql.DB
}

// NewPostRepository returns a domain.PostRepository implemented with Postgres.
func NewPostRepository(db *sql.DB) domain.PostRepository {
	return &postRepository{DB: db}
}

func scanPost(row interface{ Scan(...any) error }) (*domain.Post, error) {
	p := &domain.Post{}
	var status string
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Excerpt, &p.BodyHTML, &status,
		&p.ScheduledFor, &p.PublishedAt, &p.EmailSent, &p.EmailSentAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PostStatus(status)
	return p, nil
}

func (r *postRepository) Create(ctx context.Context, p *domain.Post) error {
	query := `
		INSERT INTO posts (slug, title, excerpt, body_html, status, scheduled_for, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		p.Slug, p.Title, p.Excerpt, p.BodyHTML, string(p.Status), p.ScheduledFor, p.PublishedAt, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrSlugTaken
		}
		return err
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	p, err := scanPost(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *postRepository) GetBySlug(ctx context.Context, slug string) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE slug = $1`
	p, err := scanPost(r.DB.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *postRepository) List(ctx context.Context, status domain.PostStatus, p domain.PaginationParams) ([]*domain.Post, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM posts WHERE ($1 = '' OR status = $1)`
	if err := r.DB.QueryRowContext(ctx, countQuery, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.DB.QueryContext(ctx, query, string(status), p.PageSize, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var posts []*domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, post)
	}
	return posts, total, rows.Err()
}

func (r *postRepository) Update(ctx context.Context, p *domain.Post) error {
	query := `
		UPDATE posts
		SET slug = $2, title = $3, excerpt = $4, body_html = $5, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.DB.ExecContext(ctx, query, p.ID, p.Slug, p.Title, p.Excerpt, p.BodyHTML)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrSlugTaken
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// Transition is the single guarded lifecycle write. The status check and the
// update happen in one statement so concurrent triggers on the same post are
// linearized by the database. published_at is stamped only when it is still
// NULL, which makes the first-publish stamp immutable.
func (r *postRepository) Transition(ctx context.Context, id string, from []domain.PostStatus, to domain.PostStatus, scheduledFor *time.Time) (*domain.Post, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	query := `
		UPDATE posts
		SET status = $2,
		    scheduled_for = $3,
		    published_at = CASE WHEN $2 = 'published' THEN COALESCE(published_at, NOW()) ELSE published_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
		RETURNING ` + postColumns
	p, err := scanPost(r.DB.QueryRowContext(ctx, query, id, string(to), scheduledFor, pq.Array(fromStr)))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	// No row matched: either the post is gone or its status moved under us.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("post %s: %w", id, domain.ErrConflict)
}

// MarkEmailSent flips the dispatch idempotency flag. The guard keeps the flag
// one-way: a row already marked is left untouched.
func (r *postRepository) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE posts
		SET email_sent = TRUE, email_sent_at = $2, updated_at = NOW()
		WHERE id = $1 AND email_sent = FALSE
	`
	_, err := r.DB.ExecContext(ctx, query, id, at)
	return err
}

func (r *postRepository) FindDue(ctx context.Context, now time.Time) ([]*domain.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE status = 'scheduled' AND scheduled_for <= $1
		ORDER BY scheduled_for
	`
	rows, err := r.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}
