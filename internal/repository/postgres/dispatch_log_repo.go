package postgres

import (
	"context"
	"database/sql"

	"letterpress/internal/domain"
)

type dispatchLogRepository struct {
	DB *sql.DB
}

// NewDispatchLogRepository returns a domain.DispatchLogRepository implemented
// with Postgres. The table is append-only; no update or delete path exists.
func NewDispatchLogRepository(db *sql.DB) domain.DispatchLogRepository {
	return &dispatchLogRepository{DB: db}
}

func (r *dispatchLogRepository) Append(ctx context.Context, e *domain.DispatchLogEntry) error {
	query := `
		INSERT INTO dispatch_log (post_id, recipient_count, status, error, sent_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		e.PostID, e.RecipientCount, string(e.Status), e.Error, e.SentAt,
	).Scan(&e.ID)
}

func (r *dispatchLogRepository) ListByPost(ctx context.Context, postID string) ([]*domain.DispatchLogEntry, error) {
	query := `
		SELECT id, post_id, recipient_count, status, COALESCE(error, ''), sent_at
		FROM dispatch_log
		WHERE post_id = $1
		ORDER BY sent_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.DispatchLogEntry
	for rows.Next() {
		e := &domain.DispatchLogEntry{}
		var status string
		if err := rows.Scan(&e.ID, &e.PostID, &e.RecipientCount, &status, &e.Error, &e.SentAt); err != nil {
			return nil, err
		}
		e.Status = domain.DispatchStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
