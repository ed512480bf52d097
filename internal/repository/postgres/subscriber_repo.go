package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"letterpress/internal/domain"
)

const subscriberColumns = `id, email, name, source, status, confirmation_token, unsubscribe_token, confirmed_at, unsubscribed_at, created_at, updated_at`

type subscriberRepository struct {
	DB *sql.DB
}

// NewSubscriberRepository returns a domain.SubscriberRepository implemented with Postgres.
func NewSubscriberRepository(db *sql.DB) domain.SubscriberRepository {
	return &subscriberRepository{DB: db}
}

func scanSubscriber(row interface{ Scan(...any) error }) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	var status string
	var name sql.NullString
	err := row.Scan(&s.ID, &s.Email, &name, &s.Source, &status, &s.ConfirmationToken,
		&s.UnsubscribeToken, &s.ConfirmedAt, &s.UnsubscribedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Name = name.String
	s.Status = domain.SubscriberStatus(status)
	return s, nil
}

func (r *subscriberRepository) Create(ctx context.Context, s *domain.Subscriber) error {
	query := `
		INSERT INTO subscribers (email, name, source, status, confirmation_token, unsubscribe_token, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		s.Email, s.Name, s.Source, string(s.Status), s.ConfirmationToken, s.UnsubscribeToken, s.CreatedAt, s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *subscriberRepository) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE email = $1`
	s, err := scanSubscriber(r.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubscriberNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *subscriberRepository) ReissueTokens(ctx context.Context, id, confirmationToken, unsubscribeToken, name string) error {
	query := `
		UPDATE subscribers
		SET status = 'pending',
		    confirmation_token = $2,
		    unsubscribe_token = $3,
		    name = COALESCE(NULLIF($4, ''), name),
		    unsubscribed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.DB.ExecContext(ctx, query, id, confirmationToken, unsubscribeToken, name)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSubscriberNotFound
	}
	return nil
}

// ConfirmByToken matches the token and moves the row to active in one
// statement. The status guard makes the token single-use and unusable on a
// row that already unsubscribed.
func (r *subscriberRepository) ConfirmByToken(ctx context.Context, token string, at time.Time) (*domain.Subscriber, error) {
	query := `
		UPDATE subscribers
		SET status = 'active', confirmed_at = $2, confirmation_token = NULL, updated_at = NOW()
		WHERE confirmation_token = $1 AND status = 'pending'
		RETURNING ` + subscriberColumns
	s, err := scanSubscriber(r.DB.QueryRowContext(ctx, query, token, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return s, nil
}

// UnsubscribeByToken works regardless of current status and keeps the first
// unsubscribed_at stamp, so repeated calls are no-op successes.
func (r *subscriberRepository) UnsubscribeByToken(ctx context.Context, token string, at time.Time) (*domain.Subscriber, error) {
	query := `
		UPDATE subscribers
		SET status = 'unsubscribed', unsubscribed_at = COALESCE(unsubscribed_at, $2), updated_at = NOW()
		WHERE unsubscribe_token = $1
		RETURNING ` + subscriberColumns
	s, err := scanSubscriber(r.DB.QueryRowContext(ctx, query, token, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return s, nil
}

func (r *subscriberRepository) ListActive(ctx context.Context, afterID string, limit int) ([]domain.Recipient, error) {
	query := `
		SELECT id, email, unsubscribe_token
		FROM subscribers
		WHERE status = 'active' AND ($1::uuid IS NULL OR id > $1::uuid)
		ORDER BY id
		LIMIT $2
	`
	var after any
	if afterID != "" {
		after = afterID
	}
	rows, err := r.DB.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.UnsubscribeToken); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *subscriberRepository) List(ctx context.Context, status domain.SubscriberStatus, p domain.PaginationParams) ([]*domain.Subscriber, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM subscribers WHERE ($1 = '' OR status = $1)`
	if err := r.DB.QueryRowContext(ctx, countQuery, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + subscriberColumns + `
		FROM subscribers
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.DB.QueryContext(ctx, query, string(status), p.PageSize, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subs []*domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, s)
	}
	return subs, total, rows.Err()
}
