package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letterpress/internal/domain"
)

var subscriberRows = []string{"id", "email", "name", "source", "status", "confirmation_token", "unsubscribe_token", "confirmed_at", "unsubscribed_at", "created_at", "updated_at"}

func subscriberRow(id, email, status string, confirmationToken *string) *sqlmock.Rows {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(subscriberRows).
		AddRow(id, email, nil, "website", status, confirmationToken, "unsub-tok", nil, nil, now, now)
}

func TestSubscriberRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`INSERT INTO subscribers`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sub-uuid-1"))

		repo := NewSubscriberRepository(db)
		token := "confirm-tok"
		now := time.Now()
		sub := &domain.Subscriber{
			Email:             "reader@example.com",
			Source:            "website",
			Status:            domain.SubscriberStatusPending,
			ConfirmationToken: &token,
			UnsubscribeToken:  "unsub-tok",
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		require.NoError(t, repo.Create(ctx, sub))
		assert.Equal(t, "sub-uuid-1", sub.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`INSERT INTO subscribers`).
			WillReturnError(&pq.Error{Code: "23505"})

		repo := NewSubscriberRepository(db)
		err = repo.Create(ctx, &domain.Subscriber{Email: "reader@example.com"})
		require.ErrorIs(t, err, domain.ErrDuplicateEmail)
	})
}

func TestSubscriberRepository_ConfirmByToken(t *testing.T) {
	ctx := context.Background()

	t.Run("pending row confirmed", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		at := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`UPDATE subscribers`).
			WithArgs("confirm-tok", at).
			WillReturnRows(subscriberRow("sub-1", "reader@example.com", "active", nil))

		repo := NewSubscriberRepository(db)
		sub, err := repo.ConfirmByToken(ctx, "confirm-tok", at)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriberStatusActive, sub.Status)
	})

	t.Run("unknown or spent token", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`UPDATE subscribers`).
			WillReturnError(sql.ErrNoRows)

		repo := NewSubscriberRepository(db)
		_, err = repo.ConfirmByToken(ctx, "spent-tok", time.Now())
		require.ErrorIs(t, err, domain.ErrInvalidToken)
	})
}

func TestSubscriberRepository_UnsubscribeByToken(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`UPDATE subscribers`).
		WithArgs("unsub-tok", at).
		WillReturnRows(subscriberRow("sub-1", "reader@example.com", "unsubscribed", nil))

	repo := NewSubscriberRepository(db)
	sub, err := repo.UnsubscribeByToken(ctx, "unsub-tok", at)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriberStatusUnsubscribed, sub.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriberRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, email, unsubscribe_token`).
		WithArgs(nil, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "unsubscribe_token"}).
			AddRow("sub-1", "a@example.com", "tok-a").
			AddRow("sub-2", "b@example.com", "tok-b"))

	repo := NewSubscriberRepository(db)
	recipients, err := repo.ListActive(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "a@example.com", recipients[0].Email)
	assert.Equal(t, "tok-b", recipients[1].UnsubscribeToken)
	require.NoError(t, mock.ExpectationsWereMet())
}
