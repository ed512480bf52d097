package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for subscriber operations.
var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrDuplicateEmail     = errors.New("email already subscribed")
)

// SubscriberStatus is the lifecycle state of a mailing list member.
type SubscriberStatus string

const (
	SubscriberStatusPending      SubscriberStatus = "pending"
	SubscriberStatusActive       SubscriberStatus = "active"
	SubscriberStatusUnsubscribed SubscriberStatus = "unsubscribed"
)

// Valid reports whether s is one of the known subscriber statuses.
func (s SubscriberStatus) Valid() bool {
	switch s {
	case SubscriberStatusPending, SubscriberStatusActive, SubscriberStatusUnsubscribed:
		return true
	}
	return false
}

// Subscriber represents a mailing list member. ConfirmationToken is present
// only while pending and cleared on confirm. UnsubscribeToken lives for the
// whole subscription and is reissued on re-subscribe.
// swagger:model Subscriber
type Subscriber struct {
	ID                string           `json:"id"`
	Email             string           `json:"email"`
	Name              string           `json:"name,omitempty"`
	Source            string           `json:"source,omitempty"`
	Status            SubscriberStatus `json:"status"`
	ConfirmationToken *string          `json:"-"`
	UnsubscribeToken  string           `json:"-"`
	ConfirmedAt       *time.Time       `json:"confirmed_at,omitempty"`
	UnsubscribedAt    *time.Time       `json:"unsubscribed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Recipient is the projection of an active subscriber needed to address one
// newsletter message.
type Recipient struct {
	ID               string
	Email            string
	UnsubscribeToken string
}

// SubscribeOutcome is the closed set of results for a subscribe request.
type SubscribeOutcome string

const (
	SubscribeOutcomeCreated       SubscribeOutcome = "created"
	SubscribeOutcomePending       SubscribeOutcome = "pending"
	SubscribeOutcomeAlreadyActive SubscribeOutcome = "already_active"
)

// SubscriberRepository defines the interface for subscriber storage.
//
// ConfirmByToken and UnsubscribeByToken are single conditional writes: the
// token match and the state transition happen in one statement so a token can
// never be used twice or on an ineligible row.
type SubscriberRepository interface {
	Create(ctx context.Context, sub *Subscriber) error
	GetByEmail(ctx context.Context, email string) (*Subscriber, error)
	// ReissueTokens returns the row to pending with fresh tokens, used when a
	// pending or unsubscribed address subscribes again.
	ReissueTokens(ctx context.Context, id, confirmationToken, unsubscribeToken, name string) error
	ConfirmByToken(ctx context.Context, token string, at time.Time) (*Subscriber, error)
	UnsubscribeByToken(ctx context.Context, token string, at time.Time) (*Subscriber, error)
	// ListActive returns up to limit active recipients with id greater than
	// afterID, ordered by id. Pass an empty afterID for the first page.
	ListActive(ctx context.Context, afterID string, limit int) ([]Recipient, error)
	List(ctx context.Context, status SubscriberStatus, p PaginationParams) ([]*Subscriber, int, error)
}

// SubscriberService owns all subscriber state transitions.
type SubscriberService interface {
	Subscribe(ctx context.Context, email, name, source string) (SubscribeOutcome, error)
	Confirm(ctx context.Context, token string) error
	Unsubscribe(ctx context.Context, token string) error
	// ActiveRecipients streams every active subscriber to fn in pages of at
	// most pageSize, so callers never hold the full list in memory. A non-nil
	// error from fn stops the iteration.
	ActiveRecipients(ctx context.Context, pageSize int, fn func([]Recipient) error) error
	List(ctx context.Context, status SubscriberStatus, p PaginationParams) ([]*Subscriber, int, error)
}
