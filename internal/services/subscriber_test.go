package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letterpress/internal/domain"
)

// fakeMailer implements domain.Mailer for tests. Batches are recorded in
// order; failBatches marks 1-based batch indexes that should fail.
type fakeMailer struct {
	sent        []domain.BatchMessage
	batches     [][]domain.BatchMessage
	failBatches map[int]bool
	sendErr     error
}

func (f *fakeMailer) Send(ctx context.Context, msg domain.BatchMessage) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) SendBatch(ctx context.Context, msgs []domain.BatchMessage) error {
	idx := len(f.batches) + 1
	f.batches = append(f.batches, msgs)
	if f.failBatches[idx] {
		return errors.New("provider unavailable")
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

// fakeRenderer implements domain.EmailTemplateRenderer for tests.
type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) Render(name string, data any) (string, string, string, error) {
	if f.err != nil {
		return "", "", "", f.err
	}
	return name + " subject", "<html>" + name + "</html>", name + " text", nil
}

// fakeSubscriberRepo implements domain.SubscriberRepository for tests.
// beforeCreate, when set, runs at the top of Create once; it stands in for a
// concurrent writer sneaking a row in between a lookup and the insert.
type fakeSubscriberRepo struct {
	byEmail      map[string]*domain.Subscriber
	nextID       int
	listErr      error
	beforeCreate func()
}

func newFakeSubscriberRepo() *fakeSubscriberRepo {
	return &fakeSubscriberRepo{byEmail: make(map[string]*domain.Subscriber)}
}

func (f *fakeSubscriberRepo) Create(ctx context.Context, s *domain.Subscriber) error {
	if f.beforeCreate != nil {
		f.beforeCreate()
		f.beforeCreate = nil
	}
	if _, ok := f.byEmail[s.Email]; ok {
		return domain.ErrDuplicateEmail
	}
	f.nextID++
	s.ID = fmt.Sprintf("sub-%03d", f.nextID)
	f.byEmail[s.Email] = s
	return nil
}

func (f *fakeSubscriberRepo) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	if s, ok := f.byEmail[email]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrSubscriberNotFound
}

func (f *fakeSubscriberRepo) ReissueTokens(ctx context.Context, id, confirmationToken, unsubscribeToken, name string) error {
	for _, s := range f.byEmail {
		if s.ID == id {
			s.Status = domain.SubscriberStatusPending
			s.ConfirmationToken = &confirmationToken
			s.UnsubscribeToken = unsubscribeToken
			if name != "" {
				s.Name = name
			}
			s.UnsubscribedAt = nil
			return nil
		}
	}
	return domain.ErrSubscriberNotFound
}

func (f *fakeSubscriberRepo) ConfirmByToken(ctx context.Context, token string, at time.Time) (*domain.Subscriber, error) {
	for _, s := range f.byEmail {
		if s.Status == domain.SubscriberStatusPending && s.ConfirmationToken != nil && *s.ConfirmationToken == token {
			s.Status = domain.SubscriberStatusActive
			s.ConfirmationToken = nil
			s.ConfirmedAt = &at
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrInvalidToken
}

func (f *fakeSubscriberRepo) UnsubscribeByToken(ctx context.Context, token string, at time.Time) (*domain.Subscriber, error) {
	for _, s := range f.byEmail {
		if s.UnsubscribeToken == token {
			s.Status = domain.SubscriberStatusUnsubscribed
			if s.UnsubscribedAt == nil {
				s.UnsubscribedAt = &at
			}
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrInvalidToken
}

func (f *fakeSubscriberRepo) ListActive(ctx context.Context, afterID string, limit int) ([]domain.Recipient, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var active []domain.Recipient
	for _, s := range f.byEmail {
		if s.Status == domain.SubscriberStatusActive {
			active = append(active, domain.Recipient{ID: s.ID, Email: s.Email, UnsubscribeToken: s.UnsubscribeToken})
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	var page []domain.Recipient
	for _, r := range active {
		if afterID != "" && r.ID <= afterID {
			continue
		}
		page = append(page, r)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (f *fakeSubscriberRepo) List(ctx context.Context, status domain.SubscriberStatus, p domain.PaginationParams) ([]*domain.Subscriber, int, error) {
	var out []*domain.Subscriber
	for _, s := range f.byEmail {
		if status == "" || s.Status == status {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func newTestSubscriberService(repo domain.SubscriberRepository, mailer domain.Mailer) domain.SubscriberService {
	return NewSubscriberService(repo, mailer, &fakeRenderer{}, testLogger(), "https://example.com", "Letterpress")
}

func TestSubscriberService_Subscribe_NewAddress(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSubscriberRepo()
	mailer := &fakeMailer{}
	svc := newTestSubscriberService(repo, mailer)

	outcome, err := svc.Subscribe(ctx, "Reader@Example.COM", "Sam", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscribeOutcomeCreated, outcome)

	sub, err := repo.GetByEmail(ctx, "reader@example.com")
	require.NoError(t, err, "email must be stored case-folded")
	assert.Equal(t, domain.SubscriberStatusPending, sub.Status)
	require.NotNil(t, sub.ConfirmationToken)
	assert.NotEmpty(t, sub.UnsubscribeToken)
	assert.Equal(t, "website", sub.Source)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "reader@example.com", mailer.sent[0].To)
}

func TestSubscriberService_Subscribe_PendingReissuesTokens(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSubscriberRepo()
	mailer := &fakeMailer{}
	svc := newTestSubscriberService(repo, mailer)

	_, err := svc.Subscribe(ctx, "reader@example.com", "", "")
	require.NoError(t, err)
	first, _ := repo.GetByEmail(ctx, "reader@example.com")

	outcome, err := svc.Subscribe(ctx, "reader@example.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscribeOutcomePending, outcome)

	second, _ := repo.GetByEmail(ctx, "reader@example.com")
	assert.Equal(t, domain.SubscriberStatusPending, second.Status)
	assert.NotEqual(t, *first.ConfirmationToken, *second.ConfirmationToken)
	assert.NotEqual(t, first.UnsubscribeToken, second.UnsubscribeToken)
	assert.Len(t, mailer.sent, 2, "confirmation re-sent on re-subscribe")
}

func TestSubscriberService_Subscribe_ActiveIsNoOp(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSubscriberRepo()
	mailer := &fakeMailer{}
	svc := newTestSubscriberService(repo, mailer)

	_, err := svc.Subscribe(ctx, "reader@example.com", "", "")
	require.NoError(t, err)
	sub, _ := repo.GetByEmail(ctx, "reader@example.com")
	require.NoError(t, svc.Confirm(ctx, *sub.ConfirmationToken))
	sentBefore := len(mailer.sent)

	outcome, err := svc.Subscribe(ctx, "reader@example.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscribeOutcomeAlreadyActive, outcome)

	after, _ := repo.GetByEmail(ctx, "reader@example.com")
	assert.Equal(t, domain.SubscriberStatusActive, after.Status)
	assert.Len(t, mailer.sent, sentBefore, "no email for an already active address")
}

func TestSubscriberService_Subscribe_ConcurrentCreateFallsBackToReissue(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSubscriberRepo()
	mailer := &fakeMailer{}
	svc := newTestSubscriberService(repo, mailer)

	staleToken := "stale-confirm"
	repo.beforeCreate = func() {
		// Another request for the same address won the insert.
		repo.nextID++
		repo.byEmail["reader@example.com"] = &domain.Subscriber{
			ID:                fmt.Sprintf("sub-%03d", repo.nextID),
			Email:             "reader@example.com",
			Status:            domain.SubscriberStatusPending,
			ConfirmationToken: &staleToken,
			UnsubscribeToken:  "stale-unsub",
		}
	}

	outcome, err := svc.Subscribe(ctx, "reader@example.com", "", "")
	require.NoError(t, err, "losing the insert race is not an error")
	assert.Equal(t, domain.SubscribeOutcomePending, outcome)

	sub, _ := repo.GetByEmail(ctx, "reader@example.com")
	require.NotNil(t, sub.ConfirmationToken)
	assert.NotEqual(t, staleToken, *sub.ConfirmationToken, "loser reissues tokens like any re-subscribe")
	require.Len(t, mailer.sent, 1)
}

func TestSubscriberService_Subscribe_ConcurrentCreateActiveWins(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSubscriberRepo()
	mailer := &fakeMailer{}
	svc := newTestSubscriberService(repo, mailer)

	repo.beforeCreate = func() {
		repo.byEmail["reader@example.com"] = &domain.Subscriber{
			ID:               "sub-001",
			Email:            "reader@example.com",
			Status:           domain.SubscriberStatusActive,
			UnsubscribeToken: "active-unsub",
		}
	}

	outcome, err := svc.Subscribe(ctx, "reader@example.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscribeOutcomeAlreadyActive, outcome)

	sub, _ := repo.GetByEmail(ctx, "reader@example.com")
	assert.Equal(t, domain.SubscriberStatusActive, sub.Status)
	assert.Equal(t, "active-unsub", sub.UnsubscribeToken)
	assert.Empty(t, mailer.sent, "no confirmation email for an address that ended up active")
}

func TestSubscriberService_Subscribe_InvalidEmail(t *testing.T) {
	svc := newTestSubscriberService(newFakeSubscriberRepo(), &fakeMailer{})
	_, err := svc.Subscribe(context.Background(), "not-an-email", "", "")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestSubscriberService_Subscribe_MailFailureStillSucceeds(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSubscriberRepo()
	mailer := &fakeMailer{sendErr: errors.New("smtp down")}
	svc := newTestSubscriberService(repo, mailer)

	outcome, err := svc.Subscribe(ctx, "reader@example.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscribeOutcomeCreated, outcome)
}

func TestSubscriberService_Confirm_TokenSingleUse(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSubscriberRepo()
	svc := newTestSubscriberService(repo, &fakeMailer{})

	_, err := svc.Subscribe(ctx, "reader@example.com", "", "")
	require.NoError(t, err)
	sub, _ := repo.GetByEmail(ctx, "reader@example.com")
	token := *sub.ConfirmationToken

	require.NoError(t, svc.Confirm(ctx, token))

	err = svc.Confirm(ctx, token)
	require.ErrorIs(t, err, domain.ErrInvalidToken, "a confirmation token must not be usable twice")
}

func TestSubscriberService_Unsubscribe_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSubscriberRepo()
	svc := newTestSubscriberService(repo, &fakeMailer{})

	_, err := svc.Subscribe(ctx, "reader@example.com", "", "")
	require.NoError(t, err)
	sub, _ := repo.GetByEmail(ctx, "reader@example.com")
	token := sub.UnsubscribeToken

	require.NoError(t, svc.Unsubscribe(ctx, token))
	require.NoError(t, svc.Unsubscribe(ctx, token), "second unsubscribe is a no-op success")

	after, _ := repo.GetByEmail(ctx, "reader@example.com")
	assert.Equal(t, domain.SubscriberStatusUnsubscribed, after.Status)
}

func TestSubscriberService_ActiveRecipients_Pages(t *testing.T) {
	ctx := context.Background()
	repo := newFakeSubscriberRepo()
	svc := newTestSubscriberService(repo, &fakeMailer{})

	for i := 0; i < 5; i++ {
		email := fmt.Sprintf("r%d@example.com", i)
		_, err := svc.Subscribe(ctx, email, "", "")
		require.NoError(t, err)
		sub, _ := repo.GetByEmail(ctx, email)
		require.NoError(t, svc.Confirm(ctx, *sub.ConfirmationToken))
	}

	var pages [][]domain.Recipient
	err := svc.ActiveRecipients(ctx, 2, func(page []domain.Recipient) error {
		pages = append(pages, page)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Len(t, pages[0], 2)
	assert.Len(t, pages[1], 2)
	assert.Len(t, pages[2], 1)
}
