package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"letterpress/internal/domain"
)

const (
	defaultSource         = "website"
	recipientDefaultLimit = 500
)

var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type subscriberService struct {
	repo     domain.SubscriberRepository
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
	siteURL  string
	siteName string
	now      func() time.Time
}

// NewSubscriberService creates the SubscriberService owning all subscriber
// state transitions. siteURL is the public base URL used to build
// confirmation links.
func NewSubscriberService(repo domain.SubscriberRepository, mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger, siteURL, siteName string) domain.SubscriberService {
	return &subscriberService{
		repo:     repo,
		mailer:   mailer,
		renderer: renderer,
		logger:   logger,
		siteURL:  strings.TrimSuffix(siteURL, "/"),
		siteName: siteName,
		now:      time.Now,
	}
}

func (s *subscriberService) Subscribe(ctx context.Context, email, name, source string) (domain.SubscribeOutcome, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !emailRegexp.MatchString(email) {
		return "", domain.NewValidationError("invalid email format")
	}
	name = strings.TrimSpace(name)
	source = strings.TrimSpace(source)
	if source == "" {
		source = defaultSource
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrSubscriberNotFound) {
		return "", fmt.Errorf("failed to look up subscriber: %w", err)
	}

	if existing != nil && existing.Status == domain.SubscriberStatusActive {
		// Already on the list. No mutation, no email.
		return domain.SubscribeOutcomeAlreadyActive, nil
	}

	confirmationToken := uuid.NewString()
	unsubscribeToken := uuid.NewString()

	outcome := domain.SubscribeOutcomeCreated
	if existing != nil {
		// Pending or unsubscribed row subscribing again: back to pending with
		// fresh tokens, old links stop working.
		if err := s.repo.ReissueTokens(ctx, existing.ID, confirmationToken, unsubscribeToken, name); err != nil {
			return "", fmt.Errorf("failed to reissue tokens: %w", err)
		}
		outcome = domain.SubscribeOutcomePending
	} else {
		now := s.now()
		sub := &domain.Subscriber{
			Email:             email,
			Name:              name,
			Source:            source,
			Status:            domain.SubscriberStatusPending,
			ConfirmationToken: &confirmationToken,
			UnsubscribeToken:  unsubscribeToken,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.repo.Create(ctx, sub); err != nil {
			if !errors.Is(err, domain.ErrDuplicateEmail) {
				return "", fmt.Errorf("failed to create subscriber: %w", err)
			}
			// A concurrent subscribe created the row between our lookup and
			// the insert. Treat it like any existing row: active wins, the
			// rest goes back to pending with fresh tokens.
			existing, err = s.repo.GetByEmail(ctx, email)
			if err != nil {
				return "", fmt.Errorf("failed to look up subscriber: %w", err)
			}
			if existing.Status == domain.SubscriberStatusActive {
				return domain.SubscribeOutcomeAlreadyActive, nil
			}
			if err := s.repo.ReissueTokens(ctx, existing.ID, confirmationToken, unsubscribeToken, name); err != nil {
				return "", fmt.Errorf("failed to reissue tokens: %w", err)
			}
			outcome = domain.SubscribeOutcomePending
		}
	}

	s.sendConfirmation(ctx, email, name, confirmationToken)
	return outcome, nil
}

// sendConfirmation emails the double-opt-in link. A transport failure is
// logged but does not fail the subscribe request; the subscriber can retry
// and get a fresh token.
func (s *subscriberService) sendConfirmation(ctx context.Context, email, name, token string) {
	data := &domain.ConfirmationEmailData{
		SiteName:   s.siteName,
		SiteURL:    s.siteURL,
		Name:       name,
		ConfirmURL: fmt.Sprintf("%s/subscribers/confirm/%s", s.siteURL, token),
	}
	subject, htmlBody, textBody, err := s.renderer.Render("confirmation", data)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to render confirmation email", "err", err)
		return
	}
	msg := domain.BatchMessage{To: email, Subject: subject, HTML: htmlBody, Text: textBody}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to send confirmation email", "email", email, "err", err)
	}
}

func (s *subscriberService) Confirm(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrInvalidToken
	}
	sub, err := s.repo.ConfirmByToken(ctx, token, s.now())
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "subscriber confirmed", "subscriber_id", sub.ID)
	return nil
}

func (s *subscriberService) Unsubscribe(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrInvalidToken
	}
	sub, err := s.repo.UnsubscribeByToken(ctx, token, s.now())
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "subscriber unsubscribed", "subscriber_id", sub.ID)
	return nil
}

func (s *subscriberService) ActiveRecipients(ctx context.Context, pageSize int, fn func([]domain.Recipient) error) error {
	if pageSize <= 0 {
		pageSize = recipientDefaultLimit
	}
	afterID := ""
	for {
		page, err := s.repo.ListActive(ctx, afterID, pageSize)
		if err != nil {
			return fmt.Errorf("failed to list active subscribers: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < pageSize {
			return nil
		}
		afterID = page[len(page)-1].ID
	}
}

func (s *subscriberService) List(ctx context.Context, status domain.SubscriberStatus, p domain.PaginationParams) ([]*domain.Subscriber, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, domain.NewValidationError(fmt.Sprintf("unknown subscriber status %q", status))
	}
	return s.repo.List(ctx, status, p)
}
