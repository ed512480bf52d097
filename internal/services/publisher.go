package services

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"letterpress/internal/domain"
	"letterpress/internal/sanitize"
)

type publisherService struct {
	posts       domain.PostRepository
	dispatchLog domain.DispatchLogRepository
	subscribers domain.SubscriberService
	dispatcher  domain.BatchDispatcher
	mailer      domain.Mailer
	renderer    domain.EmailTemplateRenderer
	logger      *slog.Logger
	siteURL     string
	siteName    string
	pageSize    int
	now         func() time.Time
}

// NewPublisherService creates the publish coordinator. pageSize bounds how
// many recipients are held in memory at once while a dispatch streams the
// active list; zero picks a sane default.
func NewPublisherService(
	posts domain.PostRepository,
	dispatchLog domain.DispatchLogRepository,
	subscribers domain.SubscriberService,
	dispatcher domain.BatchDispatcher,
	mailer domain.Mailer,
	renderer domain.EmailTemplateRenderer,
	logger *slog.Logger,
	siteURL, siteName string,
	pageSize int,
) domain.PublisherService {
	if pageSize <= 0 {
		pageSize = recipientDefaultLimit
	}
	return &publisherService{
		posts:       posts,
		dispatchLog: dispatchLog,
		subscribers: subscribers,
		dispatcher:  dispatcher,
		mailer:      mailer,
		renderer:    renderer,
		logger:      logger,
		siteURL:     strings.TrimSuffix(siteURL, "/"),
		siteName:    siteName,
		pageSize:    pageSize,
		now:         time.Now,
	}
}

func (s *publisherService) Publish(ctx context.Context, postID string, force bool) (*domain.PublishResult, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == domain.PostStatusArchived {
		return nil, domain.NewValidationError("cannot publish an archived post")
	}
	if post.Status != domain.PostStatusPublished {
		var won bool
		post, won, err = s.transitionWithRetry(ctx, postID,
			[]domain.PostStatus{domain.PostStatusDraft, domain.PostStatusScheduled},
			domain.PostStatusPublished, nil)
		if err != nil {
			return nil, err
		}
		if !won {
			// A concurrent trigger completed the transition first. That
			// trigger owns the dispatch; sending here would double-mail the
			// list while the winner's run is still in flight.
			return &domain.PublishResult{Post: post}, nil
		}
	}

	result := &domain.PublishResult{Post: post}
	if post.EmailSent && !force {
		// Dispatch already happened; a re-send must be an explicit action.
		return result, nil
	}

	report, attempted := s.dispatch(ctx, post)
	result.Report = report
	result.Dispatched = attempted
	return result, nil
}

// dispatch streams the active recipient list page by page through the batch
// mailer, then records exactly one log entry for the run. Failures here never
// roll back the published state: a post is not unpublished because email had
// trouble.
func (s *publisherService) dispatch(ctx context.Context, post *domain.Post) (*domain.DispatchReport, bool) {
	build := s.newsletterBuilder(post, false)
	report := &domain.DispatchReport{}
	total := 0

	err := s.subscribers.ActiveRecipients(ctx, s.pageSize, func(page []domain.Recipient) error {
		total += len(page)
		report.Merge(s.dispatcher.Dispatch(ctx, build, page))
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "recipient fetch failed during dispatch", "post_id", post.ID, "err", err)
		report.Errors = append(report.Errors, err.Error())
	}

	if total == 0 {
		// Nobody to mail: success with no log entry and email_sent untouched.
		return report, false
	}

	now := s.now()
	status := domain.DispatchStatusSent
	if report.SentCount == 0 {
		status = domain.DispatchStatusFailed
	}
	entry := &domain.DispatchLogEntry{
		PostID:         post.ID,
		RecipientCount: total,
		Status:         status,
		Error:          strings.Join(report.Errors, "; "),
		SentAt:         now,
	}
	logged := true
	if err := s.dispatchLog.Append(ctx, entry); err != nil {
		logged = false
		s.logger.ErrorContext(ctx, "failed to append dispatch log", "post_id", post.ID, "err", err)
		report.Errors = append(report.Errors, fmt.Sprintf("dispatch log append failed: %v", err))
	}

	if report.SentCount > 0 && logged {
		// Partial success still counts as sent; a totally failed run leaves
		// the flag down so a re-trigger is recognized as still owed. The flag
		// follows the durable log record: without an appended entry there is
		// no account of what went out, so the flag stays down too.
		if err := s.posts.MarkEmailSent(ctx, post.ID, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to mark email sent", "post_id", post.ID, "err", err)
		} else {
			post.EmailSent = true
			post.EmailSentAt = &now
		}
	}

	s.logger.InfoContext(ctx, "newsletter dispatched",
		"post_id", post.ID,
		"recipients", total,
		"sent", report.SentCount,
		"failed_batches", report.FailedBatches,
	)
	return report, true
}

func (s *publisherService) Transition(ctx context.Context, postID string, to domain.PostStatus, scheduledFor *time.Time) (*domain.Post, error) {
	var from []domain.PostStatus
	switch to {
	case domain.PostStatusDraft:
		from = []domain.PostStatus{domain.PostStatusPublished, domain.PostStatusScheduled}
	case domain.PostStatusScheduled:
		if scheduledFor == nil {
			return nil, domain.NewValidationError("scheduling requires scheduled_for")
		}
		from = []domain.PostStatus{domain.PostStatusDraft, domain.PostStatusScheduled}
	case domain.PostStatusArchived:
		from = []domain.PostStatus{domain.PostStatusDraft, domain.PostStatusScheduled, domain.PostStatusPublished}
	case domain.PostStatusPublished:
		return nil, domain.NewValidationError("publishing goes through the publish operation")
	default:
		return nil, domain.NewValidationError(fmt.Sprintf("unknown post status %q", to))
	}
	post, _, err := s.transitionWithRetry(ctx, postID, from, to, scheduledFor)
	return post, err
}

// transitionWithRetry applies the guarded transition and, on a concurrency
// conflict, reloads and retries exactly once before surfacing the conflict.
// won reports whether this call performed the transition itself; it is false
// when a concurrent writer reached the target state first.
func (s *publisherService) transitionWithRetry(ctx context.Context, postID string, from []domain.PostStatus, to domain.PostStatus, scheduledFor *time.Time) (post *domain.Post, won bool, err error) {
	post, err = s.posts.Transition(ctx, postID, from, to, scheduledFor)
	if err == nil {
		return post, true, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, false, err
	}

	current, getErr := s.posts.GetByID(ctx, postID)
	if getErr != nil {
		return nil, false, getErr
	}
	if current.Status == to {
		// Someone else already completed the same transition.
		return current, false, nil
	}
	post, err = s.posts.Transition(ctx, postID, from, to, scheduledFor)
	if err != nil {
		return nil, false, fmt.Errorf("transition to %s: %w", to, err)
	}
	return post, true, nil
}

func (s *publisherService) RunDue(ctx context.Context) (*domain.RunSummary, error) {
	due, err := s.posts.FindDue(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find due posts: %w", err)
	}

	summary := &domain.RunSummary{Published: make([]domain.DuePostResult, 0, len(due))}
	for _, post := range due {
		item := domain.DuePostResult{ID: post.ID, Slug: post.Slug, Title: post.Title}
		res, err := s.Publish(ctx, post.ID, false)
		if err != nil {
			// One post failing must not block the rest of the run.
			s.logger.ErrorContext(ctx, "scheduled publish failed", "post_id", post.ID, "err", err)
			item.Error = err.Error()
			summary.Failures++
		} else {
			item.Dispatched = res.Dispatched
			item.Report = res.Report
		}
		summary.Published = append(summary.Published, item)
	}
	return summary, nil
}

func (s *publisherService) SendTest(ctx context.Context, postID, to string) error {
	to = strings.TrimSpace(strings.ToLower(to))
	if !emailRegexp.MatchString(to) {
		return domain.NewValidationError("invalid test email address")
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	build := s.newsletterBuilder(post, true)
	msg, err := build(domain.Recipient{Email: to, UnsubscribeToken: "test"})
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send test email: %w", err)
	}
	return nil
}

// newsletterBuilder sanitizes the post content once and returns a closure
// that renders one personalized message per recipient.
func (s *publisherService) newsletterBuilder(post *domain.Post, test bool) func(domain.Recipient) (domain.BatchMessage, error) {
	title := sanitize.Sanitize(post.Title)
	excerpt := sanitize.Sanitize(post.Excerpt)
	body := sanitize.Sanitize(post.BodyHTML)
	postURL := fmt.Sprintf("%s/posts/%s", s.siteURL, post.Slug)

	return func(rec domain.Recipient) (domain.BatchMessage, error) {
		data := &domain.NewsletterEmailData{
			SiteName:       s.siteName,
			SiteURL:        s.siteURL,
			Title:          title,
			Excerpt:        template.HTML(excerpt),
			Body:           template.HTML(body),
			PostURL:        postURL,
			UnsubscribeURL: fmt.Sprintf("%s/subscribers/unsubscribe?token=%s", s.siteURL, rec.UnsubscribeToken),
			Test:           test,
		}
		subject, htmlBody, textBody, err := s.renderer.Render("newsletter", data)
		if err != nil {
			return domain.BatchMessage{}, fmt.Errorf("render newsletter: %w", err)
		}
		return domain.BatchMessage{To: rec.Email, Subject: subject, HTML: htmlBody, Text: textBody}, nil
	}
}
