package domain

import (
	"context"
	"time"
)

// DispatchStatus is the recorded outcome of one dispatch run.
type DispatchStatus string

const (
	DispatchStatusSent   DispatchStatus = "sent"
	DispatchStatusFailed DispatchStatus = "failed"
)

// DispatchLogEntry is one historical record of a newsletter dispatch.
// Entries are append-only: re-sends add a new entry, nothing mutates old ones.
// swagger:model DispatchLogEntry
type DispatchLogEntry struct {
	ID             string         `json:"id"`
	PostID         string         `json:"post_id"`
	RecipientCount int            `json:"recipient_count"`
	Status         DispatchStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
}

// DispatchLogRepository defines append-only storage for dispatch records.
type DispatchLogRepository interface {
	Append(ctx context.Context, entry *DispatchLogEntry) error
	ListByPost(ctx context.Context, postID string) ([]*DispatchLogEntry, error)
}

// DispatchReport summarizes one batch mailer run.
type DispatchReport struct {
	SentCount     int      `json:"sent_count"`
	FailedBatches int      `json:"failed_batches"`
	Batches       int      `json:"batches"`
	Errors        []string `json:"errors,omitempty"`
}

// Merge folds another report into r. Used when a dispatch runs page by page.
func (r *DispatchReport) Merge(other *DispatchReport) {
	if other == nil {
		return
	}
	r.SentCount += other.SentCount
	r.FailedBatches += other.FailedBatches
	r.Batches += other.Batches
	r.Errors = append(r.Errors, other.Errors...)
}

// BatchDispatcher partitions recipients into provider-safe batches and drives
// the outbound transport. Batches are sent sequentially; a failed batch is
// recorded and does not abort the ones after it.
type BatchDispatcher interface {
	Dispatch(ctx context.Context, build func(Recipient) (BatchMessage, error), recipients []Recipient) *DispatchReport
}

// PublishResult reports the outcome of publishing one post.
type PublishResult struct {
	Post       *Post           `json:"post"`
	Dispatched bool            `json:"dispatched"`
	Report     *DispatchReport `json:"report,omitempty"`
}

// DuePostResult is the per-post outcome of a scheduler run.
type DuePostResult struct {
	ID         string          `json:"id"`
	Slug       string          `json:"slug"`
	Title      string          `json:"title"`
	Dispatched bool            `json:"dispatched"`
	Report     *DispatchReport `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// RunSummary is the scheduler trigger's response: every due post with its
// individual outcome. One post failing never hides the others.
type RunSummary struct {
	Published []DuePostResult `json:"published"`
	Failures  int             `json:"failures"`
}

// PublisherService is the state machine that moves posts through their
// lifecycle and owns the publish-and-dispatch pipeline.
type PublisherService interface {
	// Publish moves a post into published, stamping published_at on first
	// publish only, then dispatches the newsletter unless email_sent is
	// already set. force re-dispatches an already sent post.
	Publish(ctx context.Context, postID string, force bool) (*PublishResult, error)
	// Transition applies a non-publish lifecycle change (unpublish, schedule,
	// archive). Publishing goes through Publish so dispatch is never skipped.
	Transition(ctx context.Context, postID string, to PostStatus, scheduledFor *time.Time) (*Post, error)
	// RunDue publishes every scheduled post whose time has come, isolating
	// failures per post.
	RunDue(ctx context.Context) (*RunSummary, error)
	// SendTest sends the rendered newsletter for a post to a single address.
	// It never touches the dispatch log or the email_sent flag.
	SendTest(ctx context.Context, postID, to string) error
}
