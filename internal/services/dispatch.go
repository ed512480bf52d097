package services

import (
	"context"
	"fmt"
	"log/slog"

	"letterpress/internal/domain"
)

// DefaultBatchSize is the per-call recipient ceiling assumed for the outbound
// provider when none is configured.
const DefaultBatchSize = 100

type batchMailer struct {
	mailer    domain.Mailer
	batchSize int
	logger    *slog.Logger
}

// NewBatchMailer returns a BatchDispatcher that partitions recipients into
// batches of at most batchSize and sends them sequentially through mailer.
func NewBatchMailer(mailer domain.Mailer, batchSize int, logger *slog.Logger) domain.BatchDispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &batchMailer{mailer: mailer, batchSize: batchSize, logger: logger}
}

// Dispatch renders one personalized message per recipient and sends the
// batches in order. A failed batch is recorded in the report and the loop
// moves on to the next batch; retries are the caller's policy, not ours.
func (m *batchMailer) Dispatch(ctx context.Context, build func(domain.Recipient) (domain.BatchMessage, error), recipients []domain.Recipient) *domain.DispatchReport {
	report := &domain.DispatchReport{}
	total := (len(recipients) + m.batchSize - 1) / m.batchSize

	for start := 0; start < len(recipients); start += m.batchSize {
		end := start + m.batchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		msgs := make([]domain.BatchMessage, 0, end-start)
		for _, rec := range recipients[start:end] {
			msg, err := build(rec)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("render for %s: %v", rec.Email, err))
				continue
			}
			msgs = append(msgs, msg)
		}

		report.Batches++
		batchNum := report.Batches
		if len(msgs) == 0 {
			report.FailedBatches++
			continue
		}
		if err := m.mailer.SendBatch(ctx, msgs); err != nil {
			report.FailedBatches++
			report.Errors = append(report.Errors, fmt.Sprintf("batch %d of %d: %v", batchNum, total, err))
			m.logger.ErrorContext(ctx, "newsletter batch failed", "batch", batchNum, "batches", total, "err", err)
			continue
		}
		report.SentCount += len(msgs)
	}
	return report
}
