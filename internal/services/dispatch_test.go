package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letterpress/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeRecipients(n int) []domain.Recipient {
	out := make([]domain.Recipient, n)
	for i := range out {
		out[i] = domain.Recipient{
			ID:               fmt.Sprintf("sub-%03d", i),
			Email:            fmt.Sprintf("r%d@example.com", i),
			UnsubscribeToken: fmt.Sprintf("unsub-%d", i),
		}
	}
	return out
}

func passthroughBuild(r domain.Recipient) (domain.BatchMessage, error) {
	return domain.BatchMessage{To: r.Email, Subject: "hello", HTML: "<p>hi</p>"}, nil
}

func TestBatchMailer_SplitsIntoBatches(t *testing.T) {
	mailer := &fakeMailer{}
	dispatcher := NewBatchMailer(mailer, 100, testLogger())

	report := dispatcher.Dispatch(context.Background(), passthroughBuild, makeRecipients(250))

	require.Len(t, mailer.batches, 3)
	assert.Len(t, mailer.batches[0], 100)
	assert.Len(t, mailer.batches[1], 100)
	assert.Len(t, mailer.batches[2], 50)
	assert.Equal(t, 250, report.SentCount)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 0, report.FailedBatches)
}

func TestBatchMailer_FailedBatchDoesNotAbortRun(t *testing.T) {
	mailer := &fakeMailer{failBatches: map[int]bool{2: true}}
	dispatcher := NewBatchMailer(mailer, 100, testLogger())

	report := dispatcher.Dispatch(context.Background(), passthroughBuild, makeRecipients(250))

	require.Len(t, mailer.batches, 3, "batches after a failure are still attempted")
	assert.Equal(t, 150, report.SentCount)
	assert.Equal(t, 1, report.FailedBatches)
	assert.Equal(t, 3, report.Batches)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "batch 2 of 3")
}

func TestBatchMailer_BuildErrorSkipsRecipient(t *testing.T) {
	mailer := &fakeMailer{}
	dispatcher := NewBatchMailer(mailer, 100, testLogger())

	build := func(r domain.Recipient) (domain.BatchMessage, error) {
		if r.ID == "sub-001" {
			return domain.BatchMessage{}, errors.New("template blew up")
		}
		return passthroughBuild(r)
	}
	report := dispatcher.Dispatch(context.Background(), build, makeRecipients(3))

	assert.Equal(t, 2, report.SentCount)
	assert.Equal(t, 0, report.FailedBatches)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "r1@example.com")
}

func TestBatchMailer_EmptyRecipientList(t *testing.T) {
	mailer := &fakeMailer{}
	dispatcher := NewBatchMailer(mailer, 100, testLogger())

	report := dispatcher.Dispatch(context.Background(), passthroughBuild, nil)

	assert.Empty(t, mailer.batches)
	assert.Equal(t, 0, report.SentCount)
	assert.Equal(t, 0, report.Batches)
}
