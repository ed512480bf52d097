package domain

import (
	"context"
	"html/template"
)

// BatchMessage is one outbound email as the transport sees it.
type BatchMessage struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer defines the contract for the outbound email transport
// (infrastructure port). SendBatch is one provider call; the caller is
// responsible for keeping batches under the provider's per-call ceiling.
type Mailer interface {
	Send(ctx context.Context, msg BatchMessage) error
	SendBatch(ctx context.Context, msgs []BatchMessage) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// ConfirmationEmailData holds data for the double-opt-in confirmation email.
type ConfirmationEmailData struct {
	SiteName   string
	SiteURL    string
	Name       string
	ConfirmURL string
}

// NewsletterEmailData holds data for one rendered newsletter message.
// Title, Excerpt and Body must already be sanitized; they are injected as-is.
type NewsletterEmailData struct {
	SiteName       string
	SiteURL        string
	Title          string
	Excerpt        template.HTML
	Body           template.HTML
	PostURL        string
	UnsubscribeURL string
	Test           bool
}

// TokenVerifier verifies an admin bearer token and returns the authenticated
// user ID. The identity store issuing these tokens is an external service.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}
