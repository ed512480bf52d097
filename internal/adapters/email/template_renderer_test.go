package email

import (
	"html/template"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letterpress/internal/domain"
)

func TestTemplateRenderer_Newsletter(t *testing.T) {
	r := NewTemplateRenderer()
	data := &domain.NewsletterEmailData{
		SiteName:       "Letterpress",
		SiteURL:        "https://example.com",
		Title:          "First Post",
		Excerpt:        template.HTML("<em>short</em>"),
		Body:           template.HTML("<p>body</p>"),
		PostURL:        "https://example.com/posts/first-post",
		UnsubscribeURL: "https://example.com/subscribers/unsubscribe?token=tok-1",
	}

	subject, htmlBody, textBody, err := r.Render("newsletter", data)
	require.NoError(t, err)
	assert.Equal(t, "First Post — Letterpress", subject)
	assert.Contains(t, htmlBody, "<p>body</p>")
	assert.Contains(t, htmlBody, "token=tok-1")
	assert.Contains(t, textBody, "https://example.com/posts/first-post")
}

func TestTemplateRenderer_NewsletterTestPrefix(t *testing.T) {
	r := NewTemplateRenderer()
	subject, _, _, err := r.Render("newsletter", &domain.NewsletterEmailData{
		SiteName: "Letterpress",
		Title:    "Draft Check",
		Test:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "[TEST] Draft Check — Letterpress", subject)
}

func TestTemplateRenderer_Confirmation(t *testing.T) {
	r := NewTemplateRenderer()
	subject, htmlBody, textBody, err := r.Render("confirmation", &domain.ConfirmationEmailData{
		SiteName:   "Letterpress",
		Name:       "Sam",
		ConfirmURL: "https://example.com/subscribers/confirm/tok-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "Confirm your subscription to Letterpress", subject)
	assert.Contains(t, htmlBody, "Hello Sam,")
	assert.Contains(t, htmlBody, "confirm/tok-9")
	assert.Contains(t, textBody, "confirm/tok-9")
}
