package identity

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// LinkBuilder renders the URLs embedded in outgoing mail.
type LinkBuilder struct {
	BaseURL string
}

// VerificationLink returns the full verification URL for the token.
func (b LinkBuilder) VerificationLink(token string) string {
	return b.join("/verify-email", token)
}

// ResetLink returns the full password reset URL for the token.
func (b LinkBuilder) ResetLink(token string) string {
	return b.join("/reset-password", token)
}

func (b LinkBuilder) join(path, token string) string {
	base := strings.TrimSuffix(b.BaseURL, "/")
	return fmt.Sprintf("%s%s?token=%s", base, path, url.QueryEscape(token))
}

// logMailer writes the outgoing message to the log instead of dispatching
// it. Useful in development and as the fallback when no mailer is wired.
type logMailer struct {
	links  LinkBuilder
	logger Logger
}

// NewLogMailer returns a Mailer that only logs the links it would send.
func NewLogMailer(baseURL string, logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &logMailer{
		links:  LinkBuilder{BaseURL: baseURL},
		logger: logger,
	}
}

func (m *logMailer) SendVerificationLink(ctx context.Context, email, token string) error {
	m.logger.Info("verification mail for %s: %s", email, m.links.VerificationLink(token))
	return nil
}

func (m *logMailer) SendResetLink(ctx context.Context, email, token string) error {
	m.logger.Info("reset mail for %s: %s", email, m.links.ResetLink(token))
	return nil
}

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return NewLogMailer("", defLogger{})
	}
	return m
}
