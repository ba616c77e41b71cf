package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/studylend/identity"
)

func TestLinkBuilder(t *testing.T) {
	links := identity.LinkBuilder{BaseURL: "https://app.studylend.example/"}

	assert.Equal(t,
		"https://app.studylend.example/verify-email?token=abc123",
		links.VerificationLink("abc123"),
	)
	assert.Equal(t,
		"https://app.studylend.example/reset-password?token=abc123",
		links.ResetLink("abc123"),
	)

	// Tokens are opaque strings and must survive URL embedding.
	assert.Equal(t,
		"https://app.studylend.example/verify-email?token=a%2Bb%2Fc%3D",
		links.VerificationLink("a+b/c="),
	)
}

func TestLogMailerNeverFails(t *testing.T) {
	mailer := identity.NewLogMailer("https://app.studylend.example", testLogger{})

	ctx := context.Background()
	assert.NoError(t, mailer.SendVerificationLink(ctx, "pepe.rone@example.com", "tok"))
	assert.NoError(t, mailer.SendResetLink(ctx, "pepe.rone@example.com", "tok"))
}
