package identity

import (
	"context"

	"github.com/studylend/identity/google"
)

type googleVerifierAdapter struct {
	verifier *google.Verifier
}

// NewGoogleTokenVerifier adapts the google subpackage verifier to the
// controller's GoogleTokenVerifier interface.
func NewGoogleTokenVerifier(verifier *google.Verifier) GoogleTokenVerifier {
	return googleVerifierAdapter{verifier: verifier}
}

func (g googleVerifierAdapter) Verify(ctx context.Context, idToken string) (GoogleProfile, error) {
	profile, err := g.verifier.Verify(ctx, idToken)
	if err != nil {
		return GoogleProfile{}, err
	}

	return GoogleProfile{
		Subject:       profile.Subject,
		Email:         profile.Email,
		Name:          profile.Name,
		Picture:       profile.Picture,
		EmailVerified: profile.EmailVerified,
	}, nil
}
