// Package google verifies Google Sign-In ID tokens server side. The client
// obtains the ID token through the Google Identity Services flow and posts
// it to the API; nothing in this package talks to the OAuth code-exchange
// endpoints.
package google

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// JWKSURL is Google's published signing key set.
const JWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// Google issues tokens under both issuer spellings.
var acceptedIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// ErrInvalidIDToken is returned when the token fails signature, audience,
// issuer, or expiry checks.
var ErrInvalidIDToken = goerrors.New("invalid google id token", goerrors.CategoryAuth).
	WithTextCode("UNAUTHENTICATED").
	WithCode(goerrors.CodeUnauthorized)

// Profile is the identity asserted by a verified ID token.
type Profile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verifier validates ID tokens against Google's rotating JWKS.
type Verifier struct {
	clientID string
	keyFunc  jwt.Keyfunc
	close    func()
}

type VerifierOption func(*Verifier)

// WithKeyfunc overrides the JWKS-backed key lookup (useful for tests).
func WithKeyfunc(fn jwt.Keyfunc) VerifierOption {
	return func(v *Verifier) {
		if fn != nil {
			v.keyFunc = fn
		}
	}
}

// NewVerifier creates a verifier for tokens issued to the given OAuth client
// id. Unless a custom keyfunc is provided it starts a background JWKS
// refresh; call Close when done.
func NewVerifier(clientID string, opts ...VerifierOption) (*Verifier, error) {
	if clientID == "" {
		return nil, goerrors.New("google client id is required", goerrors.CategoryBadInput)
	}

	v := &Verifier{clientID: clientID}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	if v.keyFunc == nil {
		jwks, err := keyfunc.Get(JWKSURL, keyfunc.Options{
			RefreshErrorHandler: func(err error) {
				log.Printf("failed to do a background refresh of google JWK set: %s", err)
			},
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  time.Minute * 5,
			RefreshTimeout:    time.Second * 10,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to fetch google JWK set")
		}
		v.keyFunc = jwks.Keyfunc
		v.close = jwks.EndBackground
	}

	return v, nil
}

// Close stops the background JWKS refresh.
func (v *Verifier) Close() {
	if v.close != nil {
		v.close()
	}
}

// Verify parses and validates the ID token and returns the asserted profile.
func (v *Verifier) Verify(ctx context.Context, idToken string) (Profile, error) {
	claims := &idTokenClaims{}

	token, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.keyFunc(t)
	}, jwt.WithAudience(v.clientID))

	if err != nil || !token.Valid {
		return Profile{}, ErrInvalidIDToken
	}

	if !issuerAccepted(claims.Issuer) {
		return Profile{}, ErrInvalidIDToken
	}

	if claims.Subject == "" || claims.Email == "" {
		return Profile{}, ErrInvalidIDToken
	}

	return Profile{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

func issuerAccepted(issuer string) bool {
	for _, accepted := range acceptedIssuers {
		if issuer == accepted {
			return true
		}
	}
	return false
}
