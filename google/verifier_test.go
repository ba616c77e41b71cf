package google_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studylend/identity/google"
)

const testClientID = "studylend-client-id.apps.googleusercontent.com"

type tokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func defaultClaims() tokenClaims {
	return tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "google-subject-1138",
			Audience:  jwt.ClaimStrings{testClientID},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Email:         "pepe.rone@example.com",
		EmailVerified: true,
		Name:          "Pepe Rone",
		Picture:       "https://lh3.example.com/pepe.png",
	}
}

func newTestVerifier(t *testing.T) (*google.Verifier, func(tokenClaims) string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier, err := google.NewVerifier(testClientID, google.WithKeyfunc(func(token *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}))
	require.NoError(t, err)

	sign := func(claims tokenClaims) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err)
		return signed
	}

	return verifier, sign
}

func TestVerifierAcceptsValidToken(t *testing.T) {
	verifier, sign := newTestVerifier(t)
	ctx := context.Background()

	profile, err := verifier.Verify(ctx, sign(defaultClaims()))
	require.NoError(t, err)

	assert.Equal(t, "google-subject-1138", profile.Subject)
	assert.Equal(t, "pepe.rone@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Pepe Rone", profile.Name)
	assert.Equal(t, "https://lh3.example.com/pepe.png", profile.Picture)
}

func TestVerifierAcceptsBareIssuerSpelling(t *testing.T) {
	verifier, sign := newTestVerifier(t)

	claims := defaultClaims()
	claims.Issuer = "accounts.google.com"

	_, err := verifier.Verify(context.Background(), sign(claims))
	assert.NoError(t, err)
}

func TestVerifierRejections(t *testing.T) {
	verifier, sign := newTestVerifier(t)
	ctx := context.Background()

	t.Run("wrong audience", func(t *testing.T) {
		claims := defaultClaims()
		claims.Audience = jwt.ClaimStrings{"someone-else.apps.googleusercontent.com"}

		_, err := verifier.Verify(ctx, sign(claims))
		assert.ErrorIs(t, err, google.ErrInvalidIDToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := defaultClaims()
		claims.Issuer = "https://evil.example.com"

		_, err := verifier.Verify(ctx, sign(claims))
		assert.ErrorIs(t, err, google.ErrInvalidIDToken)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := defaultClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

		_, err := verifier.Verify(ctx, sign(claims))
		assert.ErrorIs(t, err, google.ErrInvalidIDToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := defaultClaims()
		claims.Subject = ""

		_, err := verifier.Verify(ctx, sign(claims))
		assert.ErrorIs(t, err, google.ErrInvalidIDToken)
	})

	t.Run("missing email", func(t *testing.T) {
		claims := defaultClaims()
		claims.Email = ""

		_, err := verifier.Verify(ctx, sign(claims))
		assert.ErrorIs(t, err, google.ErrInvalidIDToken)
	})

	t.Run("hmac signed token", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, defaultClaims()).
			SignedString([]byte("shared-secret"))
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, signed)
		assert.ErrorIs(t, err, google.ErrInvalidIDToken)
	})

	t.Run("signed with an unknown key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, defaultClaims()).SignedString(other)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, signed)
		assert.ErrorIs(t, err, google.ErrInvalidIDToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, google.ErrInvalidIDToken)
	})
}

func TestNewVerifierRequiresClientID(t *testing.T) {
	_, err := google.NewVerifier("")
	assert.Error(t, err)
}
