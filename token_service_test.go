package identity_test

import (
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studylend/identity"
)

func newTestTokenService() *identity.TokenServiceImpl {
	return identity.NewTokenService(
		[]byte("test-signing-key"),
		24,
		"studylend",
		[]string{"studylend-api"},
		testLogger{},
	)
}

func TestTokenServiceRoundTrip(t *testing.T) {
	service := newTestTokenService()

	user := &identity.User{
		ID:   uuid.New(),
		Role: identity.RoleAdmin,
	}

	token, err := service.IssueSession(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), claims.UserID())
	assert.Equal(t, identity.RoleAdmin, claims.Role())
	assert.Equal(t, "studylend", claims.RegisteredClaims.Issuer)
	assert.True(t, claims.Expires().After(time.Now()))
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	service := newTestTokenService().WithClock(func() time.Time {
		return time.Now().Add(-48 * time.Hour)
	})

	token, err := service.IssueSession(&identity.User{ID: uuid.New(), Role: identity.RoleStudent})
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, identity.TextCodeUnauthenticated, richErr.TextCode)
}

func TestTokenServiceRejectsWrongKey(t *testing.T) {
	service := newTestTokenService()

	other := identity.NewTokenService(
		[]byte("some-other-key"),
		24,
		"studylend",
		[]string{"studylend-api"},
		testLogger{},
	)

	token, err := other.IssueSession(&identity.User{ID: uuid.New(), Role: identity.RoleStudent})
	require.NoError(t, err)

	_, err = service.Validate(token)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, identity.TextCodeUnauthenticated, richErr.TextCode)
}

func TestTokenServiceRejectsWrongIssuer(t *testing.T) {
	service := newTestTokenService()

	other := identity.NewTokenService(
		[]byte("test-signing-key"),
		24,
		"someone-else",
		[]string{"studylend-api"},
		testLogger{},
	)

	token, err := other.IssueSession(&identity.User{ID: uuid.New(), Role: identity.RoleStudent})
	require.NoError(t, err)

	_, err = service.Validate(token)
	assert.Error(t, err)
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	service := newTestTokenService()

	_, err := service.Validate("not-a-token")
	assert.Error(t, err)
}

func TestIssueSessionRequiresUser(t *testing.T) {
	service := newTestTokenService()

	_, err := service.IssueSession(nil)
	assert.Error(t, err)
}
