package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studylend/identity"
)

func TestSessionClaimsUserID(t *testing.T) {
	claims := &identity.SessionClaims{UID: "uid-1"}
	claims.Subject = "subject-1"
	assert.Equal(t, "uid-1", claims.UserID())

	claims = &identity.SessionClaims{}
	claims.Subject = "subject-1"
	assert.Equal(t, "subject-1", claims.UserID())
}

func TestSessionClaimsRole(t *testing.T) {
	claims := &identity.SessionClaims{UserRole: "admin"}
	assert.Equal(t, identity.RoleAdmin, claims.Role())
}

func TestSessionClaimsTimes(t *testing.T) {
	issued := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(time.Hour)

	claims := &identity.SessionClaims{}
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(issued)
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(expires)

	assert.True(t, claims.IssuedAt().Equal(issued))
	assert.True(t, claims.Expires().Equal(expires))

	empty := &identity.SessionClaims{}
	assert.True(t, empty.IssuedAt().IsZero())
	assert.True(t, empty.Expires().IsZero())
}

func TestSessionObject(t *testing.T) {
	userID := "0b7aab15-7b1c-4a63-a7c5-6cba7a07b43a"
	session := &identity.SessionObject{
		UserID:   userID,
		UserRole: identity.RoleStudent,
		Issuer:   "studylend",
	}

	assert.Equal(t, userID, session.GetUserID())
	assert.Equal(t, identity.RoleStudent, session.GetRole())
	assert.Equal(t, "studylend", session.GetIssuer())

	parsed, err := session.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, userID, parsed.String())

	session.UserID = "garbage"
	_, err = session.GetUserUUID()
	assert.Error(t, err)
}
