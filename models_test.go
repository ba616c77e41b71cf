package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/studylend/identity"
)

func TestUserHasPassword(t *testing.T) {
	user := &identity.User{}
	assert.False(t, user.HasPassword())

	user.PasswordHash = "$2a$14$abcdefghijklmnopqrstuv"
	assert.True(t, user.HasPassword())
}

func TestVerificationTokenState(t *testing.T) {
	now := time.Now()

	token := &identity.VerificationToken{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, token.Expired(now))
	assert.False(t, token.Consumed())

	assert.True(t, token.Expired(now.Add(2*time.Hour)))

	consumedAt := now
	token.ConsumedAt = &consumedAt
	assert.True(t, token.Consumed())
}

func TestLeadTerminal(t *testing.T) {
	lead := &identity.Lead{Status: identity.LeadStatusNew}
	assert.False(t, lead.Terminal())

	lead.Status = identity.LeadStatusConverted
	assert.True(t, lead.Terminal())

	lead.Status = identity.LeadStatusClosed
	assert.True(t, lead.Terminal())
}

func TestLeadEnsureStatus(t *testing.T) {
	lead := &identity.Lead{}
	lead.EnsureStatus()
	assert.Equal(t, identity.LeadStatusNew, lead.Status)

	lead.Status = identity.LeadStatusContacted
	lead.EnsureStatus()
	assert.Equal(t, identity.LeadStatusContacted, lead.Status)
}
