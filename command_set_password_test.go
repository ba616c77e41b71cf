package identity_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/studylend/identity"
)

func TestSetPasswordHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects a weak password", func(t *testing.T) {
		repo := newStubRepoManager()
		handler := identity.NewSetPasswordHandler(repo)

		err := handler.Execute(ctx, identity.SetPasswordMessage{
			UserID:   uuid.New(),
			Password: "short",
		})
		assert.ErrorIs(t, err, identity.ErrPasswordPolicy)
	})

	t.Run("requires a verified email", func(t *testing.T) {
		repo := newStubRepoManager()
		handler := identity.NewSetPasswordHandler(repo)

		user := &identity.User{ID: uuid.New(), Email: "pepe.rone@example.com"}
		repo.users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()

		err := handler.Execute(ctx, identity.SetPasswordMessage{
			UserID:   user.ID,
			Password: "Sup3r-Secret!",
		})
		assert.ErrorIs(t, err, identity.ErrNotVerified)
		repo.users.AssertNotCalled(t, "SetPasswordTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects a blocked account", func(t *testing.T) {
		repo := newStubRepoManager()
		handler := identity.NewSetPasswordHandler(repo)

		user := &identity.User{ID: uuid.New(), EmailVerified: true, Blocked: true}
		repo.users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()

		err := handler.Execute(ctx, identity.SetPasswordMessage{
			UserID:   user.ID,
			Password: "Sup3r-Secret!",
		})
		assert.ErrorIs(t, err, identity.ErrAccountBlocked)
	})

	t.Run("stores the hash and emits activity", func(t *testing.T) {
		repo := newStubRepoManager()
		sink := &captureSink{}
		handler := identity.NewSetPasswordHandler(repo).
			WithLogger(testLogger{}).
			WithActivitySink(sink)

		user := &identity.User{ID: uuid.New(), Email: "pepe.rone@example.com", EmailVerified: true}
		password := "Sup3r-Secret!"

		repo.users.On("GetByID", mock.Anything, user.ID.String()).Return(user, nil).Once()

		var storedHash string
		repo.users.On("SetPasswordTx", mock.Anything, mock.Anything, user.ID, mock.Anything).
			Return(nil).
			Run(func(args mock.Arguments) {
				storedHash = args.String(3)
			}).Once()

		var resp *identity.SetPasswordResponse
		err := handler.Execute(ctx, identity.SetPasswordMessage{
			UserID:   user.ID,
			Password: password,
			OnResponse: func(r *identity.SetPasswordResponse) {
				resp = r
			},
		})
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.True(t, resp.Success)

		// The cleartext never reaches the store.
		require.NotEmpty(t, storedHash)
		assert.NotEqual(t, password, storedHash)
		assert.NoError(t, identity.ComparePasswordAndHash(password, storedHash))

		assert.True(t, sink.has(identity.ActivityEventUserPasswordSet))
		repo.users.AssertExpectations(t)
	})
}
