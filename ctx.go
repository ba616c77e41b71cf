package identity

import "context"

type contextKey string

const (
	sessionContextKey contextKey = "identity.session"
	actorContextKey   contextKey = "identity.actor"
)

// Router locals keys used by the guard middleware.
const (
	SessionKey = "session"
	ActorKey   = "actor"
)

// WithSession stores the session in the context.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext retrieves the session stored by the guard, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(Session)
	return session, ok
}

// WithActor stores the authenticated user in the context.
func WithActor(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, actorContextKey, user)
}

// ActorFromContext retrieves the authenticated user stored by the guard.
func ActorFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(actorContextKey).(*User)
	return user, ok
}
