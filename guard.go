package identity

import (
	"strings"

	"github.com/goliatone/go-router"
)

// Guard is the route protection middleware. Authenticated validates the
// bearer token and re-reads the account so a block takes effect on live
// sessions immediately; RequireRoles checks the session role against an
// explicit allow list.
type Guard struct {
	auther *Auther
	logger Logger
}

func NewGuard(auther *Auther) *Guard {
	return &Guard{
		auther: auther,
		logger: defLogger{},
	}
}

func (g *Guard) WithLogger(logger Logger) *Guard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// Authenticated validates the Authorization bearer token, loads the live
// account record, and stores both session and user in the request context.
func (g *Guard) Authenticated() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			raw, err := bearerFromHeader(ctx)
			if err != nil {
				return RenderError(ctx, g.logger, ErrUnauthenticated)
			}

			session, err := g.auther.SessionFromToken(raw)
			if err != nil {
				return RenderError(ctx, g.logger, err)
			}

			user, err := g.auther.UserFromSession(ctx.Context(), session)
			if err != nil {
				// A deleted account invalidates the session outright.
				return RenderError(ctx, g.logger, ErrUnauthenticated)
			}

			if user.Blocked {
				return RenderError(ctx, g.logger, ErrAccountBlocked)
			}

			ctx.Locals(SessionKey, session)
			ctx.Locals(ActorKey, user)

			stdCtx := WithActor(WithSession(ctx.Context(), session), user)
			ctx.SetContext(stdCtx)

			return hf(ctx)
		}
	}
}

// RequireRoles rejects the request unless the session role is in the set.
// Run it after Authenticated.
func (g *Guard) RequireRoles(allowed RoleSet) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			session, err := GetRouterSession(ctx)
			if err != nil {
				return RenderError(ctx, g.logger, ErrUnauthenticated)
			}

			if !allowed.Allows(session.GetRole()) {
				return RenderError(ctx, g.logger, ErrForbidden)
			}

			return hf(ctx)
		}
	}
}

// GetRouterSession retrieves the session stored by the guard middleware.
func GetRouterSession(c router.Context) (Session, error) {
	value := c.Locals(SessionKey)
	if value == nil {
		return nil, ErrUnauthenticated
	}

	session, ok := value.(Session)
	if !ok {
		return nil, ErrUnauthenticated
	}

	return session, nil
}

// GetRouterActor retrieves the authenticated user stored by the guard
// middleware.
func GetRouterActor(c router.Context) (*User, error) {
	value := c.Locals(ActorKey)
	if value == nil {
		return nil, ErrUnauthenticated
	}

	user, ok := value.(*User)
	if !ok {
		return nil, ErrUnauthenticated
	}

	return user, nil
}

func bearerFromHeader(c router.Context) (string, error) {
	authScheme := "Bearer"
	a := c.GetString(router.HeaderAuthorization, "")
	l := len(authScheme)
	if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
		return strings.TrimSpace(a[l:]), nil
	}
	return "", ErrUnauthenticated
}
