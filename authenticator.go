package identity

import (
	"context"
)

// Auther is the default Authenticator: it verifies credentials through the
// identity store and issues stateless session tokens.
type Auther struct {
	store        *IdentityStore
	tokenService TokenService
	logger       Logger
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store *IdentityStore, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		store:        store,
		tokenService: tokenService,
		logger:       defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTokenService overrides the default token service.
func (s *Auther) WithTokenService(tokenService TokenService) *Auther {
	if tokenService != nil {
		s.tokenService = tokenService
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credentials and returns a signed session token together
// with the authenticated user.
func (s *Auther) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.store.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		return "", nil, err
	}

	token, err := s.tokenService.IssueSession(user)
	if err != nil {
		s.logger.Error("Login failed to issue session: %v", err)
		return "", nil, err
	}

	return token, user, nil
}

// SessionFromToken validates the raw token and adapts its claims to a
// Session. The blocked flag is not part of the claims; callers that need a
// live answer go through UserFromSession.
func (s *Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	session, err := sessionFromClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	return session, nil
}

// UserFromSession loads the current account record for the session.
func (s *Auther) UserFromSession(ctx context.Context, session Session) (*User, error) {
	if session == nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.store.repo.Users().GetByID(ctx, session.GetUserID())
	if err != nil {
		s.logger.Error("UserFromSession failed to load user: %v", err)
		return nil, err
	}

	return user, nil
}
