package identity

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// GoogleProfile is the subset of a verified Google identity the store needs.
type GoogleProfile struct {
	Subject       string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// RegisterInput is the payload for passwordless registration. Role is only
// honored by staff provisioning; public registration always gets student.
type RegisterInput struct {
	Name    string
	Email   string
	Phone   string
	Country string
	Role    Role
}

// IdentityStore coordinates account lifecycle writes: passwordless
// registration, Google unification, credential verification, and the admin
// block and delete operations with their role guards.
type IdentityStore struct {
	repo         RepositoryManager
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// NewIdentityStore will create a new IdentityStore
func NewIdentityStore(repo RepositoryManager) *IdentityStore {
	return &IdentityStore{
		repo:         repo,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *IdentityStore) WithLogger(logger Logger) *IdentityStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting account events.
func (s *IdentityStore) WithActivitySink(sink ActivitySink) *IdentityStore {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

func (s *IdentityStore) WithClock(clock func() time.Time) *IdentityStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

// RegisterPending creates a passwordless, unverified account. The caller is
// responsible for kicking off the verification flow afterwards.
func (s *IdentityStore) RegisterPending(ctx context.Context, input RegisterInput) (*User, error) {
	email := NormalizeEmail(input.Email)

	if _, err := s.repo.Users().GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailAlreadyExists
	} else if !errors.IsNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to check email availability")
	}

	role := input.Role
	if !role.IsValid() {
		role = RoleStudent
	}

	user := &User{
		Role:    role,
		Name:    strings.TrimSpace(input.Name),
		Email:   email,
		Phone:   strings.TrimSpace(input.Phone),
		Country: strings.TrimSpace(input.Country),
	}

	// The availability check above races with concurrent registrations; the
	// unique index on lower(email) is the arbiter.
	user, err := s.repo.Users().Register(ctx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to register user")
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType:   ActivityEventUserRegistered,
		TargetEmail: user.Email,
	})

	return user, nil
}

// CreateOrLinkGoogle unifies a verified Google identity with the local
// account base. A known subject logs in; an email that already belongs to a
// password account is a conflict, never a silent takeover; otherwise a fresh
// pending account is created and the caller kicks off the verification flow,
// the same as passwordless registration. The returned bool reports whether a
// new account was created.
func (s *IdentityStore) CreateOrLinkGoogle(ctx context.Context, profile GoogleProfile) (*User, bool, error) {
	if profile.Subject == "" {
		return nil, false, errors.New("google profile is missing a subject", errors.CategoryBadInput)
	}

	if !profile.EmailVerified {
		return nil, false, ErrNotVerified
	}

	user, err := s.repo.Users().GetByGoogleSubject(ctx, profile.Subject)
	if err == nil {
		if user.Blocked {
			return nil, false, ErrAccountBlocked
		}
		return user, false, nil
	}

	if !errors.IsNotFound(err) {
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to look up google subject")
	}

	email := NormalizeEmail(profile.Email)

	if _, err := s.repo.Users().GetByEmail(ctx, email); err == nil {
		return nil, false, ErrEmailAlreadyExists
	} else if !errors.IsNotFound(err) {
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to look up email")
	}

	user = &User{
		Role:          RoleStudent,
		Name:          profile.Name,
		Email:         email,
		GoogleSubject: profile.Subject,
		Picture:       profile.Picture,
	}

	user, err = s.repo.Users().Register(ctx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, ErrEmailAlreadyExists
		}
		return nil, false, errors.Wrap(err, errors.CategoryInternal, "failed to register google user")
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType:   ActivityEventUserGoogleRegistered,
		TargetEmail: user.Email,
	})

	return user, true, nil
}

// VerifyIdentity finds the user and compares credentials. Unknown email,
// missing credentials, and a wrong password all collapse into
// ErrInvalidCredentials; the password compare runs even when no hash exists
// so the failure paths stay in the same timing class.
func (s *IdentityStore) VerifyIdentity(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			ComparePasswordAndHash(password, sentinelHash)
			s.emitLoginFailure(ctx, email, "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculdate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	//if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		s.emitLoginFailure(ctx, user.Email, "too many attempts")
		return nil, ErrTooManyLoginAttempts
	}

	hash := user.PasswordHash
	if hash == "" {
		hash = sentinelHash
	}

	if err := ComparePasswordAndHash(password, hash); err != nil {
		if err2 := s.repo.Users().TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		s.emitLoginFailure(ctx, user.Email, "password mismatch")
		return nil, ErrInvalidCredentials
	}

	if user.Blocked {
		s.emitLoginFailure(ctx, user.Email, "account blocked")
		return nil, ErrAccountBlocked
	}

	if err := s.repo.Users().TrackSuccessfulLogin(ctx, user); err != nil {
		s.logger.Error("failed to track successful login: %v", err)
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType:   ActivityEventUserLogin,
		ActorUserID: &user.ID,
		TargetEmail: user.Email,
	})

	return user, nil
}

// SetBlocked flips the blocked flag on the target account. Super admin
// accounts can never be blocked, and blocking is idempotent.
func (s *IdentityStore) SetBlocked(ctx context.Context, actor *User, targetID uuid.UUID, blocked bool) (*User, error) {
	target, err := s.repo.Users().GetByID(ctx, targetID.String())
	if err != nil {
		return nil, err
	}

	if target.Role == RoleSuperAdmin {
		return nil, ErrForbidden
	}

	if target.Blocked == blocked {
		return target, nil
	}

	target, err = s.repo.Users().SetBlocked(ctx, targetID, blocked)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update blocked flag")
	}

	eventType := ActivityEventUserBlocked
	if !blocked {
		eventType = ActivityEventUserUnblocked
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType:   eventType,
		ActorUserID: actorID(actor),
		TargetEmail: target.Email,
	})

	return target, nil
}

// DeleteAccount removes the target account. Super admin accounts can never
// be deleted.
func (s *IdentityStore) DeleteAccount(ctx context.Context, actor *User, targetID uuid.UUID) error {
	target, err := s.repo.Users().GetByID(ctx, targetID.String())
	if err != nil {
		return err
	}

	if target.Role == RoleSuperAdmin {
		return ErrForbidden
	}

	if err := s.repo.Users().DeleteAccount(ctx, targetID); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete account")
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType:   ActivityEventUserDeleted,
		ActorUserID: actorID(actor),
		TargetEmail: target.Email,
	})

	return nil
}

func (s *IdentityStore) emitLoginFailure(ctx context.Context, email, reason string) {
	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType:   ActivityEventUserLoginFailed,
		TargetEmail: email,
		Metadata:    map[string]any{"reason": reason},
	})
}

func actorID(actor *User) *uuid.UUID {
	if actor == nil {
		return nil
	}
	id := actor.ID
	return &id
}

// IsOutsideThresholdPeriod checks whether the given time is older than the
// period expressed as a duration string.
func IsOutsideThresholdPeriod(t time.Time, period string) (bool, error) {
	d, err := time.ParseDuration(period)
	if err != nil {
		return false, err
	}
	return time.Since(t) > d, nil
}
