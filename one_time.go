package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// DefaultOneTimeTokenTTL bounds how long an emailed link stays valid.
var DefaultOneTimeTokenTTL = time.Hour

// OneTimeTokens mints and spends single-use tokens. The plaintext is random,
// returned once to the caller, and never persisted; lookups go through its
// SHA-256 digest.
type OneTimeTokens struct {
	repo   VerificationTokens
	ttl    time.Duration
	now    func() time.Time
	logger Logger
}

type OneTimeTokensOption func(*OneTimeTokens)

func WithOneTimeTokenTTL(ttl time.Duration) OneTimeTokensOption {
	return func(o *OneTimeTokens) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func WithOneTimeTokenClock(clock func() time.Time) OneTimeTokensOption {
	return func(o *OneTimeTokens) {
		if clock != nil {
			o.now = clock
		}
	}
}

func WithOneTimeTokenLogger(logger Logger) OneTimeTokensOption {
	return func(o *OneTimeTokens) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewOneTimeTokens(repo VerificationTokens, opts ...OneTimeTokensOption) *OneTimeTokens {
	o := &OneTimeTokens{
		repo:   repo,
		ttl:    DefaultOneTimeTokenTTL,
		now:    time.Now,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return o
}

// Issue mints a fresh token for the user and purpose, expiring any link of
// the same purpose that is still outstanding. It returns the plaintext to
// embed in the emailed link together with the stored record.
func (o *OneTimeTokens) Issue(ctx context.Context, tx bun.IDB, user *User, purpose TokenPurpose) (string, *VerificationToken, error) {
	if user == nil {
		return "", nil, errors.New("user must not be nil", errors.CategoryInternal)
	}

	now := o.now()

	if err := o.repo.InvalidateForUserTx(ctx, tx, user.ID, purpose, now); err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to invalidate outstanding tokens")
	}

	plaintext, err := mintTokenPlaintext()
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to mint token")
	}

	record := &VerificationToken{
		UserID:    user.ID,
		TokenHash: HashTokenPlaintext(plaintext),
		Purpose:   purpose,
		ExpiresAt: now.Add(o.ttl),
	}

	record, err = o.repo.CreateTx(ctx, tx, record)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist token")
	}

	return plaintext, record, nil
}

// Consume spends the token identified by plaintext. Failure modes are
// distinct: unknown token, purpose mismatch, already used, and expired each
// map to their own error so callers can explain the link state.
func (o *OneTimeTokens) Consume(ctx context.Context, tx bun.IDB, plaintext string, purpose TokenPurpose) (*VerificationToken, error) {
	tokenHash := HashTokenPlaintext(plaintext)
	now := o.now()

	record, err := o.repo.GetByHashTx(ctx, tx, tokenHash)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrTokenInvalid
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up token")
	}

	if record.Purpose != purpose {
		return nil, ErrTokenPurposeMismatch
	}

	if record.Consumed() {
		return nil, ErrTokenAlreadyUsed
	}

	if record.Expired(now) {
		return nil, ErrTokenExpired
	}

	consumed, err := o.repo.ConsumeTx(ctx, tx, tokenHash, now)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// Lost the race against a concurrent spend of the same link.
			return nil, ErrTokenAlreadyUsed
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume token")
	}

	return consumed, nil
}

func mintTokenPlaintext() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashTokenPlaintext derives the stored digest for a token plaintext.
func HashTokenPlaintext(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
