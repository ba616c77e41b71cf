package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SetPasswordMessage struct {
	UserID     uuid.UUID `json:"-"`
	Password   string    `json:"password"`
	OnResponse func(resp *SetPasswordResponse)
}

func (e SetPasswordMessage) Type() string { return "identity.set_password" }

type SetPasswordResponse struct {
	User    *User
	Success bool
}

// SetPasswordHandler issues credentials for the authenticated account. The
// email must already be verified; the passwordless flow defers this step
// until after the link is clicked.
type SetPasswordHandler struct {
	repo         RepositoryManager
	activitySink ActivitySink
	logger       Logger
}

func NewSetPasswordHandler(repo RepositoryManager) *SetPasswordHandler {
	return &SetPasswordHandler{
		repo:         repo,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *SetPasswordHandler) WithLogger(logger Logger) *SetPasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithActivitySink configures an ActivitySink for emitting credential events.
func (h *SetPasswordHandler) WithActivitySink(sink ActivitySink) *SetPasswordHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *SetPasswordHandler) Execute(ctx context.Context, event SetPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password setup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SetPasswordHandler) execute(ctx context.Context, event SetPasswordMessage) error {
	resp := &SetPasswordResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := ValidatePasswordPolicy(event.Password); err != nil {
		return err
	}

	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByID(ctx, event.UserID.String())
		if err != nil {
			return err
		}

		if user.Blocked {
			return ErrAccountBlocked
		}

		if !user.EmailVerified {
			return ErrNotVerified
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		if err := h.repo.Users().SetPasswordTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password setup transaction failed")
	}

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType:   ActivityEventUserPasswordSet,
		ActorUserID: &user.ID,
		TargetEmail: user.Email,
	})

	resp.User = user
	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
