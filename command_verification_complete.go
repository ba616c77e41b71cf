package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type CompleteVerificationMessage struct {
	Token      string `json:"token" doc:"One time verification token from the emailed link."`
	OnResponse func(resp *CompleteVerificationResponse)
}

func (e CompleteVerificationMessage) Type() string { return "identity.verification_complete" }

type CompleteVerificationResponse struct {
	User                  *User
	SessionToken          string
	RequiresPasswordSetup bool
	Success               bool
}

// CompleteVerificationHandler spends the verification token, marks the email
// verified, advances any matching lead to converted, and logs the user in.
// Accounts created through the passwordless flow come back with
// RequiresPasswordSetup set so the client can route to password creation.
type CompleteVerificationHandler struct {
	repo         RepositoryManager
	tokens       *OneTimeTokens
	tokenService TokenService
	converter    LeadConverter
	activitySink ActivitySink
	logger       Logger
}

func NewCompleteVerificationHandler(repo RepositoryManager, tokens *OneTimeTokens, tokenService TokenService) *CompleteVerificationHandler {
	return &CompleteVerificationHandler{
		repo:         repo,
		tokens:       tokens,
		tokenService: tokenService,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *CompleteVerificationHandler) WithLogger(logger Logger) *CompleteVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithLeadConverter wires the hook that advances a matching lead once the
// email is verified.
func (h *CompleteVerificationHandler) WithLeadConverter(converter LeadConverter) *CompleteVerificationHandler {
	h.converter = converter
	return h
}

// WithActivitySink configures an ActivitySink for emitting verification events.
func (h *CompleteVerificationHandler) WithActivitySink(sink ActivitySink) *CompleteVerificationHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *CompleteVerificationHandler) Execute(ctx context.Context, event CompleteVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CompleteVerificationHandler) execute(ctx context.Context, event CompleteVerificationMessage) error {
	resp := &CompleteVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.tokens.Consume(ctx, tx, event.Token, PurposeVerifyEmail)
		if err != nil {
			return err
		}

		user, err = h.repo.Users().MarkEmailVerifiedTx(ctx, tx, token.UserID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email verified")
		}

		if user.Blocked {
			return ErrAccountBlocked
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification transaction failed")
	}

	// The lead advance is best effort: a pipeline hiccup never rolls back a
	// completed verification.
	if h.converter != nil {
		if err := h.converter.MarkConvertedByEmail(ctx, user.Email); err != nil {
			h.logger.Warn("failed to convert lead for %s: %v", user.Email, err)
		}
	}

	sessionToken, err := h.tokenService.IssueSession(user)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session after verification")
	}

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType:   ActivityEventUserVerified,
		ActorUserID: &user.ID,
		TargetEmail: user.Email,
	})

	resp.User = user
	resp.SessionToken = sessionToken
	resp.RequiresPasswordSetup = !user.HasPassword()
	resp.Success = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
