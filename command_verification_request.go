package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type AccountVerificationMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *AccountVerificationResponse)
}

func (e AccountVerificationMessage) Type() string { return "identity.verification_request" }

type AccountVerificationResponse struct {
	Token   *VerificationToken
	Success bool
}

// AccountVerificationHandler mints a verification token for the account and
// dispatches the emailed link. Unknown and already verified addresses come
// back as a silent success so the endpoint cannot be used to enumerate
// accounts.
type AccountVerificationHandler struct {
	repo   RepositoryManager
	tokens *OneTimeTokens
	mailer Mailer
	logger Logger
}

func NewAccountVerificationHandler(repo RepositoryManager, tokens *OneTimeTokens, mailer Mailer) *AccountVerificationHandler {
	return &AccountVerificationHandler{
		repo:   repo,
		tokens: tokens,
		mailer: normalizeMailer(mailer),
		logger: defLogger{},
	}
}

func (h *AccountVerificationHandler) WithLogger(logger Logger) *AccountVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AccountVerificationHandler) Execute(ctx context.Context, event AccountVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationHandler) execute(ctx context.Context, event AccountVerificationMessage) error {
	resp := &AccountVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var plaintext string
	var email string

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification")
		}

		if user.EmailVerified || user.Blocked {
			return nil
		}

		var token *VerificationToken
		plaintext, token, err = h.tokens.Issue(ctx, tx, user, PurposeVerifyEmail)
		if err != nil {
			return err
		}

		email = user.Email
		resp.Token = token
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification request transaction failed")
	}

	if plaintext != "" {
		if err := h.mailer.SendVerificationLink(ctx, email, plaintext); err != nil {
			h.logger.Warn("failed to send verification link to %s: %v", email, err)
		}
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
