package identity

import (
	"context"
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Patch(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// GoogleTokenVerifier validates a Google ID token and returns the asserted
// profile. The google subpackage provides the JWKS-backed implementation.
type GoogleTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (GoogleProfile, error)
}

// APIController exposes the identity and lead pipeline operations as a JSON
// API.
type APIController struct {
	Debug          bool
	Logger         Logger
	Repo           RepositoryManager
	Store          *IdentityStore
	Auther         *Auther
	Guard          *Guard
	Pipeline       *LeadPipeline
	Tokens         *OneTimeTokens
	Mailer         Mailer
	GoogleVerifier GoogleTokenVerifier
	ActivitySink   ActivitySink
}

type APIControllerOption func(*APIController) *APIController

func NewAPIController(opts ...APIControllerOption) *APIController {
	c := &APIController{
		Logger: defLogger{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in identity controller...")
	}

	if c.Store == nil {
		panic("Missing IdentityStore in identity controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in identity controller...")
	}

	if c.Pipeline == nil {
		panic("Missing LeadPipeline in identity controller...")
	}

	if c.Tokens == nil {
		panic("Missing OneTimeTokens in identity controller...")
	}

	if c.Guard == nil {
		c.Guard = NewGuard(c.Auther).WithLogger(c.Logger)
	}

	c.Mailer = normalizeMailer(c.Mailer)
	c.ActivitySink = normalizeActivitySink(c.ActivitySink)

	return c
}

// RegisterRoutes mounts the full HTTP surface on the given router.
func RegisterRoutes(app RouteRegistrar, opts ...APIControllerOption) *APIController {
	c := NewAPIController(opts...)

	staff := []router.MiddlewareFunc{
		c.Guard.Authenticated(),
		c.Guard.RequireRoles(StaffRoles),
	}
	adminOnly := []router.MiddlewareFunc{
		c.Guard.Authenticated(),
		c.Guard.RequireRoles(AdminOnlyRoles),
	}
	superAdmin := []router.MiddlewareFunc{
		c.Guard.Authenticated(),
		c.Guard.RequireRoles(SuperAdminRoles),
	}

	app.Post("/auth/register", c.Register).SetName("auth.register")
	app.Post("/auth/login", c.Login).SetName("auth.login")
	app.Post("/auth/google", c.GoogleLogin).SetName("auth.google")
	app.Get("/auth/verify", c.VerifyEmail).SetName("auth.verify")
	app.Post("/auth/resend-verification", c.ResendVerification).SetName("auth.resend")
	app.Post("/auth/forgot-password", c.ForgotPassword).SetName("auth.forgot")
	app.Post("/auth/reset-password", c.ResetPassword).SetName("auth.reset")

	app.Get("/auth/me", c.Me, c.Guard.Authenticated()).SetName("auth.me")
	app.Post("/auth/set-password", c.SetPassword, c.Guard.Authenticated()).SetName("auth.set-password")

	app.Post("/leads", c.SubmitLead).SetName("leads.submit")
	app.Get("/leads", c.ListLeads, staff...).SetName("leads.list")
	app.Patch("/leads/:id", c.UpdateLeadStatus, staff...).SetName("leads.status")
	app.Post("/leads/:id/send-verification", c.SendLeadVerification, staff...).SetName("leads.send-verification")

	app.Get("/admin/users", c.ListUsers, staff...).SetName("admin.users.list")
	app.Get("/admin/activity", c.ListActivity, staff...).SetName("admin.activity.list")
	app.Patch("/admin/users/:id/block", c.BlockUser, adminOnly...).SetName("admin.users.block")
	app.Delete("/admin/users/:id", c.DeleteUser, adminOnly...).SetName("admin.users.delete")

	app.Post("/superadmin/users", c.CreateStaffUser, superAdmin...).SetName("superadmin.users.create")

	return c
}

// RegisterPayload is the passwordless registration body.
type RegisterPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone_number"`
	Country string `json:"country"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Length(0, 20)),
		validation.Field(&r.Country, validation.Length(0, 100)),
	)
}

func (a *APIController) Register(ctx router.Context) error {
	payload := new(RegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	if a.Debug {
		fmt.Println("======= IDENTITY REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("================================")
	}

	phone, err := NormalizePhone(payload.Phone, a.Pipeline.defaultRegion)
	if err != nil {
		return a.renderError(ctx, err)
	}

	user, err := a.Store.RegisterPending(ctx.Context(), RegisterInput{
		Name:    payload.Name,
		Email:   payload.Email,
		Phone:   phone,
		Country: payload.Country,
	})
	if err != nil {
		return a.renderError(ctx, err)
	}

	if err := a.requestVerification(ctx, user.Email); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"user": user,
	})
}

// LoginPayload is the credential login body.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *APIController) Login(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	token, user, err := a.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

// GoogleLoginPayload carries the ID token obtained by the client.
type GoogleLoginPayload struct {
	IDToken string `json:"id_token"`
}

// Validate will run validation rules
func (r GoogleLoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDToken, validation.Required),
	)
}

func (a *APIController) GoogleLogin(ctx router.Context) error {
	if a.GoogleVerifier == nil {
		return a.renderError(ctx, goerrors.New("google sign-in is not configured", goerrors.CategoryInternal))
	}

	payload := new(GoogleLoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	profile, err := a.GoogleVerifier.Verify(ctx.Context(), payload.IDToken)
	if err != nil {
		return a.renderError(ctx, err)
	}

	user, created, err := a.Store.CreateOrLinkGoogle(ctx.Context(), profile)
	if err != nil {
		return a.renderError(ctx, err)
	}

	// A fresh Google account is pending like any other registration; it gets
	// a verification link, not a session.
	if created {
		if err := a.requestVerification(ctx, user.Email); err != nil {
			return a.renderError(ctx, err)
		}

		return ctx.JSON(router.StatusCreated, map[string]any{
			"user": user,
		})
	}

	token, err := a.Auther.TokenService().IssueSession(user)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

func (a *APIController) VerifyEmail(ctx router.Context) error {
	token := ctx.Query("token", "")
	if token == "" {
		return a.renderError(ctx, ErrTokenInvalid)
	}

	var res *CompleteVerificationResponse

	handler := NewCompleteVerificationHandler(a.Repo, a.Tokens, a.Auther.TokenService()).
		WithLogger(a.Logger).
		WithLeadConverter(a.Pipeline).
		WithActivitySink(a.ActivitySink)

	err := handler.Execute(ctx.Context(), CompleteVerificationMessage{
		Token: token,
		OnResponse: func(resp *CompleteVerificationResponse) {
			res = resp
		},
	})
	if err != nil {
		return a.renderError(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= IDENTITY VERIFY ======")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("==============================")
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"token":                   res.SessionToken,
		"user":                    res.User,
		"requires_password_setup": res.RequiresPasswordSetup,
	})
}

// EmailPayload is shared by the resend and forgot-password bodies.
type EmailPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r EmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *APIController) ResendVerification(ctx router.Context) error {
	payload := new(EmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	if err := a.requestVerification(ctx, payload.Email); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusAccepted, map[string]any{
		"status": "ok",
	})
}

func (a *APIController) ForgotPassword(ctx router.Context) error {
	payload := new(EmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	handler := NewInitializePasswordResetHandler(a.Repo, a.Tokens, a.Mailer).WithLogger(a.Logger)

	err := handler.Execute(ctx.Context(), InitializePasswordResetMessage{Email: payload.Email})
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusAccepted, map[string]any{
		"status": "ok",
	})
}

// ResetPasswordPayload finalizes a password reset.
type ResetPasswordPayload struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *APIController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	handler := NewFinalizePasswordResetHandler(a.Repo, a.Tokens).
		WithLogger(a.Logger).
		WithActivitySink(a.ActivitySink)

	err := handler.Execute(ctx.Context(), FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	})
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (a *APIController) Me(ctx router.Context) error {
	user, err := GetRouterActor(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user,
	})
}

// SetPasswordPayload issues credentials for the current session.
type SetPasswordPayload struct {
	Password string `json:"password"`
}

// Validate will run validation rules
func (r SetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *APIController) SetPassword(ctx router.Context) error {
	actor, err := GetRouterActor(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	payload := new(SetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	handler := NewSetPasswordHandler(a.Repo).
		WithLogger(a.Logger).
		WithActivitySink(a.ActivitySink)

	err = handler.Execute(ctx.Context(), SetPasswordMessage{
		UserID:   actor.ID,
		Password: payload.Password,
	})
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "ok",
	})
}

// LeadPayload is the public eligibility form body.
type LeadPayload struct {
	FullName             string `json:"full_name"`
	Email                string `json:"email"`
	Phone                string `json:"phone_number"`
	StudyCountry         string `json:"study_country"`
	AdmissionStatus      string `json:"admission_status"`
	Intake               string `json:"intake"`
	UniversityPreference string `json:"university_preference"`
	LoanRange            string `json:"loan_range"`
}

// Validate will run validation rules
func (r LeadPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Required, validation.Length(5, 20)),
		validation.Field(&r.StudyCountry, validation.Required, validation.Length(2, 100)),
	)
}

func (a *APIController) SubmitLead(ctx router.Context) error {
	payload := new(LeadPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	if a.Debug {
		fmt.Println("======= LEAD SUBMIT ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==========================")
	}

	lead, err := a.Pipeline.Submit(ctx.Context(), LeadSubmission{
		FullName:             payload.FullName,
		Email:                payload.Email,
		Phone:                payload.Phone,
		StudyCountry:         payload.StudyCountry,
		AdmissionStatus:      payload.AdmissionStatus,
		Intake:               payload.Intake,
		UniversityPreference: payload.UniversityPreference,
		LoanRange:            payload.LoanRange,
	})
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"lead": lead,
	})
}

func (a *APIController) ListLeads(ctx router.Context) error {
	filter := LeadFilter{
		Status: LeadStatus(ctx.Query("status", "")),
		Email:  ctx.Query("email", ""),
		Limit:  queryInt(ctx, "limit", 25),
		Offset: queryInt(ctx, "offset", 0),
	}

	leads, total, err := a.Repo.Leads().Find(ctx.Context(), filter)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"items": leads,
		"total": total,
	})
}

// LeadStatusPayload is the manual transition body.
type LeadStatusPayload struct {
	Status string `json:"status"`
}

// Validate will run validation rules
func (r LeadStatusPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Status,
			validation.Required,
			validation.In(
				LeadStatusContacted,
				LeadStatusInProgress,
				LeadStatusVerificationSent,
				LeadStatusConverted,
				LeadStatusClosed,
			),
		),
	)
}

func (a *APIController) UpdateLeadStatus(ctx router.Context) error {
	actor, err := GetRouterActor(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	leadID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	payload := new(LeadStatusPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	lead, err := a.Pipeline.SetStatus(ctx.Context(), actor, leadID, LeadStatus(payload.Status))
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"lead": lead,
	})
}

func (a *APIController) SendLeadVerification(ctx router.Context) error {
	actor, err := GetRouterActor(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	leadID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	lead, err := a.Pipeline.SendVerification(ctx.Context(), actor, leadID)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"lead": lead,
	})
}

func (a *APIController) ListUsers(ctx router.Context) error {
	filter := UserFilter{
		Role:   Role(ctx.Query("role", "")),
		Limit:  queryInt(ctx, "limit", 25),
		Offset: queryInt(ctx, "offset", 0),
	}

	if blocked := ctx.Query("blocked", ""); blocked != "" {
		value := blocked == "true"
		filter.Blocked = &value
	}

	users, total, err := a.Repo.Users().Find(ctx.Context(), filter)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"items": users,
		"total": total,
	})
}

func (a *APIController) ListActivity(ctx router.Context) error {
	filter := ActivityFilter{
		Action:      ctx.Query("action", ""),
		TargetEmail: ctx.Query("email", ""),
		Limit:       queryInt(ctx, "limit", 50),
		Offset:      queryInt(ctx, "offset", 0),
	}

	entries, total, err := a.Repo.Activity().Find(ctx.Context(), filter)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"items": entries,
		"total": total,
	})
}

// BlockPayload flips the blocked flag.
type BlockPayload struct {
	Blocked bool `json:"blocked"`
}

func (a *APIController) BlockUser(ctx router.Context) error {
	actor, err := GetRouterActor(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	targetID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	payload := new(BlockPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	user, err := a.Store.SetBlocked(ctx.Context(), actor, targetID, payload.Blocked)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user,
	})
}

func (a *APIController) DeleteUser(ctx router.Context) error {
	actor, err := GetRouterActor(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	targetID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := a.Store.DeleteAccount(ctx.Context(), actor, targetID); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.Status(router.StatusNoContent).SendString("")
}

// StaffUserPayload provisions a staff account.
type StaffUserPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Validate will run validation rules
func (r StaffUserPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Role, validation.Required, validation.In(string(RoleAdmin))),
	)
}

func (a *APIController) CreateStaffUser(ctx router.Context) error {
	payload := new(StaffUserPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.renderError(ctx, badPayload(err))
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(ctx, invalidPayload(err))
	}

	user, err := a.Store.RegisterPending(ctx.Context(), RegisterInput{
		Name:  payload.Name,
		Email: payload.Email,
		Role:  Role(payload.Role),
	})
	if err != nil {
		return a.renderError(ctx, err)
	}

	if err := a.requestVerification(ctx, user.Email); err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"user": user,
	})
}

func (a *APIController) requestVerification(ctx router.Context, email string) error {
	handler := NewAccountVerificationHandler(a.Repo, a.Tokens, a.Mailer).WithLogger(a.Logger)
	return handler.Execute(ctx.Context(), AccountVerificationMessage{Email: email})
}

func (a *APIController) renderError(ctx router.Context, err error) error {
	return RenderError(ctx, a.Logger, err)
}

// RenderError maps an error to its JSON response. Rich errors keep their
// status and text code; anything else is a bare 500.
func RenderError(c router.Context, logger Logger, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status < router.StatusBadRequest {
		status = router.StatusInternalServerError
	}

	if logger != nil {
		logger.Warn("request failed: %s (%s)", richErr.Message, richErr.TextCode)
	}

	body := map[string]any{
		"message": richErr.Message,
	}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return c.JSON(status, map[string]any{
		"error": body,
	})
}

func badPayload(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
		WithCode(goerrors.CodeBadRequest)
}

func invalidPayload(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
		WithCode(goerrors.CodeBadRequest)
}

func queryInt(c router.Context, key string, def int) int {
	raw := c.Query(key, "")
	if raw == "" {
		return def
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}

	return value
}
