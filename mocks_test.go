package identity_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/studylend/identity"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

type testConfig struct{}

func (testConfig) GetSigningKey() string   { return "test-signing-key" }
func (testConfig) GetTokenExpiration() int { return 1 }
func (testConfig) GetIssuer() string       { return "studylend" }
func (testConfig) GetAudience() []string   { return nil }

// stubRepoManager wires the per-table mocks behind the RepositoryManager
// interface. RunInTx invokes the callback with a zero transaction since the
// mocks never touch a database.
type stubRepoManager struct {
	users    *MockUsers
	tokens   *MockVerificationTokens
	leads    *MockLeads
	activity *MockActivity
}

func newStubRepoManager() *stubRepoManager {
	return &stubRepoManager{
		users:    &MockUsers{},
		tokens:   &MockVerificationTokens{},
		leads:    &MockLeads{},
		activity: &MockActivity{},
	}
}

func (s *stubRepoManager) Validate() error { return nil }
func (s *stubRepoManager) MustValidate()   {}

func (s *stubRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (s *stubRepoManager) Users() identity.Users { return s.users }

func (s *stubRepoManager) VerificationTokens() identity.VerificationTokens { return s.tokens }

func (s *stubRepoManager) Leads() identity.Leads { return s.leads }

func (s *stubRepoManager) Activity() identity.Activity { return s.activity }

// MockUsers stubs the account repository. Only the methods exercised by the
// tests are implemented; everything else panics through the nil embedded
// interface.
type MockUsers struct {
	mock.Mock
	identity.Users
}

func userResult(args mock.Arguments) (*identity.User, error) {
	var user *identity.User
	if v := args.Get(0); v != nil {
		user = v.(*identity.User)
	}
	return user, args.Error(1)
}

// Register echoes the record back when the expectation returns (nil, nil),
// mirroring how the real repository hands the created row to the caller.
func (m *MockUsers) Register(ctx context.Context, user *identity.User) (*identity.User, error) {
	args := m.Called(ctx, user)
	created, err := userResult(args)
	if created == nil && err == nil {
		created = user
	}
	return created, err
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	return userResult(m.Called(ctx, email))
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*identity.User, error) {
	return userResult(m.Called(ctx, tx, email))
}

func (m *MockUsers) GetByGoogleSubject(ctx context.Context, subject string) (*identity.User, error) {
	return userResult(m.Called(ctx, subject))
}

func (m *MockUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	return userResult(m.Called(ctx, id))
}

func (m *MockUsers) Find(ctx context.Context, filter identity.UserFilter) ([]*identity.User, int, error) {
	args := m.Called(ctx, filter)
	var records []*identity.User
	if v := args.Get(0); v != nil {
		records = v.([]*identity.User)
	}
	return records, args.Int(1), args.Error(2)
}

func (m *MockUsers) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return m.Called(ctx, tx, id, passwordHash).Error(0)
}

func (m *MockUsers) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*identity.User, error) {
	return userResult(m.Called(ctx, tx, id))
}

func (m *MockUsers) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*identity.User, error) {
	return userResult(m.Called(ctx, id, blocked))
}

func (m *MockUsers) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUsers) TrackAttemptedLogin(ctx context.Context, user *identity.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *identity.User) error {
	return m.Called(ctx, user).Error(0)
}

// MockVerificationTokens stubs the one-time token repository.
type MockVerificationTokens struct {
	mock.Mock
	identity.VerificationTokens
}

func tokenResult(args mock.Arguments) (*identity.VerificationToken, error) {
	var token *identity.VerificationToken
	if v := args.Get(0); v != nil {
		token = v.(*identity.VerificationToken)
	}
	return token, args.Error(1)
}

func (m *MockVerificationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *identity.VerificationToken, criteria ...repository.InsertCriteria) (*identity.VerificationToken, error) {
	return tokenResult(m.Called(ctx, tx, record))
}

func (m *MockVerificationTokens) GetByHashTx(ctx context.Context, tx bun.IDB, tokenHash string) (*identity.VerificationToken, error) {
	return tokenResult(m.Called(ctx, tx, tokenHash))
}

func (m *MockVerificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string, at time.Time) (*identity.VerificationToken, error) {
	return tokenResult(m.Called(ctx, tx, tokenHash, at))
}

func (m *MockVerificationTokens) InvalidateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose identity.TokenPurpose, at time.Time) error {
	return m.Called(ctx, tx, userID, purpose, at).Error(0)
}

// MockLeads stubs the lead repository.
type MockLeads struct {
	mock.Mock
	identity.Leads
}

func leadResult(args mock.Arguments) (*identity.Lead, error) {
	var lead *identity.Lead
	if v := args.Get(0); v != nil {
		lead = v.(*identity.Lead)
	}
	return lead, args.Error(1)
}

func (m *MockLeads) Submit(ctx context.Context, lead *identity.Lead) (*identity.Lead, error) {
	args := m.Called(ctx, lead)
	stored, err := leadResult(args)
	if stored == nil && err == nil {
		stored = lead
	}
	return stored, err
}

func (m *MockLeads) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*identity.Lead, error) {
	return leadResult(m.Called(ctx, id))
}

func (m *MockLeads) GetOpenByEmail(ctx context.Context, email string) (*identity.Lead, error) {
	return leadResult(m.Called(ctx, email))
}

func (m *MockLeads) Update(ctx context.Context, record *identity.Lead, criteria ...repository.UpdateCriteria) (*identity.Lead, error) {
	args := m.Called(ctx, record)
	updated, err := leadResult(args)
	if updated == nil && err == nil {
		updated = record
	}
	return updated, err
}

func (m *MockLeads) Find(ctx context.Context, filter identity.LeadFilter) ([]*identity.Lead, int, error) {
	args := m.Called(ctx, filter)
	var records []*identity.Lead
	if v := args.Get(0); v != nil {
		records = v.([]*identity.Lead)
	}
	return records, args.Int(1), args.Error(2)
}

// MockActivity stubs the audit trail repository.
type MockActivity struct {
	mock.Mock
}

func (m *MockActivity) Append(ctx context.Context, entry *identity.ActivityEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockActivity) AppendTx(ctx context.Context, tx bun.IDB, entry *identity.ActivityEntry) error {
	return m.Called(ctx, tx, entry).Error(0)
}

func (m *MockActivity) Find(ctx context.Context, filter identity.ActivityFilter) ([]*identity.ActivityEntry, int, error) {
	args := m.Called(ctx, filter)
	var records []*identity.ActivityEntry
	if v := args.Get(0); v != nil {
		records = v.([]*identity.ActivityEntry)
	}
	return records, args.Int(1), args.Error(2)
}

func (m *MockActivity) FindTx(ctx context.Context, tx bun.IDB, filter identity.ActivityFilter) ([]*identity.ActivityEntry, int, error) {
	args := m.Called(ctx, tx, filter)
	var records []*identity.ActivityEntry
	if v := args.Get(0); v != nil {
		records = v.([]*identity.ActivityEntry)
	}
	return records, args.Int(1), args.Error(2)
}

// captureSink records activity events in memory.
type captureSink struct {
	events []identity.ActivityEvent
}

func (c *captureSink) Record(_ context.Context, event identity.ActivityEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) has(eventType identity.ActivityEventType) bool {
	for _, event := range c.events {
		if event.EventType == eventType {
			return true
		}
	}
	return false
}

type sentMail struct {
	Email string
	Token string
}

// captureMailer records outgoing mail instead of dispatching it.
type captureMailer struct {
	verifications []sentMail
	resets        []sentMail
	err           error
}

func (m *captureMailer) SendVerificationLink(_ context.Context, email, token string) error {
	m.verifications = append(m.verifications, sentMail{Email: email, Token: token})
	return m.err
}

func (m *captureMailer) SendResetLink(_ context.Context, email, token string) error {
	m.resets = append(m.resets, sentMail{Email: email, Token: token})
	return m.err
}

// stubVerificationRequester captures invite dispatches from the pipeline.
type stubVerificationRequester struct {
	calls []identity.AccountVerificationMessage
	err   error
}

func (s *stubVerificationRequester) Execute(_ context.Context, event identity.AccountVerificationMessage) error {
	s.calls = append(s.calls, event)
	return s.err
}

// stubLeadConverter captures conversion hooks from the verification flow.
type stubLeadConverter struct {
	emails []string
	err    error
}

func (s *stubLeadConverter) MarkConvertedByEmail(_ context.Context, email string) error {
	s.emails = append(s.emails, email)
	return s.err
}

// routerContext lets fakeContext embed the interface without the embedded
// field name colliding with the Context() method.
type routerContext = router.Context

// fakeContext is a minimal router.Context for handler and middleware tests.
// Unimplemented methods panic through the nil embedded interface.
type fakeContext struct {
	routerContext

	stdCtx   context.Context
	headers  map[string]string
	query    map[string]string
	params   map[string]string
	locals   map[any]any
	body     []byte
	status   int
	response any
	nextRan  bool
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		stdCtx:  context.Background(),
		headers: map[string]string{},
		query:   map[string]string{},
		params:  map[string]string{},
		locals:  map[any]any{},
	}
}

func (f *fakeContext) Context() context.Context { return f.stdCtx }

func (f *fakeContext) SetContext(ctx context.Context) { f.stdCtx = ctx }

func (f *fakeContext) GetString(key string, def string) string {
	if v, ok := f.headers[key]; ok {
		return v
	}
	return def
}

func (f *fakeContext) Query(key string, def string) string {
	if v, ok := f.query[key]; ok {
		return v
	}
	return def
}

func (f *fakeContext) Param(key string, def ...string) string {
	if v, ok := f.params[key]; ok {
		return v
	}
	if len(def) > 0 {
		return def[0]
	}
	return ""
}

func (f *fakeContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		f.locals[key] = value[0]
		return value[0]
	}
	return f.locals[key]
}

func (f *fakeContext) Bind(v any) error {
	if len(f.body) == 0 {
		return nil
	}
	return json.Unmarshal(f.body, v)
}

func (f *fakeContext) JSON(status int, v any) error {
	f.status = status
	f.response = v
	return nil
}

func (f *fakeContext) Status(code int) router.Context {
	f.status = code
	return f
}

func (f *fakeContext) SendString(s string) error {
	f.response = s
	return nil
}

func (f *fakeContext) Next() error {
	f.nextRan = true
	return nil
}

// responseError digs the error envelope out of a captured JSON response.
func (f *fakeContext) responseError() map[string]any {
	payload, ok := f.response.(map[string]any)
	if !ok {
		return nil
	}
	inner, _ := payload["error"].(map[string]any)
	return inner
}
