package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. A user starts out pending (no password hash,
// email unverified) and becomes active once the email is verified and a
// password has been set.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           Role       `bun:"user_role,notnull" json:"user_role,omitempty"`
	Name           string     `bun:"name,notnull" json:"name,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	Country        string     `bun:"country" json:"country,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	EmailVerified  bool       `bun:"is_email_verified" json:"is_email_verified"`
	Blocked        bool       `bun:"is_blocked" json:"is_blocked"`
	GoogleSubject  string     `bun:"google_subject,nullzero" json:"-"`
	Picture        string     `bun:"picture" json:"picture,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPassword reports whether credentials have been issued for the user.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// TokenPurpose scopes a one-time token to a single flow.
type TokenPurpose = string

const (
	// PurposeVerifyEmail is issued by the verification flow
	PurposeVerifyEmail TokenPurpose = "verify_email"
	// PurposeResetPassword is issued by the password reset flow
	PurposeResetPassword TokenPurpose = "reset_password"
)

// VerificationToken is the persisted half of a one-time token. Only the
// SHA-256 hash of the token is ever stored; the plaintext leaves the process
// exactly once, inside the emailed link.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vtk"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	TokenHash     string       `bun:"token_hash,notnull,unique" json:"-"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Consumed reports whether the token has already been spent.
func (t *VerificationToken) Consumed() bool {
	return t.ConsumedAt != nil
}

// LeadStatus is a lead's position in the conversion pipeline.
type LeadStatus = string

const (
	// LeadStatusNew is the initial status of a submitted lead
	LeadStatusNew LeadStatus = "new"
	// LeadStatusContacted means staff reached out
	LeadStatusContacted LeadStatus = "contacted"
	// LeadStatusInProgress means the lead is being worked
	LeadStatusInProgress LeadStatus = "in_progress"
	// LeadStatusVerificationSent means an account invite went out
	LeadStatusVerificationSent LeadStatus = "verification_sent"
	// LeadStatusConverted is terminal: the lead became a verified user
	LeadStatusConverted LeadStatus = "converted"
	// LeadStatusClosed is terminal: the lead was dropped
	LeadStatusClosed LeadStatus = "closed"
)

// Lead is an eligibility-form submission that has not yet been linked to a
// user account.
type Lead struct {
	bun.BaseModel        `bun:"table:leads,alias:led"`
	ID                   uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FullName             string     `bun:"full_name,notnull" json:"full_name,omitempty"`
	Email                string     `bun:"email,notnull" json:"email,omitempty"`
	Phone                string     `bun:"phone_number" json:"phone_number,omitempty"`
	StudyCountry         string     `bun:"study_country" json:"study_country,omitempty"`
	AdmissionStatus      string     `bun:"admission_status" json:"admission_status,omitempty"`
	Intake               string     `bun:"intake" json:"intake,omitempty"`
	UniversityPreference string     `bun:"university_preference" json:"university_preference,omitempty"`
	LoanRange            string     `bun:"loan_range" json:"loan_range,omitempty"`
	Status               LeadStatus `bun:"status,notnull" json:"status,omitempty"`
	VerificationSentAt   *time.Time `bun:"verification_sent_at,nullzero" json:"verification_sent_at,omitempty"`
	VerificationSentBy   string     `bun:"verification_sent_by" json:"verification_sent_by,omitempty"`
	LastContactedAt      *time.Time `bun:"last_contacted_at,nullzero" json:"last_contacted_at,omitempty"`
	CreatedAt            *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt            *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Terminal reports whether the lead can no longer move in the pipeline.
func (l *Lead) Terminal() bool {
	return l.Status == LeadStatusConverted || l.Status == LeadStatusClosed
}

// EnsureStatus backfills the initial status for records created without one.
func (l *Lead) EnsureStatus() {
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
}

// ActivityEntry is a single append-only audit record. Entries are never
// mutated or deleted.
type ActivityEntry struct {
	bun.BaseModel `bun:"table:activity_log,alias:act"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Action        string         `bun:"action,notnull" json:"action,omitempty"`
	ActorUserID   *uuid.UUID     `bun:"actor_user_id,nullzero,type:uuid" json:"actor_user_id,omitempty"`
	TargetEmail   string         `bun:"target_email" json:"target_email,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
