package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the payload embedded in a signed session token. Only the
// user id and role travel inside the token; blocked state is always re-read
// from the store at validation time.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole string `json:"role,omitempty"`
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// Role returns the role claim
func (c *SessionClaims) Role() Role {
	return Role(c.UserRole)
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// SessionObject adapts validated claims to the Session interface.
type SessionObject struct {
	UserID         string     `json:"user_id,omitempty"`
	UserRole       Role       `json:"role,omitempty"`
	Issuer         string     `json:"issuer,omitempty"`
	IssuedDate     *time.Time `json:"issued_at,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

var _ Session = &SessionObject{}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetRole() Role {
	return s.UserRole
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedDate
}

func (s *SessionObject) GetExpiration() *time.Time {
	return s.ExpirationDate
}

func sessionFromClaims(claims *SessionClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnauthenticated
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	return &SessionObject{
		UserID:         claims.UserID(),
		UserRole:       claims.Role(),
		Issuer:         claims.RegisteredClaims.Issuer,
		IssuedDate:     &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}
