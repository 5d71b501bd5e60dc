package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the structured session claims carried by a token.
// The set is fixed at issuance: no mutable fields are embedded, so a decision
// made from claims never needs a live database read within the TTL.
type AuthClaims interface {
	Subject() string
	UserID() string
	Email() string
	DisplayName() string
	Role() string
	Provider() string
	Avatar() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// SessionClaims is the concrete implementation of AuthClaims
type SessionClaims struct {
	jwt.RegisteredClaims
	UID       string `json:"uid,omitempty"`
	UserEmail string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	UserRole  string `json:"role,omitempty"`
	Prov      string `json:"prv,omitempty"`
	Image     string `json:"img,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*SessionClaims)(nil)

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Email returns the account email
func (c *SessionClaims) Email() string {
	return c.UserEmail
}

// DisplayName returns the account display name
func (c *SessionClaims) DisplayName() string {
	return c.Name
}

// Role returns the global role
func (c *SessionClaims) Role() string {
	return c.UserRole
}

// Provider returns the provider used at issuance
func (c *SessionClaims) Provider() string {
	return c.Prov
}

// Avatar returns the avatar URL stamped at issuance
func (c *SessionClaims) Avatar() string {
	return c.Image
}

// HasRole checks if the user has a specific role
func (c *SessionClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *SessionClaims) IsAtLeast(minRole string) bool {
	return RoleAtLeast(c.UserRole, minRole)
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
