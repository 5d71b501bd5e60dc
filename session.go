package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionObject is the ephemeral claim bundle derived from exactly one
// Identity at issuance time. It is immutable once issued: role or profile
// changes on the account do not retroactively alter it.
type SessionObject struct {
	SubjectID   string     `json:"subject_id,omitempty"`
	UserEmail   string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Role        string     `json:"role,omitempty"`
	Provider    string     `json:"provider,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.SubjectID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.SubjectID)
}

func (s *SessionObject) GetEmail() string {
	return s.UserEmail
}

// Expired reports whether the session is past expiresAt at the given instant.
// An expired session is treated as absent, not actively revoked.
func (s *SessionObject) Expired(at time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return true
	}
	return !at.Before(*s.ExpiresAt)
}

// Active reports whether the session can authorize at the given instant.
func (s *SessionObject) Active(at time.Time) bool {
	return s != nil && !s.Expired(at)
}

// HasRole checks if the session carries a specific role
func (s *SessionObject) HasRole(role string) bool {
	return s != nil && s.Role == role
}

// IsAtLeast checks if the session's role is at least the minimum required role
func (s *SessionObject) IsAtLeast(minRole Role) bool {
	return s != nil && RoleAtLeast(s.Role, minRole)
}

// TODO: enable only in development!
func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"subject=%s email=%s role=%s provider=%s iat=%s",
		s.SubjectID,
		s.UserEmail,
		s.Role,
		s.Provider,
		issuedAt,
	)
}

// SessionFromClaims rehydrates a SessionObject from validated claims.
func SessionFromClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToMapClaims
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	return &SessionObject{
		SubjectID:   claims.UserID(),
		UserEmail:   claims.Email(),
		DisplayName: claims.DisplayName(),
		Role:        claims.Role(),
		Provider:    claims.Provider(),
		AvatarURL:   claims.Avatar(),
		IssuedAt:    &issuedAt,
		ExpiresAt:   &expiresAt,
	}, nil
}
