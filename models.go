package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// ProviderPassword marks accounts created with email+password credentials
	ProviderPassword = "password"
	// ProviderGoogle marks accounts created through the Google OAuth bridge
	ProviderGoogle = "oauth:google"
)

// OAuthProvider builds the stored provider tag for a third-party provider name.
func OAuthProvider(name string) string {
	return "oauth:" + strings.ToLower(strings.TrimSpace(name))
}

// User is the durable account record
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role              Role       `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName         string     `bun:"first_name" json:"first_name,omitempty"`
	LastName          string     `bun:"last_name" json:"last_name,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Provider          string     `bun:"provider,notnull" json:"provider,omitempty"`
	ProviderSubjectID *string    `bun:"provider_subject_id,nullzero" json:"provider_subject_id,omitempty"`
	Verified          bool       `bun:"is_verified" json:"is_verified,omitempty"`
	PasswordHash      string     `bun:"password_hash" json:"-"`
	AvatarURL         string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	Phone             string     `bun:"phone_number" json:"phone_number,omitempty"`
	Locale            string     `bun:"locale" json:"locale,omitempty"`
	LoginAttempts     int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt    *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LastLoginAt       *time.Time `bun:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// DisplayName joins the name parts, falling back to the email local part so
// issued claims always carry something presentable.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

// SetDisplayName splits a full name into the stored first/last parts.
func (u *User) SetDisplayName(full string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	u.FirstName = parts[0]
	if len(parts) > 1 {
		u.LastName = parts[1]
	} else {
		u.LastName = ""
	}
}

// NormalizeEmail lowercases and trims an email so the one-identity-per-email
// invariant holds regardless of input casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ChallengePurpose scopes a verification challenge to a workflow
type ChallengePurpose = string

const (
	// PurposeRegistration gates account activation
	PurposeRegistration ChallengePurpose = "REGISTRATION"
	// PurposePasswordReset gates credential replacement
	PurposePasswordReset ChallengePurpose = "PASSWORD_RESET"
)

// ParseChallengePurpose safely parses a string into a ChallengePurpose
func ParseChallengePurpose(s string) (ChallengePurpose, bool) {
	p := ChallengePurpose(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PurposeRegistration, PurposePasswordReset:
		return p, true
	default:
		return "", false
	}
}

// ChallengeState describes where a challenge sits in its lifecycle
type ChallengeState = string

const (
	// ChallengeNone means no challenge exists for the pair
	ChallengeNone ChallengeState = "NONE"
	// ChallengePending means a code is out and within TTL
	ChallengePending ChallengeState = "PENDING"
	// ChallengeVerified means the code was matched and consumed
	ChallengeVerified ChallengeState = "VERIFIED"
	// ChallengeExpired means the TTL lapsed before a match
	ChallengeExpired ChallengeState = "EXPIRED"
)

// VerificationChallenge is a time-boxed OTP challenge owned by the auth core
type VerificationChallenge struct {
	bun.BaseModel `bun:"table:verification_challenges,alias:vch"`
	ID            uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string           `bun:"email,notnull" json:"email,omitempty"`
	Purpose       ChallengePurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	Code          string           `bun:"code,notnull" json:"-"`
	Attempts      int              `bun:"attempts" json:"attempts,omitempty"`
	Verified      bool             `bun:"is_verified" json:"is_verified,omitempty"`
	ExpiresAt     time.Time        `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time       `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Consumed reports whether the challenge has been used up, either by a
// successful verification or by exhausting the attempt budget.
func (c *VerificationChallenge) Consumed() bool {
	return c.ConsumedAt != nil
}

// Expired reports whether the challenge TTL lapsed at the given instant.
func (c *VerificationChallenge) Expired(at time.Time) bool {
	return !at.Before(c.ExpiresAt)
}

// Active reports whether the challenge can still be verified at the given
// instant. At most one active challenge exists per (email, purpose).
func (c *VerificationChallenge) Active(at time.Time) bool {
	return !c.Consumed() && !c.Expired(at)
}

// State maps the stored flags onto the lifecycle state at the given instant.
// A challenge consumed without verification (attempt budget exhausted, or
// superseded by a resend) reads as absent, not verified.
func (c *VerificationChallenge) State(at time.Time) ChallengeState {
	if c == nil {
		return ChallengeNone
	}
	if c.Consumed() {
		if c.Verified {
			return ChallengeVerified
		}
		return ChallengeNone
	}
	if c.Expired(at) {
		return ChallengeExpired
	}
	return ChallengePending
}
