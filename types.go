package identity

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of a resolved account used for issuance.
type Identity interface {
	ID() string
	Email() string
	DisplayName() string
	Role() string
	Provider() string
	Avatar() string
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*SessionObject, string, error)
	ExchangeProvider(ctx context.Context, assertion ProviderAssertion) (*SessionObject, string, error)
	SessionFromToken(token string) (*SessionObject, error)
}

// IdentityProvider ensures we have a store to retrieve auth identities
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (Identity, error)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetSessionTTL() time.Duration
	GetChallengeTTL() time.Duration
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetLoginRoute() string
	GetDashboardRoute() string
	GetRejectedRouteKey() string
}

// Mailer delivers out-of-band challenge codes. Delivery is best-effort: a
// failed send never corrupts challenge state.
type Mailer interface {
	SendChallenge(ctx context.Context, email string, purpose ChallengePurpose, code string) error
}

// MailerFunc adapts a function into a Mailer.
type MailerFunc func(ctx context.Context, email string, purpose ChallengePurpose, code string) error

// SendChallenge satisfies the Mailer interface.
func (f MailerFunc) SendChallenge(ctx context.Context, email string, purpose ChallengePurpose, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, purpose, code)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
