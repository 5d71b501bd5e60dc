package identity

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCreds identifies credential failures. Wrong password and
	// unknown email share it on purpose so responses cannot be used to
	// enumerate accounts.
	TextCodeInvalidCreds = "INVALID_CREDENTIALS"
	// TextCodeTooManyAttempts identifies login attempt rate limiting.
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
	// TextCodeProviderExchange identifies OAuth assertion exchange failures.
	TextCodeProviderExchange = "PROVIDER_EXCHANGE_FAILED"
	// TextCodeChallengeNotFound identifies a missing or consumed OTP challenge.
	TextCodeChallengeNotFound = "CHALLENGE_NOT_FOUND"
	// TextCodeChallengeExpired identifies an OTP challenge past its TTL.
	TextCodeChallengeExpired = "CHALLENGE_EXPIRED"
	// TextCodeCodeMismatch identifies a wrong OTP code submission.
	TextCodeCodeMismatch = "CODE_MISMATCH"
	// TextCodeSessionExpired identifies a session evaluated past expiresAt.
	TextCodeSessionExpired = "SESSION_EXPIRED"
	// TextCodeReconciliation identifies a failed client identity reconciliation.
	TextCodeReconciliation = "RECONCILIATION_FAILED"
	// TextCodeTokenMalformed identifies tokens that could not be parsed.
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
	// TextCodeEmptyPassword identifies empty password input.
	TextCodeEmptyPassword = "EMPTY_PASSWORD"
)

// ErrInvalidCredentials is the single failure for wrong password and unknown
// account alike. Callers must not branch on which one it was.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned when the attempt budget for the cooldown
// window is exhausted.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(goerrors.CodeForbidden)

// ErrProviderExchangeFailed is returned when a provider assertion cannot be
// exchanged for a local identity.
var ErrProviderExchangeFailed = goerrors.New("identity provider exchange failed", goerrors.CategoryAuth).
	WithTextCode(TextCodeProviderExchange).
	WithCode(goerrors.CodeUnauthorized)

// ErrChallengeNotFound is returned when no active challenge exists for the
// (email, purpose) pair, including challenges already consumed.
var ErrChallengeNotFound = goerrors.New("verification challenge not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeChallengeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrChallengeExpired is returned when a challenge exists but is past its TTL.
var ErrChallengeExpired = goerrors.New("verification challenge expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeChallengeExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrCodeMismatch is returned on a wrong code submission. The challenge stays
// pending until the attempt budget runs out.
var ErrCodeMismatch = goerrors.New("verification code does not match", goerrors.CategoryValidation).
	WithTextCode(TextCodeCodeMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrSessionExpired is returned when a session token is past expiresAt. The
// gate treats it the same as an absent session.
var ErrSessionExpired = goerrors.New("session has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrReconciliationFailed is returned when the mirror cannot derive a backend
// session from the client identity state. It is swallowed into "session
// unknown" by the mirror itself; callers see it only through logs/activity.
var ErrReconciliationFailed = goerrors.New("session reconciliation failed", goerrors.CategoryInternal).
	WithTextCode(TextCodeReconciliation).
	WithCode(goerrors.CodeInternal)

// ErrTokenMalformed is returned for tokens that cannot be parsed or whose
// signature does not verify.
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found")

// ErrUnableToFindSession is the error when our request has no token
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session token
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

// IsSessionExpiredError will check for expired session tokens
func IsSessionExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrSessionExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
