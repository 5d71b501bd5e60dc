package identity

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// MaxVerifyAttempts is the number of wrong codes a challenge absorbs before
// it is consumed without verification.
var MaxVerifyAttempts = 5

// DefaultChallengeTTL bounds how long a code stays verifiable.
var DefaultChallengeTTL = 10 * time.Minute

// ChallengeStore persists verification challenges. Latest must return the
// most recent challenge for the pair even when it is consumed or expired so
// the machine can distinguish an expired challenge from a missing one.
type ChallengeStore interface {
	Latest(ctx context.Context, email string, purpose ChallengePurpose) (*VerificationChallenge, error)
	Create(ctx context.Context, challenge *VerificationChallenge) (*VerificationChallenge, error)
	Update(ctx context.Context, challenge *VerificationChallenge) error
	InvalidateActive(ctx context.Context, email string, purpose ChallengePurpose, at time.Time) error
}

// VerifiedHook runs after a challenge is successfully verified and persisted.
type VerifiedHook func(ctx context.Context, challenge *VerificationChallenge) error

// ChallengeMachine drives the OTP lifecycle for (email, purpose) pairs. At
// most one challenge per pair is verifiable at any instant: requesting a new
// code supersedes the previous one before the new code exists.
type ChallengeMachine struct {
	store        ChallengeStore
	mailer       Mailer
	ttl          time.Duration
	maxAttempts  int
	now          func() time.Time
	generateCode func() (string, error)
	verifiedHook VerifiedHook
	activitySink ActivitySink
	logger       Logger
}

// ChallengeMachineOption customizes machine construction.
type ChallengeMachineOption func(*ChallengeMachine)

// WithChallengeClock injects a custom clock (useful for tests).
func WithChallengeClock(clock func() time.Time) ChallengeMachineOption {
	return func(m *ChallengeMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithChallengeTTL overrides the challenge lifetime.
func WithChallengeTTL(ttl time.Duration) ChallengeMachineOption {
	return func(m *ChallengeMachine) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithChallengeConfig reads the challenge lifetime from the shared Config.
func WithChallengeConfig(cfg Config) ChallengeMachineOption {
	return func(m *ChallengeMachine) {
		if cfg == nil {
			return
		}
		if ttl := cfg.GetChallengeTTL(); ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithChallengeAttemptBudget overrides the wrong-code budget.
func WithChallengeAttemptBudget(max int) ChallengeMachineOption {
	return func(m *ChallengeMachine) {
		if max > 0 {
			m.maxAttempts = max
		}
	}
}

// WithChallengeCodeGenerator overrides code generation (useful for tests).
func WithChallengeCodeGenerator(gen func() (string, error)) ChallengeMachineOption {
	return func(m *ChallengeMachine) {
		if gen != nil {
			m.generateCode = gen
		}
	}
}

// WithChallengeActivitySink sets the ActivitySink used to publish challenge events.
func WithChallengeActivitySink(sink ActivitySink) ChallengeMachineOption {
	return func(m *ChallengeMachine) {
		m.activitySink = normalizeActivitySink(sink)
	}
}

// WithChallengeLogger overrides the logger used for sink and mailer failures.
func WithChallengeLogger(logger Logger) ChallengeMachineOption {
	return func(m *ChallengeMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithVerifiedHook registers a hook executed after a successful verification
// is persisted. Registration flows use it to flip the account verified flag.
func WithVerifiedHook(hook VerifiedHook) ChallengeMachineOption {
	return func(m *ChallengeMachine) {
		m.verifiedHook = hook
	}
}

// NewChallengeMachine returns the default machine backed by the provided store.
func NewChallengeMachine(store ChallengeStore, mailer Mailer, opts ...ChallengeMachineOption) *ChallengeMachine {
	m := &ChallengeMachine{
		store:        store,
		mailer:       mailer,
		ttl:          DefaultChallengeTTL,
		maxAttempts:  MaxVerifyAttempts,
		now:          time.Now,
		generateCode: generateChallengeCode,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Request creates a fresh challenge for the pair, superseding any active one.
// The previous code stops verifying before the new code is persisted, so two
// codes are never verifiable at once. Code delivery is best-effort.
func (m *ChallengeMachine) Request(ctx context.Context, email string, purpose ChallengePurpose) (*VerificationChallenge, error) {
	email = NormalizeEmail(email)
	now := m.now()

	if err := m.store.InvalidateActive(ctx, email, purpose, now); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to supersede active challenge")
	}

	code, err := m.generateCode()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate challenge code")
	}

	challenge := &VerificationChallenge{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: &now,
	}

	created, err := m.store.Create(ctx, challenge)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist challenge")
	}

	if err := m.mailer.SendChallenge(ctx, email, purpose, code); err != nil {
		m.logger.Warn("challenge code delivery failed for %s: %v", email, err)
	}

	m.recordActivity(ctx, ActivityEventChallengeRequested, email, map[string]any{
		"purpose":    purpose,
		"expires_at": created.ExpiresAt,
	})

	return created, nil
}

// Resend is an alias for Request: it invalidates the pending code and issues
// a new one with a fresh TTL.
func (m *ChallengeMachine) Resend(ctx context.Context, email string, purpose ChallengePurpose) (*VerificationChallenge, error) {
	return m.Request(ctx, email, purpose)
}

// Verify matches a submitted code against the pending challenge. A match
// consumes the challenge so the code can never verify twice. A mismatch
// burns one attempt; exhausting the budget consumes the challenge without
// marking it verified.
func (m *ChallengeMachine) Verify(ctx context.Context, email string, purpose ChallengePurpose, code string) (*VerificationChallenge, error) {
	email = NormalizeEmail(email)
	now := m.now()

	challenge, err := m.store.Latest(ctx, email, purpose)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrChallengeNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load challenge")
	}

	switch challenge.State(now) {
	case ChallengeNone:
		return nil, ErrChallengeNotFound
	case ChallengeVerified:
		return nil, ErrChallengeNotFound
	case ChallengeExpired:
		return nil, ErrChallengeExpired
	}

	if challenge.Code != code {
		challenge.Attempts++
		if challenge.Attempts >= m.maxAttempts {
			challenge.ConsumedAt = &now
		}

		if err := m.store.Update(ctx, challenge); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record challenge attempt")
		}

		m.recordActivity(ctx, ActivityEventChallengeFailed, email, map[string]any{
			"purpose":  purpose,
			"attempts": challenge.Attempts,
			"consumed": challenge.Consumed(),
		})

		return nil, ErrCodeMismatch
	}

	challenge.Verified = true
	challenge.ConsumedAt = &now

	if err := m.store.Update(ctx, challenge); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume challenge")
	}

	if m.verifiedHook != nil {
		if err := m.verifiedHook(ctx, challenge); err != nil {
			return nil, err
		}
	}

	m.recordActivity(ctx, ActivityEventChallengeVerified, email, map[string]any{
		"purpose": purpose,
	})

	return challenge, nil
}

// State reports where the pair sits in the challenge lifecycle at this
// instant. A consumed-but-unverified challenge reads as absent.
func (m *ChallengeMachine) State(ctx context.Context, email string, purpose ChallengePurpose) (ChallengeState, error) {
	email = NormalizeEmail(email)

	challenge, err := m.store.Latest(ctx, email, purpose)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ChallengeNone, nil
		}
		return ChallengeNone, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load challenge")
	}

	return challenge.State(m.now()), nil
}

func (m *ChallengeMachine) recordActivity(ctx context.Context, eventType ActivityEventType, email string, metadata map[string]any) {
	sink := normalizeActivitySink(m.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: email, Type: "email"},
		Metadata:   metadata,
		OccurredAt: m.now(),
	}

	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("challenge activity sink error: %v", err)
	}
}

var challengeCodeMax = big.NewInt(1000000)

func generateChallengeCode() (string, error) {
	n, err := rand.Int(rand.Reader, challengeCodeMax)
	if err != nil {
		return "", err
	}

	code := n.Int64()
	digits := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		digits[i] = byte('0' + code%10)
		code /= 10
	}

	return string(digits), nil
}
