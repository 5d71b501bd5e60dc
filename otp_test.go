package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketbase/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(codes) {
			return "", errors.New("no more codes")
		}
		code := codes[i]
		i++
		return code, nil
	}
}

func TestChallengeRequestAndVerify(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	store := newMemoryChallengeStore()
	machine := identity.NewChallengeMachine(store, identity.MailerFunc(nil),
		identity.WithChallengeClock(func() time.Time { return now }),
		identity.WithChallengeCodeGenerator(fixedCodes("482913")),
	)

	challenge, err := machine.Request(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", challenge.Email)
	assert.Equal(t, now.Add(10*time.Minute), challenge.ExpiresAt)

	state, err := machine.State(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, identity.ChallengePending, state)

	t.Run("correct code verifies and consumes", func(t *testing.T) {
		verified, err := machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "482913")
		require.NoError(t, err)
		assert.True(t, verified.Verified)
		assert.NotNil(t, verified.ConsumedAt)

		state, err := machine.State(ctx, "buyer@example.com", identity.PurposeRegistration)
		require.NoError(t, err)
		assert.Equal(t, identity.ChallengeVerified, state)
	})

	t.Run("consumed code never verifies twice", func(t *testing.T) {
		_, err := machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "482913")
		assert.ErrorIs(t, err, identity.ErrChallengeNotFound)
	})
}

func TestChallengeVerifyWrongCode(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	store := newMemoryChallengeStore()
	machine := identity.NewChallengeMachine(store, identity.MailerFunc(nil),
		identity.WithChallengeClock(func() time.Time { return now }),
		identity.WithChallengeCodeGenerator(fixedCodes("482913")),
	)

	_, err := machine.Request(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)

	t.Run("mismatch burns an attempt but stays pending", func(t *testing.T) {
		_, err := machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "000000")
		assert.ErrorIs(t, err, identity.ErrCodeMismatch)

		state, err := machine.State(ctx, "buyer@example.com", identity.PurposeRegistration)
		require.NoError(t, err)
		assert.Equal(t, identity.ChallengePending, state)
	})

	t.Run("exhausting the budget consumes without verifying", func(t *testing.T) {
		for i := 0; i < identity.MaxVerifyAttempts-1; i++ {
			_, err := machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "000000")
			assert.ErrorIs(t, err, identity.ErrCodeMismatch)
		}

		// The budget is gone; a consumed-but-unverified challenge reads as
		// absent, and even the correct code no longer works.
		state, err := machine.State(ctx, "buyer@example.com", identity.PurposeRegistration)
		require.NoError(t, err)
		assert.Equal(t, identity.ChallengeNone, state)

		_, err = machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "482913")
		assert.ErrorIs(t, err, identity.ErrChallengeNotFound)
	})
}

func TestChallengeExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	store := newMemoryChallengeStore()
	machine := identity.NewChallengeMachine(store, identity.MailerFunc(nil),
		identity.WithChallengeClock(func() time.Time { return now }),
		identity.WithChallengeCodeGenerator(fixedCodes("482913")),
		identity.WithChallengeTTL(10*time.Minute),
	)

	_, err := machine.Request(ctx, "buyer@example.com", identity.PurposePasswordReset)
	require.NoError(t, err)

	now = now.Add(10*time.Minute + time.Second)

	_, err = machine.Verify(ctx, "buyer@example.com", identity.PurposePasswordReset, "482913")
	assert.ErrorIs(t, err, identity.ErrChallengeExpired)

	state, err := machine.State(ctx, "buyer@example.com", identity.PurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, identity.ChallengeExpired, state)
}

func TestChallengeConfigTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	cfg := new(MockConfig)
	cfg.On("GetChallengeTTL").Return(30 * time.Minute)

	machine := identity.NewChallengeMachine(newMemoryChallengeStore(), identity.MailerFunc(nil),
		identity.WithChallengeClock(func() time.Time { return now }),
		identity.WithChallengeCodeGenerator(fixedCodes("482913")),
		identity.WithChallengeConfig(cfg),
	)

	challenge, err := machine.Request(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), challenge.ExpiresAt)
}

func TestChallengeResendSupersedes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	store := newMemoryChallengeStore()
	machine := identity.NewChallengeMachine(store, identity.MailerFunc(nil),
		identity.WithChallengeClock(func() time.Time { return now }),
		identity.WithChallengeCodeGenerator(fixedCodes("482913", "771204")),
	)

	_, err := machine.Request(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = machine.Resend(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)

	t.Run("old code stops verifying", func(t *testing.T) {
		_, err := machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "482913")
		assert.Error(t, err)
	})

	t.Run("new code verifies", func(t *testing.T) {
		verified, err := machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "771204")
		require.NoError(t, err)
		assert.True(t, verified.Verified)
	})
}

func TestChallengeVerifyNoChallenge(t *testing.T) {
	ctx := context.Background()
	machine := identity.NewChallengeMachine(newMemoryChallengeStore(), identity.MailerFunc(nil))

	_, err := machine.Verify(ctx, "nobody@example.com", identity.PurposeRegistration, "482913")
	assert.ErrorIs(t, err, identity.ErrChallengeNotFound)

	state, err := machine.State(ctx, "nobody@example.com", identity.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, identity.ChallengeNone, state)
}

func TestChallengePurposesAreIndependent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	store := newMemoryChallengeStore()
	machine := identity.NewChallengeMachine(store, identity.MailerFunc(nil),
		identity.WithChallengeClock(func() time.Time { return now }),
		identity.WithChallengeCodeGenerator(fixedCodes("111111", "222222")),
	)

	_, err := machine.Request(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)
	_, err = machine.Request(ctx, "buyer@example.com", identity.PurposePasswordReset)
	require.NoError(t, err)

	// Requesting a reset code must not supersede the registration code.
	verified, err := machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "111111")
	require.NoError(t, err)
	assert.True(t, verified.Verified)

	verified, err = machine.Verify(ctx, "buyer@example.com", identity.PurposePasswordReset, "222222")
	require.NoError(t, err)
	assert.True(t, verified.Verified)
}

func TestChallengeMailerFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()

	mailer := identity.MailerFunc(func(ctx context.Context, email string, purpose identity.ChallengePurpose, code string) error {
		return errors.New("smtp down")
	})

	machine := identity.NewChallengeMachine(newMemoryChallengeStore(), mailer,
		identity.WithChallengeCodeGenerator(fixedCodes("482913")),
	)

	challenge, err := machine.Request(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)
	assert.NotNil(t, challenge)

	// The challenge exists even though delivery failed.
	verified, err := machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "482913")
	require.NoError(t, err)
	assert.True(t, verified.Verified)
}

func TestChallengeVerifiedHook(t *testing.T) {
	ctx := context.Background()

	var hooked *identity.VerificationChallenge
	machine := identity.NewChallengeMachine(newMemoryChallengeStore(), identity.MailerFunc(nil),
		identity.WithChallengeCodeGenerator(fixedCodes("482913")),
		identity.WithVerifiedHook(func(ctx context.Context, challenge *identity.VerificationChallenge) error {
			hooked = challenge
			return nil
		}),
	)

	_, err := machine.Request(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)

	_, err = machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "482913")
	require.NoError(t, err)

	require.NotNil(t, hooked)
	assert.Equal(t, "buyer@example.com", hooked.Email)
	assert.True(t, hooked.Verified)
}

func TestChallengeActivityEvents(t *testing.T) {
	ctx := context.Background()
	sink := &memorySink{}

	machine := identity.NewChallengeMachine(newMemoryChallengeStore(), identity.MailerFunc(nil),
		identity.WithChallengeCodeGenerator(fixedCodes("482913")),
		identity.WithChallengeActivitySink(sink),
	)

	_, err := machine.Request(ctx, "buyer@example.com", identity.PurposeRegistration)
	require.NoError(t, err)

	_, err = machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "000000")
	require.Error(t, err)

	_, err = machine.Verify(ctx, "buyer@example.com", identity.PurposeRegistration, "482913")
	require.NoError(t, err)

	assert.Equal(t, []identity.ActivityEventType{
		identity.ActivityEventChallengeRequested,
		identity.ActivityEventChallengeFailed,
		identity.ActivityEventChallengeVerified,
	}, sink.EventTypes())
}
