package identity_test

import (
	"context"
	"testing"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/marketbase/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifiedAssertion() identity.ProviderAssertion {
	return identity.ProviderAssertion{
		Provider:      "google",
		SubjectID:     "google-sub-1",
		Email:         "buyer@example.com",
		EmailVerified: true,
		FirstName:     "Buyer",
		LastName:      "Example",
		AvatarURL:     "https://lh3.example.com/avatar.png",
		Locale:        "en-US",
	}
}

func TestBridgeExchangeCreatesAccount(t *testing.T) {
	ctx := context.Background()
	store := newMemoryUserStore()
	bridge := identity.NewOAuthBridge(store)

	resolved, err := bridge.Exchange(ctx, verifiedAssertion())
	require.NoError(t, err)

	assert.Equal(t, "buyer@example.com", resolved.Email())
	assert.Equal(t, identity.RoleUser, resolved.Role())
	assert.Equal(t, "oauth:google", resolved.Provider())
	assert.Equal(t, "Buyer Example", resolved.DisplayName())
	assert.Equal(t, "https://lh3.example.com/avatar.png", resolved.Avatar())

	user, err := store.GetByEmail(ctx, "buyer@example.com")
	require.NoError(t, err)
	assert.True(t, user.Verified)
	assert.NotEmpty(t, user.PasswordHash)

	// Provisioned IDs are derived from the email, so a retried first contact
	// converges on the same record.
	wantID, err := hashid.NewUUID("buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, wantID, user.ID)
}

func TestBridgeExchangeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryUserStore()
	bridge := identity.NewOAuthBridge(store)

	first, err := bridge.Exchange(ctx, verifiedAssertion())
	require.NoError(t, err)

	second, err := bridge.Exchange(ctx, verifiedAssertion())
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, 1, store.Registered())
}

func TestBridgeExchangeAttachesToExistingEmail(t *testing.T) {
	ctx := context.Background()

	existing := newVerifiedUser(t, "buyer@example.com", "correct-horse-battery")
	store := newMemoryUserStore(existing)
	bridge := identity.NewOAuthBridge(store)

	var linked *identity.User
	bridge.OnAccountLinked = func(ctx context.Context, user *identity.User, assertion identity.ProviderAssertion) error {
		linked = user
		return nil
	}

	resolved, err := bridge.Exchange(ctx, verifiedAssertion())
	require.NoError(t, err)

	// Same account, no second record.
	assert.Equal(t, existing.ID.String(), resolved.ID())
	assert.Equal(t, 0, store.Registered())
	require.NotNil(t, existing.ProviderSubjectID)
	assert.Equal(t, "oauth:google|google-sub-1", *existing.ProviderSubjectID)
	require.NotNil(t, linked)
	assert.Equal(t, existing.ID, linked.ID)

	// Subsequent exchanges resolve through the subject link directly.
	again, err := bridge.Exchange(ctx, verifiedAssertion())
	require.NoError(t, err)
	assert.Equal(t, existing.ID.String(), again.ID())
}

func TestBridgeExchangeRejectsUnverifiedEmail(t *testing.T) {
	ctx := context.Background()
	bridge := identity.NewOAuthBridge(newMemoryUserStore())

	assertion := verifiedAssertion()
	assertion.EmailVerified = false

	_, err := bridge.Exchange(ctx, assertion)
	assert.ErrorIs(t, err, identity.ErrProviderExchangeFailed)
}

func TestBridgeExchangeRejectsIncompleteAssertion(t *testing.T) {
	ctx := context.Background()
	bridge := identity.NewOAuthBridge(newMemoryUserStore())

	t.Run("missing subject", func(t *testing.T) {
		assertion := verifiedAssertion()
		assertion.SubjectID = ""
		_, err := bridge.Exchange(ctx, assertion)
		assert.ErrorIs(t, err, identity.ErrProviderExchangeFailed)
	})

	t.Run("missing email", func(t *testing.T) {
		assertion := verifiedAssertion()
		assertion.Email = ""
		_, err := bridge.Exchange(ctx, assertion)
		assert.ErrorIs(t, err, identity.ErrProviderExchangeFailed)
	})
}

func TestBridgeExchangeSignupDisabled(t *testing.T) {
	ctx := context.Background()
	bridge := identity.NewOAuthBridge(newMemoryUserStore())
	bridge.AllowSignup = false

	_, err := bridge.Exchange(ctx, verifiedAssertion())
	assert.ErrorIs(t, err, identity.ErrProviderExchangeFailed)
}

func TestBridgeExchangeOnUserCreatedHook(t *testing.T) {
	ctx := context.Background()
	bridge := identity.NewOAuthBridge(newMemoryUserStore())

	var created *identity.User
	bridge.OnUserCreated = func(ctx context.Context, user *identity.User, assertion identity.ProviderAssertion) error {
		created = user
		return nil
	}

	_, err := bridge.Exchange(ctx, verifiedAssertion())
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, "buyer@example.com", created.Email)
}

func TestBridgeExchangeActivity(t *testing.T) {
	ctx := context.Background()
	sink := &memorySink{}
	bridge := identity.NewOAuthBridge(newMemoryUserStore()).WithActivitySink(sink)

	_, err := bridge.Exchange(ctx, verifiedAssertion())
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, identity.ActivityEventProviderExchange, events[0].EventType)
	assert.Equal(t, "created", events[0].Metadata["resolution"])
}
