package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

// ProviderAssertion is the verified payload handed over by an upstream OAuth
// provider after it authenticated the user.
type ProviderAssertion struct {
	Provider      string `json:"provider"`
	SubjectID     string `json:"subject_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	AvatarURL     string `json:"avatar_url"`
	Locale        string `json:"locale"`
}

// BridgeStore is the user store surface the bridge needs to resolve and
// provision accounts.
type BridgeStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByProviderSubject(ctx context.Context, provider, subjectID string) (*User, error)
	AttachProviderSubject(ctx context.Context, user *User, provider, subjectID string) error
	Register(ctx context.Context, user *User) (*User, error)
}

// OAuthBridge exchanges provider assertions for local identities. Resolution
// order is provider subject first, then email attach, then account creation,
// so the same assertion always lands on the same account.
type OAuthBridge struct {
	store                BridgeStore
	AllowSignup          bool
	RequireEmailVerified bool
	DefaultRole          Role

	OnUserCreated   func(ctx context.Context, user *User, assertion ProviderAssertion) error
	OnAccountLinked func(ctx context.Context, user *User, assertion ProviderAssertion) error

	logger       Logger
	activitySink ActivitySink
}

// NewOAuthBridge returns a bridge with signup enabled and verified-email
// enforcement on, which is the posture a public storefront wants.
func NewOAuthBridge(store BridgeStore) *OAuthBridge {
	return &OAuthBridge{
		store:                store,
		AllowSignup:          true,
		RequireEmailVerified: true,
		DefaultRole:          RoleUser,
		logger:               defLogger{},
		activitySink:         noopActivitySink{},
	}
}

func (b *OAuthBridge) WithLogger(l Logger) *OAuthBridge {
	if l != nil {
		b.logger = l
	}
	return b
}

// WithActivitySink configures an ActivitySink for emitting exchange events.
func (b *OAuthBridge) WithActivitySink(sink ActivitySink) *OAuthBridge {
	b.activitySink = normalizeActivitySink(sink)
	return b
}

// Exchange resolves a provider assertion to exactly one local identity,
// provisioning the account on first contact. Repeating the same assertion is
// idempotent and never creates a second account.
func (b *OAuthBridge) Exchange(ctx context.Context, assertion ProviderAssertion) (Identity, error) {
	if err := b.checkAssertion(assertion); err != nil {
		return nil, err
	}

	providerTag := OAuthProvider(assertion.Provider)
	email := NormalizeEmail(assertion.Email)

	user, err := b.store.GetByProviderSubject(ctx, providerTag, assertion.SubjectID)
	if err == nil && user != nil {
		b.emitExchange(ctx, user, assertion, "subject_match")
		return NewIdentityFromUser(user), nil
	}
	if err != nil && !errors.IsNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find account by provider subject")
	}

	user, err = b.store.GetByEmail(ctx, email)
	if err == nil && user != nil {
		if err := b.store.AttachProviderSubject(ctx, user, providerTag, assertion.SubjectID); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to attach provider subject")
		}

		if b.OnAccountLinked != nil {
			if err := b.OnAccountLinked(ctx, user, assertion); err != nil {
				return nil, err
			}
		}

		b.emitExchange(ctx, user, assertion, "email_attach")
		return NewIdentityFromUser(user), nil
	}
	if err != nil && !errors.IsNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to find account by email")
	}

	if !b.AllowSignup {
		return nil, exchangeFailed("signup is disabled for provider exchanges", assertion)
	}

	created, err := b.createUserFromAssertion(ctx, assertion, providerTag, email)
	if err != nil {
		return nil, err
	}

	if b.OnUserCreated != nil {
		if err := b.OnUserCreated(ctx, created, assertion); err != nil {
			return nil, err
		}
	}

	b.emitExchange(ctx, created, assertion, "created")
	return NewIdentityFromUser(created), nil
}

func (b *OAuthBridge) checkAssertion(assertion ProviderAssertion) error {
	if assertion.Provider == "" || assertion.SubjectID == "" {
		return exchangeFailed("assertion is missing provider or subject", assertion)
	}

	if assertion.Email == "" {
		return exchangeFailed("assertion is missing an email", assertion)
	}

	if b.RequireEmailVerified && !assertion.EmailVerified {
		return exchangeFailed("provider did not verify the email", assertion)
	}

	return nil
}

func (b *OAuthBridge) createUserFromAssertion(ctx context.Context, assertion ProviderAssertion, providerTag, email string) (*User, error) {
	subject := assertion.SubjectID

	user := &User{
		Email:             email,
		Role:              b.DefaultRole,
		Provider:          providerTag,
		ProviderSubjectID: &subject,
		Verified:          assertion.EmailVerified,
		PasswordHash:      RandomPasswordHash(),
		AvatarURL:         assertion.AvatarURL,
		Locale:            assertion.Locale,
	}

	if assertion.FirstName != "" {
		user.FirstName = assertion.FirstName
		user.LastName = assertion.LastName
	} else if assertion.Name != "" {
		user.SetDisplayName(assertion.Name)
	}

	// Deterministic ID from the email so retried first-contact exchanges
	// converge on the same record instead of racing into duplicates.
	if id, err := hashid.NewUUID(email); err == nil {
		user.ID = id
	}

	created, err := b.store.Register(ctx, user)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConflict, "could not provision account from assertion")
	}

	return created, nil
}

func (b *OAuthBridge) emitExchange(ctx context.Context, user *User, assertion ProviderAssertion, resolution string) {
	sink := normalizeActivitySink(b.activitySink)
	event := ActivityEvent{
		EventType: ActivityEventProviderExchange,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"provider":   assertion.Provider,
			"resolution": resolution,
		},
		OccurredAt: time.Now(),
	}

	if err := sink.Record(ctx, event); err != nil {
		b.logger.Warn("activity sink record error: %v", err)
	}
}

func exchangeFailed(reason string, assertion ProviderAssertion) error {
	clone := ErrProviderExchangeFailed.Clone()
	if clone == nil {
		return ErrProviderExchangeFailed
	}
	clone.Source = ErrProviderExchangeFailed
	return clone.WithMetadata(map[string]any{
		"reason":   reason,
		"provider": assertion.Provider,
	})
}
