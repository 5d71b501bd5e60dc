package identity

import (
	"context"
	"reflect"
	"time"
)

// Auther composes the credential verifier, the provider bridge, and the
// session issuer behind the Authenticator interface.
type Auther struct {
	provider       IdentityProvider
	bridge         *OAuthBridge
	issuer         *SessionIssuer
	signingKey     []byte
	logger         Logger
	tokenService   TokenService
	tokenValidator TokenValidator
	activitySink   ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, bridge *OAuthBridge, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:     provider,
		bridge:       bridge,
		issuer:       NewSessionIssuer(tokenService, opts),
		signingKey:   []byte(opts.GetSigningKey()),
		logger:       defLogger{},
		tokenService: tokenService,
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	s.issuer.WithLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	s.issuer.WithActivitySink(sink)
	return s
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching tokens.
func (s *Auther) WithClaimsDecorator(decorator ClaimsDecorator) *Auther {
	s.issuer.WithClaimsDecorator(decorator)
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// WithClock injects a custom clock into the issuer (useful for tests).
func (s *Auther) WithClock(clock func() time.Time) *Auther {
	s.issuer.WithClock(clock)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Issuer returns the SessionIssuer used by this Authenticator
func (s *Auther) Issuer() *SessionIssuer {
	return s.issuer
}

// Login verifies the credentials and issues a session on success.
func (s *Auther) Login(ctx context.Context, email, password string) (*SessionObject, string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": ErrIdentityNotFound.Error(),
		})
		return nil, "", ErrInvalidCredentials
	}

	session, token, err := s.issuer.Issue(ctx, identity)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, "", err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"email": email,
	})

	return session, token, nil
}

// ExchangeProvider resolves a provider assertion through the bridge and
// issues a session for the resolved identity.
func (s *Auther) ExchangeProvider(ctx context.Context, assertion ProviderAssertion) (*SessionObject, string, error) {
	if s.bridge == nil {
		return nil, "", ErrProviderExchangeFailed
	}

	identity, err := s.bridge.Exchange(ctx, assertion)
	if err != nil {
		s.logger.Error("ExchangeProvider bridge error: %v", err)
		return nil, "", err
	}

	return s.issuer.Issue(ctx, identity)
}

// IdentityFromSession resolves the durable account behind a session.
func (s *Auther) IdentityFromSession(ctx context.Context, session *SessionObject) (Identity, error) {
	identity, err := s.provider.FindIdentityByEmail(ctx, session.GetEmail())
	if err != nil {
		s.logger.Error("IdentityFromSession find identity by email: %s", err)
		return nil, err
	}

	return identity, nil
}

// SessionFromToken validates a raw token and rehydrates its session view.
func (s *Auther) SessionFromToken(raw string) (*SessionObject, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	session, err := SessionFromClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	return session, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

var _ Authenticator = (*Auther)(nil)
