package identity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionIssuer mints session tokens from resolved identities. Expiration is
// always issuance time plus the configured TTL, never rounded or extended, and
// the claim set is frozen once the token is signed.
type SessionIssuer struct {
	tokenService    TokenService
	issuer          string
	audience        []string
	sessionTTL      time.Duration
	logger          Logger
	activitySink    ActivitySink
	claimsDecorator ClaimsDecorator
	clock           func() time.Time
}

// NewSessionIssuer returns a SessionIssuer configured from opts.
func NewSessionIssuer(tokenService TokenService, opts Config) *SessionIssuer {
	return &SessionIssuer{
		tokenService:    tokenService,
		issuer:          opts.GetIssuer(),
		audience:        opts.GetAudience(),
		sessionTTL:      opts.GetSessionTTL(),
		logger:          defLogger{},
		activitySink:    noopActivitySink{},
		claimsDecorator: noopClaimsDecorator{},
		clock:           time.Now,
	}
}

func (s *SessionIssuer) WithLogger(logger Logger) *SessionIssuer {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting issuance events.
func (s *SessionIssuer) WithActivitySink(sink ActivitySink) *SessionIssuer {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching tokens.
func (s *SessionIssuer) WithClaimsDecorator(decorator ClaimsDecorator) *SessionIssuer {
	s.claimsDecorator = normalizeClaimsDecorator(decorator)
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *SessionIssuer) WithClock(clock func() time.Time) *SessionIssuer {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Issue derives a session from exactly one identity and signs it. It returns
// the session view alongside the signed token.
func (s *SessionIssuer) Issue(ctx context.Context, identity Identity) (*SessionObject, string, error) {
	if identity == nil {
		return nil, "", ErrIdentityNotFound
	}

	claims := s.newSessionClaims(identity)
	snapshot := captureImmutableClaims(claims)

	decorator := normalizeClaimsDecorator(s.claimsDecorator)
	if err := decorator.Decorate(ctx, identity, claims); err != nil {
		s.logger.Error("claims decorator failed: %v", err)
		return nil, "", err
	}

	if err := snapshot.validate(claims); err != nil {
		s.logger.Error("claims decorator mutated immutable claims: %v", err)
		return nil, "", err
	}

	token, err := s.tokenService.SignClaims(claims)
	if err != nil {
		return nil, "", err
	}

	session, err := SessionFromClaims(claims)
	if err != nil {
		return nil, "", err
	}

	s.emitIssued(ctx, identity, claims)

	return session, token, nil
}

func (s *SessionIssuer) newSessionClaims(identity Identity) *SessionClaims {
	now := s.clock()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
		},
		UID:       identity.ID(),
		UserEmail: identity.Email(),
		Name:      identity.DisplayName(),
		UserRole:  identity.Role(),
		Prov:      identity.Provider(),
		Image:     identity.Avatar(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

func (s *SessionIssuer) emitIssued(ctx context.Context, identity Identity, claims *SessionClaims) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: ActivityEventSessionIssued,
		Actor:     ActorRef{ID: identity.ID(), Type: "user"},
		UserID:    identity.ID(),
		Metadata: map[string]any{
			"provider":   identity.Provider(),
			"expires_at": claims.Expires(),
		},
		OccurredAt: s.clock(),
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
