package identity_test

import (
	"context"
	"sort"
	"sync"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/marketbase/go-identity"
	"github.com/stretchr/testify/mock"
)

// MockConfig implements identity.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetSigningMethod() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetContextKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetSessionTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetChallengeTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetTokenLookup() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAuthScheme() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConfig) GetLoginRoute() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetDashboardRoute() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetRejectedRouteKey() string {
	args := m.Called()
	return args.String(0)
}

// MockIdentityProvider implements identity.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, email, password string) (identity.Identity, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(identity.Identity), args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByEmail(ctx context.Context, email string) (identity.Identity, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(identity.Identity), args.Error(1)
}

// MockActivitySink implements identity.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event identity.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// memorySink is a hand-rolled ActivitySink for tests that only need to
// inspect the recorded stream.
type memorySink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *memorySink) Record(ctx context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) Events() []identity.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *memorySink) EventTypes() []identity.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]identity.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

// TestIdentity is a simple implementation of the Identity interface
type TestIdentity struct {
	id          string
	email       string
	displayName string
	role        string
	provider    string
	avatar      string
}

func (t TestIdentity) ID() string          { return t.id }
func (t TestIdentity) Email() string       { return t.email }
func (t TestIdentity) DisplayName() string { return t.displayName }
func (t TestIdentity) Role() string        { return t.role }
func (t TestIdentity) Provider() string    { return t.provider }
func (t TestIdentity) Avatar() string      { return t.avatar }

func newMockConfig() *MockConfig {
	cfg := new(MockConfig)
	cfg.On("GetSigningKey").Return("test-signing-key")
	cfg.On("GetSigningMethod").Return("HS256")
	cfg.On("GetContextKey").Return("user")
	cfg.On("GetSessionTTL").Return(24 * time.Hour)
	cfg.On("GetChallengeTTL").Return(10 * time.Minute)
	cfg.On("GetTokenLookup").Return("header:Authorization")
	cfg.On("GetAuthScheme").Return("Bearer")
	cfg.On("GetIssuer").Return("test-issuer")
	cfg.On("GetAudience").Return([]string{"test:audience"})
	cfg.On("GetLoginRoute").Return("/login")
	cfg.On("GetDashboardRoute").Return("/dashboard")
	cfg.On("GetRejectedRouteKey").Return("rejected_route")
	return cfg
}

// memoryUserStore is an in-memory store covering the UserTracker and
// BridgeStore surfaces.
type memoryUserStore struct {
	mu       sync.Mutex
	byEmail  map[string]*identity.User
	registry int
}

func newMemoryUserStore(users ...*identity.User) *memoryUserStore {
	s := &memoryUserStore{byEmail: map[string]*identity.User{}}
	for _, u := range users {
		s.byEmail[identity.NormalizeEmail(u.Email)] = u
	}
	return s
}

func (s *memoryUserStore) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return user, nil
}

func (s *memoryUserStore) GetByProviderSubject(ctx context.Context, provider, subjectID string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := provider + "|" + subjectID
	for _, u := range s.byEmail {
		if u.ProviderSubjectID != nil && *u.ProviderSubjectID == key {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *memoryUserStore) AttachProviderSubject(ctx context.Context, user *identity.User, provider, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := provider + "|" + subjectID
	user.ProviderSubjectID = &key
	return nil
}

func (s *memoryUserStore) Register(ctx context.Context, user *identity.User) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := identity.NormalizeEmail(user.Email)
	s.byEmail[email] = user
	s.registry++
	return user, nil
}

func (s *memoryUserStore) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry
}

func (s *memoryUserStore) TrackAttemptedLogin(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	user.LoginAttempts++
	user.LoginAttemptAt = &now
	return nil
}

func (s *memoryUserStore) TrackSuccessfulLogin(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil
	user.LastLoginAt = &now
	return nil
}

// memoryChallengeStore is an in-memory ChallengeStore ordered by creation.
type memoryChallengeStore struct {
	mu         sync.Mutex
	challenges []*identity.VerificationChallenge
}

func newMemoryChallengeStore() *memoryChallengeStore {
	return &memoryChallengeStore{}
}

func (s *memoryChallengeStore) Latest(ctx context.Context, email string, purpose identity.ChallengePurpose) (*identity.VerificationChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]*identity.VerificationChallenge, 0)
	for _, c := range s.challenges {
		if c.Email == identity.NormalizeEmail(email) && c.Purpose == purpose {
			matches = append(matches, c)
		}
	}

	if len(matches) == 0 {
		return nil, repository.NewRecordNotFound()
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(*matches[j].CreatedAt)
	})

	return matches[0], nil
}

func (s *memoryChallengeStore) Create(ctx context.Context, challenge *identity.VerificationChallenge) (*identity.VerificationChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if challenge.CreatedAt == nil {
		now := time.Now()
		challenge.CreatedAt = &now
	}

	s.challenges = append(s.challenges, challenge)
	return challenge, nil
}

func (s *memoryChallengeStore) Update(ctx context.Context, challenge *identity.VerificationChallenge) error {
	return nil
}

func (s *memoryChallengeStore) InvalidateActive(ctx context.Context, email string, purpose identity.ChallengePurpose, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.challenges {
		if c.Email == identity.NormalizeEmail(email) && c.Purpose == purpose && c.Active(at) {
			consumed := at
			c.ConsumedAt = &consumed
		}
	}
	return nil
}
