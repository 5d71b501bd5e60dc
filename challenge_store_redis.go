package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "vch"

// RedisChallengeStore keeps challenges in Redis with native expiry. Records
// are retained for twice the challenge TTL so a lapsed challenge still reads
// as expired rather than missing; only after the retention window does the
// pair fall back to not-found.
type RedisChallengeStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var _ ChallengeStore = (*RedisChallengeStore)(nil)

// NewRedisChallengeStore returns a Redis-backed ChallengeStore.
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{
		client: client,
		prefix: challengeKeyPrefix,
		now:    time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (s *RedisChallengeStore) WithClock(clock func() time.Time) *RedisChallengeStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *RedisChallengeStore) key(email string, purpose ChallengePurpose) string {
	return s.prefix + ":" + purpose + ":" + NormalizeEmail(email)
}

// Latest returns the stored challenge for the pair, consumed or expired ones
// included while they are retained.
func (s *RedisChallengeStore) Latest(ctx context.Context, email string, purpose ChallengePurpose) (*VerificationChallenge, error) {
	data, err := s.client.Get(ctx, s.key(email, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email":   email,
					"purpose": purpose,
				})
		}
		return nil, err
	}

	return unmarshalChallenge(data)
}

// Create stores a fresh challenge, replacing whatever the pair held before.
func (s *RedisChallengeStore) Create(ctx context.Context, challenge *VerificationChallenge) (*VerificationChallenge, error) {
	prepareChallengeDefaults(challenge)

	data, err := marshalChallenge(challenge)
	if err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, s.key(challenge.Email, challenge.Purpose), data, s.retention(challenge)).Err(); err != nil {
		return nil, err
	}

	return challenge, nil
}

// Update rewrites the stored record without touching its expiry.
func (s *RedisChallengeStore) Update(ctx context.Context, challenge *VerificationChallenge) error {
	data, err := marshalChallenge(challenge)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, s.key(challenge.Email, challenge.Purpose), data, redis.KeepTTL).Err()
}

// InvalidateActive consumes the pair's challenge if one is still verifiable,
// so a resend never leaves two live codes.
func (s *RedisChallengeStore) InvalidateActive(ctx context.Context, email string, purpose ChallengePurpose, at time.Time) error {
	challenge, err := s.Latest(ctx, email, purpose)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return err
	}

	if !challenge.Active(at) {
		return nil
	}

	challenge.ConsumedAt = &at
	return s.Update(ctx, challenge)
}

func (s *RedisChallengeStore) retention(challenge *VerificationChallenge) time.Duration {
	ttl := challenge.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl * 2
}

// The json:"-" tag keeps the code out of API payloads; persistence needs it,
// so the stored form carries the code in an explicit field.
type storedChallenge struct {
	*VerificationChallenge
	StoredCode string `json:"stored_code"`
}

func marshalChallenge(challenge *VerificationChallenge) ([]byte, error) {
	return json.Marshal(storedChallenge{VerificationChallenge: challenge, StoredCode: challenge.Code})
}

func unmarshalChallenge(data []byte) (*VerificationChallenge, error) {
	stored := storedChallenge{VerificationChallenge: &VerificationChallenge{}}
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	challenge := stored.VerificationChallenge
	challenge.Code = stored.StoredCode
	return challenge, nil
}
