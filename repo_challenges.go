package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var SupersedeChallengesSQL = `UPDATE "verification_challenges" AS "vch"
SET
	"consumed_at" = ?
WHERE
	"vch"."email" = ?
AND "vch"."purpose" = ?
AND "vch"."consumed_at" IS NULL;`

// Challenges is the bun-backed challenge store.
type Challenges interface {
	ChallengeStore

	LatestTx(ctx context.Context, tx bun.IDB, email string, purpose ChallengePurpose) (*VerificationChallenge, error)
	InvalidateActiveTx(ctx context.Context, tx bun.IDB, email string, purpose ChallengePurpose, at time.Time) error
}

type challenges struct {
	repository.Repository[*VerificationChallenge]
	db *bun.DB
}

var _ Challenges = (*challenges)(nil)

func NewChallengesRepository(db *bun.DB) Challenges {
	repo := repository.NewRepository[*VerificationChallenge](db, repository.ModelHandlers[*VerificationChallenge]{
		NewRecord: func() *VerificationChallenge { return &VerificationChallenge{} },
		GetID: func(c *VerificationChallenge) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *VerificationChallenge, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &challenges{
		Repository: repo,
		db:         db,
	}
}

func (a *challenges) Latest(ctx context.Context, email string, purpose ChallengePurpose) (*VerificationChallenge, error) {
	return a.LatestTx(ctx, a.db, email, purpose)
}

func (a *challenges) LatestTx(ctx context.Context, tx bun.IDB, email string, purpose ChallengePurpose) (*VerificationChallenge, error) {
	record := &VerificationChallenge{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Where("?TableAlias.purpose = ?", purpose).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email":   email,
					"purpose": purpose,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *challenges) Create(ctx context.Context, challenge *VerificationChallenge) (*VerificationChallenge, error) {
	prepareChallengeDefaults(challenge)
	return a.Repository.Create(ctx, challenge)
}

func (a *challenges) Update(ctx context.Context, challenge *VerificationChallenge) error {
	_, err := a.Repository.Update(ctx, challenge, repository.UpdateByID(challenge.ID.String()))
	return err
}

func (a *challenges) InvalidateActive(ctx context.Context, email string, purpose ChallengePurpose, at time.Time) error {
	return a.InvalidateActiveTx(ctx, a.db, email, purpose, at)
}

func (a *challenges) InvalidateActiveTx(ctx context.Context, tx bun.IDB, email string, purpose ChallengePurpose, at time.Time) error {
	_, err := tx.NewRaw(SupersedeChallengesSQL, at, NormalizeEmail(email), purpose).Exec(ctx)
	return err
}

func prepareChallengeDefaults(record *VerificationChallenge) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}
