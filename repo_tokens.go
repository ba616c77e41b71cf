package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ConsumeTokenSQL = `UPDATE "verification_tokens" AS "vtk"
SET
	"consumed_at" = ?
WHERE
	"vtk"."token_hash" = ?
AND
	"vtk"."consumed_at" IS NULL
RETURNING *;`

// VerificationTokens persists one-time token records. Consume is the only
// write after insert and is guarded so concurrent spends of the same token
// cannot both succeed.
type VerificationTokens interface {
	repository.Repository[*VerificationToken]

	GetByHash(ctx context.Context, tokenHash string) (*VerificationToken, error)
	GetByHashTx(ctx context.Context, tx bun.IDB, tokenHash string) (*VerificationToken, error)

	Consume(ctx context.Context, tokenHash string, at time.Time) (*VerificationToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string, at time.Time) (*VerificationToken, error)

	InvalidateForUser(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, at time.Time) error
	InvalidateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, at time.Time) error
}

type verificationTokens struct {
	repository.Repository[*VerificationToken]
	db *bun.DB
}

var _ VerificationTokens = (*verificationTokens)(nil)

func NewVerificationTokensRepository(db *bun.DB) VerificationTokens {
	repo := repository.NewRepository[*VerificationToken](db, repository.ModelHandlers[*VerificationToken]{
		NewRecord: func() *VerificationToken { return &VerificationToken{} },
		GetID: func(t *VerificationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *VerificationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	})

	return &verificationTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *verificationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *VerificationToken, criteria ...repository.InsertCriteria) (*VerificationToken, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *verificationTokens) GetByHash(ctx context.Context, tokenHash string) (*VerificationToken, error) {
	return r.GetByHashTx(ctx, r.db, tokenHash)
}

func (r *verificationTokens) GetByHashTx(ctx context.Context, tx bun.IDB, tokenHash string) (*VerificationToken, error) {
	record := &VerificationToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"token_hash": tokenHash,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *verificationTokens) Consume(ctx context.Context, tokenHash string, at time.Time) (*VerificationToken, error) {
	return r.ConsumeTx(ctx, r.db, tokenHash, at)
}

// ConsumeTx marks the token spent. The update only matches rows that are
// still unconsumed, so a second spend comes back empty and the caller can
// tell first use from replay.
func (r *verificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, tokenHash string, at time.Time) (*VerificationToken, error) {
	res, err := r.Repository.RawTx(ctx, tx, ConsumeTokenSQL, at, tokenHash)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"token_hash": tokenHash,
			})
	}

	return res[0], nil
}

func (r *verificationTokens) InvalidateForUser(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, at time.Time) error {
	return r.InvalidateForUserTx(ctx, r.db, userID, purpose, at)
}

// InvalidateForUserTx expires any outstanding tokens of the given purpose so
// only the most recently issued link stays valid.
func (r *verificationTokens) InvalidateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, at time.Time) error {
	_, err := tx.NewRaw(`
		UPDATE "verification_tokens" AS "vtk"
		SET
			"consumed_at" = ?
		WHERE
			"vtk"."user_id" = ?
		AND
			"vtk"."purpose" = ?
		AND
			"vtk"."consumed_at" IS NULL;
	`, at, userID, purpose).Exec(ctx)

	return err
}
