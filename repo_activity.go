package identity

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityFilter narrows activity listings. Zero values are ignored.
type ActivityFilter struct {
	Action      string
	TargetEmail string
	Limit       int
	Offset      int
}

// Activity is the append-only audit trail. There is no update or delete
// surface on purpose.
type Activity interface {
	Append(ctx context.Context, entry *ActivityEntry) error
	AppendTx(ctx context.Context, tx bun.IDB, entry *ActivityEntry) error

	Find(ctx context.Context, filter ActivityFilter) ([]*ActivityEntry, int, error)
	FindTx(ctx context.Context, tx bun.IDB, filter ActivityFilter) ([]*ActivityEntry, int, error)
}

type activity struct {
	repo repository.Repository[*ActivityEntry]
	db   *bun.DB
}

var _ Activity = (*activity)(nil)

func NewActivityRepository(db *bun.DB) Activity {
	repo := repository.NewRepository[*ActivityEntry](db, repository.ModelHandlers[*ActivityEntry]{
		NewRecord: func() *ActivityEntry { return &ActivityEntry{} },
		GetID: func(e *ActivityEntry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *ActivityEntry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &activity{
		repo: repo,
		db:   db,
	}
}

func (r *activity) Append(ctx context.Context, entry *ActivityEntry) error {
	return r.AppendTx(ctx, r.db, entry)
}

func (r *activity) AppendTx(ctx context.Context, tx bun.IDB, entry *ActivityEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.repo.CreateTx(ctx, tx, entry)
	return err
}

func (r *activity) Find(ctx context.Context, filter ActivityFilter) ([]*ActivityEntry, int, error) {
	return r.FindTx(ctx, r.db, filter)
}

func (r *activity) FindTx(ctx context.Context, tx bun.IDB, filter ActivityFilter) ([]*ActivityEntry, int, error) {
	records := []*ActivityEntry{}

	q := tx.NewSelect().Model(&records)

	if filter.Action != "" {
		q.Where("?TableAlias.action = ?", filter.Action)
	}

	if filter.TargetEmail != "" {
		q.Where("LOWER(?TableAlias.target_email) = ?", NormalizeEmail(filter.TargetEmail))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	total, err := q.
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		ScanAndCount(ctx)

	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
