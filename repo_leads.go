package identity

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LeadFilter narrows lead listings. Zero values are ignored.
type LeadFilter struct {
	Status LeadStatus
	Email  string
	Limit  int
	Offset int
}

// Leads is the conversion pipeline repository. Status transitions go through
// the pipeline service; the repository only persists what it is told.
type Leads interface {
	repository.Repository[*Lead]

	Submit(ctx context.Context, lead *Lead) (*Lead, error)
	SubmitTx(ctx context.Context, tx bun.IDB, lead *Lead) (*Lead, error)

	GetOpenByEmail(ctx context.Context, email string) (*Lead, error)
	GetOpenByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Lead, error)

	Find(ctx context.Context, filter LeadFilter) ([]*Lead, int, error)
	FindTx(ctx context.Context, tx bun.IDB, filter LeadFilter) ([]*Lead, int, error)
}

type leads struct {
	repository.Repository[*Lead]
	db *bun.DB
}

var _ Leads = (*leads)(nil)

func NewLeadsRepository(db *bun.DB) Leads {
	repo := repository.NewRepository[*Lead](db, repository.ModelHandlers[*Lead]{
		NewRecord: func() *Lead { return &Lead{} },
		GetID: func(l *Lead) uuid.UUID {
			if l == nil {
				return uuid.Nil
			}
			return l.ID
		},
		SetID: func(l *Lead, id uuid.UUID) {
			if l != nil {
				l.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &leads{
		Repository: repo,
		db:         db,
	}
}

func (r *leads) Submit(ctx context.Context, lead *Lead) (*Lead, error) {
	return r.SubmitTx(ctx, r.db, lead)
}

func (r *leads) SubmitTx(ctx context.Context, tx bun.IDB, lead *Lead) (*Lead, error) {
	prepareLeadDefaults(lead)
	return r.Repository.CreateTx(ctx, tx, lead)
}

func (r *leads) GetOpenByEmail(ctx context.Context, email string) (*Lead, error) {
	return r.GetOpenByEmailTx(ctx, r.db, email)
}

// GetOpenByEmailTx returns the most recent non-terminal lead for the address.
func (r *leads) GetOpenByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Lead, error) {
	record := &Lead{}
	err := tx.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = ?", NormalizeEmail(email)).
		Where("?TableAlias.status NOT IN (?)", bun.In([]LeadStatus{LeadStatusConverted, LeadStatusClosed})).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *leads) Find(ctx context.Context, filter LeadFilter) ([]*Lead, int, error) {
	return r.FindTx(ctx, r.db, filter)
}

func (r *leads) FindTx(ctx context.Context, tx bun.IDB, filter LeadFilter) ([]*Lead, int, error) {
	records := []*Lead{}

	q := tx.NewSelect().Model(&records)

	if filter.Status != "" {
		q.Where("?TableAlias.status = ?", filter.Status)
	}

	if filter.Email != "" {
		q.Where("LOWER(?TableAlias.email) = ?", NormalizeEmail(filter.Email))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
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

func prepareLeadDefaults(record *Lead) {
	if record == nil {
		return
	}

	record.EnsureStatus()
	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
