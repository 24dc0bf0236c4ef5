package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockTransactionRepository = (*LedgerRepo)(nil)

// LedgerRepo ledger append-only en memoria; el orden del slice es el orden de escritura.
type LedgerRepo struct {
	store *Store
	tx    *staging
}

func (r *LedgerRepo) Append(_ context.Context, t *entity.StockTransaction) error {
	return r.store.with(r.tx, func(v view) error {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		v.appendEntry(t)
		return nil
	})
}

func (r *LedgerRepo) GetByID(_ context.Context, businessID, id string) (*entity.StockTransaction, error) {
	var out *entity.StockTransaction
	err := r.store.with(r.tx, func(v view) error {
		v.eachEntry(func(t *entity.StockTransaction) bool {
			if t.ID == id && t.BusinessID == businessID {
				found := *t
				out = &found
				return false
			}
			return true
		})
		return nil
	})
	return out, err
}

func (r *LedgerRepo) ListByKey(_ context.Context, key entity.StockKey, limit, offset int) ([]*entity.StockTransaction, error) {
	return r.filter(func(t *entity.StockTransaction) bool { return t.Key() == key }, limit, offset)
}

func (r *LedgerRepo) ListByReference(_ context.Context, businessID, referenceType, referenceID string) ([]*entity.StockTransaction, error) {
	return r.filter(func(t *entity.StockTransaction) bool {
		return t.BusinessID == businessID && t.ReferenceType == referenceType && t.ReferenceID == referenceID
	}, 0, 0)
}

func (r *LedgerRepo) Summarize(_ context.Context, key entity.StockKey) (repository.LedgerSummary, error) {
	sum := repository.LedgerSummary{Sum: decimal.Zero}
	err := r.store.with(r.tx, func(v view) error {
		v.eachEntry(func(t *entity.StockTransaction) bool {
			if t.Key() == key {
				sum.Sum = sum.Sum.Add(t.SignedQuantity)
				sum.EntryCount++
			}
			return true
		})
		return nil
	})
	return sum, err
}

func (r *LedgerRepo) filter(match func(*entity.StockTransaction) bool, limit, offset int) ([]*entity.StockTransaction, error) {
	var list []*entity.StockTransaction
	err := r.store.with(r.tx, func(v view) error {
		skipped := 0
		v.eachEntry(func(t *entity.StockTransaction) bool {
			if !match(t) {
				return true
			}
			if skipped < offset {
				skipped++
				return true
			}
			found := *t
			list = append(list, &found)
			return limit <= 0 || len(list) < limit
		})
		return nil
	})
	return list, err
}
