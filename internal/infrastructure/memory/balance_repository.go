package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockBalanceRepository = (*BalanceRepo)(nil)

// BalanceRepo saldos en memoria.
type BalanceRepo struct {
	store *Store
	tx    *staging
}

func (r *BalanceRepo) Get(_ context.Context, key entity.StockKey) (*entity.StockBalance, error) {
	var out entity.StockBalance
	err := r.store.with(r.tx, func(v view) error {
		b, ok := v.balance(key)
		if !ok {
			b = zeroBalance(key, "")
		}
		out = b
		return nil
	})
	return &out, err
}

// GetForUpdate crea la fila si no existe. El bloqueo lo da la serialización de Run.
func (r *BalanceRepo) GetForUpdate(_ context.Context, key entity.StockKey, productID string) (*entity.StockBalance, error) {
	var out entity.StockBalance
	err := r.store.with(r.tx, func(v view) error {
		b, ok := v.balance(key)
		if !ok {
			b = zeroBalance(key, productID)
			v.putBalance(b)
		}
		out = b
		return nil
	})
	return &out, err
}

func (r *BalanceRepo) Save(_ context.Context, balance *entity.StockBalance) error {
	return r.store.with(r.tx, func(v view) error {
		v.putBalance(*balance)
		return nil
	})
}

func zeroBalance(key entity.StockKey, productID string) entity.StockBalance {
	return entity.StockBalance{
		BusinessID:        key.BusinessID,
		ProductID:         productID,
		VariationID:       key.VariationID,
		LocationID:        key.LocationID,
		QuantityAvailable: decimal.Zero,
		AverageUnitCost:   decimal.Zero,
	}
}
