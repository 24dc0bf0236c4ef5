package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockBalanceRepository = (*BalanceRepo)(nil)

// BalanceRepo saldos sobre SQLite; store es nil cuando el repo está atado a una transacción.
type BalanceRepo struct {
	q     dbtx
	store *Store
}

const selectBalance = `
	SELECT business_id, product_id, variation_id, location_id, quantity_available, average_unit_cost, last_updated_at
	FROM stock_balances WHERE business_id = ? AND variation_id = ? AND location_id = ?`

func (r *BalanceRepo) Get(ctx context.Context, key entity.StockKey) (*entity.StockBalance, error) {
	var b *entity.StockBalance
	err := read(r.store, func() error {
		var err error
		b, err = scanBalance(r.q.QueryRowContext(ctx, selectBalance, key.BusinessID, key.VariationID, key.LocationID))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return &entity.StockBalance{
			BusinessID:        key.BusinessID,
			VariationID:       key.VariationID,
			LocationID:        key.LocationID,
			QuantityAvailable: decimal.Zero,
			AverageUnitCost:   decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stock balance: %w", err)
	}
	return b, nil
}

// GetForUpdate asegura la fila. El bloqueo lo da BEGIN IMMEDIATE de la transacción.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, key entity.StockKey, productID string) (*entity.StockBalance, error) {
	var b *entity.StockBalance
	err := write(r.store, func() error {
		ensure := `
			INSERT OR IGNORE INTO stock_balances
			(business_id, product_id, variation_id, location_id, quantity_available, average_unit_cost, last_updated_at)
			VALUES (?, ?, ?, ?, '0', '0', ?)`
		if _, err := r.q.ExecContext(ctx, ensure, key.BusinessID, productID, key.VariationID, key.LocationID, formatTime(time.Now())); err != nil {
			return err
		}
		var err error
		b, err = scanBalance(r.q.QueryRowContext(ctx, selectBalance, key.BusinessID, key.VariationID, key.LocationID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get stock balance for update: %w", err)
	}
	return b, nil
}

func (r *BalanceRepo) Save(ctx context.Context, b *entity.StockBalance) error {
	return write(r.store, func() error {
		query := `
			UPDATE stock_balances
			SET product_id = ?, quantity_available = ?, average_unit_cost = ?, last_updated_at = ?
			WHERE business_id = ? AND variation_id = ? AND location_id = ?`
		res, err := r.q.ExecContext(ctx, query,
			b.ProductID, b.QuantityAvailable.String(), b.AverageUnitCost.String(), formatTime(b.LastUpdatedAt),
			b.BusinessID, b.VariationID, b.LocationID,
		)
		if err != nil {
			return fmt.Errorf("save stock balance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("save stock balance: fila %s/%s inexistente", b.VariationID, b.LocationID)
		}
		return nil
	})
}

func scanBalance(row *sql.Row) (*entity.StockBalance, error) {
	var (
		b         entity.StockBalance
		updatedAt string
	)
	if err := row.Scan(
		&b.BusinessID, &b.ProductID, &b.VariationID, &b.LocationID,
		&b.QuantityAvailable, &b.AverageUnitCost, &updatedAt,
	); err != nil {
		return nil, err
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	b.LastUpdatedAt = t
	return &b, nil
}
