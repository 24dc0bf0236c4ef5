package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockBalanceRepository = (*StockBalanceRepo)(nil)

// StockBalanceRepo implementación de StockBalanceRepository sobre PostgreSQL (usable con pool o tx).
type StockBalanceRepo struct {
	q Querier
}

// NewStockBalanceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockBalanceRepository(q Querier) *StockBalanceRepo {
	return &StockBalanceRepo{q: q}
}

const selectBalance = `
	SELECT business_id, product_id, variation_id, location_id, quantity_available, average_unit_cost, last_updated_at
	FROM stock_balances WHERE business_id = $1 AND variation_id = $2 AND location_id = $3`

// Get obtiene el saldo actual sin bloquear.
func (r *StockBalanceRepo) Get(ctx context.Context, key entity.StockKey) (*entity.StockBalance, error) {
	b, err := scanBalance(r.q.QueryRow(ctx, selectBalance, key.BusinessID, key.VariationID, key.LocationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &entity.StockBalance{
				BusinessID:        key.BusinessID,
				VariationID:       key.VariationID,
				LocationID:        key.LocationID,
				QuantityAvailable: decimal.Zero,
				AverageUnitCost:   decimal.Zero,
			}, nil
		}
		return nil, fmt.Errorf("get stock balance: %w", err)
	}
	return b, nil
}

// GetForUpdate asegura la fila (INSERT ... ON CONFLICT DO NOTHING) y la bloquea con SELECT FOR UPDATE.
// Sin la fila previa, dos primeras mutaciones concurrentes no tendrían nada que bloquear.
func (r *StockBalanceRepo) GetForUpdate(ctx context.Context, key entity.StockKey, productID string) (*entity.StockBalance, error) {
	ensure := `
		INSERT INTO stock_balances (business_id, product_id, variation_id, location_id, quantity_available, average_unit_cost, last_updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, now())
		ON CONFLICT (business_id, variation_id, location_id) DO NOTHING`
	if _, err := r.q.Exec(ctx, ensure, key.BusinessID, productID, key.VariationID, key.LocationID); err != nil {
		return nil, fmt.Errorf("ensure stock balance: %w", err)
	}
	b, err := scanBalance(r.q.QueryRow(ctx, selectBalance+" FOR UPDATE", key.BusinessID, key.VariationID, key.LocationID))
	if err != nil {
		return nil, fmt.Errorf("get stock balance for update: %w", err)
	}
	return b, nil
}

// Save persiste cantidad, costo y fecha de la fila bloqueada.
func (r *StockBalanceRepo) Save(ctx context.Context, b *entity.StockBalance) error {
	query := `
		UPDATE stock_balances
		SET product_id = $4, quantity_available = $5, average_unit_cost = $6, last_updated_at = $7
		WHERE business_id = $1 AND variation_id = $2 AND location_id = $3`
	tag, err := r.q.Exec(ctx, query,
		b.BusinessID, b.VariationID, b.LocationID, b.ProductID,
		b.QuantityAvailable, b.AverageUnitCost, b.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save stock balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save stock balance: fila %s/%s inexistente", b.VariationID, b.LocationID)
	}
	return nil
}

func scanBalance(row pgx.Row) (*entity.StockBalance, error) {
	var b entity.StockBalance
	if err := row.Scan(
		&b.BusinessID, &b.ProductID, &b.VariationID, &b.LocationID,
		&b.QuantityAvailable, &b.AverageUnitCost, &b.LastUpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}
