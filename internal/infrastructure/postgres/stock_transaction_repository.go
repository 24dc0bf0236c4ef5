package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockTransactionRepository = (*StockTransactionRepo)(nil)

// StockTransactionRepo ledger append-only sobre PostgreSQL. La tabla rechaza UPDATE/DELETE por trigger.
type StockTransactionRepo struct {
	q Querier
}

// NewStockTransactionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockTransactionRepository(q Querier) *StockTransactionRepo {
	return &StockTransactionRepo{q: q}
}

const transactionColumns = `id, seq, business_id, location_id, product_id, variation_id, type, signed_quantity,
	resulting_balance, unit_cost, reference_type, reference_id, actor_id, actor_display_name, notes, created_at`

// Append inserta la entrada; seq lo asigna la secuencia de la tabla.
func (r *StockTransactionRepo) Append(ctx context.Context, t *entity.StockTransaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	query := `
		INSERT INTO stock_transactions (id, business_id, location_id, product_id, variation_id, type, signed_quantity,
			resulting_balance, unit_cost, reference_type, reference_id, actor_id, actor_display_name, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING seq`
	err := r.q.QueryRow(ctx, query,
		t.ID, t.BusinessID, t.LocationID, t.ProductID, t.VariationID, string(t.Type), t.SignedQuantity,
		t.ResultingBalance, t.UnitCost, t.ReferenceType, t.ReferenceID, t.ActorID, t.ActorDisplayName, t.Notes, t.CreatedAt,
	).Scan(&t.Sequence)
	if err != nil {
		return fmt.Errorf("append stock transaction: %w", err)
	}
	return nil
}

// GetByID obtiene un asiento por ID dentro del negocio.
func (r *StockTransactionRepo) GetByID(ctx context.Context, businessID, id string) (*entity.StockTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM stock_transactions WHERE business_id = $1 AND id = $2`
	t, err := scanTransaction(r.q.QueryRow(ctx, query, businessID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock transaction: %w", err)
	}
	return t, nil
}

// ListByKey historial en orden de escritura. limit <= 0 devuelve todo.
func (r *StockTransactionRepo) ListByKey(ctx context.Context, key entity.StockKey, limit, offset int) ([]*entity.StockTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM stock_transactions
		WHERE business_id = $1 AND variation_id = $2 AND location_id = $3
		ORDER BY seq ASC`
	args := []any{key.BusinessID, key.VariationID, key.LocationID}
	if limit > 0 {
		query += ` LIMIT $4 OFFSET $5`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` OFFSET $4`
		args = append(args, offset)
	}
	return r.list(ctx, "list by key", query, args...)
}

// ListByReference asientos de un documento de negocio.
func (r *StockTransactionRepo) ListByReference(ctx context.Context, businessID, referenceType, referenceID string) ([]*entity.StockTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM stock_transactions
		WHERE business_id = $1 AND reference_type = $2 AND reference_id = $3
		ORDER BY seq ASC`
	return r.list(ctx, "list by reference", query, businessID, referenceType, referenceID)
}

// Summarize suma de cantidades firmadas y número de asientos para la llave.
func (r *StockTransactionRepo) Summarize(ctx context.Context, key entity.StockKey) (repository.LedgerSummary, error) {
	query := `
		SELECT COALESCE(SUM(signed_quantity), 0), COUNT(*)
		FROM stock_transactions
		WHERE business_id = $1 AND variation_id = $2 AND location_id = $3`
	var s repository.LedgerSummary
	if err := r.q.QueryRow(ctx, query, key.BusinessID, key.VariationID, key.LocationID).Scan(&s.Sum, &s.EntryCount); err != nil {
		return repository.LedgerSummary{}, fmt.Errorf("summarize ledger: %w", err)
	}
	return s, nil
}

func (r *StockTransactionRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.StockTransaction, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var list []*entity.StockTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock transaction: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func scanTransaction(row pgx.Row) (*entity.StockTransaction, error) {
	var (
		t   entity.StockTransaction
		typ string
	)
	if err := row.Scan(
		&t.ID, &t.Sequence, &t.BusinessID, &t.LocationID, &t.ProductID, &t.VariationID, &typ, &t.SignedQuantity,
		&t.ResultingBalance, &t.UnitCost, &t.ReferenceType, &t.ReferenceID, &t.ActorID, &t.ActorDisplayName, &t.Notes, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	t.Type = entity.TransactionType(typ)
	return &t, nil
}
