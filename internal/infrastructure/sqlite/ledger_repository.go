package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockTransactionRepository = (*LedgerRepo)(nil)

// LedgerRepo ledger append-only sobre SQLite (triggers rechazan UPDATE/DELETE).
type LedgerRepo struct {
	q     dbtx
	store *Store
}

const transactionColumns = `seq, id, business_id, location_id, product_id, variation_id, type, signed_quantity,
	resulting_balance, unit_cost, reference_type, reference_id, actor_id, actor_display_name, notes, created_at`

func (r *LedgerRepo) Append(ctx context.Context, t *entity.StockTransaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	var unitCost any
	if t.UnitCost != nil {
		unitCost = t.UnitCost.String()
	}
	return write(r.store, func() error {
		query := `
			INSERT INTO stock_transactions (id, business_id, location_id, product_id, variation_id, type, signed_quantity,
				resulting_balance, unit_cost, reference_type, reference_id, actor_id, actor_display_name, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := r.q.ExecContext(ctx, query,
			t.ID, t.BusinessID, t.LocationID, t.ProductID, t.VariationID, string(t.Type), t.SignedQuantity.String(),
			t.ResultingBalance.String(), unitCost, t.ReferenceType, t.ReferenceID, t.ActorID, t.ActorDisplayName, t.Notes,
			formatTime(t.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append stock transaction: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("append stock transaction: %w", err)
		}
		t.Sequence = seq
		return nil
	})
}

func (r *LedgerRepo) GetByID(ctx context.Context, businessID, id string) (*entity.StockTransaction, error) {
	var t *entity.StockTransaction
	err := read(r.store, func() error {
		row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM stock_transactions WHERE business_id = ? AND id = ?`, businessID, id)
		var err error
		t, err = scanTransaction(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stock transaction: %w", err)
	}
	return t, nil
}

func (r *LedgerRepo) ListByKey(ctx context.Context, key entity.StockKey, limit, offset int) ([]*entity.StockTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM stock_transactions
		WHERE business_id = ? AND variation_id = ? AND location_id = ?
		ORDER BY seq ASC LIMIT ? OFFSET ?`
	return r.list(ctx, "list by key", query, key.BusinessID, key.VariationID, key.LocationID, limitArg(limit), offset)
}

func (r *LedgerRepo) ListByReference(ctx context.Context, businessID, referenceType, referenceID string) ([]*entity.StockTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM stock_transactions
		WHERE business_id = ? AND reference_type = ? AND reference_id = ?
		ORDER BY seq ASC`
	return r.list(ctx, "list by reference", query, businessID, referenceType, referenceID)
}

// Summarize suma en Go: SUM() de SQLite operaría en coma flotante sobre el TEXT.
func (r *LedgerRepo) Summarize(ctx context.Context, key entity.StockKey) (repository.LedgerSummary, error) {
	sum := repository.LedgerSummary{Sum: decimal.Zero}
	err := read(r.store, func() error {
		rows, err := r.q.QueryContext(ctx, `
			SELECT signed_quantity FROM stock_transactions
			WHERE business_id = ? AND variation_id = ? AND location_id = ?`,
			key.BusinessID, key.VariationID, key.LocationID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var q decimal.Decimal
			if err := rows.Scan(&q); err != nil {
				return err
			}
			sum.Sum = sum.Sum.Add(q)
			sum.EntryCount++
		}
		return rows.Err()
	})
	if err != nil {
		return repository.LedgerSummary{}, fmt.Errorf("summarize ledger: %w", err)
	}
	return sum, nil
}

func (r *LedgerRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.StockTransaction, error) {
	var list []*entity.StockTransaction
	err := read(r.store, func() error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTransaction(rows)
			if err != nil {
				return err
			}
			list = append(list, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*entity.StockTransaction, error) {
	var (
		t         entity.StockTransaction
		typ       string
		unitCost  decimal.NullDecimal
		createdAt string
	)
	if err := row.Scan(
		&t.Sequence, &t.ID, &t.BusinessID, &t.LocationID, &t.ProductID, &t.VariationID, &typ, &t.SignedQuantity,
		&t.ResultingBalance, &unitCost, &t.ReferenceType, &t.ReferenceID, &t.ActorID, &t.ActorDisplayName, &t.Notes, &createdAt,
	); err != nil {
		return nil, err
	}
	t.Type = entity.TransactionType(typ)
	if unitCost.Valid {
		c := unitCost.Decimal
		t.UnitCost = &c
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = ts
	return &t, nil
}
