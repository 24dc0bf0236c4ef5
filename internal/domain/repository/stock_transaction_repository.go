package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// LedgerSummary agregado del ledger para una llave (verificación de deriva).
type LedgerSummary struct {
	Sum        decimal.Decimal
	EntryCount int64
}

// StockTransactionRepository puerto del ledger append-only: no hay Update ni Delete.
type StockTransactionRepository interface {
	// Append inserta la entrada y asigna ID (si vacío) y Sequence.
	Append(ctx context.Context, tx *entity.StockTransaction) error
	GetByID(ctx context.Context, businessID, id string) (*entity.StockTransaction, error)
	// ListByKey devuelve entradas en orden de escritura (Sequence ascendente).
	ListByKey(ctx context.Context, key entity.StockKey, limit, offset int) ([]*entity.StockTransaction, error)
	ListByReference(ctx context.Context, businessID, referenceType, referenceID string) ([]*entity.StockTransaction, error)
	Summarize(ctx context.Context, key entity.StockKey) (LedgerSummary, error)
}
