package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockBalanceRepository puerto de la proyección de saldos por (variación, ubicación).
// Las escrituras solo ocurren dentro de la transacción del servicio de mutación.
type StockBalanceRepository interface {
	// Get devuelve el saldo actual sin bloquear; si no existe la fila, saldo cero con ProductID vacío y LastUpdatedAt cero.
	Get(ctx context.Context, key entity.StockKey) (*entity.StockBalance, error)
	// GetForUpdate asegura que la fila exista y la bloquea hasta el fin de la transacción (SELECT FOR UPDATE).
	GetForUpdate(ctx context.Context, key entity.StockKey, productID string) (*entity.StockBalance, error)
	// Save persiste cantidad, costo promedio y fecha de una fila previamente bloqueada.
	Save(ctx context.Context, balance *entity.StockBalance) error
}
