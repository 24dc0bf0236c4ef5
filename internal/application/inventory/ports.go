package inventory

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Commit si fn devuelve nil; Rollback en cualquier otro caso. Garantiza que saldo y ledger
// se escriban juntos o no se escriban.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		balanceRepo repository.StockBalanceRepository,
		ledgerRepo repository.StockTransactionRepository,
		correctionRepo repository.InventoryCorrectionRepository,
	) error) error
}

// Authorizer capacidades del actor (evaluadas por el colaborador de autorización externo).
type Authorizer interface {
	CanMutateStock(actor entity.Actor, locationID string) bool
	CanApproveCorrections(actor entity.Actor) bool
}

// AuditRecorder recibe el registro de cumplimiento de cada aprobación. Best-effort.
type AuditRecorder interface {
	RecordCorrection(ctx context.Context, ev entity.CorrectionAuditEvent) error
}

// Notifier entrega avisos de stock bajo. Best-effort.
type Notifier interface {
	NotifyLowStock(ctx context.Context, alert entity.LowStockAlert) error
}
