package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// InventoryCorrectionRepository puerto del flujo de conciliación.
type InventoryCorrectionRepository interface {
	Create(ctx context.Context, c *entity.InventoryCorrection) error
	GetByID(ctx context.Context, businessID, id string) (*entity.InventoryCorrection, error)
	// GetForUpdate bloquea la corrección para que dos aprobaciones concurrentes se serialicen.
	GetForUpdate(ctx context.Context, businessID, id string) (*entity.InventoryCorrection, error)
	// MarkApproved transiciona pending → approved; ErrAlreadyApproved si ya no estaba pendiente.
	MarkApproved(ctx context.Context, c *entity.InventoryCorrection) error
	ListByStatus(ctx context.Context, businessID, status string, limit, offset int) ([]*entity.InventoryCorrection, error)
}
