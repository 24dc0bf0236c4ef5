package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de una corrección de inventario.
const (
	CorrectionStatusPending  = "pending"
	CorrectionStatusApproved = "approved" // terminal
)

// InventoryCorrection solicitud de conciliación contra un conteo físico.
// Pendiente hasta que un aprobador la acepta; la aprobación escribe exactamente un asiento "correction".
type InventoryCorrection struct {
	ID                       string
	BusinessID               string
	LocationID               string
	ProductID                string
	VariationID              string
	SystemCountAtRequestTime decimal.Decimal
	PhysicalCount            decimal.Decimal
	Difference               decimal.Decimal // PhysicalCount - SystemCountAtRequestTime (informativo)
	Reason                   string
	Remarks                  string
	Status                   string
	RequestedBy              string
	ApproverID               string
	ApprovedAt               *time.Time
	LinkedTransactionID      string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// IsPending indica si aún puede aprobarse.
func (c *InventoryCorrection) IsPending() bool {
	return c.Status == CorrectionStatusPending
}

// Key devuelve la llave de saldo que concilia.
func (c *InventoryCorrection) Key() StockKey {
	return StockKey{BusinessID: c.BusinessID, VariationID: c.VariationID, LocationID: c.LocationID}
}
