package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockKey identifica una fila de saldo: variación de producto en una ubicación de un negocio.
type StockKey struct {
	BusinessID  string
	VariationID string
	LocationID  string
}

// StockBalance es la proyección materializada del ledger por (variación, ubicación).
// Solo el servicio de mutación la escribe; QuantityAvailable = suma de SignedQuantity del ledger.
type StockBalance struct {
	BusinessID        string
	ProductID         string
	VariationID       string
	LocationID        string
	QuantityAvailable decimal.Decimal
	AverageUnitCost   decimal.Decimal // costo promedio ponderado de las entradas con costo
	LastUpdatedAt     time.Time
}

// Key devuelve la llave de la fila.
func (b *StockBalance) Key() StockKey {
	return StockKey{BusinessID: b.BusinessID, VariationID: b.VariationID, LocationID: b.LocationID}
}
