package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType causa de un movimiento del ledger.
type TransactionType string

const (
	TransactionOpening             TransactionType = "opening"
	TransactionPurchaseReceipt     TransactionType = "purchase_receipt"
	TransactionSale                TransactionType = "sale"
	TransactionSaleVoid            TransactionType = "sale_void"
	TransactionTransferOut         TransactionType = "transfer_out"
	TransactionTransferIn          TransactionType = "transfer_in"
	TransactionCorrection          TransactionType = "correction"
	TransactionReplacementIssuance TransactionType = "replacement_issuance"
)

// Valid indica si el tipo es uno de los conocidos.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionOpening, TransactionPurchaseReceipt, TransactionSale, TransactionSaleVoid,
		TransactionTransferOut, TransactionTransferIn, TransactionCorrection, TransactionReplacementIssuance:
		return true
	}
	return false
}

// Reference documento de negocio que originó el movimiento (venta, compra, traslado...).
type Reference struct {
	Type string
	ID   string
}

// StockTransaction es una entrada inmutable del ledger. Nunca se actualiza ni se borra:
// las correcciones son asientos compensatorios.
type StockTransaction struct {
	ID               string
	Sequence         int64 // orden total de escritura, asignado por el almacenamiento
	BusinessID       string
	LocationID       string
	ProductID        string
	VariationID      string
	Type             TransactionType
	SignedQuantity   decimal.Decimal
	ResultingBalance decimal.Decimal
	UnitCost         *decimal.Decimal
	ReferenceType    string
	ReferenceID      string
	ActorID          string
	ActorDisplayName string
	Notes            string
	CreatedAt        time.Time
}

// Key devuelve la llave de saldo a la que pertenece la entrada.
func (t *StockTransaction) Key() StockKey {
	return StockKey{BusinessID: t.BusinessID, VariationID: t.VariationID, LocationID: t.LocationID}
}
