package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// MutationRequest body para POST /api/stock/mutations. quantity lleva signo (negativo = salida).
type MutationRequest struct {
	ProductID     string           `json:"product_id"`
	VariationID   string           `json:"variation_id"`
	LocationID    string           `json:"location_id"`
	Type          string           `json:"type"`
	Quantity      decimal.Decimal  `json:"quantity"`
	UnitCost      *decimal.Decimal `json:"unit_cost,omitempty"`
	ReferenceType string           `json:"reference_type,omitempty"`
	ReferenceID   string           `json:"reference_id,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	AllowNegative bool             `json:"allow_negative,omitempty"`
}

// MutationResponse saldo resultante de una mutación.
type MutationResponse struct {
	TransactionID   string          `json:"transaction_id"`
	Sequence        int64           `json:"sequence"`
	ProductID       string          `json:"product_id"`
	VariationID     string          `json:"variation_id"`
	LocationID      string          `json:"location_id"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TransferRequest body para POST /api/stock/transfers. quantity es positiva.
type TransferRequest struct {
	ProductID      string          `json:"product_id"`
	VariationID    string          `json:"variation_id"`
	FromLocationID string          `json:"from_location_id"`
	ToLocationID   string          `json:"to_location_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	ReferenceType  string          `json:"reference_type,omitempty"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// TransferResponse asientos de salida y entrada.
type TransferResponse struct {
	Out MutationResponse `json:"out"`
	In  MutationResponse `json:"in"`
}

// BalanceResponse saldo de una variación en una ubicación.
type BalanceResponse struct {
	ProductID         string          `json:"product_id,omitempty"`
	VariationID       string          `json:"variation_id"`
	LocationID        string          `json:"location_id"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
	AverageUnitCost   decimal.Decimal `json:"average_unit_cost"`
	LastUpdatedAt     *time.Time      `json:"last_updated_at,omitempty"`
}

// AvailabilityResponse resultado de GET /api/stock/availability.
type AvailabilityResponse struct {
	Available    bool            `json:"available"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	Required     decimal.Decimal `json:"required"`
	Shortage     decimal.Decimal `json:"shortage"`
}

// TransactionDTO asiento del ledger.
type TransactionDTO struct {
	ID               string           `json:"id"`
	Sequence         int64            `json:"sequence"`
	ProductID        string           `json:"product_id"`
	VariationID      string           `json:"variation_id"`
	LocationID       string           `json:"location_id"`
	Type             string           `json:"type"`
	SignedQuantity   decimal.Decimal  `json:"signed_quantity"`
	ResultingBalance decimal.Decimal  `json:"resulting_balance"`
	UnitCost         *decimal.Decimal `json:"unit_cost,omitempty"`
	ReferenceType    string           `json:"reference_type,omitempty"`
	ReferenceID      string           `json:"reference_id,omitempty"`
	ActorID          string           `json:"actor_id"`
	ActorDisplayName string           `json:"actor_display_name,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// TransactionListResponse página del historial.
type TransactionListResponse struct {
	Items []TransactionDTO `json:"items"`
	Page  PageResponse     `json:"page"`
}

// ChainBreakDTO primer asiento cuyo resulting_balance no coincide con la suma acumulada.
type ChainBreakDTO struct {
	TransactionID string          `json:"transaction_id"`
	Expected      decimal.Decimal `json:"expected"`
	Recorded      decimal.Decimal `json:"recorded"`
}

// VerificationResponse comparación saldo vs ledger.
type VerificationResponse struct {
	VariationID string          `json:"variation_id"`
	LocationID  string          `json:"location_id"`
	Balance     decimal.Decimal `json:"balance"`
	LedgerSum   decimal.Decimal `json:"ledger_sum"`
	EntryCount  int64           `json:"entry_count"`
	Consistent  bool            `json:"consistent"`
	ChainBreak  *ChainBreakDTO  `json:"chain_break,omitempty"`
}

// InsufficientStockResponse cuerpo del 409 con el detalle del faltante.
type InsufficientStockResponse struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Current   decimal.Decimal `json:"current"`
	Requested decimal.Decimal `json:"requested"`
	Shortage  decimal.Decimal `json:"shortage"`
}
