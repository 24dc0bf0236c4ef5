package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateCorrectionRequest body para POST /api/corrections.
type CreateCorrectionRequest struct {
	ProductID     string          `json:"product_id"`
	VariationID   string          `json:"variation_id"`
	LocationID    string          `json:"location_id"`
	PhysicalCount decimal.Decimal `json:"physical_count"`
	Reason        string          `json:"reason"`
	Remarks       string          `json:"remarks,omitempty"`
}

// CorrectionResponse corrección de inventario.
type CorrectionResponse struct {
	ID                       string          `json:"id"`
	ProductID                string          `json:"product_id"`
	VariationID              string          `json:"variation_id"`
	LocationID               string          `json:"location_id"`
	SystemCountAtRequestTime decimal.Decimal `json:"system_count_at_request_time"`
	PhysicalCount            decimal.Decimal `json:"physical_count"`
	Difference               decimal.Decimal `json:"difference"`
	Reason                   string          `json:"reason"`
	Remarks                  string          `json:"remarks,omitempty"`
	Status                   string          `json:"status"`
	RequestedBy              string          `json:"requested_by"`
	ApproverID               string          `json:"approver_id,omitempty"`
	ApprovedAt               *time.Time      `json:"approved_at,omitempty"`
	LinkedTransactionID      string          `json:"linked_transaction_id,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
}

// CorrectionListResponse página de correcciones.
type CorrectionListResponse struct {
	Items []CorrectionResponse `json:"items"`
	Page  PageResponse         `json:"page"`
}

// ApprovalResponse resultado de aprobar una corrección.
type ApprovalResponse struct {
	CorrectionID    string          `json:"correction_id"`
	TransactionID   string          `json:"transaction_id"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	Adjustment      decimal.Decimal `json:"adjustment"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	ApprovedAt      time.Time       `json:"approved_at"`
}
