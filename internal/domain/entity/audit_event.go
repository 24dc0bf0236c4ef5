package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CorrectionAuditEvent registro de cumplimiento emitido tras aprobar una corrección.
type CorrectionAuditEvent struct {
	CorrectionID  string          `json:"correction_id"`
	BusinessID    string          `json:"business_id"`
	ProductID     string          `json:"product_id"`
	VariationID   string          `json:"variation_id"`
	LocationID    string          `json:"location_id"`
	BeforeQty     decimal.Decimal `json:"before_qty"`
	AfterQty      decimal.Decimal `json:"after_qty"`
	Difference    decimal.Decimal `json:"difference"`
	ApproverID    string          `json:"approver_id"`
	ApproverName  string          `json:"approver_name"`
	TransactionID string          `json:"transaction_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

// LowStockAlert aviso de saldo que cruzó el umbral configurado.
type LowStockAlert struct {
	BusinessID  string          `json:"business_id"`
	ProductID   string          `json:"product_id"`
	VariationID string          `json:"variation_id"`
	LocationID  string          `json:"location_id"`
	Balance     decimal.Decimal `json:"balance"`
	Threshold   decimal.Decimal `json:"threshold"`
}
