// Package audit entrega los eventos de cumplimiento y los avisos de stock bajo al log estructurado.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

var (
	_ inventory.AuditRecorder = (*LogRecorder)(nil)
	_ inventory.Notifier      = (*LogRecorder)(nil)
)

// LogRecorder escribe cada evento como una línea JSON con channel=audit o channel=alert.
type LogRecorder struct {
	log zerolog.Logger
}

// NewLogRecorder construye el recorder sobre el logger de la aplicación.
func NewLogRecorder(log zerolog.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

func (r *LogRecorder) RecordCorrection(_ context.Context, ev entity.CorrectionAuditEvent) error {
	r.log.Info().
		Str("channel", "audit").
		Str("correction_id", ev.CorrectionID).
		Str("business_id", ev.BusinessID).
		Str("product_id", ev.ProductID).
		Str("variation_id", ev.VariationID).
		Str("location_id", ev.LocationID).
		Str("before_qty", ev.BeforeQty.String()).
		Str("after_qty", ev.AfterQty.String()).
		Str("difference", ev.Difference.String()).
		Str("approver_id", ev.ApproverID).
		Str("approver_name", ev.ApproverName).
		Str("transaction_id", ev.TransactionID).
		Time("approved_at", ev.Timestamp).
		Msg("ajuste de inventario aprobado")
	return nil
}

func (r *LogRecorder) NotifyLowStock(_ context.Context, alert entity.LowStockAlert) error {
	r.log.Warn().
		Str("channel", "alert").
		Str("business_id", alert.BusinessID).
		Str("product_id", alert.ProductID).
		Str("variation_id", alert.VariationID).
		Str("location_id", alert.LocationID).
		Str("balance", alert.Balance.String()).
		Str("threshold", alert.Threshold.String()).
		Msg("stock bajo")
	return nil
}
