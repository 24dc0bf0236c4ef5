package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// AmountScale decimales que conservan las columnas NUMERIC(20,4).
const AmountScale = 4

// maxAmount primer valor que no cabe en NUMERIC(20,4).
var maxAmount = decimal.New(1, 16)

// ValidateAmount rechaza cantidades o costos que el almacenamiento no representa
// exactamente: más de AmountScale decimales o magnitud fuera de NUMERIC(20,4).
func ValidateAmount(v decimal.Decimal) error {
	if !v.Equal(v.Truncate(AmountScale)) || v.Abs().GreaterThanOrEqual(maxAmount) {
		return domain.ErrInvalidInput
	}
	return nil
}

// ApplyDelta calcula el nuevo saldo. Sin allowNegative, un resultado negativo se rechaza
// con *domain.InsufficientStockError (nunca se recorta a cero).
func ApplyDelta(current, delta decimal.Decimal, allowNegative bool) (decimal.Decimal, error) {
	next := current.Add(delta)
	if next.IsNegative() && !allowNegative {
		requested := delta.Neg()
		return current, &domain.InsufficientStockError{
			Current:   current,
			Requested: requested,
			Shortage:  next.Neg(),
		}
	}
	return next, nil
}

// ValidateSign verifica que el signo de la cantidad corresponda al tipo de movimiento.
// Cero nunca es válido.
func ValidateSign(t entity.TransactionType, qty decimal.Decimal) error {
	if qty.IsZero() || !t.Valid() {
		return domain.ErrInvalidInput
	}
	switch t {
	case entity.TransactionPurchaseReceipt, entity.TransactionSaleVoid, entity.TransactionTransferIn, entity.TransactionOpening:
		if qty.IsNegative() {
			return domain.ErrInvalidInput
		}
	case entity.TransactionSale, entity.TransactionTransferOut, entity.TransactionReplacementIssuance:
		if qty.IsPositive() {
			return domain.ErrInvalidInput
		}
	}
	return nil
}

// Availability resultado de consultar si alcanza el stock.
type Availability struct {
	Available    bool
	CurrentStock decimal.Decimal
	Shortage     decimal.Decimal
}

// CheckAvailability compara el saldo con lo requerido (lectura, sin efectos).
func CheckAvailability(current, required decimal.Decimal) Availability {
	if current.GreaterThanOrEqual(required) {
		return Availability{Available: true, CurrentStock: current, Shortage: decimal.Zero}
	}
	return Availability{Available: false, CurrentStock: current, Shortage: required.Sub(current)}
}

// ChainBreak posición donde ResultingBalance no coincide con la suma acumulada.
type ChainBreak struct {
	TransactionID string
	Expected      decimal.Decimal
	Recorded      decimal.Decimal
}

// ReplayRunningBalance recorre las entradas en orden de escritura y devuelve la suma final
// y el primer quiebre de la cadena de saldos resultantes (nil si es consistente).
func ReplayRunningBalance(entries []*entity.StockTransaction) (decimal.Decimal, *ChainBreak) {
	sum := decimal.Zero
	var brk *ChainBreak
	for _, e := range entries {
		sum = sum.Add(e.SignedQuantity)
		if brk == nil && !sum.Equal(e.ResultingBalance) {
			brk = &ChainBreak{TransactionID: e.ID, Expected: sum, Recorded: e.ResultingBalance}
		}
	}
	return sum, brk
}
