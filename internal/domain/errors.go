package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Errores de dominio (sin dependencias de infraestructura).
var (
	ErrNotFound            = errors.New("recurso no encontrado")
	ErrInvalidInput        = errors.New("entrada inválida")
	ErrDuplicate           = errors.New("recurso duplicado")
	ErrUnauthorized        = errors.New("no autorizado")
	ErrForbidden           = errors.New("acceso denegado")
	ErrConflict            = errors.New("conflicto con el estado actual")
	ErrInsufficientStock   = errors.New("stock insuficiente")
	ErrAlreadyApproved     = errors.New("la corrección ya fue aprobada")
	ErrConcurrentRequest   = errors.New("solicitud en curso con la misma llave de idempotencia")
	ErrIdempotencyKeyReuse = errors.New("llave de idempotencia reutilizada con otra solicitud")
	ErrTransactionFailure  = errors.New("fallo de transacción en base de datos")

	// ErrStaleClaimRecovered es interno: nunca llega al cliente, solo se registra en logs.
	ErrStaleClaimRecovered = errors.New("reclamo de idempotencia abandonado recuperado")
)

// InsufficientStockError detalla el faltante de una mutación rechazada.
// errors.Is(err, ErrInsufficientStock) es verdadero.
type InsufficientStockError struct {
	Current   decimal.Decimal
	Requested decimal.Decimal
	Shortage  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: disponible %s, solicitado %s, faltante %s",
		ErrInsufficientStock.Error(), e.Current, e.Requested, e.Shortage)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ConcurrentRequestError indica que otra llamada tiene reclamada la llave; el cliente debe reintentar luego.
type ConcurrentRequestError struct {
	RetryAfter time.Duration
}

func (e *ConcurrentRequestError) Error() string {
	return fmt.Sprintf("%s (reintentar en %s)", ErrConcurrentRequest.Error(), e.RetryAfter)
}

func (e *ConcurrentRequestError) Is(target error) bool { return target == ErrConcurrentRequest }

// TransactionFailure marca un error de BD ocurrido dentro de la unidad atómica.
// Nada quedó confirmado: el reintento con la misma llave es seguro.
func TransactionFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransactionFailure, err)
}

// IsBusinessError indica si err es una regla de negocio (no un fallo de infraestructura).
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidInput, ErrDuplicate, ErrUnauthorized, ErrForbidden, ErrConflict,
		ErrInsufficientStock, ErrAlreadyApproved, ErrConcurrentRequest, ErrIdempotencyKeyReuse,
		ErrTransactionFailure,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
