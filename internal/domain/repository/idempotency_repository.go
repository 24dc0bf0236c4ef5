package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// IdempotencyRepository puerto de reclamos de idempotencia. Cada operación es atómica por sí sola
// (fuera de la transacción de negocio): el reclamo debe ser visible para otros antes del efecto.
type IdempotencyRepository interface {
	// Insert reclama la llave; devuelve domain.ErrDuplicate si (BusinessID, Key) ya existe.
	Insert(ctx context.Context, rec *entity.IdempotencyRecord) error
	Get(ctx context.Context, businessID, key string) (*entity.IdempotencyRecord, error)
	Complete(ctx context.Context, id string, statusCode int, contentType string, body []byte, at time.Time) error
	Fail(ctx context.Context, id string, at time.Time) error
	// DeleteByID borra solo el registro observado (no uno reclamado después por otro); false si ya no existía.
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
