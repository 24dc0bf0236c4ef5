package entity

import "time"

// Estados de un reclamo de idempotencia.
const (
	IdempotencyProcessing = "processing"
	IdempotencyCompleted  = "completed"
	IdempotencyFailed     = "failed"
)

// IdempotencyRecord llave de solicitud reclamada. Única por (BusinessID, Key).
type IdempotencyRecord struct {
	ID                  string
	Key                 string
	BusinessID          string
	ActorID             string
	Endpoint            string
	RequestHash         string
	Status              string
	ResponseStatusCode  int
	ResponseContentType string
	ResponseBody        []byte
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ExpiresAt           time.Time
}

// Expired indica si el registro superó su vigencia.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
