package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.IdempotencyRepository = (*IdempotencyRepo)(nil)

type idemKey struct {
	businessID string
	key        string
}

// IdempotencyRepo reclamos en memoria; cada operación es atómica bajo su propio mutex.
type IdempotencyRepo struct {
	mu      sync.Mutex
	records map[idemKey]entity.IdempotencyRecord
}

// NewIdempotencyRepo crea el repositorio vacío.
func NewIdempotencyRepo() *IdempotencyRepo {
	return &IdempotencyRepo{records: make(map[idemKey]entity.IdempotencyRecord)}
}

func (r *IdempotencyRepo) Insert(_ context.Context, rec *entity.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := idemKey{rec.BusinessID, rec.Key}
	if _, ok := r.records[k]; ok {
		return domain.ErrDuplicate
	}
	r.records[k] = *rec
	return nil
}

func (r *IdempotencyRepo) Get(_ context.Context, businessID, key string) (*entity.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[idemKey{businessID, key}]
	if !ok {
		return nil, nil
	}
	rec.ResponseBody = append([]byte(nil), rec.ResponseBody...)
	return &rec, nil
}

func (r *IdempotencyRepo) Complete(_ context.Context, id string, statusCode int, contentType string, body []byte, at time.Time) error {
	return r.update(id, func(rec *entity.IdempotencyRecord) {
		rec.Status = entity.IdempotencyCompleted
		rec.ResponseStatusCode = statusCode
		rec.ResponseContentType = contentType
		rec.ResponseBody = append([]byte(nil), body...)
		rec.UpdatedAt = at
	})
}

func (r *IdempotencyRepo) Fail(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(rec *entity.IdempotencyRecord) {
		rec.Status = entity.IdempotencyFailed
		rec.UpdatedAt = at
	})
}

func (r *IdempotencyRepo) DeleteByID(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, rec := range r.records {
		if rec.ID == id {
			delete(r.records, k)
			return true, nil
		}
	}
	return false, nil
}

func (r *IdempotencyRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, rec := range r.records {
		if rec.Expired(now) {
			delete(r.records, k)
			n++
		}
	}
	return n, nil
}

// Put inserta o reemplaza un registro tal cual (siembra de estados en tests y migraciones).
func (r *IdempotencyRepo) Put(rec entity.IdempotencyRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[idemKey{rec.BusinessID, rec.Key}] = rec
}

func (r *IdempotencyRepo) update(id string, fn func(rec *entity.IdempotencyRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, rec := range r.records {
		if rec.ID == id {
			fn(&rec)
			r.records[k] = rec
			return nil
		}
	}
	return domain.ErrNotFound
}
