package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.IdempotencyRepository = (*IdempotencyRepo)(nil)

// IdempotencyRepo reclamos sobre PostgreSQL. Siempre sobre el pool: el reclamo se confirma
// antes de abrir la transacción de negocio.
type IdempotencyRepo struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository construye el adaptador.
func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Insert reclama la llave; la unicidad (business_id, key) la garantiza el índice.
func (r *IdempotencyRepo) Insert(ctx context.Context, rec *entity.IdempotencyRecord) error {
	query := `
		INSERT INTO idempotency_records (id, key, business_id, actor_id, endpoint, request_hash, status,
			created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Key, rec.BusinessID, rec.ActorID, rec.Endpoint, rec.RequestHash, rec.Status,
		rec.CreatedAt, rec.UpdatedAt, rec.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// Get obtiene el registro de la llave; nil si no existe.
func (r *IdempotencyRepo) Get(ctx context.Context, businessID, key string) (*entity.IdempotencyRecord, error) {
	query := `
		SELECT id, key, business_id, actor_id, endpoint, request_hash, status, response_status_code,
			response_content_type, response_body, created_at, updated_at, expires_at
		FROM idempotency_records WHERE business_id = $1 AND key = $2`
	var rec entity.IdempotencyRecord
	err := r.pool.QueryRow(ctx, query, businessID, key).Scan(
		&rec.ID, &rec.Key, &rec.BusinessID, &rec.ActorID, &rec.Endpoint, &rec.RequestHash, &rec.Status,
		&rec.ResponseStatusCode, &rec.ResponseContentType, &rec.ResponseBody, &rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return &rec, nil
}

// Complete guarda la respuesta serializada y marca completed.
func (r *IdempotencyRepo) Complete(ctx context.Context, id string, statusCode int, contentType string, body []byte, at time.Time) error {
	query := `
		UPDATE idempotency_records
		SET status = 'completed', response_status_code = $2, response_content_type = $3, response_body = $4, updated_at = $5
		WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, statusCode, contentType, body, at); err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	return nil
}

// Fail marca failed para que un reintento pueda volver a reclamar.
func (r *IdempotencyRepo) Fail(ctx context.Context, id string, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE idempotency_records SET status = 'failed', updated_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("fail idempotency record: %w", err)
	}
	return nil
}

// DeleteByID borra por id (no por llave): un reclamo nuevo de otro caller no se toca.
func (r *IdempotencyRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete idempotency record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteExpired purga los registros vencidos.
func (r *IdempotencyRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}
