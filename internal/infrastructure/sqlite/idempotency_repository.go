package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.IdempotencyRepository = (*IdempotencyRepo)(nil)

// IdempotencyRepo reclamos sobre SQLite; la unicidad (business_id, key) la da el índice UNIQUE.
type IdempotencyRepo struct {
	q     dbtx
	store *Store
}

func (r *IdempotencyRepo) Insert(ctx context.Context, rec *entity.IdempotencyRecord) error {
	return write(r.store, func() error {
		query := `
			INSERT INTO idempotency_records (id, key, business_id, actor_id, endpoint, request_hash, status,
				created_at, updated_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := r.q.ExecContext(ctx, query,
			rec.ID, rec.Key, rec.BusinessID, rec.ActorID, rec.Endpoint, rec.RequestHash, rec.Status,
			formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), formatTime(rec.ExpiresAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicate
			}
			return fmt.Errorf("insert idempotency record: %w", err)
		}
		return nil
	})
}

func (r *IdempotencyRepo) Get(ctx context.Context, businessID, key string) (*entity.IdempotencyRecord, error) {
	var (
		rec                             entity.IdempotencyRecord
		createdAt, updatedAt, expiresAt string
	)
	err := read(r.store, func() error {
		query := `
			SELECT id, key, business_id, actor_id, endpoint, request_hash, status, response_status_code,
				response_content_type, response_body, created_at, updated_at, expires_at
			FROM idempotency_records WHERE business_id = ? AND key = ?`
		return r.q.QueryRowContext(ctx, query, businessID, key).Scan(
			&rec.ID, &rec.Key, &rec.BusinessID, &rec.ActorID, &rec.Endpoint, &rec.RequestHash, &rec.Status,
			&rec.ResponseStatusCode, &rec.ResponseContentType, &rec.ResponseBody, &createdAt, &updatedAt, &expiresAt,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&rec.CreatedAt, createdAt}, {&rec.UpdatedAt, updatedAt}, {&rec.ExpiresAt, expiresAt}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return nil, fmt.Errorf("get idempotency record: %w", err)
		}
	}
	return &rec, nil
}

func (r *IdempotencyRepo) Complete(ctx context.Context, id string, statusCode int, contentType string, body []byte, at time.Time) error {
	return r.exec(ctx, "complete idempotency record", `
		UPDATE idempotency_records
		SET status = 'completed', response_status_code = ?, response_content_type = ?, response_body = ?, updated_at = ?
		WHERE id = ?`, statusCode, contentType, body, formatTime(at), id)
}

func (r *IdempotencyRepo) Fail(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "fail idempotency record",
		`UPDATE idempotency_records SET status = 'failed', updated_at = ? WHERE id = ?`, formatTime(at), id)
}

func (r *IdempotencyRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	var n int64
	err := write(r.store, func() error {
		res, err := r.q.ExecContext(ctx, `DELETE FROM idempotency_records WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete idempotency record: %w", err)
	}
	return n > 0, nil
}

func (r *IdempotencyRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := write(r.store, func() error {
		res, err := r.q.ExecContext(ctx, `DELETE FROM idempotency_records WHERE expires_at <= ?`, formatTime(now))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return n, nil
}

func (r *IdempotencyRepo) exec(ctx context.Context, op, query string, args ...any) error {
	return write(r.store, func() error {
		if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
}
