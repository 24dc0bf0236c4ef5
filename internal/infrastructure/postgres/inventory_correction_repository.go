package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.InventoryCorrectionRepository = (*InventoryCorrectionRepo)(nil)

// InventoryCorrectionRepo implementación sobre PostgreSQL (usable con pool o tx).
type InventoryCorrectionRepo struct {
	q Querier
}

// NewInventoryCorrectionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInventoryCorrectionRepository(q Querier) *InventoryCorrectionRepo {
	return &InventoryCorrectionRepo{q: q}
}

const correctionColumns = `id, business_id, location_id, product_id, variation_id, system_count_at_request_time,
	physical_count, difference, reason, remarks, status, requested_by, approver_id, approved_at,
	linked_transaction_id, created_at, updated_at`

// Create persiste una corrección pendiente.
func (r *InventoryCorrectionRepo) Create(ctx context.Context, c *entity.InventoryCorrection) error {
	query := `
		INSERT INTO inventory_corrections (id, business_id, location_id, product_id, variation_id, system_count_at_request_time,
			physical_count, difference, reason, remarks, status, requested_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.BusinessID, c.LocationID, c.ProductID, c.VariationID, c.SystemCountAtRequestTime,
		c.PhysicalCount, c.Difference, c.Reason, c.Remarks, c.Status, c.RequestedBy, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create inventory correction: %w", err)
	}
	return nil
}

// GetByID obtiene una corrección del negocio; nil si no existe.
func (r *InventoryCorrectionRepo) GetByID(ctx context.Context, businessID, id string) (*entity.InventoryCorrection, error) {
	return r.get(ctx, `SELECT `+correctionColumns+` FROM inventory_corrections WHERE business_id = $1 AND id = $2`, businessID, id)
}

// GetForUpdate bloquea la corrección: una segunda aprobación concurrente espera y luego ve "approved".
func (r *InventoryCorrectionRepo) GetForUpdate(ctx context.Context, businessID, id string) (*entity.InventoryCorrection, error) {
	return r.get(ctx, `SELECT `+correctionColumns+` FROM inventory_corrections WHERE business_id = $1 AND id = $2 FOR UPDATE`, businessID, id)
}

// MarkApproved transición condicional pending → approved.
func (r *InventoryCorrectionRepo) MarkApproved(ctx context.Context, c *entity.InventoryCorrection) error {
	query := `
		UPDATE inventory_corrections
		SET status = 'approved', approver_id = $3, approved_at = $4, linked_transaction_id = $5, updated_at = $6
		WHERE business_id = $1 AND id = $2 AND status = 'pending'`
	tag, err := r.q.Exec(ctx, query, c.BusinessID, c.ID, c.ApproverID, c.ApprovedAt, c.LinkedTransactionID, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("approve inventory correction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyApproved
	}
	return nil
}

// ListByStatus lista por estado (vacío = todos), más recientes primero.
func (r *InventoryCorrectionRepo) ListByStatus(ctx context.Context, businessID, status string, limit, offset int) ([]*entity.InventoryCorrection, error) {
	query := `SELECT ` + correctionColumns + `
		FROM inventory_corrections
		WHERE business_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC`
	args := []any{businessID, status}
	if limit > 0 {
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, limit, offset)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inventory corrections: %w", err)
	}
	defer rows.Close()
	var list []*entity.InventoryCorrection
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory correction: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *InventoryCorrectionRepo) get(ctx context.Context, query string, args ...any) (*entity.InventoryCorrection, error) {
	c, err := scanCorrection(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get inventory correction: %w", err)
	}
	return c, nil
}

func scanCorrection(row pgx.Row) (*entity.InventoryCorrection, error) {
	var (
		c                  entity.InventoryCorrection
		approverID, linkTx *string
	)
	if err := row.Scan(
		&c.ID, &c.BusinessID, &c.LocationID, &c.ProductID, &c.VariationID, &c.SystemCountAtRequestTime,
		&c.PhysicalCount, &c.Difference, &c.Reason, &c.Remarks, &c.Status, &c.RequestedBy, &approverID, &c.ApprovedAt,
		&linkTx, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if approverID != nil {
		c.ApproverID = *approverID
	}
	if linkTx != nil {
		c.LinkedTransactionID = *linkTx
	}
	return &c, nil
}
