package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.InventoryCorrectionRepository = (*CorrectionRepo)(nil)

// CorrectionRepo correcciones sobre SQLite.
type CorrectionRepo struct {
	q     dbtx
	store *Store
}

const correctionColumns = `id, business_id, location_id, product_id, variation_id, system_count_at_request_time,
	physical_count, difference, reason, remarks, status, requested_by, approver_id, approved_at,
	linked_transaction_id, created_at, updated_at`

func (r *CorrectionRepo) Create(ctx context.Context, c *entity.InventoryCorrection) error {
	return write(r.store, func() error {
		query := `
			INSERT INTO inventory_corrections (id, business_id, location_id, product_id, variation_id,
				system_count_at_request_time, physical_count, difference, reason, remarks, status, requested_by,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := r.q.ExecContext(ctx, query,
			c.ID, c.BusinessID, c.LocationID, c.ProductID, c.VariationID,
			c.SystemCountAtRequestTime.String(), c.PhysicalCount.String(), c.Difference.String(),
			c.Reason, c.Remarks, c.Status, c.RequestedBy, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicate
			}
			return fmt.Errorf("create inventory correction: %w", err)
		}
		return nil
	})
}

func (r *CorrectionRepo) GetByID(ctx context.Context, businessID, id string) (*entity.InventoryCorrection, error) {
	var c *entity.InventoryCorrection
	err := read(r.store, func() error {
		row := r.q.QueryRowContext(ctx, `SELECT `+correctionColumns+` FROM inventory_corrections WHERE business_id = ? AND id = ?`, businessID, id)
		var err error
		c, err = scanCorrection(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory correction: %w", err)
	}
	return c, nil
}

// GetForUpdate dentro de la transacción inmediata ya no hay otro escritor.
func (r *CorrectionRepo) GetForUpdate(ctx context.Context, businessID, id string) (*entity.InventoryCorrection, error) {
	return r.GetByID(ctx, businessID, id)
}

func (r *CorrectionRepo) MarkApproved(ctx context.Context, c *entity.InventoryCorrection) error {
	return write(r.store, func() error {
		query := `
			UPDATE inventory_corrections
			SET status = 'approved', approver_id = ?, approved_at = ?, linked_transaction_id = ?, updated_at = ?
			WHERE business_id = ? AND id = ? AND status = 'pending'`
		res, err := r.q.ExecContext(ctx, query,
			nullString(c.ApproverID), nullTime(c.ApprovedAt), nullString(c.LinkedTransactionID), formatTime(c.UpdatedAt),
			c.BusinessID, c.ID,
		)
		if err != nil {
			return fmt.Errorf("approve inventory correction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrAlreadyApproved
		}
		return nil
	})
}

func (r *CorrectionRepo) ListByStatus(ctx context.Context, businessID, status string, limit, offset int) ([]*entity.InventoryCorrection, error) {
	query := `SELECT ` + correctionColumns + `
		FROM inventory_corrections
		WHERE business_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	var list []*entity.InventoryCorrection
	err := read(r.store, func() error {
		rows, err := r.q.QueryContext(ctx, query, businessID, status, status, limitArg(limit), offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCorrection(rows)
			if err != nil {
				return err
			}
			list = append(list, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list inventory corrections: %w", err)
	}
	return list, nil
}

func scanCorrection(row scanner) (*entity.InventoryCorrection, error) {
	var (
		c                                entity.InventoryCorrection
		approverID, approvedAt, linkedTx sql.NullString
		createdAt, updatedAt             string
	)
	if err := row.Scan(
		&c.ID, &c.BusinessID, &c.LocationID, &c.ProductID, &c.VariationID, &c.SystemCountAtRequestTime,
		&c.PhysicalCount, &c.Difference, &c.Reason, &c.Remarks, &c.Status, &c.RequestedBy, &approverID, &approvedAt,
		&linkedTx, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	c.ApproverID = approverID.String
	c.LinkedTransactionID = linkedTx.String
	if approvedAt.Valid {
		t, err := parseTime(approvedAt.String)
		if err != nil {
			return nil, err
		}
		c.ApprovedAt = &t
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
