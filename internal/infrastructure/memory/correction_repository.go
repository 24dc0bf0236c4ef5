package memory

import (
	"context"
	"sort"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.InventoryCorrectionRepository = (*CorrectionRepo)(nil)

// CorrectionRepo correcciones en memoria.
type CorrectionRepo struct {
	store *Store
	tx    *staging
}

func (r *CorrectionRepo) Create(_ context.Context, c *entity.InventoryCorrection) error {
	return r.store.with(r.tx, func(v view) error {
		if _, ok := v.correction(c.ID); ok {
			return domain.ErrDuplicate
		}
		v.putCorrection(*c)
		return nil
	})
}

func (r *CorrectionRepo) GetByID(_ context.Context, businessID, id string) (*entity.InventoryCorrection, error) {
	var out *entity.InventoryCorrection
	err := r.store.with(r.tx, func(v view) error {
		if c, ok := v.correction(id); ok && c.BusinessID == businessID {
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *CorrectionRepo) GetForUpdate(ctx context.Context, businessID, id string) (*entity.InventoryCorrection, error) {
	return r.GetByID(ctx, businessID, id)
}

func (r *CorrectionRepo) MarkApproved(_ context.Context, c *entity.InventoryCorrection) error {
	return r.store.with(r.tx, func(v view) error {
		cur, ok := v.correction(c.ID)
		if !ok {
			return domain.ErrNotFound
		}
		if cur.Status != entity.CorrectionStatusPending {
			return domain.ErrAlreadyApproved
		}
		v.putCorrection(*c)
		return nil
	})
}

func (r *CorrectionRepo) ListByStatus(_ context.Context, businessID, status string, limit, offset int) ([]*entity.InventoryCorrection, error) {
	var all []*entity.InventoryCorrection
	err := r.store.with(r.tx, func(v view) error {
		v.eachCorrection(func(c entity.InventoryCorrection) {
			if c.BusinessID != businessID || (status != "" && c.Status != status) {
				return
			}
			all = append(all, &c)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
