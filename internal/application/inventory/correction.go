package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/hooks"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	domaininv "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// ReferenceTypeCorrection tipo de referencia de los asientos escritos por una aprobación.
const ReferenceTypeCorrection = "inventory_correction"

// CorrectionUseCase flujo de conciliación contra conteo físico: pending → approved.
type CorrectionUseCase struct {
	txRunner        TxRunner
	correctionRepo  repository.InventoryCorrectionRepository
	balanceRepo     repository.StockBalanceRepository
	mutation        *StockMutationService
	authz           Authorizer
	audit           AuditRecorder
	hooks           *hooks.Dispatcher
	approvalTimeout time.Duration
	log             zerolog.Logger
	now             func() time.Time
}

// NewCorrectionUseCase construye el caso de uso. correctionRepo y balanceRepo son los del pool.
func NewCorrectionUseCase(
	txRunner TxRunner,
	correctionRepo repository.InventoryCorrectionRepository,
	balanceRepo repository.StockBalanceRepository,
	mutation *StockMutationService,
	authz Authorizer,
	audit AuditRecorder,
	dispatcher *hooks.Dispatcher,
	approvalTimeout time.Duration,
	log zerolog.Logger,
) *CorrectionUseCase {
	return &CorrectionUseCase{
		txRunner:        txRunner,
		correctionRepo:  correctionRepo,
		balanceRepo:     balanceRepo,
		mutation:        mutation,
		authz:           authz,
		audit:           audit,
		hooks:           dispatcher,
		approvalTimeout: approvalTimeout,
		log:             log,
		now:             time.Now,
	}
}

// CreateCorrectionInput conteo físico de una variación en una ubicación.
type CreateCorrectionInput struct {
	Actor         entity.Actor
	ProductID     string
	VariationID   string
	LocationID    string
	PhysicalCount decimal.Decimal
	Reason        string
	Remarks       string
}

// CreateCorrection toma la foto del saldo actual y guarda la solicitud pendiente.
// No mueve stock: eso ocurre solo al aprobar.
func (uc *CorrectionUseCase) CreateCorrection(ctx context.Context, in CreateCorrectionInput) (*entity.InventoryCorrection, error) {
	if in.Actor.BusinessID == "" || in.Actor.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	if in.ProductID == "" || in.VariationID == "" || in.LocationID == "" {
		return nil, domain.ErrInvalidInput
	}
	if in.PhysicalCount.IsNegative() || strings.TrimSpace(in.Reason) == "" {
		return nil, domain.ErrInvalidInput
	}
	if err := domaininv.ValidateAmount(in.PhysicalCount); err != nil {
		return nil, err
	}
	if !uc.authz.CanMutateStock(in.Actor, in.LocationID) {
		return nil, domain.ErrForbidden
	}

	key := entity.StockKey{BusinessID: in.Actor.BusinessID, VariationID: in.VariationID, LocationID: in.LocationID}
	balance, err := uc.balanceRepo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if balance.ProductID != "" && balance.ProductID != in.ProductID {
		return nil, domain.ErrInvalidInput
	}

	now := uc.now().UTC()
	c := &entity.InventoryCorrection{
		ID:                       uuid.New().String(),
		BusinessID:               key.BusinessID,
		LocationID:               key.LocationID,
		ProductID:                in.ProductID,
		VariationID:              key.VariationID,
		SystemCountAtRequestTime: balance.QuantityAvailable,
		PhysicalCount:            in.PhysicalCount,
		Difference:               in.PhysicalCount.Sub(balance.QuantityAvailable),
		Reason:                   strings.TrimSpace(in.Reason),
		Remarks:                  in.Remarks,
		Status:                   entity.CorrectionStatusPending,
		RequestedBy:              in.Actor.ID,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := uc.correctionRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ApprovalResult resultado de aprobar una corrección.
type ApprovalResult struct {
	CorrectionID    string
	TransactionID   string
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Adjustment      decimal.Decimal
	ApprovedAt      time.Time
}

// ApproveCorrection relee el saldo vivo (no la foto de creación), aplica physicalCount - saldoVivo
// como asiento "correction" con saldo negativo permitido y marca la corrección aprobada, todo en
// la misma transacción. La auditoría se emite después del commit y su fallo no revierte nada.
func (uc *CorrectionUseCase) ApproveCorrection(ctx context.Context, correctionID string, approver entity.Actor) (*ApprovalResult, error) {
	if approver.BusinessID == "" || approver.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	if correctionID == "" {
		return nil, domain.ErrInvalidInput
	}
	if !uc.authz.CanApproveCorrections(approver) {
		return nil, domain.ErrForbidden
	}

	if uc.approvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.approvalTimeout)
		defer cancel()
	}

	var (
		res        ApprovalResult
		correction *entity.InventoryCorrection
	)
	err := uc.txRunner.Run(ctx, func(
		balanceRepo repository.StockBalanceRepository,
		ledgerRepo repository.StockTransactionRepository,
		correctionRepo repository.InventoryCorrectionRepository,
	) error {
		c, err := correctionRepo.GetForUpdate(ctx, approver.BusinessID, correctionID)
		if err != nil {
			return err
		}
		if c == nil {
			return domain.ErrNotFound
		}
		if !c.IsPending() {
			return domain.ErrAlreadyApproved
		}
		if !uc.authz.CanMutateStock(approver, c.LocationID) {
			return domain.ErrForbidden
		}

		live, err := balanceRepo.GetForUpdate(ctx, c.Key(), c.ProductID)
		if err != nil {
			return err
		}
		adjustment := c.PhysicalCount.Sub(live.QuantityAvailable)

		mut, err := uc.mutation.MutateInTx(ctx, balanceRepo, ledgerRepo, MutationInput{
			Actor:         approver,
			ProductID:     c.ProductID,
			VariationID:   c.VariationID,
			LocationID:    c.LocationID,
			Type:          entity.TransactionCorrection,
			Quantity:      adjustment,
			Reference:     entity.Reference{Type: ReferenceTypeCorrection, ID: c.ID},
			Notes:         correctionNotes(c),
			AllowNegative: true,
		})
		if err != nil {
			return err
		}

		approvedAt := mut.CreatedAt
		c.Status = entity.CorrectionStatusApproved
		c.ApproverID = approver.ID
		c.ApprovedAt = &approvedAt
		c.LinkedTransactionID = mut.TransactionID
		c.UpdatedAt = approvedAt
		if err := correctionRepo.MarkApproved(ctx, c); err != nil {
			return err
		}

		correction = c
		res = ApprovalResult{
			CorrectionID:    c.ID,
			TransactionID:   mut.TransactionID,
			PreviousBalance: mut.PreviousBalance,
			NewBalance:      mut.NewBalance,
			Adjustment:      adjustment,
			ApprovedAt:      approvedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("correction_id", res.CorrectionID).
		Str("transaction_id", res.TransactionID).
		Str("adjustment", res.Adjustment.String()).
		Str("approver_id", approver.ID).
		Msg("corrección aprobada")

	uc.hooks.Run(ctx, uc.auditHook(correction, approver, res))
	return &res, nil
}

// GetCorrection obtiene una corrección del negocio del actor.
func (uc *CorrectionUseCase) GetCorrection(ctx context.Context, businessID, id string) (*entity.InventoryCorrection, error) {
	if businessID == "" || id == "" {
		return nil, domain.ErrInvalidInput
	}
	c, err := uc.correctionRepo.GetByID(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// ListCorrections lista por estado (vacío = todos) con paginación.
func (uc *CorrectionUseCase) ListCorrections(ctx context.Context, businessID, status string, limit, offset int) ([]*entity.InventoryCorrection, error) {
	if businessID == "" {
		return nil, domain.ErrInvalidInput
	}
	switch status {
	case "", entity.CorrectionStatusPending, entity.CorrectionStatusApproved:
	default:
		return nil, domain.ErrInvalidInput
	}
	return uc.correctionRepo.ListByStatus(ctx, businessID, status, limit, offset)
}

func (uc *CorrectionUseCase) auditHook(c *entity.InventoryCorrection, approver entity.Actor, res ApprovalResult) hooks.Hook {
	ev := entity.CorrectionAuditEvent{
		CorrectionID:  c.ID,
		BusinessID:    c.BusinessID,
		ProductID:     c.ProductID,
		VariationID:   c.VariationID,
		LocationID:    c.LocationID,
		BeforeQty:     res.PreviousBalance,
		AfterQty:      res.NewBalance,
		Difference:    res.Adjustment,
		ApproverID:    approver.ID,
		ApproverName:  approver.DisplayName,
		TransactionID: res.TransactionID,
		Timestamp:     res.ApprovedAt,
	}
	return hooks.Hook{
		Name: "correction_audit",
		Fn: func(ctx context.Context) error {
			if uc.audit == nil {
				return nil
			}
			return uc.audit.RecordCorrection(ctx, ev)
		},
	}
}

func correctionNotes(c *entity.InventoryCorrection) string {
	if c.Remarks == "" {
		return c.Reason
	}
	return c.Reason + ": " + c.Remarks
}
