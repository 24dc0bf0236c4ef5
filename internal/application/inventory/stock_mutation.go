package inventory

import (
	"context"
	"sort"
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

// MutationConfig parámetros del servicio de mutación.
type MutationConfig struct {
	LowStockThreshold decimal.Decimal
	TxTimeout         time.Duration
}

// StockMutationService es el único componente que escribe saldos. Cada mutación bloquea la fila
// de saldo (SELECT FOR UPDATE), calcula el nuevo saldo y escribe saldo + asiento del ledger
// en la misma transacción.
type StockMutationService struct {
	txRunner    TxRunner
	balanceRepo repository.StockBalanceRepository
	ledgerRepo  repository.StockTransactionRepository
	authz       Authorizer
	notifier    Notifier
	hooks       *hooks.Dispatcher
	cfg         MutationConfig
	log         zerolog.Logger
	now         func() time.Time
}

// NewStockMutationService construye el servicio. balanceRepo y ledgerRepo son los del pool (lecturas).
func NewStockMutationService(
	txRunner TxRunner,
	balanceRepo repository.StockBalanceRepository,
	ledgerRepo repository.StockTransactionRepository,
	authz Authorizer,
	notifier Notifier,
	dispatcher *hooks.Dispatcher,
	cfg MutationConfig,
	log zerolog.Logger,
) *StockMutationService {
	return &StockMutationService{
		txRunner:    txRunner,
		balanceRepo: balanceRepo,
		ledgerRepo:  ledgerRepo,
		authz:       authz,
		notifier:    notifier,
		hooks:       dispatcher,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// MutationInput entrada de una mutación. Quantity lleva signo (negativo = salida).
type MutationInput struct {
	Actor         entity.Actor
	ProductID     string
	VariationID   string
	LocationID    string
	Type          entity.TransactionType
	Quantity      decimal.Decimal
	UnitCost      *decimal.Decimal
	Reference     entity.Reference
	Notes         string
	AllowNegative bool
}

func (in MutationInput) key() entity.StockKey {
	return entity.StockKey{BusinessID: in.Actor.BusinessID, VariationID: in.VariationID, LocationID: in.LocationID}
}

// MutationResult saldo resultante y asiento escrito.
type MutationResult struct {
	TransactionID   string
	Sequence        int64
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	ProductID       string
	CreatedAt       time.Time
}

// Mutate valida, autoriza y aplica una mutación en su propia transacción.
// Tras el commit dispara los hooks (stock bajo); nunca antes.
func (s *StockMutationService) Mutate(ctx context.Context, in MutationInput) (*MutationResult, error) {
	if err := validateMutation(in); err != nil {
		return nil, err
	}
	if !s.authz.CanMutateStock(in.Actor, in.LocationID) {
		return nil, domain.ErrForbidden
	}
	// Forzar saldo negativo es una decisión de supervisor.
	if in.AllowNegative && !s.authz.CanApproveCorrections(in.Actor) {
		return nil, domain.ErrForbidden
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var res *MutationResult
	err := s.txRunner.Run(ctx, func(
		balanceRepo repository.StockBalanceRepository,
		ledgerRepo repository.StockTransactionRepository,
		_ repository.InventoryCorrectionRepository,
	) error {
		var err error
		res, err = s.MutateInTx(ctx, balanceRepo, ledgerRepo, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hooks.Run(ctx, s.lowStockHooks(in, res)...)
	return res, nil
}

// MutateInTx aplica la mutación con repositorios de una transacción abierta por el caller
// (aprobación de correcciones, traslados). No valida signo ni autoriza: eso es del punto de entrada.
func (s *StockMutationService) MutateInTx(
	ctx context.Context,
	balanceRepo repository.StockBalanceRepository,
	ledgerRepo repository.StockTransactionRepository,
	in MutationInput,
) (*MutationResult, error) {
	key := in.key()
	// Bloquea la fila de saldo hasta el fin de la transacción: el segundo escritor ve el saldo confirmado del primero.
	balance, err := balanceRepo.GetForUpdate(ctx, key, in.ProductID)
	if err != nil {
		return nil, err
	}
	if balance.ProductID != "" && in.ProductID != "" && balance.ProductID != in.ProductID {
		return nil, domain.ErrInvalidInput
	}
	productID := in.ProductID
	if productID == "" {
		productID = balance.ProductID
	}

	previous := balance.QuantityAvailable
	next, err := domaininv.ApplyDelta(previous, in.Quantity, in.AllowNegative)
	if err != nil {
		return nil, err
	}
	if err := domaininv.ValidateAmount(next); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if in.UnitCost != nil && in.Quantity.IsPositive() {
		balance.AverageUnitCost = domaininv.CostCalculator(previous, balance.AverageUnitCost, in.Quantity, *in.UnitCost)
	}
	balance.ProductID = productID
	balance.QuantityAvailable = next
	balance.LastUpdatedAt = now
	if err := balanceRepo.Save(ctx, balance); err != nil {
		return nil, err
	}

	entry := &entity.StockTransaction{
		ID:               uuid.New().String(),
		BusinessID:       key.BusinessID,
		LocationID:       key.LocationID,
		ProductID:        productID,
		VariationID:      key.VariationID,
		Type:             in.Type,
		SignedQuantity:   in.Quantity,
		ResultingBalance: next,
		UnitCost:         in.UnitCost,
		ReferenceType:    in.Reference.Type,
		ReferenceID:      in.Reference.ID,
		ActorID:          in.Actor.ID,
		ActorDisplayName: in.Actor.DisplayName,
		Notes:            in.Notes,
		CreatedAt:        now,
	}
	if err := ledgerRepo.Append(ctx, entry); err != nil {
		return nil, err
	}

	return &MutationResult{
		TransactionID:   entry.ID,
		Sequence:        entry.Sequence,
		PreviousBalance: previous,
		NewBalance:      next,
		ProductID:       productID,
		CreatedAt:       now,
	}, nil
}

// TransferInput traslado de una cantidad positiva entre dos ubicaciones del mismo negocio.
type TransferInput struct {
	Actor          entity.Actor
	ProductID      string
	VariationID    string
	FromLocationID string
	ToLocationID   string
	Quantity       decimal.Decimal
	Reference      entity.Reference
	Notes          string
}

// TransferResult asientos transfer_out y transfer_in.
type TransferResult struct {
	Out MutationResult
	In  MutationResult
}

// Transfer resta en origen y suma en destino en una sola transacción. Ambas filas se bloquean
// en orden de ubicación para que traslados cruzados no se bloqueen mutuamente.
func (s *StockMutationService) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	if in.Actor.BusinessID == "" || in.Actor.ID == "" {
		return nil, domain.ErrUnauthorized
	}
	if in.ProductID == "" || in.VariationID == "" || in.FromLocationID == "" || in.ToLocationID == "" {
		return nil, domain.ErrInvalidInput
	}
	if in.FromLocationID == in.ToLocationID || !in.Quantity.IsPositive() {
		return nil, domain.ErrInvalidInput
	}
	if err := domaininv.ValidateAmount(in.Quantity); err != nil {
		return nil, err
	}
	if !s.authz.CanMutateStock(in.Actor, in.FromLocationID) || !s.authz.CanMutateStock(in.Actor, in.ToLocationID) {
		return nil, domain.ErrForbidden
	}
	if in.Reference.ID == "" {
		in.Reference = entity.Reference{Type: "transfer", ID: uuid.New().String()}
	}

	out := MutationInput{
		Actor: in.Actor, ProductID: in.ProductID, VariationID: in.VariationID, LocationID: in.FromLocationID,
		Type: entity.TransactionTransferOut, Quantity: in.Quantity.Neg(), Reference: in.Reference, Notes: in.Notes,
	}
	dest := MutationInput{
		Actor: in.Actor, ProductID: in.ProductID, VariationID: in.VariationID, LocationID: in.ToLocationID,
		Type: entity.TransactionTransferIn, Quantity: in.Quantity, Reference: in.Reference, Notes: in.Notes,
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var res TransferResult
	err := s.txRunner.Run(ctx, func(
		balanceRepo repository.StockBalanceRepository,
		ledgerRepo repository.StockTransactionRepository,
		_ repository.InventoryCorrectionRepository,
	) error {
		locations := []string{in.FromLocationID, in.ToLocationID}
		sort.Strings(locations)
		for _, loc := range locations {
			key := entity.StockKey{BusinessID: in.Actor.BusinessID, VariationID: in.VariationID, LocationID: loc}
			if _, err := balanceRepo.GetForUpdate(ctx, key, in.ProductID); err != nil {
				return err
			}
		}
		o, err := s.MutateInTx(ctx, balanceRepo, ledgerRepo, out)
		if err != nil {
			return err
		}
		i, err := s.MutateInTx(ctx, balanceRepo, ledgerRepo, dest)
		if err != nil {
			return err
		}
		res = TransferResult{Out: *o, In: *i}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.hooks.Run(ctx, s.lowStockHooks(out, &res.Out)...)
	return &res, nil
}

// CheckAvailability consulta sin efectos si alcanza el stock. Best-effort: el saldo puede cambiar
// antes de mutar; Mutate vuelve a validar bajo bloqueo.
func (s *StockMutationService) CheckAvailability(ctx context.Context, key entity.StockKey, required decimal.Decimal) (domaininv.Availability, error) {
	if key.BusinessID == "" || key.VariationID == "" || key.LocationID == "" || required.IsNegative() {
		return domaininv.Availability{}, domain.ErrInvalidInput
	}
	balance, err := s.balanceRepo.Get(ctx, key)
	if err != nil {
		return domaininv.Availability{}, err
	}
	return domaininv.CheckAvailability(balance.QuantityAvailable, required), nil
}

// GetBalance devuelve el saldo actual (cero si la llave nunca tuvo movimientos).
func (s *StockMutationService) GetBalance(ctx context.Context, key entity.StockKey) (*entity.StockBalance, error) {
	if key.BusinessID == "" || key.VariationID == "" || key.LocationID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.balanceRepo.Get(ctx, key)
}

// ListTransactions historial del ledger para una llave, en orden de escritura.
func (s *StockMutationService) ListTransactions(ctx context.Context, key entity.StockKey, limit, offset int) ([]*entity.StockTransaction, error) {
	if key.BusinessID == "" || key.VariationID == "" || key.LocationID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.ledgerRepo.ListByKey(ctx, key, limit, offset)
}

// ListByReference asientos originados por un documento de negocio.
func (s *StockMutationService) ListByReference(ctx context.Context, businessID string, ref entity.Reference) ([]*entity.StockTransaction, error) {
	if businessID == "" || ref.Type == "" || ref.ID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.ledgerRepo.ListByReference(ctx, businessID, ref.Type, ref.ID)
}

// BalanceVerification comparación entre proyección y ledger.
type BalanceVerification struct {
	Key        entity.StockKey
	Balance    decimal.Decimal
	LedgerSum  decimal.Decimal
	EntryCount int64
	Consistent bool
	ChainBreak *domaininv.ChainBreak
}

// VerifyBalance detecta deriva entre el saldo y la suma del ledger. Bloquea la fila durante la
// lectura para obtener una foto coherente; solo reporta, nunca corrige.
func (s *StockMutationService) VerifyBalance(ctx context.Context, key entity.StockKey) (*BalanceVerification, error) {
	if key.BusinessID == "" || key.VariationID == "" || key.LocationID == "" {
		return nil, domain.ErrInvalidInput
	}
	var v BalanceVerification
	err := s.txRunner.Run(ctx, func(
		balanceRepo repository.StockBalanceRepository,
		ledgerRepo repository.StockTransactionRepository,
		_ repository.InventoryCorrectionRepository,
	) error {
		balance, err := balanceRepo.Get(ctx, key)
		if err != nil {
			return err
		}
		// Sin fila no hay nada que bloquear; la verificación es de solo lectura.
		if !balance.LastUpdatedAt.IsZero() {
			balance, err = balanceRepo.GetForUpdate(ctx, key, balance.ProductID)
			if err != nil {
				return err
			}
		}
		summary, err := ledgerRepo.Summarize(ctx, key)
		if err != nil {
			return err
		}
		entries, err := ledgerRepo.ListByKey(ctx, key, 0, 0)
		if err != nil {
			return err
		}
		_, brk := domaininv.ReplayRunningBalance(entries)
		v = BalanceVerification{
			Key:        key,
			Balance:    balance.QuantityAvailable,
			LedgerSum:  summary.Sum,
			EntryCount: summary.EntryCount,
			ChainBreak: brk,
			Consistent: brk == nil && balance.QuantityAvailable.Equal(summary.Sum),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !v.Consistent {
		s.log.Warn().
			Str("business_id", key.BusinessID).
			Str("variation_id", key.VariationID).
			Str("location_id", key.LocationID).
			Str("balance", v.Balance.String()).
			Str("ledger_sum", v.LedgerSum.String()).
			Msg("deriva entre saldo y ledger")
	}
	return &v, nil
}

func (s *StockMutationService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TxTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.TxTimeout)
}

// lowStockHooks aviso solo al cruzar el umbral hacia abajo, no en cada venta bajo el umbral.
func (s *StockMutationService) lowStockHooks(in MutationInput, res *MutationResult) []hooks.Hook {
	if s.notifier == nil || res == nil || !s.cfg.LowStockThreshold.IsPositive() {
		return nil
	}
	threshold := s.cfg.LowStockThreshold
	if !(res.PreviousBalance.GreaterThan(threshold) && res.NewBalance.LessThanOrEqual(threshold)) {
		return nil
	}
	alert := entity.LowStockAlert{
		BusinessID:  in.Actor.BusinessID,
		ProductID:   res.ProductID,
		VariationID: in.VariationID,
		LocationID:  in.LocationID,
		Balance:     res.NewBalance,
		Threshold:   threshold,
	}
	return []hooks.Hook{{
		Name: "low_stock",
		Fn:   func(ctx context.Context) error { return s.notifier.NotifyLowStock(ctx, alert) },
	}}
}

func validateMutation(in MutationInput) error {
	if in.Actor.BusinessID == "" || in.Actor.ID == "" {
		return domain.ErrUnauthorized
	}
	if in.ProductID == "" || in.VariationID == "" || in.LocationID == "" {
		return domain.ErrInvalidInput
	}
	if in.UnitCost != nil {
		if in.UnitCost.IsNegative() {
			return domain.ErrInvalidInput
		}
		if err := domaininv.ValidateAmount(*in.UnitCost); err != nil {
			return err
		}
	}
	if err := domaininv.ValidateAmount(in.Quantity); err != nil {
		return err
	}
	return domaininv.ValidateSign(in.Type, in.Quantity)
}
