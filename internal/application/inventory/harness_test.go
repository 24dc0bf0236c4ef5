package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/hooks"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/authz"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
)

var (
	admin   = entity.Actor{ID: "adm-1", DisplayName: "Admin", BusinessID: "biz-1", Role: entity.RoleAdmin}
	manager = entity.Actor{ID: "mgr-1", DisplayName: "Ana Gerente", BusinessID: "biz-1", Role: entity.RoleManager, LocationIDs: []string{"loc-1", "loc-2"}}
	clerk   = entity.Actor{ID: "clk-1", DisplayName: "Luis Cajero", BusinessID: "biz-1", Role: entity.RoleClerk, LocationIDs: []string{"loc-1"}}

	key1 = entity.StockKey{BusinessID: "biz-1", VariationID: "var-1", LocationID: "loc-1"}
	key2 = entity.StockKey{BusinessID: "biz-1", VariationID: "var-1", LocationID: "loc-2"}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []entity.LowStockAlert
}

func (n *recordingNotifier) NotifyLowStock(_ context.Context, a entity.LowStockAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []entity.CorrectionAuditEvent
	err    error
}

func (a *recordingAudit) RecordCorrection(_ context.Context, ev entity.CorrectionAuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, ev)
	return nil
}

type harness struct {
	store       *memory.Store
	mutation    *inventory.StockMutationService
	corrections *inventory.CorrectionUseCase
	notifier    *recordingNotifier
	audit       *recordingAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRunner(t, nil)
}

// newHarnessWithRunner permite envolver el TxRunner del store (inyección de fallos).
func newHarnessWithRunner(t *testing.T, wrap func(inventory.TxRunner) inventory.TxRunner) *harness {
	t.Helper()
	store := memory.NewStore()
	var runner inventory.TxRunner = store
	if wrap != nil {
		runner = wrap(store)
	}
	h := &harness{store: store, notifier: &recordingNotifier{}, audit: &recordingAudit{}}
	dispatcher := hooks.NewDispatcher(zerolog.Nop(), time.Second)
	h.mutation = inventory.NewStockMutationService(
		runner, store.Balances(), store.Ledger(), authz.RoleAuthorizer{}, h.notifier, dispatcher,
		inventory.MutationConfig{LowStockThreshold: dec("5"), TxTimeout: 5 * time.Second},
		zerolog.Nop(),
	)
	h.corrections = inventory.NewCorrectionUseCase(
		runner, store.Corrections(), store.Balances(), h.mutation, authz.RoleAuthorizer{}, h.audit, dispatcher,
		5*time.Second, zerolog.Nop(),
	)
	return h
}

func (h *harness) seed(t *testing.T, key entity.StockKey, qty string) {
	t.Helper()
	_, err := h.mutation.Mutate(context.Background(), inventory.MutationInput{
		Actor:       admin,
		ProductID:   "prod-1",
		VariationID: key.VariationID,
		LocationID:  key.LocationID,
		Type:        entity.TransactionOpening,
		Quantity:    dec(qty),
		Reference:   entity.Reference{Type: "opening", ID: "open-" + key.LocationID},
	})
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, key entity.StockKey) decimal.Decimal {
	t.Helper()
	b, err := h.mutation.GetBalance(context.Background(), key)
	require.NoError(t, err)
	return b.QuantityAvailable
}

func (h *harness) entries(t *testing.T, key entity.StockKey) []*entity.StockTransaction {
	t.Helper()
	list, err := h.mutation.ListTransactions(context.Background(), key, 0, 0)
	require.NoError(t, err)
	return list
}

// failingLedgerRunner hace fallar Append dentro de la transacción, después de escribir el saldo.
type failingLedgerRunner struct {
	inner inventory.TxRunner
	fail  *bool
}

func (r failingLedgerRunner) Run(ctx context.Context, fn func(
	repository.StockBalanceRepository,
	repository.StockTransactionRepository,
	repository.InventoryCorrectionRepository,
) error) error {
	return r.inner.Run(ctx, func(b repository.StockBalanceRepository, l repository.StockTransactionRepository, c repository.InventoryCorrectionRepository) error {
		if *r.fail {
			l = failingLedger{StockTransactionRepository: l, err: errLedgerDown}
		}
		return fn(b, l, c)
	})
}

type failingLedger struct {
	repository.StockTransactionRepository
	err error
}

func (l failingLedger) Append(context.Context, *entity.StockTransaction) error { return l.err }

var errLedgerDown = errors.New("ledger no disponible")

// lockCountingRunner cuenta los bloqueos de saldo pedidos dentro de la transacción.
type lockCountingRunner struct {
	inner inventory.TxRunner
	locks *int
}

func (r lockCountingRunner) Run(ctx context.Context, fn func(
	repository.StockBalanceRepository,
	repository.StockTransactionRepository,
	repository.InventoryCorrectionRepository,
) error) error {
	return r.inner.Run(ctx, func(b repository.StockBalanceRepository, l repository.StockTransactionRepository, c repository.InventoryCorrectionRepository) error {
		return fn(lockCountingBalances{StockBalanceRepository: b, locks: r.locks}, l, c)
	})
}

type lockCountingBalances struct {
	repository.StockBalanceRepository
	locks *int
}

func (b lockCountingBalances) GetForUpdate(ctx context.Context, key entity.StockKey, productID string) (*entity.StockBalance, error) {
	*b.locks++
	return b.StockBalanceRepository.GetForUpdate(ctx, key, productID)
}
