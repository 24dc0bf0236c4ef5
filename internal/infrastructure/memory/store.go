// Package memory implementa los puertos de persistencia en memoria (tests y modo demo).
// Las transacciones se serializan con un mutex y acumulan sus cambios aparte; solo se
// vuelcan al estado publicado en el commit, así un error deja el estado intacto.
package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ inventory.TxRunner = (*Store)(nil)

// view operaciones de lectura y escritura comunes al estado publicado y al de una transacción.
type view interface {
	balance(key entity.StockKey) (entity.StockBalance, bool)
	putBalance(b entity.StockBalance)
	correction(id string) (entity.InventoryCorrection, bool)
	putCorrection(c entity.InventoryCorrection)
	eachCorrection(fn func(c entity.InventoryCorrection))
	appendEntry(t *entity.StockTransaction)
	// eachEntry recorre el ledger en orden de escritura; fn devuelve false para cortar.
	eachEntry(fn func(t *entity.StockTransaction) bool)
}

type state struct {
	balances    map[entity.StockKey]entity.StockBalance
	ledger      []entity.StockTransaction
	corrections map[string]entity.InventoryCorrection
	seq         int64
}

func newState() *state {
	return &state{
		balances:    make(map[entity.StockKey]entity.StockBalance),
		corrections: make(map[string]entity.InventoryCorrection),
	}
}

func (s *state) balance(key entity.StockKey) (entity.StockBalance, bool) {
	b, ok := s.balances[key]
	return b, ok
}

func (s *state) putBalance(b entity.StockBalance) { s.balances[b.Key()] = b }

func (s *state) correction(id string) (entity.InventoryCorrection, bool) {
	c, ok := s.corrections[id]
	return c, ok
}

func (s *state) putCorrection(c entity.InventoryCorrection) { s.corrections[c.ID] = c }

func (s *state) eachCorrection(fn func(c entity.InventoryCorrection)) {
	for _, c := range s.corrections {
		fn(c)
	}
}

func (s *state) appendEntry(t *entity.StockTransaction) {
	s.seq++
	t.Sequence = s.seq
	s.ledger = append(s.ledger, *t)
}

func (s *state) eachEntry(fn func(t *entity.StockTransaction) bool) {
	for i := range s.ledger {
		if !fn(&s.ledger[i]) {
			return
		}
	}
}

// staging cambios de una transacción sobre el estado publicado: solo guarda las filas
// tocadas y los asientos nuevos, el resto se lee de base.
type staging struct {
	base        *state
	balances    map[entity.StockKey]entity.StockBalance
	corrections map[string]entity.InventoryCorrection
	appended    []entity.StockTransaction
	seq         int64
}

func newStaging(base *state) *staging {
	return &staging{
		base:        base,
		balances:    make(map[entity.StockKey]entity.StockBalance),
		corrections: make(map[string]entity.InventoryCorrection),
		seq:         base.seq,
	}
}

func (s *staging) balance(key entity.StockKey) (entity.StockBalance, bool) {
	if b, ok := s.balances[key]; ok {
		return b, true
	}
	return s.base.balance(key)
}

func (s *staging) putBalance(b entity.StockBalance) { s.balances[b.Key()] = b }

func (s *staging) correction(id string) (entity.InventoryCorrection, bool) {
	if c, ok := s.corrections[id]; ok {
		return c, true
	}
	return s.base.correction(id)
}

func (s *staging) putCorrection(c entity.InventoryCorrection) { s.corrections[c.ID] = c }

func (s *staging) eachCorrection(fn func(c entity.InventoryCorrection)) {
	for id, c := range s.base.corrections {
		if _, ok := s.corrections[id]; !ok {
			fn(c)
		}
	}
	for _, c := range s.corrections {
		fn(c)
	}
}

func (s *staging) appendEntry(t *entity.StockTransaction) {
	s.seq++
	t.Sequence = s.seq
	s.appended = append(s.appended, *t)
}

func (s *staging) eachEntry(fn func(t *entity.StockTransaction) bool) {
	for i := range s.base.ledger {
		if !fn(&s.base.ledger[i]) {
			return
		}
	}
	for i := range s.appended {
		if !fn(&s.appended[i]) {
			return
		}
	}
}

// commit vuelca los cambios en base. Requiere el lock del Store.
func (s *staging) commit() {
	for k, b := range s.balances {
		s.base.balances[k] = b
	}
	for id, c := range s.corrections {
		s.base.corrections[id] = c
	}
	s.base.ledger = append(s.base.ledger, s.appended...)
	s.base.seq = s.seq
}

// Store estado compartido del adaptador en memoria.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore crea un almacenamiento vacío.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Run ejecuta fn con repositorios atados a una transacción; vuelca sus cambios solo si fn no falla.
func (s *Store) Run(ctx context.Context, fn func(
	balanceRepo repository.StockBalanceRepository,
	ledgerRepo repository.StockTransactionRepository,
	correctionRepo repository.InventoryCorrectionRepository,
) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := newStaging(s.state)
	if err := fn(
		&BalanceRepo{store: s, tx: staged},
		&LedgerRepo{store: s, tx: staged},
		&CorrectionRepo{store: s, tx: staged},
	); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	staged.commit()
	return nil
}

// Balances repositorio de saldos fuera de transacción.
func (s *Store) Balances() *BalanceRepo { return &BalanceRepo{store: s} }

// Ledger repositorio del ledger fuera de transacción.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{store: s} }

// Corrections repositorio de correcciones fuera de transacción.
func (s *Store) Corrections() *CorrectionRepo { return &CorrectionRepo{store: s} }

// with ejecuta fn sobre la transacción, o sobre el estado publicado tomando el lock.
func (s *Store) with(tx *staging, fn func(v view) error) error {
	if tx != nil {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}
