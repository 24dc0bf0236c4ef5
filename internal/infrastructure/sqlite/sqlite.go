// Package sqlite implementa los puertos de persistencia sobre SQLite (despliegues de una sola instancia).
//
// Concurrencia: SQLite admite un único escritor. Las transacciones abren con BEGIN IMMEDIATE
// (_txlock=immediate) y además se serializan con un mutex del proceso, así que la lectura
// del saldo y su escritura nunca se intercalan con otra mutación.
//
// Montos: TEXT con la representación exacta de shopspring/decimal.
// Fechas: TEXT UTC de ancho fijo, comparables lexicográficamente.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ inventory.TxRunner = (*Store)(nil)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// dbtx lo comparten *sql.DB y *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store conexión SQLite y mutex de escritura.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New abre (o crea) la base en path y aplica el esquema. ":memory:" sirve para tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("abrir sqlite: %w", err)
	}
	// Una sola conexión: ":memory:" es por conexión y SQLite serializa escrituras de todos modos.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrar sqlite: %w", err)
	}
	return s, nil
}

// Close cierra la conexión.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifica la conexión (health check).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stock_balances (
		business_id        TEXT NOT NULL,
		product_id         TEXT NOT NULL DEFAULT '',
		variation_id       TEXT NOT NULL,
		location_id        TEXT NOT NULL,
		quantity_available TEXT NOT NULL DEFAULT '0',
		average_unit_cost  TEXT NOT NULL DEFAULT '0',
		last_updated_at    TEXT NOT NULL,
		PRIMARY KEY (business_id, variation_id, location_id)
	);

	-- Ledger append-only: seq define el orden de escritura.
	CREATE TABLE IF NOT EXISTS stock_transactions (
		seq                INTEGER PRIMARY KEY AUTOINCREMENT,
		id                 TEXT NOT NULL UNIQUE,
		business_id        TEXT NOT NULL,
		location_id        TEXT NOT NULL,
		product_id         TEXT NOT NULL,
		variation_id       TEXT NOT NULL,
		type               TEXT NOT NULL,
		signed_quantity    TEXT NOT NULL,
		resulting_balance  TEXT NOT NULL,
		unit_cost          TEXT,
		reference_type     TEXT NOT NULL DEFAULT '',
		reference_id       TEXT NOT NULL DEFAULT '',
		actor_id           TEXT NOT NULL,
		actor_display_name TEXT NOT NULL DEFAULT '',
		notes              TEXT NOT NULL DEFAULT '',
		created_at         TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stock_transactions_key
		ON stock_transactions(business_id, variation_id, location_id, seq);
	CREATE INDEX IF NOT EXISTS idx_stock_transactions_reference
		ON stock_transactions(business_id, reference_type, reference_id);

	CREATE TRIGGER IF NOT EXISTS trg_stock_transactions_no_update
		BEFORE UPDATE ON stock_transactions
		BEGIN SELECT RAISE(ABORT, 'stock_transactions es append-only'); END;
	CREATE TRIGGER IF NOT EXISTS trg_stock_transactions_no_delete
		BEFORE DELETE ON stock_transactions
		BEGIN SELECT RAISE(ABORT, 'stock_transactions es append-only'); END;

	CREATE TABLE IF NOT EXISTS inventory_corrections (
		id                           TEXT PRIMARY KEY,
		business_id                  TEXT NOT NULL,
		location_id                  TEXT NOT NULL,
		product_id                   TEXT NOT NULL,
		variation_id                 TEXT NOT NULL,
		system_count_at_request_time TEXT NOT NULL,
		physical_count               TEXT NOT NULL,
		difference                   TEXT NOT NULL,
		reason                       TEXT NOT NULL,
		remarks                      TEXT NOT NULL DEFAULT '',
		status                       TEXT NOT NULL CHECK (status IN ('pending', 'approved')),
		requested_by                 TEXT NOT NULL,
		approver_id                  TEXT,
		approved_at                  TEXT,
		linked_transaction_id        TEXT REFERENCES stock_transactions(id),
		created_at                   TEXT NOT NULL,
		updated_at                   TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inventory_corrections_status
		ON inventory_corrections(business_id, status, created_at);

	CREATE TABLE IF NOT EXISTS idempotency_records (
		id                    TEXT PRIMARY KEY,
		key                   TEXT NOT NULL,
		business_id           TEXT NOT NULL,
		actor_id              TEXT NOT NULL DEFAULT '',
		endpoint              TEXT NOT NULL,
		request_hash          TEXT NOT NULL DEFAULT '',
		status                TEXT NOT NULL CHECK (status IN ('processing', 'completed', 'failed')),
		response_status_code  INTEGER NOT NULL DEFAULT 0,
		response_content_type TEXT NOT NULL DEFAULT '',
		response_body         BLOB,
		created_at            TEXT NOT NULL,
		updated_at            TEXT NOT NULL,
		expires_at            TEXT NOT NULL,
		UNIQUE (business_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_idempotency_records_expires ON idempotency_records(expires_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Run ejecuta fn dentro de una transacción BEGIN IMMEDIATE con repos atados a ella.
func (s *Store) Run(ctx context.Context, fn func(
	balanceRepo repository.StockBalanceRepository,
	ledgerRepo repository.StockTransactionRepository,
	correctionRepo repository.InventoryCorrectionRepository,
) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return txError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(
		&BalanceRepo{q: tx},
		&LedgerRepo{q: tx},
		&CorrectionRepo{q: tx},
	); err != nil {
		return txError("transacción de inventario", err)
	}
	if err := tx.Commit(); err != nil {
		return txError("commit transaction", err)
	}
	return nil
}

// Balances repositorio de saldos sobre la conexión (fuera de transacción).
func (s *Store) Balances() *BalanceRepo { return &BalanceRepo{q: s.db, store: s} }

// Ledger repositorio del ledger sobre la conexión.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{q: s.db, store: s} }

// Corrections repositorio de correcciones sobre la conexión.
func (s *Store) Corrections() *CorrectionRepo { return &CorrectionRepo{q: s.db, store: s} }

// Idempotency repositorio de reclamos (siempre sobre la conexión).
func (s *Store) Idempotency() *IdempotencyRepo { return &IdempotencyRepo{q: s.db, store: s} }

// read toma el lock de lectura solo fuera de transacción (store != nil).
func read(s *Store, fn func() error) error {
	if s == nil {
		return fn()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

func write(s *Store, fn func() error) error {
	if s == nil {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func txError(op string, err error) error {
	if err == nil || domain.IsBusinessError(err) {
		return err
	}
	return domain.TransactionFailure(op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// limitArg traduce limit <= 0 a "sin límite" (LIMIT -1 en SQLite).
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
