package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/sqlite"
	"github.com/jhoicas/stock-ledger/pkg/config"
)

// storage adaptadores del driver elegido. Los repos son los de lectura (fuera de transacción).
type storage struct {
	txRunner    inventory.TxRunner
	balances    repository.StockBalanceRepository
	ledger      repository.StockTransactionRepository
	corrections repository.InventoryCorrectionRepository
	idempotency repository.IdempotencyRepository
	close       func()
}

func openStorage(ctx context.Context, cfg config.DBConfig, log zerolog.Logger) (*storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			log.Info().Msg("esquema PostgreSQL aplicado")
		}
		return &storage{
			txRunner:    postgres.NewTxRunner(pool),
			balances:    postgres.NewStockBalanceRepository(pool),
			ledger:      postgres.NewStockTransactionRepository(pool),
			corrections: postgres.NewInventoryCorrectionRepository(pool),
			idempotency: postgres.NewIdempotencyRepository(pool),
			close:       pool.Close,
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("usando SQLite")
		return &storage{
			txRunner:    store,
			balances:    store.Balances(),
			ledger:      store.Ledger(),
			corrections: store.Corrections(),
			idempotency: store.Idempotency(),
			close: func() {
				if err := store.Close(); err != nil {
					log.Error().Err(err).Msg("cerrar SQLite")
				}
			},
		}, nil

	case config.DriverMemory:
		log.Warn().Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
		store := memory.NewStore()
		return &storage{
			txRunner:    store,
			balances:    store.Balances(),
			ledger:      store.Ledger(),
			corrections: store.Corrections(),
			idempotency: memory.NewIdempotencyRepo(),
			close:       func() {},
		}, nil
	}
	return nil, fmt.Errorf("driver desconocido %q", cfg.Driver)
}
