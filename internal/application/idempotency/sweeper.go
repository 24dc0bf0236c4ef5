package idempotency

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Sweeper purga periódicamente los registros vencidos.
type Sweeper struct {
	repo     repository.IdempotencyRepository
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewSweeper construye el limpiador.
func NewSweeper(repo repository.IdempotencyRepository, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{repo: repo, interval: interval, log: log, now: time.Now}
}

// SweepOnce borra los registros con expires_at vencido.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("purged", n).Msg("llaves de idempotencia vencidas purgadas")
	}
	return n, nil
}

// Run limpia cada intervalo hasta que ctx se cancela. Los errores se registran y no detienen el ciclo.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("purga de llaves de idempotencia")
			}
		}
	}
}
