// Package hooks ejecuta efectos secundarios después del commit de una mutación.
// Cada hook está aislado: un error o panic se registra y no afecta a los demás
// ni a la mutación ya confirmada.
package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Hook efecto posterior al commit (auditoría, notificaciones).
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Dispatcher corre listas de hooks post-commit.
type Dispatcher struct {
	log     zerolog.Logger
	timeout time.Duration
}

// NewDispatcher construye el dispatcher; timeout <= 0 desactiva el límite por hook.
func NewDispatcher(log zerolog.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{log: log, timeout: timeout}
}

// Run ejecuta los hooks en orden. Nunca devuelve error: los fallos se registran y se descartan.
// El contexto del caller puede estar cancelado (respuesta ya enviada); los hooks no heredan esa cancelación.
func (d *Dispatcher) Run(ctx context.Context, hooks ...Hook) int {
	failed := 0
	base := context.WithoutCancel(ctx)
	for _, h := range hooks {
		if h.Fn == nil {
			continue
		}
		if err := d.runOne(base, h); err != nil {
			failed++
			d.log.Error().Err(err).Str("hook", h.Name).Msg("hook post-commit falló")
		}
	}
	return failed
}

func (d *Dispatcher) runOne(ctx context.Context, h Hook) (err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic en hook %s: %v", h.Name, r)
		}
	}()
	return h.Fn(ctx)
}
