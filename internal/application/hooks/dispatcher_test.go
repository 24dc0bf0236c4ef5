package hooks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/stock-ledger/internal/application/hooks"
)

func TestDispatcher_AislaFallosYPanics(t *testing.T) {
	d := hooks.NewDispatcher(zerolog.Nop(), time.Second)
	var ran []string

	failed := d.Run(context.Background(),
		hooks.Hook{Name: "audit", Fn: func(context.Context) error {
			ran = append(ran, "audit")
			return errors.New("servicio de auditoría caído")
		}},
		hooks.Hook{Name: "panic", Fn: func(context.Context) error {
			ran = append(ran, "panic")
			panic("boom")
		}},
		hooks.Hook{Name: "notify", Fn: func(context.Context) error {
			ran = append(ran, "notify")
			return nil
		}},
	)

	assert.Equal(t, 2, failed)
	assert.Equal(t, []string{"audit", "panic", "notify"}, ran, "todos los hooks deben correr")
}

func TestDispatcher_NoHeredaCancelacion(t *testing.T) {
	d := hooks.NewDispatcher(zerolog.Nop(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var hookErr error
	d.Run(ctx, hooks.Hook{Name: "check", Fn: func(ctx context.Context) error {
		hookErr = ctx.Err()
		return nil
	}})
	assert.NoError(t, hookErr)
}

func TestDispatcher_TimeoutPorHook(t *testing.T) {
	d := hooks.NewDispatcher(zerolog.Nop(), 20*time.Millisecond)
	failed := d.Run(context.Background(), hooks.Hook{Name: "lento", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.Equal(t, 1, failed)
}
