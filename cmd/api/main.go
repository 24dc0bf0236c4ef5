package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stock-ledger/internal/application/hooks"
	"github.com/jhoicas/stock-ledger/internal/application/idempotency"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/audit"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/authz"
	httpRouter "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("driver", cfg.DB.Driver).
		Msg("iniciando aplicación")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es obligatorio")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg.DB, log.Component("storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("abrir almacenamiento")
	}
	defer store.close()

	recorder := audit.NewLogRecorder(log.Component("audit"))
	dispatcher := hooks.NewDispatcher(log.Component("hooks"), cfg.Ledger.HookTimeout)

	mutationSvc := inventory.NewStockMutationService(
		store.txRunner, store.balances, store.ledger,
		authz.RoleAuthorizer{}, recorder, dispatcher,
		inventory.MutationConfig{
			LowStockThreshold: cfg.Ledger.LowStockThreshold,
			TxTimeout:         cfg.Ledger.MutationTimeout,
		},
		log.Component("stock"),
	)
	correctionUC := inventory.NewCorrectionUseCase(
		store.txRunner, store.corrections, store.balances, mutationSvc,
		authz.RoleAuthorizer{}, recorder, dispatcher,
		cfg.Ledger.ApprovalTimeout,
		log.Component("corrections"),
	)

	idemLog := log.Component("idempotency")
	guard := idempotency.NewGuard(store.idempotency, idempotency.Config{
		StaleAfter:  cfg.Idempotency.StaleAfter,
		TTL:         cfg.Idempotency.TTL,
		MaxAttempts: cfg.Idempotency.MaxAttempts,
	}, idemLog)
	sweeper := idempotency.NewSweeper(store.idempotency, cfg.Idempotency.SweepInterval, idemLog)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(requestid.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Stock Ledger API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Mutation:    mutationSvc,
		Corrections: correctionUC,
		Guard:       guard,
		JWTSecret:   cfg.JWT.Secret,
		Log:         log.Component("http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(cfg.HTTP.Addr())
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("señal de apagado recibida, cerrando servidor...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("servidor HTTP finalizado")
	}
	log.Info().Msg("aplicación detenida")
}
