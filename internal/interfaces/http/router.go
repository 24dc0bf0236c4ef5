package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/stock-ledger/internal/application/idempotency"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// Nombres de endpoint con los que se registra cada reclamo de idempotencia.
const (
	EndpointStockMutate       = "stock.mutate"
	EndpointStockTransfer     = "stock.transfer"
	EndpointCorrectionCreate  = "corrections.create"
	EndpointCorrectionApprove = "corrections.approve"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Mutation    *inventory.StockMutationService
	Corrections *inventory.CorrectionUseCase
	Guard       *idempotency.Guard // nil = sin deduplicación
	JWTSecret   string
	Log         zerolog.Logger
}

// Router registra las rutas de la API. Todas requieren Bearer Token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	stock := api.Group("/stock")
	stockHandler := NewStockHandler(deps.Mutation, deps.Log)
	stock.Post("/mutations", Idempotent(deps.Guard, EndpointStockMutate, deps.Log), stockHandler.Mutate)
	stock.Post("/transfers", Idempotent(deps.Guard, EndpointStockTransfer, deps.Log), stockHandler.Transfer)
	stock.Get("/balance", stockHandler.GetBalance)
	stock.Get("/availability", stockHandler.CheckAvailability)
	stock.Get("/transactions", stockHandler.ListTransactions)
	stock.Get("/verify", stockHandler.Verify)

	corrections := api.Group("/corrections")
	correctionHandler := NewCorrectionHandler(deps.Corrections, deps.Log)
	corrections.Post("/", Idempotent(deps.Guard, EndpointCorrectionCreate, deps.Log), correctionHandler.Create)
	corrections.Get("/", correctionHandler.List)
	corrections.Get("/:id", correctionHandler.GetByID)
	corrections.Post("/:id/approve",
		RequireRole(entity.RoleAdmin, entity.RoleManager),
		Idempotent(deps.Guard, EndpointCorrectionApprove, deps.Log),
		correctionHandler.Approve,
	)
}
