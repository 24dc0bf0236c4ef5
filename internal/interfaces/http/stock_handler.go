package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockHandler maneja mutaciones, traslados y consultas de stock (protegido).
type StockHandler struct {
	svc *inventory.StockMutationService
	log zerolog.Logger
}

// NewStockHandler construye el handler.
func NewStockHandler(svc *inventory.StockMutationService, log zerolog.Logger) *StockHandler {
	return &StockHandler{svc: svc, log: log}
}

// Mutate godoc
// @Summary      Registrar mutación de stock
// @Description  Aplica una cantidad con signo y escribe el asiento del ledger en la misma transacción.
// @Tags         stock
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string               false  "Llave para deduplicar reintentos"
// @Param        body             body    dto.MutationRequest  true   "type, product_id, variation_id, location_id, quantity"
// @Success      201  {object}  dto.MutationResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.InsufficientStockResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      429  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/stock/mutations [post]
func (h *StockHandler) Mutate(c *fiber.Ctx) error {
	actor := GetActor(c)
	var in dto.MutationRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	res, err := h.svc.Mutate(c.UserContext(), inventory.MutationInput{
		Actor:         actor,
		ProductID:     in.ProductID,
		VariationID:   in.VariationID,
		LocationID:    in.LocationID,
		Type:          entity.TransactionType(in.Type),
		Quantity:      in.Quantity,
		UnitCost:      in.UnitCost,
		Reference:     entity.Reference{Type: in.ReferenceType, ID: in.ReferenceID},
		Notes:         in.Notes,
		AllowNegative: in.AllowNegative,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toMutationResponse(res, in.VariationID, in.LocationID))
}

// Transfer godoc
// @Summary      Trasladar stock entre ubicaciones
// @Tags         stock
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string               false  "Llave para deduplicar reintentos"
// @Param        body             body    dto.TransferRequest  true   "from_location_id, to_location_id, quantity > 0"
// @Success      201  {object}  dto.TransferResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.InsufficientStockResponse
// @Router       /api/stock/transfers [post]
func (h *StockHandler) Transfer(c *fiber.Ctx) error {
	var in dto.TransferRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	res, err := h.svc.Transfer(c.UserContext(), inventory.TransferInput{
		Actor:          GetActor(c),
		ProductID:      in.ProductID,
		VariationID:    in.VariationID,
		FromLocationID: in.FromLocationID,
		ToLocationID:   in.ToLocationID,
		Quantity:       in.Quantity,
		Reference:      entity.Reference{Type: in.ReferenceType, ID: in.ReferenceID},
		Notes:          in.Notes,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.TransferResponse{
		Out: toMutationResponse(&res.Out, in.VariationID, in.FromLocationID),
		In:  toMutationResponse(&res.In, in.VariationID, in.ToLocationID),
	})
}

// GetBalance godoc
// @Summary      Saldo actual
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        variation_id  query  string  true  "Variación"
// @Param        location_id   query  string  true  "Ubicación"
// @Success      200  {object}  dto.BalanceResponse
// @Router       /api/stock/balance [get]
func (h *StockHandler) GetBalance(c *fiber.Ctx) error {
	b, err := h.svc.GetBalance(c.UserContext(), stockKey(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := dto.BalanceResponse{
		ProductID:         b.ProductID,
		VariationID:       b.VariationID,
		LocationID:        b.LocationID,
		QuantityAvailable: b.QuantityAvailable,
		AverageUnitCost:   b.AverageUnitCost,
	}
	if !b.LastUpdatedAt.IsZero() {
		t := b.LastUpdatedAt
		out.LastUpdatedAt = &t
	}
	return c.JSON(out)
}

// CheckAvailability godoc
// @Summary      Consultar disponibilidad (sin efectos)
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        variation_id  query  string  true  "Variación"
// @Param        location_id   query  string  true  "Ubicación"
// @Param        required      query  string  true  "Cantidad requerida"
// @Success      200  {object}  dto.AvailabilityResponse
// @Router       /api/stock/availability [get]
func (h *StockHandler) CheckAvailability(c *fiber.Ctx) error {
	required, err := decimal.NewFromString(c.Query("required"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "required debe ser numérico"})
	}
	a, err := h.svc.CheckAvailability(c.UserContext(), stockKey(c), required)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.AvailabilityResponse{
		Available:    a.Available,
		CurrentStock: a.CurrentStock,
		Required:     required,
		Shortage:     a.Shortage,
	})
}

// ListTransactions godoc
// @Summary      Historial del ledger
// @Description  Por llave (variation_id + location_id) o por documento (reference_type + reference_id).
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        variation_id    query  string  false  "Variación"
// @Param        location_id     query  string  false  "Ubicación"
// @Param        reference_type  query  string  false  "Tipo de documento"
// @Param        reference_id    query  string  false  "ID de documento"
// @Param        limit           query  int     false  "Límite (default 20)"
// @Param        offset          query  int     false  "Desplazamiento"
// @Success      200  {object}  dto.TransactionListResponse
// @Router       /api/stock/transactions [get]
func (h *StockHandler) ListTransactions(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()

	var (
		list []*entity.StockTransaction
		err  error
	)
	if refID := c.Query("reference_id"); refID != "" {
		list, err = h.svc.ListByReference(c.UserContext(), GetBusinessID(c), entity.Reference{Type: c.Query("reference_type"), ID: refID})
	} else {
		list, err = h.svc.ListTransactions(c.UserContext(), stockKey(c), page.Limit, page.Offset)
	}
	if err != nil {
		return respondError(c, h.log, err)
	}
	items := make([]dto.TransactionDTO, 0, len(list))
	for _, t := range list {
		items = append(items, toTransactionDTO(t))
	}
	return c.JSON(dto.TransactionListResponse{Items: items, Page: dto.PageResponse{Limit: page.Limit, Offset: page.Offset}})
}

// Verify godoc
// @Summary      Verificar saldo contra ledger
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        variation_id  query  string  true  "Variación"
// @Param        location_id   query  string  true  "Ubicación"
// @Success      200  {object}  dto.VerificationResponse
// @Router       /api/stock/verify [get]
func (h *StockHandler) Verify(c *fiber.Ctx) error {
	v, err := h.svc.VerifyBalance(c.UserContext(), stockKey(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := dto.VerificationResponse{
		VariationID: v.Key.VariationID,
		LocationID:  v.Key.LocationID,
		Balance:     v.Balance,
		LedgerSum:   v.LedgerSum,
		EntryCount:  v.EntryCount,
		Consistent:  v.Consistent,
	}
	if v.ChainBreak != nil {
		out.ChainBreak = &dto.ChainBreakDTO{
			TransactionID: v.ChainBreak.TransactionID,
			Expected:      v.ChainBreak.Expected,
			Recorded:      v.ChainBreak.Recorded,
		}
	}
	return c.JSON(out)
}

func stockKey(c *fiber.Ctx) entity.StockKey {
	return entity.StockKey{
		BusinessID:  GetBusinessID(c),
		VariationID: c.Query("variation_id"),
		LocationID:  c.Query("location_id"),
	}
}

func toMutationResponse(r *inventory.MutationResult, variationID, locationID string) dto.MutationResponse {
	return dto.MutationResponse{
		TransactionID:   r.TransactionID,
		Sequence:        r.Sequence,
		ProductID:       r.ProductID,
		VariationID:     variationID,
		LocationID:      locationID,
		PreviousBalance: r.PreviousBalance,
		NewBalance:      r.NewBalance,
		CreatedAt:       r.CreatedAt,
	}
}

func toTransactionDTO(t *entity.StockTransaction) dto.TransactionDTO {
	return dto.TransactionDTO{
		ID:               t.ID,
		Sequence:         t.Sequence,
		ProductID:        t.ProductID,
		VariationID:      t.VariationID,
		LocationID:       t.LocationID,
		Type:             string(t.Type),
		SignedQuantity:   t.SignedQuantity,
		ResultingBalance: t.ResultingBalance,
		UnitCost:         t.UnitCost,
		ReferenceType:    t.ReferenceType,
		ReferenceID:      t.ReferenceID,
		ActorID:          t.ActorID,
		ActorDisplayName: t.ActorDisplayName,
		Notes:            t.Notes,
		CreatedAt:        t.CreatedAt,
	}
}
