package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// CorrectionHandler maneja las correcciones de inventario (conteo físico + aprobación).
type CorrectionHandler struct {
	uc  *inventory.CorrectionUseCase
	log zerolog.Logger
}

// NewCorrectionHandler construye el handler.
func NewCorrectionHandler(uc *inventory.CorrectionUseCase, log zerolog.Logger) *CorrectionHandler {
	return &CorrectionHandler{uc: uc, log: log}
}

// Create godoc
// @Summary      Solicitar corrección de inventario
// @Description  Guarda el conteo físico y la foto del saldo actual. No mueve stock.
// @Tags         corrections
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                       false  "Llave para deduplicar reintentos"
// @Param        body             body    dto.CreateCorrectionRequest  true   "Conteo físico"
// @Success      201  {object}  dto.CorrectionResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/corrections [post]
func (h *CorrectionHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateCorrectionRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	out, err := h.uc.CreateCorrection(c.UserContext(), inventory.CreateCorrectionInput{
		Actor:         GetActor(c),
		ProductID:     in.ProductID,
		VariationID:   in.VariationID,
		LocationID:    in.LocationID,
		PhysicalCount: in.PhysicalCount,
		Reason:        in.Reason,
		Remarks:       in.Remarks,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toCorrectionResponse(out))
}

// List godoc
// @Summary      Listar correcciones
// @Tags         corrections
// @Security     Bearer
// @Produce      json
// @Param        status  query  string  false  "pending | approved"
// @Param        limit   query  int     false  "Límite (default 20)"
// @Param        offset  query  int     false  "Desplazamiento"
// @Success      200  {object}  dto.CorrectionListResponse
// @Router       /api/corrections [get]
func (h *CorrectionHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	list, err := h.uc.ListCorrections(c.UserContext(), GetBusinessID(c), c.Query("status"), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	items := make([]dto.CorrectionResponse, 0, len(list))
	for _, item := range list {
		items = append(items, toCorrectionResponse(item))
	}
	return c.JSON(dto.CorrectionListResponse{Items: items, Page: dto.PageResponse{Limit: page.Limit, Offset: page.Offset}})
}

// GetByID godoc
// @Summary      Obtener corrección
// @Tags         corrections
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID de la corrección"
// @Success      200  {object}  dto.CorrectionResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/corrections/{id} [get]
func (h *CorrectionHandler) GetByID(c *fiber.Ctx) error {
	out, err := h.uc.GetCorrection(c.UserContext(), GetBusinessID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(toCorrectionResponse(out))
}

// Approve godoc
// @Summary      Aprobar corrección
// @Description  Aplica physical_count menos el saldo vivo como asiento "correction". Solo admin o manager.
// @Tags         corrections
// @Security     Bearer
// @Produce      json
// @Param        Idempotency-Key  header  string  false  "Llave para deduplicar reintentos"
// @Param        id               path    string  true   "ID de la corrección"
// @Success      200  {object}  dto.ApprovalResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/corrections/{id}/approve [post]
func (h *CorrectionHandler) Approve(c *fiber.Ctx) error {
	res, err := h.uc.ApproveCorrection(c.UserContext(), c.Params("id"), GetActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.ApprovalResponse{
		CorrectionID:    res.CorrectionID,
		TransactionID:   res.TransactionID,
		PreviousBalance: res.PreviousBalance,
		Adjustment:      res.Adjustment,
		NewBalance:      res.NewBalance,
		ApprovedAt:      res.ApprovedAt,
	})
}

func toCorrectionResponse(c *entity.InventoryCorrection) dto.CorrectionResponse {
	return dto.CorrectionResponse{
		ID:                       c.ID,
		ProductID:                c.ProductID,
		VariationID:              c.VariationID,
		LocationID:               c.LocationID,
		SystemCountAtRequestTime: c.SystemCountAtRequestTime,
		PhysicalCount:            c.PhysicalCount,
		Difference:               c.Difference,
		Reason:                   c.Reason,
		Remarks:                  c.Remarks,
		Status:                   c.Status,
		RequestedBy:              c.RequestedBy,
		ApproverID:               c.ApproverID,
		ApprovedAt:               c.ApprovedAt,
		LinkedTransactionID:      c.LinkedTransactionID,
		CreatedAt:                c.CreatedAt,
	}
}
