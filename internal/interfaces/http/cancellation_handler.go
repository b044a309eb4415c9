package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-api/internal/application/billing"
	"github.com/jhoicas/Facturacion-api/internal/application/dto"
)

// CancellationHandler maneja las comunicaciones de baja (protegido).
type CancellationHandler struct {
	uc *billing.CancellationUseCase
}

// NewCancellationHandler construye el handler.
func NewCancellationHandler(uc *billing.CancellationUseCase) *CancellationHandler {
	return &CancellationHandler{uc: uc}
}

// Create solicita la anulación de un comprobante aceptado.
// POST /api/documents/:id/cancellation
func (h *CancellationHandler) Create(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	documentID := c.Params("id")
	if documentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	var in dto.RequestCancellationDTO
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	req, err := h.uc.RequestCancellation(c.Context(), companyID, documentID, in)
	if err != nil {
		return mapDomainError(c, err, "comprobante")
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// GetByID obtiene una comunicación de baja.
// GET /api/cancellations/:id
func (h *CancellationHandler) GetByID(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	req, err := h.uc.GetCancellation(c.Context(), companyID, id)
	if err != nil {
		return mapDomainError(c, err, "comunicación de baja")
	}
	return c.JSON(req)
}
