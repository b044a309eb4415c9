package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-api/internal/application/dto"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

// EstablishmentHandler expone la configuración de envío del establecimiento
// (protegido). La configuración la muta el módulo de administración.
type EstablishmentHandler struct {
	estRepo repository.EstablishmentRepository
}

// NewEstablishmentHandler construye el handler.
func NewEstablishmentHandler(estRepo repository.EstablishmentRepository) *EstablishmentHandler {
	return &EstablishmentHandler{estRepo: estRepo}
}

// GetConfig devuelve la configuración de envío del establecimiento.
// GET /api/establishments/:id/config
func (h *EstablishmentHandler) GetConfig(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	est, err := h.estRepo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if est == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "establecimiento no encontrado"})
	}
	if est.CompanyID != companyID {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	}
	return c.JSON(dto.SubmissionConfigResponse{
		EstablishmentID:  est.ID,
		SubmissionMode:   est.SubmissionMode,
		AsyncJobsEnabled: est.AsyncJobsEnabled,
	})
}
