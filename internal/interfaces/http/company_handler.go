package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-api/internal/application/dto"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

// CompanyHandler expone la lectura de la empresa del token (protegido).
// El CRUD de empresas pertenece al módulo de administración.
type CompanyHandler struct {
	companyRepo repository.CompanyRepository
}

// NewCompanyHandler construye el handler.
func NewCompanyHandler(companyRepo repository.CompanyRepository) *CompanyHandler {
	return &CompanyHandler{companyRepo: companyRepo}
}

// GetByID obtiene una empresa. Solo se permite consultar la propia.
// GET /api/companies/:id
func (h *CompanyHandler) GetByID(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id != companyID {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	}
	company, err := h.companyRepo.GetByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if company == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "empresa no encontrada"})
	}
	return c.JSON(dto.CompanyResponse{
		ID:        company.ID,
		Name:      company.Name,
		RUC:       company.RUC,
		Address:   company.Address,
		TaxRegime: company.TaxRegime,
		Status:    company.Status,
	})
}
