package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-api/internal/application/billing"
	"github.com/jhoicas/Facturacion-api/internal/application/dto"
	"github.com/jhoicas/Facturacion-api/internal/domain"
	domainbilling "github.com/jhoicas/Facturacion-api/internal/domain/billing"
)

// DocumentHandler maneja las peticiones HTTP de comprobantes (protegido).
type DocumentHandler struct {
	uc    *billing.CreateDocumentUseCase
	pdfUC *billing.PDFUseCase
}

// NewDocumentHandler construye el handler.
func NewDocumentHandler(uc *billing.CreateDocumentUseCase, pdfUC *billing.PDFUseCase) *DocumentHandler {
	return &DocumentHandler{uc: uc, pdfUC: pdfUC}
}

// Create emite un comprobante: asigna el correlativo y lo despacha a SUNAT.
// POST /api/documents
func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.CreateDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	doc, err := h.uc.CreateDocument(c.Context(), companyID, in)
	if err != nil {
		return mapDomainError(c, err, "comprobante")
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// GetByID obtiene el detalle completo de un comprobante.
// GET /api/documents/:id
func (h *DocumentHandler) GetByID(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	doc, err := h.uc.GetDocument(c.Context(), companyID, id)
	if err != nil {
		return mapDomainError(c, err, "comprobante")
	}
	return c.JSON(doc)
}

// Status devuelve la vista ligera de estado para polling del frontend.
// GET /api/documents/:id/status
func (h *DocumentHandler) Status(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	st, err := h.uc.GetStatus(c.Context(), companyID, id)
	if err != nil {
		return mapDomainError(c, err, "comprobante")
	}
	return c.JSON(st)
}

// List lista comprobantes de un establecimiento (paginado).
// GET /api/documents?establishment_id=...&limit=...&offset=...
func (h *DocumentHandler) List(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	establishmentID := c.Query("establishment_id")
	if establishmentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "establishment_id requerido"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	docs, err := h.uc.ListDocuments(c.Context(), companyID, establishmentID, page)
	if err != nil {
		return mapDomainError(c, err, "establecimiento")
	}
	return c.JSON(docs)
}

// DownloadPDF descarga la representación impresa del comprobante.
// GET /api/documents/:id/pdf
func (h *DocumentHandler) DownloadPDF(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	pdfBytes, filename, err := h.pdfUC.DownloadDocumentPDF(c.Context(), companyID, id)
	if err != nil {
		return mapDomainError(c, err, "comprobante")
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(pdfBytes)
}

// mapDomainError traduce errores de dominio a respuestas HTTP. Las
// violaciones de validación incluyen el detalle por campo.
func mapDomainError(c *fiber.Ctx, err error, resource string) error {
	var verr *domainbilling.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "VALIDATION", Message: "datos inválidos", Fields: verr.Fields,
		})
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: resource + " no encontrado"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	case errors.Is(err, domain.ErrAllocationContention):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "ALLOCATION_CONTENTION", Message: "numeración en disputa, reintente la operación"})
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
