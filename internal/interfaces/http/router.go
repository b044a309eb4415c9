package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-api/internal/application/auth"
	"github.com/jhoicas/Facturacion-api/internal/application/billing"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AuthUC            *auth.AuthUseCase
	CreateDocument    *billing.CreateDocumentUseCase
	CancellationUC    *billing.CancellationUseCase
	PDFUC             *billing.PDFUseCase
	CompanyRepo       repository.CompanyRepository
	EstablishmentRepo repository.EstablishmentRepository
	JWTSecret         string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Auth (público)
	authGroup := api.Group("/auth")
	authHandler := NewAuthHandler(deps.AuthUC)
	authGroup.Post("/login", authHandler.Login)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Documents (protegido): emisión, consulta y anulación
	documents := protected.Group("/documents")
	documentHandler := NewDocumentHandler(deps.CreateDocument, deps.PDFUC)
	cancellationHandler := NewCancellationHandler(deps.CancellationUC)
	documents.Post("/", RequireRole(entity.RoleAdmin, entity.RoleCajero), documentHandler.Create)
	documents.Get("/", documentHandler.List)
	documents.Get("/:id", documentHandler.GetByID)
	documents.Get("/:id/status", documentHandler.Status)
	documents.Get("/:id/pdf", documentHandler.DownloadPDF)
	documents.Post("/:id/cancellation", RequireRole(entity.RoleAdmin, entity.RoleContador), cancellationHandler.Create)

	// Cancellations (protegido)
	cancellations := protected.Group("/cancellations")
	cancellations.Get("/:id", cancellationHandler.GetByID)

	// Companies (protegido, solo lectura de la propia empresa)
	companies := protected.Group("/companies")
	companyHandler := NewCompanyHandler(deps.CompanyRepo)
	companies.Get("/:id", companyHandler.GetByID)

	// Establishments (protegido, configuración de envío)
	establishments := protected.Group("/establishments")
	establishmentHandler := NewEstablishmentHandler(deps.EstablishmentRepo)
	establishments.Get("/:id/config", establishmentHandler.GetConfig)
}
