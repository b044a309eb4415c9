package billing

import (
	"context"
	"fmt"

	"github.com/jhoicas/Facturacion-api/internal/domain"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

// DocumentPDFGenerator es el puerto de generación de la representación
// impresa del comprobante. La implementación concreta vive en infraestructura.
type DocumentPDFGenerator interface {
	GenerateDocumentPDF(ctx context.Context, doc *entity.Document, company *entity.Company, items []*entity.DocumentItem) ([]byte, error)
}

// PDFUseCase genera la representación impresa (PDF) de un comprobante.
// Solo se permite cuando SUNAT ya lo aceptó: un DRAFT o un pendiente aún no
// tiene validez y un REJECTED nunca la tendrá.
type PDFUseCase struct {
	docRepo     repository.DocumentRepository
	companyRepo repository.CompanyRepository
	generator   DocumentPDFGenerator
}

// NewPDFUseCase construye el caso de uso inyectando sus dependencias.
func NewPDFUseCase(
	docRepo repository.DocumentRepository,
	companyRepo repository.CompanyRepository,
	generator DocumentPDFGenerator,
) *PDFUseCase {
	return &PDFUseCase{
		docRepo:     docRepo,
		companyRepo: companyRepo,
		generator:   generator,
	}
}

// DownloadDocumentPDF recupera el comprobante completo, verifica que ya fue
// aceptado por SUNAT y genera el PDF.
//
// Retorna:
//   - (pdfBytes, filename, nil)  si todo sale bien.
//   - domain.ErrNotFound         si el comprobante no existe.
//   - domain.ErrForbidden        si no pertenece a la empresa del token.
//   - domain.ErrInvalidInput     si aún no fue aceptado (o fue rechazado).
func (uc *PDFUseCase) DownloadDocumentPDF(
	ctx context.Context,
	companyID, documentID string,
) (pdfBytes []byte, filename string, err error) {
	doc, err := uc.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener comprobante: %w", err)
	}
	if doc == nil {
		return nil, "", domain.ErrNotFound
	}
	if doc.CompanyID != companyID {
		return nil, "", domain.ErrForbidden
	}

	switch doc.State {
	case entity.StateAccepted, entity.StateVoidPending, entity.StateVoided:
		// aceptado por SUNAT en algún momento: imprimible
	default:
		return nil, "", fmt.Errorf("%w: el comprobante está en estado %s, no tiene representación impresa",
			domain.ErrInvalidInput, doc.State)
	}

	company, err := uc.companyRepo.GetByID(ctx, companyID)
	if err != nil || company == nil {
		return nil, "", fmt.Errorf("pdf: obtener empresa: %w", err)
	}
	items, err := uc.docRepo.GetItems(ctx, documentID)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: obtener líneas: %w", err)
	}

	pdfBytes, err = uc.generator.GenerateDocumentPDF(ctx, doc, company, items)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generación fallida: %w", err)
	}

	filename = fmt.Sprintf("comprobante_%s.pdf", doc.FullNumber())
	return pdfBytes, filename, nil
}
