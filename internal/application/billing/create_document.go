package billing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Facturacion-api/internal/application/dto"
	"github.com/jhoicas/Facturacion-api/internal/domain"
	domainbilling "github.com/jhoicas/Facturacion-api/internal/domain/billing"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
	"github.com/jhoicas/Facturacion-api/pkg/logger"
)

// maxAllocAttempts intentos de reserva de correlativo ante contención.
const maxAllocAttempts = 3

// CreateDocumentUseCase emite comprobantes: valida el payload, reserva el
// correlativo y persiste el DRAFT en una sola transacción, y despacha el envío
// a SUNAT según la configuración del establecimiento. El caller siempre recibe
// el comprobante con su número legal asignado, incluso en modo asíncrono.
type CreateDocumentUseCase struct {
	txRunner   TxRunner
	companyRepo repository.CompanyRepository
	estRepo    repository.EstablishmentRepository
	docRepo    repository.DocumentRepository
	dispatcher *Dispatcher
	log        *logger.Logger
}

// NewCreateDocumentUseCase construye el caso de uso.
func NewCreateDocumentUseCase(
	txRunner TxRunner,
	companyRepo repository.CompanyRepository,
	estRepo repository.EstablishmentRepository,
	docRepo repository.DocumentRepository,
	dispatcher *Dispatcher,
	log *logger.Logger,
) *CreateDocumentUseCase {
	return &CreateDocumentUseCase{
		txRunner:    txRunner,
		companyRepo: companyRepo,
		estRepo:     estRepo,
		docRepo:     docRepo,
		dispatcher:  dispatcher,
		log:         log,
	}
}

// CreateDocument crea el comprobante y lo despacha.
//
// Errores de asignación y validación se devuelven síncronos al caller; los
// resultados del lado de SUNAT descubiertos en asíncrono nunca: quedan en el
// comprobante y salen por el canal de auditoría.
func (uc *CreateDocumentUseCase) CreateDocument(ctx context.Context, companyID string, in dto.CreateDocumentRequest) (*dto.DocumentResponse, error) {
	company, err := uc.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("obtener empresa: %w", err)
	}
	if company == nil {
		return nil, domain.ErrNotFound
	}

	est, err := uc.estRepo.GetByID(ctx, in.EstablishmentID)
	if err != nil {
		return nil, fmt.Errorf("obtener establecimiento: %w", err)
	}
	if est == nil {
		return nil, domain.ErrNotFound
	}
	if est.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}

	now := time.Now()
	doc := &entity.Document{
		ID:               uuid.New().String(),
		CompanyID:        companyID,
		EstablishmentID:  in.EstablishmentID,
		POSTerminalID:    in.POSTerminalID,
		DocumentTypeCode: in.DocumentTypeCode,
		Series:           in.Series,
		CustomerName:     in.CustomerName,
		CustomerDoc:      in.CustomerDoc,
		Currency:         in.Currency,
		State:            entity.StateDraft,
		IssuedAt:         now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	items := make([]*entity.DocumentItem, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, &entity.DocumentItem{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			Description: it.Description,
			UnitCode:    it.UnitCode,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
		})
	}
	doc.NetTotal, doc.TaxTotal, doc.GrandTotal = domainbilling.ComputeTotals(items)

	if err := domainbilling.ValidateDocument(doc, items); err != nil {
		return nil, err
	}

	if err := uc.reserveAndPersist(ctx, doc, items); err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("document_id", doc.ID).
		Str("number", doc.FullNumber()).
		Str("type", doc.DocumentTypeCode).
		Msg("comprobante creado")

	// El despacho nunca deshace la creación: el número ya está comprometido.
	if err := uc.dispatcher.DispatchDocument(ctx, doc, items); err != nil {
		uc.log.Error().Err(err).Str("document_id", doc.ID).Msg("despacho de envío")
	}

	return toDocumentResponse(doc, items), nil
}

// reserveAndPersist reserva el correlativo y guarda DRAFT + líneas en una
// transacción. Si el índice único detecta que dos transacciones calcularon el
// mismo número, la perdedora reintenta completa con número fresco, hasta
// maxAllocAttempts, antes de rendirse con ErrAllocationContention.
func (uc *CreateDocumentUseCase) reserveAndPersist(ctx context.Context, doc *entity.Document, items []*entity.DocumentItem) error {
	key := doc.SequenceKey()
	var lastErr error
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		if attempt > 0 {
			// backoff con jitter para desincronizar a los competidores
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(10+rand.Intn(40)) * time.Millisecond * time.Duration(attempt)):
			}
		}
		lastErr = uc.txRunner.RunDocument(ctx, func(
			docRepo repository.DocumentRepository,
			seqRepo repository.SequenceRepository,
		) error {
			n, err := seqRepo.NextCorrelativo(ctx, key)
			if err != nil {
				return fmt.Errorf("reservar correlativo: %w", err)
			}
			doc.Correlativo = n
			if err := docRepo.Create(ctx, doc); err != nil {
				return err
			}
			for _, item := range items {
				if err := docRepo.CreateItem(ctx, item); err != nil {
					return err
				}
			}
			return nil
		})
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, domain.ErrDuplicateNumber) {
			return lastErr
		}
		uc.log.Warn().
			Str("series", key.Series).
			Int64("correlativo", doc.Correlativo).
			Int("attempt", attempt+1).
			Msg("correlativo en disputa, reintentando")
	}
	return fmt.Errorf("%w: %v", domain.ErrAllocationContention, lastErr)
}

// GetDocument obtiene un comprobante por ID con su detalle completo.
func (uc *CreateDocumentUseCase) GetDocument(ctx context.Context, companyID, id string) (*dto.DocumentResponse, error) {
	doc, err := uc.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	if doc.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	items, err := uc.docRepo.GetItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDocumentResponse(doc, items), nil
}

// GetStatus devuelve la vista ligera para polling del frontend.
func (uc *CreateDocumentUseCase) GetStatus(ctx context.Context, companyID, id string) (*dto.DocumentStatusDTO, error) {
	doc, err := uc.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	if doc.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	return &dto.DocumentStatusDTO{
		ID:               doc.ID,
		State:            doc.State,
		AttemptCount:     doc.AttemptCount,
		LastAttemptAt:    doc.LastAttemptAt,
		AuthorityCode:    doc.AuthorityCode,
		AuthorityMessage: doc.AuthorityMessage,
	}, nil
}

// ListDocuments lista comprobantes de un establecimiento (paginado).
func (uc *CreateDocumentUseCase) ListDocuments(ctx context.Context, companyID, establishmentID string, page dto.PageRequest) ([]*dto.DocumentResponse, error) {
	est, err := uc.estRepo.GetByID(ctx, establishmentID)
	if err != nil {
		return nil, err
	}
	if est == nil {
		return nil, domain.ErrNotFound
	}
	if est.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	page.DefaultPage()
	docs, err := uc.docRepo.ListByEstablishment(ctx, establishmentID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d, nil))
	}
	return out, nil
}

func toDocumentResponse(doc *entity.Document, items []*entity.DocumentItem) *dto.DocumentResponse {
	resp := &dto.DocumentResponse{
		ID:               doc.ID,
		CompanyID:        doc.CompanyID,
		EstablishmentID:  doc.EstablishmentID,
		POSTerminalID:    doc.POSTerminalID,
		DocumentTypeCode: doc.DocumentTypeCode,
		Series:           doc.Series,
		Correlativo:      doc.Correlativo,
		FullNumber:       doc.FullNumber(),
		CustomerName:     doc.CustomerName,
		CustomerDoc:      doc.CustomerDoc,
		Currency:         doc.Currency,
		NetTotal:         doc.NetTotal,
		TaxTotal:         doc.TaxTotal,
		GrandTotal:       doc.GrandTotal,
		State:            doc.State,
		SubmissionMode:   doc.SubmissionMode,
		AuthorityCode:    doc.AuthorityCode,
		AuthorityMessage: doc.AuthorityMessage,
		IssuedAt:         doc.IssuedAt.Format("2006-01-02"),
	}
	for _, it := range items {
		resp.Items = append(resp.Items, dto.DocumentItemResponse{
			ID:          it.ID,
			Description: it.Description,
			UnitCode:    it.UnitCode,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
			Subtotal:    it.Subtotal,
			TaxAmount:   it.TaxAmount,
		})
	}
	return resp
}
