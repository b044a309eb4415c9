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

// maxCommunicationNumber tope del contador de 5 caracteres (RA-YYYYMMDD-99999).
const maxCommunicationNumber = 99999

// CancellationUseCase gestiona la anulación de comprobantes ya aceptados:
// reserva el número de comunicación, registra la solicitud en PENDING y mueve
// el comprobante a VOID_PENDING en una sola transacción, y luego despacha el
// envío igual que la emisión.
type CancellationUseCase struct {
	txRunner   TxRunner
	docRepo    repository.DocumentRepository
	cancelRepo repository.CancellationRepository
	dispatcher *Dispatcher
	publisher  EventPublisher
	log        *logger.Logger
}

// NewCancellationUseCase construye el caso de uso.
func NewCancellationUseCase(
	txRunner TxRunner,
	docRepo repository.DocumentRepository,
	cancelRepo repository.CancellationRepository,
	dispatcher *Dispatcher,
	publisher EventPublisher,
	log *logger.Logger,
) *CancellationUseCase {
	return &CancellationUseCase{
		txRunner:   txRunner,
		docRepo:    docRepo,
		cancelRepo: cancelRepo,
		dispatcher: dispatcher,
		publisher:  publisher,
		log:        log,
	}
}

// RequestCancellation crea la comunicación de baja de un comprobante ACCEPTED.
//
// Solo los comprobantes aceptados se anulan ante SUNAT: un DRAFT o un REJECTED
// nunca existió para la autoridad, de modo que pedir su baja es un error de
// validación, no una transición. Un comprobante ya en VOID_PENDING tampoco
// admite una segunda comunicación en vuelo.
func (uc *CancellationUseCase) RequestCancellation(ctx context.Context, companyID, documentID string, in dto.RequestCancellationDTO) (*dto.CancellationResponse, error) {
	if in.Motivo == "" {
		return nil, &domainbilling.ValidationError{Fields: []domainbilling.FieldError{
			{Field: "motivo", Message: "requerido"},
		}}
	}

	doc, err := uc.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("obtener comprobante: %w", err)
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	if doc.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	if doc.State != entity.StateAccepted {
		return nil, &domainbilling.ValidationError{Fields: []domainbilling.FieldError{
			{Field: "state", Message: fmt.Sprintf("solo se anulan comprobantes aceptados, estado actual: %s", doc.State)},
		}}
	}
	if pending, err := uc.cancelRepo.GetPendingByDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("verificar baja pendiente: %w", err)
	} else if pending != nil {
		return nil, fmt.Errorf("ya existe una comunicación de baja en curso: %w", domain.ErrConflict)
	}

	now := time.Now()
	req := &entity.CancellationRequest{
		ID:                uuid.New().String(),
		CompanyID:         companyID,
		DocumentID:        documentID,
		CommunicationDate: now,
		Motivo:            in.Motivo,
		State:             entity.CancellationPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := uc.reserveAndPersist(ctx, req, doc); err != nil {
		return nil, err
	}
	uc.publisher.PublishTransition(StateTransition{
		DocumentID: doc.ID,
		From:       entity.StateAccepted,
		To:         entity.StateVoidPending,
		At:         time.Now(),
	})

	uc.log.Info().
		Str("cancellation_id", req.ID).
		Str("identifier", req.Identifier()).
		Str("document_id", doc.ID).
		Msg("comunicación de baja creada")

	// Igual que en la emisión, el despacho nunca deshace lo ya comprometido.
	if err := uc.dispatcher.DispatchCancellation(ctx, req, doc); err != nil {
		uc.log.Error().Err(err).Str("cancellation_id", req.ID).Msg("despacho de baja")
	}

	return toCancellationResponse(req), nil
}

// reserveAndPersist reserva el número de comunicación y guarda la solicitud
// junto con la transición ACCEPTED -> VOID_PENDING del comprobante, todo en
// una transacción. Reintenta con número fresco ante disputa del índice único,
// con el mismo presupuesto que el allocator de correlativos.
func (uc *CancellationUseCase) reserveAndPersist(ctx context.Context, req *entity.CancellationRequest, doc *entity.Document) error {
	var lastErr error
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(10+rand.Intn(40)) * time.Millisecond * time.Duration(attempt)):
			}
		}
		lastErr = uc.txRunner.RunCancellation(ctx, func(
			docRepo repository.DocumentRepository,
			cancelRepo repository.CancellationRepository,
			seqRepo repository.SequenceRepository,
		) error {
			n, err := seqRepo.NextCommunicationNumber(ctx, req.CompanyID, req.CommunicationDate)
			if err != nil {
				return fmt.Errorf("reservar número de comunicación: %w", err)
			}
			if n > maxCommunicationNumber {
				return fmt.Errorf("secuencia de comunicaciones agotada para el día (%d): %w", n, domain.ErrInvalidInput)
			}
			req.CommunicationNumber = fmt.Sprintf("%05d", n)
			if err := cancelRepo.Create(ctx, req); err != nil {
				return err
			}
			// CAS dentro de la tx: si otro actor movió el comprobante, el
			// rollback devuelve el número reservado al limbo y abortamos.
			doc.State = entity.StateVoidPending
			if err := docRepo.UpdateState(ctx, doc); err != nil {
				doc.State = entity.StateAccepted
				return err
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
			Str("document_id", doc.ID).
			Int("attempt", attempt+1).
			Msg("número de comunicación en disputa, reintentando")
	}
	return fmt.Errorf("%w: %v", domain.ErrAllocationContention, lastErr)
}

// GetCancellation obtiene una comunicación de baja por ID.
func (uc *CancellationUseCase) GetCancellation(ctx context.Context, companyID, id string) (*dto.CancellationResponse, error) {
	req, err := uc.cancelRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrNotFound
	}
	if req.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	return toCancellationResponse(req), nil
}

func toCancellationResponse(req *entity.CancellationRequest) *dto.CancellationResponse {
	return &dto.CancellationResponse{
		ID:                  req.ID,
		DocumentID:          req.DocumentID,
		CommunicationNumber: req.CommunicationNumber,
		Identifier:          req.Identifier(),
		Motivo:              req.Motivo,
		State:               req.State,
		AuthorityCode:       req.AuthorityCode,
		AuthorityMessage:    req.AuthorityMessage,
	}
}
