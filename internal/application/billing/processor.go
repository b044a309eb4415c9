package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/application/worker"
	"github.com/jhoicas/Facturacion-api/internal/domain"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
	"github.com/jhoicas/Facturacion-api/pkg/logger"
)

// SubmitProcessor es el consumidor de la cola de envíos: ejecuta las llamadas
// al WS SUNAT que el dispatcher dejó pendientes y aplica el resultado sobre el
// comprobante o la comunicación de baja.
//
// Es idempotente por diseño: antes de cada intento relee el estado fresco de
// la DB y descarta la tarea si otro actor ya la resolvió (entrega
// al-menos-una-vez del pool).
type SubmitProcessor struct {
	docRepo     repository.DocumentRepository
	cancelRepo  repository.CancellationRepository
	companyRepo repository.CompanyRepository
	submitter   Submitter
	trans       *transitioner
	log         *logger.Logger
}

var _ worker.Handler = (*SubmitProcessor)(nil)

// NewSubmitProcessor construye el procesador.
func NewSubmitProcessor(
	docRepo repository.DocumentRepository,
	cancelRepo repository.CancellationRepository,
	companyRepo repository.CompanyRepository,
	submitter Submitter,
	publisher EventPublisher,
	log *logger.Logger,
) *SubmitProcessor {
	return &SubmitProcessor{
		docRepo:     docRepo,
		cancelRepo:  cancelRepo,
		companyRepo: companyRepo,
		submitter:   submitter,
		trans:       &transitioner{docRepo: docRepo, publisher: publisher},
		log:         log,
	}
}

// Handle procesa una tarea. Devuelve un error que envuelve
// domain.ErrAuthorityUnavailable para que el pool programe el reintento.
func (p *SubmitProcessor) Handle(ctx context.Context, t worker.Task) error {
	switch t.Kind {
	case worker.KindDocument:
		return p.handleDocument(ctx, t)
	case worker.KindCancellation:
		return p.handleCancellation(ctx, t)
	default:
		return fmt.Errorf("tipo de tarea desconocido: %q", t.Kind)
	}
}

func (p *SubmitProcessor) handleDocument(ctx context.Context, t worker.Task) error {
	doc, err := p.docRepo.GetByID(ctx, t.RefID)
	if err != nil {
		return fmt.Errorf("releer comprobante: %w", err)
	}
	if doc == nil {
		return nil
	}
	switch doc.State {
	case entity.StateDraft:
		// numerado y confirmado pero nunca despachado (caída del proceso
		// antes del dispatch); se retoma por el camino asíncrono
		doc.SubmissionMode = entity.SubmissionModeScheduled
		if err := p.trans.apply(ctx, doc, entity.StateSubmittedPending, "", ""); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil
			}
			return err
		}
	case entity.StateSubmittedPending:
		// sigue pendiente, continuar con el envío
	default:
		// resuelto por un intento previo o por intervención manual
		return nil
	}
	items, err := p.docRepo.GetItems(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("leer líneas: %w", err)
	}
	company, err := p.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil || company == nil {
		return fmt.Errorf("obtener empresa %s: %w", doc.CompanyID, err)
	}

	res, err := p.submitter.SubmitDocument(ctx, company, doc, items)
	p.recordAttempt(ctx, doc)
	if err != nil {
		return fmt.Errorf("envío comprobante %s: %w", doc.FullNumber(), err)
	}

	to := entity.StateRejected
	if res.Accepted {
		to = entity.StateAccepted
	}
	if err := p.trans.apply(ctx, doc, to, res.Code, res.Message); err != nil {
		if errors.Is(err, domain.ErrConflict) || doc.State != entity.StateSubmittedPending {
			// otro actor resolvió entre la lectura y el CAS: no-op
			p.log.Debug().Str("document_id", doc.ID).Msg("transición perdió el CAS, descartando")
			return nil
		}
		return err
	}
	p.log.Info().
		Str("document_id", doc.ID).
		Str("number", doc.FullNumber()).
		Str("state", to).
		Str("code", res.Code).
		Msg("comprobante resuelto por SUNAT")
	return nil
}

func (p *SubmitProcessor) handleCancellation(ctx context.Context, t worker.Task) error {
	req, err := p.cancelRepo.GetByID(ctx, t.RefID)
	if err != nil {
		return fmt.Errorf("releer comunicación de baja: %w", err)
	}
	if req == nil || req.State != entity.CancellationPending {
		return nil
	}
	doc, err := p.docRepo.GetByID(ctx, req.DocumentID)
	if err != nil || doc == nil {
		return fmt.Errorf("obtener comprobante %s: %w", req.DocumentID, err)
	}
	if doc.State != entity.StateVoidPending {
		// inconsistencia (intervención manual); se deja para revisión
		p.log.Warn().
			Str("cancellation_id", req.ID).
			Str("document_state", doc.State).
			Msg("baja pendiente con comprobante fuera de VOID_PENDING")
		return nil
	}
	company, err := p.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil || company == nil {
		return fmt.Errorf("obtener empresa %s: %w", doc.CompanyID, err)
	}

	res, err := p.submitter.SubmitCancellation(ctx, company, req, doc)
	p.recordCancellationAttempt(ctx, req)
	if err != nil {
		return fmt.Errorf("envío baja %s: %w", req.Identifier(), err)
	}

	req.AuthorityCode = res.Code
	req.AuthorityMessage = res.Message
	if res.Accepted {
		req.State = entity.CancellationAccepted
	} else {
		req.State = entity.CancellationRejected
	}
	if err := p.cancelRepo.Resolve(ctx, req); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil
		}
		return err
	}
	to := entity.StateAccepted // rechazo: la baja no surtió efecto
	if res.Accepted {
		to = entity.StateVoided
	}
	if err := p.trans.apply(ctx, doc, to, res.Code, res.Message); err != nil && !errors.Is(err, domain.ErrConflict) {
		return err
	}
	p.log.Info().
		Str("cancellation_id", req.ID).
		Str("identifier", req.Identifier()).
		Str("state", req.State).
		Msg("comunicación de baja resuelta por SUNAT")
	return nil
}

// Exhaust marca el registro con SubmissionExhausted cuando el presupuesto de
// reintentos se agota. Fatal para el documento, no para el sistema: queda
// visible para revisión manual del operador, nunca se descarta en silencio.
func (p *SubmitProcessor) Exhaust(ctx context.Context, t worker.Task) {
	switch t.Kind {
	case worker.KindDocument:
		doc, err := p.docRepo.GetByID(ctx, t.RefID)
		if err != nil || doc == nil || doc.State != entity.StateSubmittedPending {
			return
		}
		if err := p.trans.apply(ctx, doc, entity.StateRejected,
			entity.AuthorityCodeExhausted, "reintentos de envío agotados, requiere revisión manual"); err != nil {
			p.log.Error().Err(err).Str("document_id", doc.ID).Msg("marcar SubmissionExhausted")
		}
	case worker.KindCancellation:
		req, err := p.cancelRepo.GetByID(ctx, t.RefID)
		if err != nil || req == nil || req.State != entity.CancellationPending {
			return
		}
		req.State = entity.CancellationRejected
		req.AuthorityCode = entity.AuthorityCodeExhausted
		req.AuthorityMessage = "reintentos de envío agotados, requiere revisión manual"
		if err := p.cancelRepo.Resolve(ctx, req); err != nil {
			p.log.Error().Err(err).Str("cancellation_id", req.ID).Msg("marcar SubmissionExhausted")
			return
		}
		if doc, derr := p.docRepo.GetByID(ctx, req.DocumentID); derr == nil && doc != nil && doc.State == entity.StateVoidPending {
			_ = p.trans.apply(ctx, doc, entity.StateAccepted,
				entity.AuthorityCodeExhausted, "baja sin respuesta de SUNAT")
		}
	}
}

// RescanPending repuebla la cola con los pendientes varados (reinicio del
// proceso, tareas perdidas), incluidos los DRAFT que quedaron numerados sin
// llegar a despacharse. La DB es la fuente de verdad; encolar dos veces es
// inocuo porque el consumidor es idempotente.
func (p *SubmitProcessor) RescanPending(ctx context.Context, queue TaskQueue, olderThan time.Time, limit int) error {
	docs, err := p.docRepo.ListStalePending(ctx, olderThan, limit)
	if err != nil {
		return fmt.Errorf("rescan comprobantes: %w", err)
	}
	for _, doc := range docs {
		if doc.State == entity.StateVoidPending {
			continue // se recuperan vía sus comunicaciones de baja
		}
		queue.Enqueue(worker.Task{
			Kind:    worker.KindDocument,
			RefID:   doc.ID,
			LaneKey: doc.SequenceKey().String(),
			Attempt: doc.AttemptCount,
		})
	}
	reqs, err := p.cancelRepo.ListStalePending(ctx, olderThan, limit)
	if err != nil {
		return fmt.Errorf("rescan bajas: %w", err)
	}
	for _, req := range reqs {
		doc, derr := p.docRepo.GetByID(ctx, req.DocumentID)
		if derr != nil || doc == nil {
			continue
		}
		queue.Enqueue(worker.Task{
			Kind:    worker.KindCancellation,
			RefID:   req.ID,
			LaneKey: doc.SequenceKey().String(),
			Attempt: req.AttemptCount,
		})
	}
	if n := len(docs) + len(reqs); n > 0 {
		p.log.Info().Int("count", n).Msg("pendientes varados reencolados")
	}
	return nil
}

func (p *SubmitProcessor) recordAttempt(ctx context.Context, doc *entity.Document) {
	now := time.Now()
	doc.AttemptCount++
	doc.LastAttemptAt = &now
	if err := p.docRepo.RecordAttempt(ctx, doc); err != nil {
		p.log.Error().Err(err).Str("document_id", doc.ID).Msg("persistir intento de envío")
	}
}

func (p *SubmitProcessor) recordCancellationAttempt(ctx context.Context, req *entity.CancellationRequest) {
	now := time.Now()
	req.AttemptCount++
	req.LastAttemptAt = &now
	if err := p.cancelRepo.RecordAttempt(ctx, req); err != nil {
		p.log.Error().Err(err).Str("cancellation_id", req.ID).Msg("persistir intento de envío")
	}
}
