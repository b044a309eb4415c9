package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/application/worker"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
	"github.com/jhoicas/Facturacion-api/pkg/logger"
)

// Dispatcher decide, según la configuración del establecimiento, si un
// comprobante recién creado se envía a SUNAT en línea (bloqueando la petición
// de creación, con presupuesto de tiempo acotado) o se encola para el worker
// pool. El mismo criterio aplica a las comunicaciones de baja.
type Dispatcher struct {
	estRepo     repository.EstablishmentRepository
	companyRepo repository.CompanyRepository
	docRepo     repository.DocumentRepository
	cancelRepo  repository.CancellationRepository
	submitter   Submitter
	queue       TaskQueue
	trans       *transitioner
	syncTimeout time.Duration
	log         *logger.Logger
}

// NewDispatcher construye el dispatcher. syncTimeout acota el envío síncrono;
// vencido el plazo el comprobante cae al camino asíncrono en vez de colgar al
// caller.
func NewDispatcher(
	estRepo repository.EstablishmentRepository,
	companyRepo repository.CompanyRepository,
	docRepo repository.DocumentRepository,
	cancelRepo repository.CancellationRepository,
	submitter Submitter,
	queue TaskQueue,
	publisher EventPublisher,
	syncTimeout time.Duration,
	log *logger.Logger,
) *Dispatcher {
	if syncTimeout <= 0 {
		syncTimeout = 10 * time.Second
	}
	return &Dispatcher{
		estRepo:     estRepo,
		companyRepo: companyRepo,
		docRepo:     docRepo,
		cancelRepo:  cancelRepo,
		submitter:   submitter,
		queue:       queue,
		trans:       &transitioner{docRepo: docRepo, publisher: publisher},
		syncTimeout: syncTimeout,
		log:         log,
	}
}

// DispatchDocument envía o encola un comprobante en DRAFT. Nunca deshace la
// creación: ante cualquier fallo no terminal el comprobante queda en
// SUBMITTED_PENDING con una tarea encolada.
func (d *Dispatcher) DispatchDocument(ctx context.Context, doc *entity.Document, items []*entity.DocumentItem) error {
	cfg, err := d.estRepo.GetSubmissionConfig(ctx, doc.EstablishmentID)
	if err != nil || cfg == nil {
		// sin configuración legible el camino seguro es el asíncrono
		d.log.Warn().Err(err).Str("establishment_id", doc.EstablishmentID).
			Msg("configuración de envío ilegible, usando camino asíncrono")
		cfg = &entity.SubmissionConfig{SubmissionMode: entity.SubmissionModeScheduled}
	}

	if cfg.Asynchronous() {
		doc.SubmissionMode = entity.SubmissionModeScheduled
		if err := d.trans.apply(ctx, doc, entity.StateSubmittedPending, "", ""); err != nil {
			return err
		}
		d.enqueueDocument(doc)
		return nil
	}

	// Modo IMMEDIATE: un intento síncrono con presupuesto acotado.
	doc.SubmissionMode = entity.SubmissionModeImmediate
	company, err := d.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil || company == nil {
		return d.fallbackToAsync(ctx, doc, fmt.Errorf("obtener empresa: %w", err))
	}

	sctx, cancel := context.WithTimeout(ctx, d.syncTimeout)
	defer cancel()
	res, err := d.submitter.SubmitDocument(sctx, company, doc, items)
	d.recordAttempt(ctx, doc)
	if err != nil {
		// fallo de red o timeout: el documento existe con su número, el
		// resultado queda pendiente y lo resuelve el worker
		return d.fallbackToAsync(ctx, doc, err)
	}
	if res.Accepted {
		return d.trans.apply(ctx, doc, entity.StateAccepted, res.Code, res.Message)
	}
	return d.trans.apply(ctx, doc, entity.StateRejected, res.Code, res.Message)
}

// DispatchCancellation envía o encola una comunicación de baja recién creada
// (request en PENDING, documento en VOID_PENDING).
func (d *Dispatcher) DispatchCancellation(ctx context.Context, req *entity.CancellationRequest, doc *entity.Document) error {
	cfg, err := d.estRepo.GetSubmissionConfig(ctx, doc.EstablishmentID)
	if err != nil || cfg == nil {
		cfg = &entity.SubmissionConfig{SubmissionMode: entity.SubmissionModeScheduled}
	}
	if cfg.Asynchronous() {
		d.enqueueCancellation(req, doc)
		return nil
	}

	company, err := d.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil || company == nil {
		d.enqueueCancellation(req, doc)
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, d.syncTimeout)
	defer cancel()
	res, err := d.submitter.SubmitCancellation(sctx, company, req, doc)
	d.recordCancellationAttempt(ctx, req)
	if err != nil {
		d.log.Warn().Err(err).Str("cancellation_id", req.ID).
			Msg("envío síncrono de baja falló, encolando reintento")
		d.enqueueCancellation(req, doc)
		return nil
	}
	return d.resolveCancellation(ctx, req, doc, res)
}

// resolveCancellation aplica la resolución de SUNAT sobre la comunicación y el
// comprobante. En rechazo el comprobante vuelve a ACCEPTED: la baja no surtió
// efecto y puede intentarse otra con número nuevo.
func (d *Dispatcher) resolveCancellation(ctx context.Context, req *entity.CancellationRequest, doc *entity.Document, res *SubmitResult) error {
	req.AuthorityCode = res.Code
	req.AuthorityMessage = res.Message
	if res.Accepted {
		req.State = entity.CancellationAccepted
		if err := d.cancelRepo.Resolve(ctx, req); err != nil {
			return err
		}
		return d.trans.apply(ctx, doc, entity.StateVoided, res.Code, res.Message)
	}
	req.State = entity.CancellationRejected
	if err := d.cancelRepo.Resolve(ctx, req); err != nil {
		return err
	}
	return d.trans.apply(ctx, doc, entity.StateAccepted, res.Code, res.Message)
}

// fallbackToAsync mueve el comprobante a SUBMITTED_PENDING y lo encola.
func (d *Dispatcher) fallbackToAsync(ctx context.Context, doc *entity.Document, cause error) error {
	d.log.Warn().Err(cause).Str("document_id", doc.ID).
		Msg("envío síncrono falló, encolando reintento")
	if doc.State == entity.StateDraft {
		if err := d.trans.apply(ctx, doc, entity.StateSubmittedPending, "", ""); err != nil {
			return err
		}
	}
	d.enqueueDocument(doc)
	return nil
}

func (d *Dispatcher) enqueueDocument(doc *entity.Document) {
	d.queue.Enqueue(worker.Task{
		Kind:    worker.KindDocument,
		RefID:   doc.ID,
		LaneKey: doc.SequenceKey().String(),
		Attempt: doc.AttemptCount,
	})
}

func (d *Dispatcher) enqueueCancellation(req *entity.CancellationRequest, doc *entity.Document) {
	// la baja comparte carril con su comprobante para conservar el orden
	d.queue.Enqueue(worker.Task{
		Kind:    worker.KindCancellation,
		RefID:   req.ID,
		LaneKey: doc.SequenceKey().String(),
		Attempt: req.AttemptCount,
	})
}

func (d *Dispatcher) recordAttempt(ctx context.Context, doc *entity.Document) {
	now := time.Now()
	doc.AttemptCount++
	doc.LastAttemptAt = &now
	if err := d.docRepo.RecordAttempt(ctx, doc); err != nil {
		d.log.Error().Err(err).Str("document_id", doc.ID).Msg("persistir intento de envío")
	}
}

func (d *Dispatcher) recordCancellationAttempt(ctx context.Context, req *entity.CancellationRequest) {
	now := time.Now()
	req.AttemptCount++
	req.LastAttemptAt = &now
	if err := d.cancelRepo.RecordAttempt(ctx, req); err != nil {
		d.log.Error().Err(err).Str("cancellation_id", req.ID).Msg("persistir intento de envío")
	}
}

// compile-time: el pool satisface TaskQueue
var _ TaskQueue = (*worker.Pool)(nil)
