package billing

import (
	"context"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/application/worker"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción con los repositorios
// atados a ella. La reserva de número y la persistencia del registro DRAFT
// comparten unidad atómica: si fn falla se hace rollback y el número reservado
// se pierde (hueco permitido, duplicado no).
type TxRunner interface {
	RunDocument(ctx context.Context, fn func(
		docRepo repository.DocumentRepository,
		seqRepo repository.SequenceRepository,
	) error) error
	RunCancellation(ctx context.Context, fn func(
		docRepo repository.DocumentRepository,
		cancelRepo repository.CancellationRepository,
		seqRepo repository.SequenceRepository,
	) error) error
}

// SubmitResult resultado de una entrega al WS SUNAT que sí obtuvo respuesta.
type SubmitResult struct {
	Accepted bool   // true si SUNAT aceptó el documento
	Code     string // código de respuesta SUNAT (ej: "0", "2017")
	Message  string // descripción textual
}

// Submitter es el puerto de salida hacia el WS SUNAT. El protocolo concreto
// (SOAP, firma, empaquetado) queda detrás de esta interfaz; para tests se
// inyecta un fake.
//
// Las implementaciones deben ser seguras de reintentar: cada llamada lleva la
// numeración completa del documento como clave de idempotencia, de modo que un
// reenvío tras un fallo ambiguo de red no produzca dos aceptaciones.
// Un error devuelto debe envolver domain.ErrAuthorityUnavailable cuando sea
// transitorio (red, timeout, 5xx del WS).
type Submitter interface {
	SubmitDocument(ctx context.Context, company *entity.Company, doc *entity.Document, items []*entity.DocumentItem) (*SubmitResult, error)
	SubmitCancellation(ctx context.Context, company *entity.Company, req *entity.CancellationRequest, doc *entity.Document) (*SubmitResult, error)
}

// TaskQueue encola tareas para el worker pool (implementada por worker.Pool).
type TaskQueue interface {
	Enqueue(t worker.Task)
}

// StateTransition es el evento de auditoría publicado en cada transición.
type StateTransition struct {
	DocumentID string    `json:"document_id"`
	From       string    `json:"from_state"`
	To         string    `json:"to_state"`
	At         time.Time `json:"timestamp"`
}

// EventPublisher publica transiciones para observabilidad. Fire-and-forget:
// las implementaciones no deben bloquear ni propagar errores al flujo.
type EventPublisher interface {
	PublishTransition(ev StateTransition)
}
