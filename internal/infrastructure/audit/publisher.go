// Package audit emite los eventos de transición de estado de los comprobantes
// como registros estructurados. Los sistemas de observabilidad externos los
// consumen desde la salida de logs; no hay broker de por medio.
package audit

import (
	"github.com/jhoicas/Facturacion-api/internal/application/billing"
	"github.com/jhoicas/Facturacion-api/pkg/logger"
)

var _ billing.EventPublisher = (*LogPublisher)(nil)

// LogPublisher implementa billing.EventPublisher sobre el logger estructurado.
// Fire-and-forget: los eventos pasan por un canal con buffer y una goroutine
// dedicada los escribe, de modo que el flujo de negocio nunca bloquea. Si el
// buffer se llena el evento se descarta dejando constancia en el log.
type LogPublisher struct {
	events chan billing.StateTransition
	log    *logger.Logger
}

// NewLogPublisher construye el publisher y arranca su goroutine de drenado.
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	p := &LogPublisher{
		events: make(chan billing.StateTransition, 256),
		log:    log,
	}
	go p.drain()
	return p
}

// PublishTransition encola el evento sin bloquear.
func (p *LogPublisher) PublishTransition(ev billing.StateTransition) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn().Str("document_id", ev.DocumentID).Msg("buffer de auditoría lleno, evento descartado")
	}
}

// Close deja de aceptar eventos y termina la goroutine de drenado.
func (p *LogPublisher) Close() {
	close(p.events)
}

func (p *LogPublisher) drain() {
	for ev := range p.events {
		p.log.Info().
			Str("event", "state_transition").
			Str("document_id", ev.DocumentID).
			Str("from", ev.From).
			Str("to", ev.To).
			Time("at", ev.At).
			Msg("transición de estado")
	}
}
