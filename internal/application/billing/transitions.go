package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/domain"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

// transitioner aplica transiciones de la máquina de estados del comprobante:
// valida la legalidad, hace el compare-and-set en DB y publica el evento de
// auditoría. Lo comparten dispatcher, worker y anulaciones para que toda
// transición pase por el mismo camino.
type transitioner struct {
	docRepo   repository.DocumentRepository
	publisher EventPublisher
}

// apply lleva el comprobante de su estado actual a `to`, registrando el
// resultado de SUNAT si lo hay. Devuelve domain.ErrInvalidState si la
// transición es ilegal y domain.ErrConflict si otra escritura ganó el CAS.
func (tr *transitioner) apply(ctx context.Context, doc *entity.Document, to, authorityCode, authorityMessage string) error {
	from := doc.State
	if !entity.CanTransition(from, to) {
		return fmt.Errorf("transición %s a %s: %w", from, to, domain.ErrInvalidState)
	}
	doc.State = to
	if authorityCode != "" {
		doc.AuthorityCode = authorityCode
		doc.AuthorityMessage = authorityMessage
	}
	doc.UpdatedAt = time.Now()
	if err := tr.docRepo.UpdateState(ctx, doc); err != nil {
		doc.State = from // restaurar la copia en memoria
		return err
	}
	if tr.publisher != nil {
		tr.publisher.PublishTransition(StateTransition{
			DocumentID: doc.ID,
			From:       from,
			To:         to,
			At:         doc.UpdatedAt,
		})
	}
	return nil
}
