package repository

import (
	"context"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
)

// SequenceRepository reserva números de las secuencias durables.
//
// Ambas operaciones DEBEN ejecutarse dentro de la misma transacción que
// persiste el documento/comunicación (instancia atada a la tx vía TxRunner):
// el lock de fila del contador serializa a los competidores de la misma clave
// y el commit conjunto garantiza que no haya huecos visibles salvo por
// transacciones abortadas (política deliberada: un número reservado por una
// transacción que no llega a commit se pierde para siempre).
type SequenceRepository interface {
	// NextCorrelativo entrega el siguiente correlativo de la clave.
	NextCorrelativo(ctx context.Context, key entity.SequenceKey) (int64, error)
	// NextCommunicationNumber entrega el siguiente número de comunicación de
	// baja para la empresa en el día indicado (contador independiente).
	NextCommunicationNumber(ctx context.Context, companyID string, day time.Time) (int64, error)
}
