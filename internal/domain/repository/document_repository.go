package repository

import (
	"context"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
)

// DocumentRepository define el puerto de persistencia para comprobantes.
//
// Create debe mapear la violación del índice único de correlativos a
// domain.ErrDuplicateNumber, para que el allocator reintente con número fresco.
//
// UpdateState es un compare-and-set: aplica la transición solo si la fila aún
// tiene doc.Version; en caso contrario devuelve domain.ErrConflict sin tocar
// nada. Sobre éxito incrementa doc.Version en memoria.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	CreateItem(ctx context.Context, item *entity.DocumentItem) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	GetItems(ctx context.Context, documentID string) ([]*entity.DocumentItem, error)
	UpdateState(ctx context.Context, doc *entity.Document) error
	// RecordAttempt persiste last_attempt_at y attempt_count sin tocar el
	// estado ni la versión (metadatos de intento, no transición).
	RecordAttempt(ctx context.Context, doc *entity.Document) error
	ListByEstablishment(ctx context.Context, establishmentID string, limit, offset int) ([]*entity.Document, error)
	// ListStalePending devuelve comprobantes en SUBMITTED_PENDING o VOID_PENDING
	// cuyo último intento (o creación) es anterior a olderThan. Alimenta el
	// rescan del worker pool tras un reinicio del proceso.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Document, error)
}
