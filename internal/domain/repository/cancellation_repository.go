package repository

import (
	"context"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
)

// CancellationRepository define el puerto de persistencia para comunicaciones
// de baja. Resolve solo aplica si la fila sigue en PENDING (las comunicaciones
// resueltas nunca se mutan); si no, devuelve domain.ErrConflict.
type CancellationRepository interface {
	Create(ctx context.Context, req *entity.CancellationRequest) error
	GetByID(ctx context.Context, id string) (*entity.CancellationRequest, error)
	GetPendingByDocument(ctx context.Context, documentID string) (*entity.CancellationRequest, error)
	Resolve(ctx context.Context, req *entity.CancellationRequest) error
	// RecordAttempt persiste last_attempt_at y attempt_count tras cada envío.
	RecordAttempt(ctx context.Context, req *entity.CancellationRequest) error
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.CancellationRequest, error)
}
