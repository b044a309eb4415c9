package repository

import (
	"context"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
)

// EstablishmentRepository acceso de solo lectura a establecimientos y a su
// configuración de envío. El dispatcher consulta GetSubmissionConfig antes de
// cada creación; la configuración la muta el módulo de administración.
type EstablishmentRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Establishment, error)
	GetSubmissionConfig(ctx context.Context, establishmentID string) (*entity.SubmissionConfig, error)
}
