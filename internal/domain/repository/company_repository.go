package repository

import (
	"context"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
)

// CompanyRepository acceso de solo lectura a empresas: el CRUD pertenece al
// módulo de administración, el core solo necesita el RUC y el régimen.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
}
