package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

var _ repository.EstablishmentRepository = (*EstablishmentRepo)(nil)

// EstablishmentRepo implementación de solo lectura de EstablishmentRepository.
type EstablishmentRepo struct {
	q Querier
}

// NewEstablishmentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewEstablishmentRepository(q Querier) *EstablishmentRepo {
	return &EstablishmentRepo{q: q}
}

// GetByID obtiene un establecimiento por ID. Devuelve (nil, nil) si no existe.
func (r *EstablishmentRepo) GetByID(ctx context.Context, id string) (*entity.Establishment, error) {
	query := `
		SELECT id, company_id, code, name, COALESCE(address, ''),
		       submission_mode, async_jobs_enabled, created_at, updated_at
		FROM establishments WHERE id = $1`
	var e entity.Establishment
	err := r.q.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.CompanyID, &e.Code, &e.Name, &e.Address,
		&e.SubmissionMode, &e.AsyncJobsEnabled, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get establishment: %w", err)
	}
	return &e, nil
}

// GetSubmissionConfig devuelve la vista ligera que consulta el dispatcher
// antes de cada creación. Devuelve (nil, nil) si el establecimiento no existe.
func (r *EstablishmentRepo) GetSubmissionConfig(ctx context.Context, establishmentID string) (*entity.SubmissionConfig, error) {
	query := `SELECT submission_mode, async_jobs_enabled FROM establishments WHERE id = $1`
	var cfg entity.SubmissionConfig
	err := r.q.QueryRow(ctx, query, establishmentID).Scan(&cfg.SubmissionMode, &cfg.AsyncJobsEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get submission config: %w", err)
	}
	return &cfg, nil
}
