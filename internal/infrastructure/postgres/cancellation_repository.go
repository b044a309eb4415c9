package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Facturacion-api/internal/domain"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

var _ repository.CancellationRepository = (*CancellationRepo)(nil)

// CancellationRepo implementación de CancellationRepository (usable con pool o tx).
type CancellationRepo struct {
	q Querier
}

// NewCancellationRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCancellationRepository(q Querier) *CancellationRepo {
	return &CancellationRepo{q: q}
}

const cancellationColumns = `
	id, company_id, document_id, communication_number, communication_date,
	motivo, state, authority_code, authority_message,
	last_attempt_at, attempt_count, created_at, updated_at`

// Create persiste la comunicación de baja. El índice único sobre
// (company_id, communication_date, communication_number) respalda la secuencia:
// un choque se mapea a domain.ErrDuplicateNumber para reintentar con número fresco.
func (r *CancellationRepo) Create(ctx context.Context, req *entity.CancellationRequest) error {
	query := `
		INSERT INTO cancellation_requests (` + cancellationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.q.Exec(ctx, query,
		req.ID, req.CompanyID, req.DocumentID, req.CommunicationNumber, req.CommunicationDate.Format("2006-01-02"),
		req.Motivo, req.State, nullIfEmpty(req.AuthorityCode), nullIfEmpty(req.AuthorityMessage),
		req.LastAttemptAt, req.AttemptCount, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("comunicación %s ya existe: %w", req.Identifier(), domain.ErrDuplicateNumber)
		}
		return fmt.Errorf("insert cancellation: %w", err)
	}
	return nil
}

// GetByID obtiene una comunicación por ID. Devuelve (nil, nil) si no existe.
func (r *CancellationRepo) GetByID(ctx context.Context, id string) (*entity.CancellationRequest, error) {
	query := `SELECT ` + cancellationColumns + ` FROM cancellation_requests WHERE id = $1`
	req, err := scanCancellation(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cancellation: %w", err)
	}
	return req, nil
}

// GetPendingByDocument devuelve la comunicación PENDING del comprobante, si la hay.
func (r *CancellationRepo) GetPendingByDocument(ctx context.Context, documentID string) (*entity.CancellationRequest, error) {
	query := `
		SELECT ` + cancellationColumns + `
		FROM cancellation_requests
		WHERE document_id = $1 AND state = $2
		LIMIT 1`
	req, err := scanCancellation(r.q.QueryRow(ctx, query, documentID, entity.CancellationPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending cancellation: %w", err)
	}
	return req, nil
}

// Resolve fija el estado final de la comunicación. Solo aplica si la fila
// sigue en PENDING; una comunicación resuelta nunca se muta.
func (r *CancellationRepo) Resolve(ctx context.Context, req *entity.CancellationRequest) error {
	query := `
		UPDATE cancellation_requests
		SET state = $2, authority_code = $3, authority_message = $4, updated_at = $5
		WHERE id = $1 AND state = $6`
	tag, err := r.q.Exec(ctx, query,
		req.ID, req.State, nullIfEmpty(req.AuthorityCode), nullIfEmpty(req.AuthorityMessage),
		time.Now(), entity.CancellationPending,
	)
	if err != nil {
		return fmt.Errorf("resolve cancellation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("comunicación %s ya resuelta: %w", req.ID, domain.ErrConflict)
	}
	return nil
}

// RecordAttempt persiste los metadatos del último intento de envío.
func (r *CancellationRepo) RecordAttempt(ctx context.Context, req *entity.CancellationRequest) error {
	query := `
		UPDATE cancellation_requests
		SET last_attempt_at = $2, attempt_count = $3, updated_at = $4
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query, req.ID, req.LastAttemptAt, req.AttemptCount, time.Now())
	if err != nil {
		return fmt.Errorf("record cancellation attempt: %w", err)
	}
	return nil
}

// ListStalePending devuelve comunicaciones PENDING cuyo último intento (o
// creación) es anterior a olderThan.
func (r *CancellationRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.CancellationRequest, error) {
	query := `
		SELECT ` + cancellationColumns + `
		FROM cancellation_requests
		WHERE state = $1 AND COALESCE(last_attempt_at, created_at) < $2
		ORDER BY created_at
		LIMIT $3`
	rows, err := r.q.Query(ctx, query, entity.CancellationPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale cancellations: %w", err)
	}
	defer rows.Close()
	var list []*entity.CancellationRequest
	for rows.Next() {
		req, err := scanCancellation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cancellation: %w", err)
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

func scanCancellation(row pgx.Row) (*entity.CancellationRequest, error) {
	var req entity.CancellationRequest
	var authorityCode, authorityMessage *string
	err := row.Scan(
		&req.ID, &req.CompanyID, &req.DocumentID, &req.CommunicationNumber, &req.CommunicationDate,
		&req.Motivo, &req.State, &authorityCode, &authorityMessage,
		&req.LastAttemptAt, &req.AttemptCount, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.AuthorityCode = derefStr(authorityCode)
	req.AuthorityMessage = derefStr(authorityMessage)
	return &req, nil
}
