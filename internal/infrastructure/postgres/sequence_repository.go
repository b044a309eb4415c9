package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo implementación de SequenceRepository sobre filas contador.
//
// El upsert atómico toma el lock de fila del contador: dos transacciones que
// compiten por la misma clave se serializan aquí y cada una ve un last_value
// distinto. El índice único sobre la numeración del documento queda como
// respaldo por si el esquema de contadores se corrompe.
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository construye el adaptador. Debe usarse atado a la
// transacción que persiste el registro numerado (vía TxRunner).
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// NextCorrelativo entrega el siguiente correlativo de la clave.
func (r *SequenceRepo) NextCorrelativo(ctx context.Context, key entity.SequenceKey) (int64, error) {
	query := `
		INSERT INTO document_sequences (company_id, establishment_id, pos_terminal_id, document_type_code, series, last_value)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (company_id, establishment_id, pos_terminal_id, document_type_code, series)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`
	var n int64
	err := r.q.QueryRow(ctx, query,
		key.CompanyID, key.EstablishmentID, key.POSTerminalID, key.DocumentTypeCode, key.Series,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next correlativo %s: %w", key.String(), err)
	}
	return n, nil
}

// NextCommunicationNumber entrega el siguiente número de comunicación de baja
// para la empresa en el día indicado.
func (r *SequenceRepo) NextCommunicationNumber(ctx context.Context, companyID string, day time.Time) (int64, error) {
	query := `
		INSERT INTO cancellation_sequences (company_id, communication_date, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (company_id, communication_date)
		DO UPDATE SET last_value = cancellation_sequences.last_value + 1
		RETURNING last_value`
	var n int64
	err := r.q.QueryRow(ctx, query, companyID, day.Format("2006-01-02")).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next communication number: %w", err)
	}
	return n, nil
}
