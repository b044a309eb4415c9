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

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación de DocumentRepository (usable con pool o tx).
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

const documentColumns = `
	id, company_id, establishment_id, pos_terminal_id, document_type_code,
	series, correlativo, customer_name, customer_doc, currency,
	net_total, tax_total, grand_total, state, submission_mode,
	last_attempt_at, attempt_count, authority_code, authority_message,
	version, issued_at, created_at, updated_at`

// Create persiste la cabecera del comprobante. El índice único sobre la
// numeración es el respaldo del allocator: si dos transacciones calcularon el
// mismo correlativo, la perdedora recibe domain.ErrDuplicateNumber.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.CompanyID, doc.EstablishmentID, doc.POSTerminalID, doc.DocumentTypeCode,
		doc.Series, doc.Correlativo, doc.CustomerName, doc.CustomerDoc, doc.Currency,
		doc.NetTotal, doc.TaxTotal, doc.GrandTotal, doc.State, doc.SubmissionMode,
		doc.LastAttemptAt, doc.AttemptCount, nullIfEmpty(doc.AuthorityCode), nullIfEmpty(doc.AuthorityMessage),
		doc.Version, doc.IssuedAt, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("numeración %s ya existe: %w", doc.FullNumber(), domain.ErrDuplicateNumber)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// CreateItem persiste una línea del comprobante.
func (r *DocumentRepo) CreateItem(ctx context.Context, item *entity.DocumentItem) error {
	query := `
		INSERT INTO document_items (id, document_id, description, unit_code, quantity, unit_price, tax_rate, subtotal, tax_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		item.ID, item.DocumentID, item.Description, nullIfEmpty(item.UnitCode),
		item.Quantity, item.UnitPrice, item.TaxRate, item.Subtotal, item.TaxAmount,
	)
	if err != nil {
		return fmt.Errorf("insert document item: %w", err)
	}
	return nil
}

// GetByID obtiene un comprobante por ID. Devuelve (nil, nil) si no existe.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// GetItems obtiene las líneas de un comprobante.
func (r *DocumentRepo) GetItems(ctx context.Context, documentID string) ([]*entity.DocumentItem, error) {
	query := `
		SELECT id, document_id, description, COALESCE(unit_code, ''), quantity, unit_price, tax_rate, subtotal, tax_amount
		FROM document_items WHERE document_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document items: %w", err)
	}
	defer rows.Close()
	var list []*entity.DocumentItem
	for rows.Next() {
		var it entity.DocumentItem
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.Description, &it.UnitCode,
			&it.Quantity, &it.UnitPrice, &it.TaxRate, &it.Subtotal, &it.TaxAmount); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		list = append(list, &it)
	}
	return list, rows.Err()
}

// UpdateState aplica una transición de estado con compare-and-set sobre la
// versión. Si otra escritura ganó la carrera no se toca nada y se devuelve
// domain.ErrConflict; sobre éxito incrementa doc.Version en memoria.
func (r *DocumentRepo) UpdateState(ctx context.Context, doc *entity.Document) error {
	query := `
		UPDATE documents
		SET state             = $3,
		    submission_mode   = $4,
		    authority_code    = COALESCE($5, authority_code),
		    authority_message = COALESCE($6, authority_message),
		    version           = version + 1,
		    updated_at        = $7
		WHERE id = $1 AND version = $2`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, doc.Version, doc.State, doc.SubmissionMode,
		nullIfEmpty(doc.AuthorityCode), nullIfEmpty(doc.AuthorityMessage),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update document state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("comprobante %s versión %d: %w", doc.ID, doc.Version, domain.ErrConflict)
	}
	doc.Version++
	return nil
}

// RecordAttempt persiste los metadatos del último intento de envío sin tocar
// estado ni versión (no es una transición).
func (r *DocumentRepo) RecordAttempt(ctx context.Context, doc *entity.Document) error {
	query := `
		UPDATE documents
		SET last_attempt_at = $2, attempt_count = $3, updated_at = $4
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query, doc.ID, doc.LastAttemptAt, doc.AttemptCount, time.Now())
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListByEstablishment lista comprobantes de un establecimiento, más recientes primero.
func (r *DocumentRepo) ListByEstablishment(ctx context.Context, establishmentID string, limit, offset int) ([]*entity.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE establishment_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, establishmentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListStalePending devuelve comprobantes sin resolver cuyo último intento (o
// creación, si nunca se intentó) es anterior a olderThan. Incluye los DRAFT:
// un comprobante numerado cuya creación hizo commit pero que nunca llegó a
// despacharse (caída del proceso entre el commit y el dispatch) también
// tiene que recuperarse.
func (r *DocumentRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE state IN ($1, $2, $3)
		  AND COALESCE(last_attempt_at, created_at) < $4
		ORDER BY created_at
		LIMIT $5`
	rows, err := r.q.Query(ctx, query,
		entity.StateDraft, entity.StateSubmittedPending, entity.StateVoidPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func collectDocuments(rows pgx.Rows) ([]*entity.Document, error) {
	var list []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

func scanDocument(row pgx.Row) (*entity.Document, error) {
	var doc entity.Document
	var posTerminal, submissionMode, authorityCode, authorityMessage *string
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.EstablishmentID, &posTerminal, &doc.DocumentTypeCode,
		&doc.Series, &doc.Correlativo, &doc.CustomerName, &doc.CustomerDoc, &doc.Currency,
		&doc.NetTotal, &doc.TaxTotal, &doc.GrandTotal, &doc.State, &submissionMode,
		&doc.LastAttemptAt, &doc.AttemptCount, &authorityCode, &authorityMessage,
		&doc.Version, &doc.IssuedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.POSTerminalID = derefStr(posTerminal)
	doc.SubmissionMode = derefStr(submissionMode)
	doc.AuthorityCode = derefStr(authorityCode)
	doc.AuthorityMessage = derefStr(authorityMessage)
	return &doc, nil
}

func derefStr(p *string) string {
	if p != nil {
		return *p
	}
	return ""
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
