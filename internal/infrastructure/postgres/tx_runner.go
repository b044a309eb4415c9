package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/Facturacion-api/internal/application/billing"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
)

var _ billing.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL. Los
// repositorios que recibe el callback están atados a la transacción: la
// reserva de número y la persistencia del registro comparten commit.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunDocument inicia una transacción con los repos de comprobantes y
// secuencias, ejecuta fn y hace Commit o Rollback.
func (r *TxRunner) RunDocument(ctx context.Context, fn func(
	docRepo repository.DocumentRepository,
	seqRepo repository.SequenceRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	docRepo := NewDocumentRepository(tx)
	seqRepo := NewSequenceRepository(tx)

	if err := fn(docRepo, seqRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunCancellation inicia una transacción con los repos que participan en la
// creación de una comunicación de baja.
func (r *TxRunner) RunCancellation(ctx context.Context, fn func(
	docRepo repository.DocumentRepository,
	cancelRepo repository.CancellationRepository,
	seqRepo repository.SequenceRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	docRepo := NewDocumentRepository(tx)
	cancelRepo := NewCancellationRepository(tx)
	seqRepo := NewSequenceRepository(tx)

	if err := fn(docRepo, cancelRepo, seqRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
