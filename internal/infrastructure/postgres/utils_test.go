package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation_DetectaSQLSTATE23505(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "documents_numbering_uq"}
	assert.True(t, isUniqueViolation(pgErr))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert document: %w", pgErr)),
		"también debe detectarse cuando viene envuelto")
}

func TestIsUniqueViolation_IgnoraOtrosErrores(t *testing.T) {
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}),
		"una violación de FK no es un choque de numeración")
	assert.False(t, isUniqueViolation(errors.New("conexión rechazada")))
}
