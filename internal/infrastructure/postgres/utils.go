package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE de PostgreSQL para el choque contra un índice único. El allocator
// de numeración depende de detectarlo: es la señal para reintentar la
// transacción completa con un correlativo fresco.
const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	// errores ya aplanados a texto por capas intermedias
	return strings.Contains(err.Error(), uniqueViolationCode)
}
