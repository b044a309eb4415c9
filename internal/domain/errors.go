package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrUserNotFound = errors.New("usuario no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")

	// ErrConflict indica que otra escritura concurrente ganó el compare-and-set
	// de versión sobre la misma fila (worker vs. operador manual).
	ErrConflict = errors.New("conflicto con el estado actual")

	// ErrInvalidState indica una transición ilegal de la máquina de estados
	// del comprobante (ej: anular un DRAFT o un RECHAZADO).
	ErrInvalidState = errors.New("transición de estado no permitida")

	// ErrDuplicateNumber es la violación del índice único de correlativos:
	// dos transacciones calcularon el mismo número. La que pierde reintenta
	// con un número fresco.
	ErrDuplicateNumber = errors.New("correlativo duplicado")

	// ErrAllocationContention se devuelve cuando los reintentos de reserva
	// de correlativo se agotan sin conseguir un número.
	ErrAllocationContention = errors.New("contención al reservar correlativo")

	// ErrAuthorityUnavailable es un fallo transitorio de red o del servicio
	// de SUNAT: reintenta el worker, nunca es fatal para el comprobante.
	ErrAuthorityUnavailable = errors.New("servicio SUNAT no disponible")
)
