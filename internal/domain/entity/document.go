package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida del comprobante frente a SUNAT.
// DRAFT y SUBMITTED_PENDING son transitorios; el resto son terminales
// para su flujo (un rechazo de anulación regresa el comprobante a ACCEPTED).
const (
	StateDraft            = "DRAFT"             // Correlativo reservado, aún sin enviar
	StateSubmittedPending = "SUBMITTED_PENDING" // Encolado o con envío en curso
	StateAccepted         = "ACCEPTED"          // Aceptado por SUNAT
	StateRejected         = "REJECTED"          // Rechazado por SUNAT; el número queda quemado
	StateVoidPending      = "VOID_PENDING"      // Comunicación de baja creada, respuesta pendiente
	StateVoided           = "VOIDED"            // Baja aceptada; se conserva para auditoría
)

// Modos de envío a SUNAT, configurados por establecimiento.
const (
	SubmissionModeImmediate = "IMMEDIATE" // Envío síncrono dentro de la petición de creación
	SubmissionModeScheduled = "SCHEDULED" // Encolado para el worker pool
)

// Código de resultado cuando el worker agota el presupuesto de reintentos.
const AuthorityCodeExhausted = "SubmissionExhausted"

// legalTransitions enumera las transiciones válidas de la máquina de estados.
// El rechazo de una anulación es VOID_PENDING → ACCEPTED (la baja no surtió efecto).
var legalTransitions = map[string][]string{
	StateDraft:            {StateSubmittedPending, StateAccepted, StateRejected},
	StateSubmittedPending: {StateAccepted, StateRejected},
	StateAccepted:         {StateVoidPending},
	StateVoidPending:      {StateVoided, StateAccepted},
}

// CanTransition responde si from → to es una transición legal.
func CanTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Document representa un comprobante electrónico (factura, boleta, nota).
// Nunca se elimina: los rechazados conservan su correlativo quemado y los
// anulados permanecen para auditoría.
type Document struct {
	ID               string
	CompanyID        string
	EstablishmentID  string
	POSTerminalID    string // vacío si el establecimiento no usa terminales
	DocumentTypeCode string // catálogo 01 SUNAT: "01" factura, "03" boleta...
	Series           string // ej: "F001", "B001"
	Correlativo      int64

	CustomerName string
	CustomerDoc  string // RUC o DNI del adquiriente
	Currency     string // "PEN", "USD"
	NetTotal     decimal.Decimal
	TaxTotal     decimal.Decimal
	GrandTotal   decimal.Decimal

	State          string
	SubmissionMode string // modo con el que se despachó (IMMEDIATE | SCHEDULED)

	// Metadatos del último intento de envío a SUNAT.
	LastAttemptAt    *time.Time
	AttemptCount     int
	AuthorityCode    string
	AuthorityMessage string

	// Version para compare-and-set: cada transición de estado exige la
	// versión leída; si otra escritura ganó, el update falla con ErrConflict.
	Version int64

	IssuedAt  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SequenceKey devuelve la clave del contador al que pertenece este comprobante.
func (d *Document) SequenceKey() SequenceKey {
	return SequenceKey{
		CompanyID:        d.CompanyID,
		EstablishmentID:  d.EstablishmentID,
		POSTerminalID:    d.POSTerminalID,
		DocumentTypeCode: d.DocumentTypeCode,
		Series:           d.Series,
	}
}

// FullNumber devuelve la numeración legal del comprobante: SERIE-CORRELATIVO
// con el correlativo en 8 dígitos (ej: "F001-00000042").
func (d *Document) FullNumber() string {
	return fmt.Sprintf("%s-%08d", d.Series, d.Correlativo)
}

// IsPending responde si el comprobante espera una resolución de SUNAT.
func (d *Document) IsPending() bool {
	return d.State == StateSubmittedPending || d.State == StateVoidPending
}
