package entity

import (
	"fmt"
	"time"
)

// Estados de la comunicación de baja. Una vez resuelta nunca se muta;
// un nuevo intento de anulación crea otra CancellationRequest con número propio.
const (
	CancellationPending  = "PENDING"
	CancellationAccepted = "ACCEPTED"
	CancellationRejected = "REJECTED"
)

// CancellationRequest representa una comunicación de baja (anulación) de un
// comprobante ya aceptado por SUNAT. CommunicationNumber es un contador de
// 5 caracteres con ceros a la izquierda, con alcance empresa + día.
type CancellationRequest struct {
	ID                  string
	CompanyID           string
	DocumentID          string
	CommunicationNumber string    // "00001".."99999"
	CommunicationDate   time.Time // día que acota la secuencia
	Motivo              string

	State            string
	AuthorityCode    string
	AuthorityMessage string

	// Metadatos del último intento de envío, mismo esquema que Document.
	LastAttemptAt *time.Time
	AttemptCount  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identifier devuelve el identificador SUNAT de la comunicación:
// RA-YYYYMMDD-NNNNN. Se usa también como clave de idempotencia del envío.
func (c *CancellationRequest) Identifier() string {
	return fmt.Sprintf("RA-%s-%s", c.CommunicationDate.Format("20060102"), c.CommunicationNumber)
}
