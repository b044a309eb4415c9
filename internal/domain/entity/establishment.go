package entity

import "time"

// Establishment representa un establecimiento físico (local anexo) de una
// empresa. Su configuración de envío decide si los comprobantes se remiten a
// SUNAT en línea (IMMEDIATE) o encolados (SCHEDULED). La configuración la
// muta el módulo de administración; el core solo la consulta.
type Establishment struct {
	ID        string
	CompanyID string
	Code      string // código SUNAT del local anexo, ej: "0001"
	Name      string
	Address   string

	SubmissionMode   string // IMMEDIATE | SCHEDULED
	AsyncJobsEnabled bool   // true fuerza el camino asíncrono aunque el modo sea IMMEDIATE

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubmissionConfig es la vista de solo lectura que consume el dispatcher
// antes de cada creación de comprobante.
type SubmissionConfig struct {
	SubmissionMode   string
	AsyncJobsEnabled bool
}

// Asynchronous responde si el establecimiento debe usar el camino encolado.
func (c SubmissionConfig) Asynchronous() bool {
	return c.SubmissionMode == SubmissionModeScheduled || c.AsyncJobsEnabled
}
