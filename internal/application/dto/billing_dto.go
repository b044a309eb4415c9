package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateDocumentRequest body para POST /api/documents.
// El correlativo NO se envía: lo asigna el allocator al crear.
type CreateDocumentRequest struct {
	EstablishmentID  string                `json:"establishment_id"`
	POSTerminalID    string                `json:"pos_terminal_id,omitempty"`
	DocumentTypeCode string                `json:"document_type_code"` // "01" factura, "03" boleta...
	Series           string                `json:"series"`             // ej: "F001"
	CustomerName     string                `json:"customer_name"`
	CustomerDoc      string                `json:"customer_doc"` // RUC o DNI
	Currency         string                `json:"currency"`     // "PEN", "USD"
	Items            []DocumentItemRequest `json:"items"`
}

// DocumentItemRequest línea del comprobante. Subtotal e IGV se calculan en el
// servidor; el cliente solo manda cantidad, precio y tasa.
type DocumentItemRequest struct {
	Description string          `json:"description"`
	UnitCode    string          `json:"unit_code,omitempty"` // NIU, ZZ, KGM...
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"` // fracción: 0.18 para IGV 18%
}

// DocumentResponse comprobante con detalle.
type DocumentResponse struct {
	ID               string                 `json:"id"`
	CompanyID        string                 `json:"company_id"`
	EstablishmentID  string                 `json:"establishment_id"`
	POSTerminalID    string                 `json:"pos_terminal_id,omitempty"`
	DocumentTypeCode string                 `json:"document_type_code"`
	Series           string                 `json:"series"`
	Correlativo      int64                  `json:"correlativo"`
	FullNumber       string                 `json:"full_number"` // "F001-00000042"
	CustomerName     string                 `json:"customer_name"`
	CustomerDoc      string                 `json:"customer_doc"`
	Currency         string                 `json:"currency"`
	NetTotal         decimal.Decimal        `json:"net_total"`
	TaxTotal         decimal.Decimal        `json:"tax_total"`
	GrandTotal       decimal.Decimal        `json:"grand_total"`
	State            string                 `json:"state"`
	SubmissionMode   string                 `json:"submission_mode,omitempty"`
	AuthorityCode    string                 `json:"authority_code,omitempty"`
	AuthorityMessage string                 `json:"authority_message,omitempty"`
	IssuedAt         string                 `json:"issued_at"`
	Items            []DocumentItemResponse `json:"items,omitempty"`
}

// DocumentItemResponse línea de detalle en la respuesta.
type DocumentItemResponse struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	UnitCode    string          `json:"unit_code,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
}

// DocumentStatusDTO respuesta ligera para el endpoint de polling
// GET /api/documents/:id/status. El frontend consulta periódicamente hasta
// que el estado sea terminal.
type DocumentStatusDTO struct {
	ID               string     `json:"id"`
	State            string     `json:"state"`
	AttemptCount     int        `json:"attempt_count"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	AuthorityCode    string     `json:"authority_code,omitempty"`
	AuthorityMessage string     `json:"authority_message,omitempty"`
}

// RequestCancellationDTO body para POST /api/documents/:id/cancellation.
type RequestCancellationDTO struct {
	Motivo string `json:"motivo"`
}

// CancellationResponse comunicación de baja en respuestas.
type CancellationResponse struct {
	ID                  string `json:"id"`
	DocumentID          string `json:"document_id"`
	CommunicationNumber string `json:"communication_number"` // "00001"
	Identifier          string `json:"identifier"`           // "RA-20260827-00001"
	Motivo              string `json:"motivo"`
	State               string `json:"state"`
	AuthorityCode       string `json:"authority_code,omitempty"`
	AuthorityMessage    string `json:"authority_message,omitempty"`
}

// SubmissionConfigResponse configuración de envío del establecimiento.
type SubmissionConfigResponse struct {
	EstablishmentID  string `json:"establishment_id"`
	SubmissionMode   string `json:"submission_mode"`
	AsyncJobsEnabled bool   `json:"async_jobs_enabled"`
}
