package entity

import "time"

// Regímenes tributarios (lectura solamente: los administra el módulo de empresas).
const (
	TaxRegimeGeneral  = "GENERAL"
	TaxRegimeMYPE     = "MYPE"
	TaxRegimeEspecial = "ESPECIAL"
)

// Company representa una organización/tenant del sistema (multi-tenant, enfoque Perú).
// El core de numeración/envío solo la lee; el CRUD vive en el módulo de empresas.
type Company struct {
	ID        string
	Name      string
	RUC       string // RUC de 11 dígitos
	Address   string
	TaxRegime string // ver constantes TaxRegime*
	Status    string // active, suspended, inactive
	CreatedAt time.Time
	UpdatedAt time.Time
}
