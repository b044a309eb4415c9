package dto

// CompanyResponse vista de solo lectura de la empresa emisora.
type CompanyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RUC       string `json:"ruc"`
	Address   string `json:"address,omitempty"`
	TaxRegime string `json:"tax_regime"`
	Status    string `json:"status"`
}
