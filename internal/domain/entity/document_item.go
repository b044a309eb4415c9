package entity

import "github.com/shopspring/decimal"

// DocumentItem representa una línea del comprobante.
// Subtotal = Quantity * UnitPrice; TaxAmount = Subtotal * TaxRate (IGV).
type DocumentItem struct {
	ID          string
	DocumentID  string
	Description string
	UnitCode    string // código SUNAT de unidad de medida (NIU, KGM, ZZ...)
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal // fracción: 0.18 para IGV 18%
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
}
