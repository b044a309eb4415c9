// Package billing contiene las reglas de dominio de los comprobantes:
// validación de payload y coherencia aritmética de totales. Las funciones son
// puras y no dependen de ningún framework de peticiones.
package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-api/internal/domain"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/pkg/sunat"
)

// FieldError es una violación puntual sobre un campo del payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError agrupa todas las violaciones encontradas, no solo la primera.
// Envuelve domain.ErrInvalidInput para que errors.Is siga funcionando.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "comprobante inválido: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidInput }

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateDocument valida el comprobante y sus líneas antes de reservar número.
// Comprueba catálogos (tipo, moneda, unidad), cantidades y precios positivos,
// y que los totales de cabecera cuadren con la suma de las líneas
// (Subtotal = Cantidad*Precio; IGV línea = Subtotal*Tasa, redondeado a 2).
func ValidateDocument(doc *entity.Document, items []*entity.DocumentItem) error {
	verr := &ValidationError{}

	if doc.CompanyID == "" {
		verr.add("company_id", "requerido")
	}
	if doc.EstablishmentID == "" {
		verr.add("establishment_id", "requerido")
	}
	if !sunat.ValidDocumentTypeCodes[doc.DocumentTypeCode] {
		verr.add("document_type_code", "tipo de comprobante desconocido: %q", doc.DocumentTypeCode)
	}
	if doc.Series == "" {
		verr.add("series", "requerida")
	}
	if !sunat.ValidCurrencyCodes[doc.Currency] {
		verr.add("currency", "moneda desconocida: %q", doc.Currency)
	}

	if len(items) == 0 {
		verr.add("items", "el comprobante debe tener al menos una línea")
	}

	var sumNet, sumTax decimal.Decimal
	for i, it := range items {
		field := fmt.Sprintf("items[%d]", i)
		if it.Description == "" {
			verr.add(field+".description", "requerida")
		}
		if it.UnitCode != "" && !sunat.ValidMeasurementUnitCodes[it.UnitCode] {
			verr.add(field+".unit_code", "unidad de medida desconocida: %q", it.UnitCode)
		}
		if !it.Quantity.GreaterThan(decimal.Zero) {
			verr.add(field+".quantity", "debe ser mayor que cero")
		}
		if it.UnitPrice.LessThan(decimal.Zero) {
			verr.add(field+".unit_price", "no puede ser negativo")
		}
		if it.TaxRate.LessThan(decimal.Zero) || it.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
			verr.add(field+".tax_rate", "debe ser una fracción entre 0 y 1")
		}

		expectedSubtotal := it.Quantity.Mul(it.UnitPrice).Round(2)
		if !it.Subtotal.Equal(expectedSubtotal) {
			verr.add(field+".subtotal", "no coincide con cantidad*precio (%s)", expectedSubtotal)
		}
		expectedTax := it.Subtotal.Mul(it.TaxRate).Round(2)
		if !it.TaxAmount.Equal(expectedTax) {
			verr.add(field+".tax_amount", "no coincide con subtotal*tasa (%s)", expectedTax)
		}
		sumNet = sumNet.Add(it.Subtotal)
		sumTax = sumTax.Add(it.TaxAmount)
	}

	if len(items) > 0 {
		if !doc.NetTotal.Equal(sumNet.Round(2)) {
			verr.add("net_total", "no coincide con la suma de subtotales (%s)", sumNet.Round(2))
		}
		if !doc.TaxTotal.Equal(sumTax.Round(2)) {
			verr.add("tax_total", "no coincide con la suma de impuestos (%s)", sumTax.Round(2))
		}
		expectedGrand := sumNet.Add(sumTax).Round(2)
		if !doc.GrandTotal.Equal(expectedGrand) {
			verr.add("grand_total", "no coincide con neto + impuestos (%s)", expectedGrand)
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// ComputeTotals calcula Subtotal y TaxAmount de cada línea y devuelve los
// totales de cabecera. Quien construye el comprobante a partir de un payload
// debe usar esta función para que la aritmética sea determinista.
func ComputeTotals(items []*entity.DocumentItem) (net, tax, grand decimal.Decimal) {
	for _, it := range items {
		it.Subtotal = it.Quantity.Mul(it.UnitPrice).Round(2)
		it.TaxAmount = it.Subtotal.Mul(it.TaxRate).Round(2)
		net = net.Add(it.Subtotal)
		tax = tax.Add(it.TaxAmount)
	}
	net = net.Round(2)
	tax = tax.Round(2)
	grand = net.Add(tax)
	return net, tax, grand
}
