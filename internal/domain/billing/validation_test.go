package billing_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-api/internal/domain"
	"github.com/jhoicas/Facturacion-api/internal/domain/billing"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// validDoc construye un comprobante coherente con una línea de 2 x 100.00 al 18%.
func validDoc() (*entity.Document, []*entity.DocumentItem) {
	items := []*entity.DocumentItem{{
		Description: "Teclado mecánico",
		UnitCode:    "NIU",
		Quantity:    dec("2"),
		UnitPrice:   dec("100.00"),
		TaxRate:     dec("0.18"),
	}}
	doc := &entity.Document{
		CompanyID:        "emp-1",
		EstablishmentID:  "est-1",
		DocumentTypeCode: "01",
		Series:           "F001",
		Currency:         "PEN",
	}
	doc.NetTotal, doc.TaxTotal, doc.GrandTotal = billing.ComputeTotals(items)
	return doc, items
}

// fieldNames extrae los campos reportados por un ValidationError.
func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var verr *billing.ValidationError
	require.ErrorAs(t, err, &verr, "el error debe ser un ValidationError")
	names := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		names = append(names, f.Field)
	}
	return names
}

// ──────────────────────────────────────────────────────────────────────────────
// ComputeTotals
// ──────────────────────────────────────────────────────────────────────────────

func TestComputeTotals_CalculaLineasYCabecera(t *testing.T) {
	items := []*entity.DocumentItem{
		{Quantity: dec("2"), UnitPrice: dec("100.00"), TaxRate: dec("0.18")},
		{Quantity: dec("1.5"), UnitPrice: dec("33.33"), TaxRate: dec("0.18")},
	}
	net, tax, grand := billing.ComputeTotals(items)

	// línea 1: 200.00 / 36.00; línea 2: 50.00 (49.995 redondeado) / 9.00
	assert.True(t, items[0].Subtotal.Equal(dec("200.00")), "subtotal línea 1: %s", items[0].Subtotal)
	assert.True(t, items[0].TaxAmount.Equal(dec("36.00")), "IGV línea 1: %s", items[0].TaxAmount)
	assert.True(t, items[1].Subtotal.Equal(dec("50.00")), "subtotal línea 2: %s", items[1].Subtotal)
	assert.True(t, items[1].TaxAmount.Equal(dec("9.00")), "IGV línea 2: %s", items[1].TaxAmount)

	assert.True(t, net.Equal(dec("250.00")), "neto: %s", net)
	assert.True(t, tax.Equal(dec("45.00")), "impuestos: %s", tax)
	assert.True(t, grand.Equal(dec("295.00")), "total: %s", grand)
}

func TestComputeTotals_ExoneradoSinIGV(t *testing.T) {
	items := []*entity.DocumentItem{
		{Quantity: dec("3"), UnitPrice: dec("10.00"), TaxRate: dec("0")},
	}
	net, tax, grand := billing.ComputeTotals(items)
	assert.True(t, net.Equal(dec("30.00")))
	assert.True(t, tax.Equal(dec("0.00")), "tasa cero no genera impuesto")
	assert.True(t, grand.Equal(dec("30.00")))
}

// ──────────────────────────────────────────────────────────────────────────────
// ValidateDocument
// ──────────────────────────────────────────────────────────────────────────────

func TestValidateDocument_ComprobanteValido(t *testing.T) {
	doc, items := validDoc()
	assert.NoError(t, billing.ValidateDocument(doc, items))
}

func TestValidateDocument_EnvuelveErrInvalidInput(t *testing.T) {
	doc, items := validDoc()
	doc.Currency = "XXX"
	err := billing.ValidateDocument(doc, items)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput),
		"ValidationError debe envolver ErrInvalidInput para errors.Is")
}

func TestValidateDocument_AcumulaTodasLasViolaciones(t *testing.T) {
	doc, items := validDoc()
	doc.DocumentTypeCode = "99"
	doc.Currency = "SOL"
	items[0].Description = ""
	items[0].Quantity = dec("0")
	// el subtotal ya no cuadra porque la cantidad cambió
	err := billing.ValidateDocument(doc, items)
	require.Error(t, err)

	names := fieldNames(t, err)
	assert.Contains(t, names, "document_type_code")
	assert.Contains(t, names, "currency")
	assert.Contains(t, names, "items[0].description")
	assert.Contains(t, names, "items[0].quantity")
	assert.GreaterOrEqual(t, len(names), 4,
		"debe reportar todas las violaciones, no solo la primera")
}

func TestValidateDocument_SinLineas(t *testing.T) {
	doc, _ := validDoc()
	err := billing.ValidateDocument(doc, nil)
	assert.Contains(t, fieldNames(t, err), "items")
}

func TestValidateDocument_UnidadDeMedidaDesconocida(t *testing.T) {
	doc, items := validDoc()
	items[0].UnitCode = "XYZ"
	err := billing.ValidateDocument(doc, items)
	assert.Contains(t, fieldNames(t, err), "items[0].unit_code")
}

func TestValidateDocument_UnidadVaciaEsValida(t *testing.T) {
	doc, items := validDoc()
	items[0].UnitCode = ""
	assert.NoError(t, billing.ValidateDocument(doc, items))
}

func TestValidateDocument_TasaFueraDeRango(t *testing.T) {
	doc, items := validDoc()
	// 18 en vez de 0.18: la tasa es una fracción, no un porcentaje
	items[0].TaxRate = dec("18")
	err := billing.ValidateDocument(doc, items)
	assert.Contains(t, fieldNames(t, err), "items[0].tax_rate")
}

func TestValidateDocument_TotalesDeCabeceraNoCuadran(t *testing.T) {
	doc, items := validDoc()
	doc.GrandTotal = doc.GrandTotal.Add(dec("0.01"))
	err := billing.ValidateDocument(doc, items)
	assert.Contains(t, fieldNames(t, err), "grand_total")
}

func TestValidateDocument_SubtotalDeLineaManipulado(t *testing.T) {
	doc, items := validDoc()
	items[0].Subtotal = items[0].Subtotal.Add(dec("1.00"))
	err := billing.ValidateDocument(doc, items)
	names := fieldNames(t, err)
	assert.Contains(t, names, "items[0].subtotal")
	// el IGV de la línea se calcula sobre el subtotal declarado, así que
	// también deja de cuadrar el neto de cabecera
	assert.Contains(t, names, "net_total")
}
