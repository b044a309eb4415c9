// Package sunat contiene catálogos y reglas alineados a la normativa de
// Comprobantes de Pago Electrónicos SUNAT (Perú) — Resolución 097-2012 y anexos.
package sunat

// =============================================================================
// Catálogo 01 - Tipos de comprobante de pago
// =============================================================================

const (
	DocTypeFactura      = "01" // Factura electrónica
	DocTypeBoleta       = "03" // Boleta de venta electrónica
	DocTypeNotaCredito  = "07" // Nota de crédito
	DocTypeNotaDebito   = "08" // Nota de débito
)

// ValidDocumentTypeCodes códigos de tipo de comprobante aceptados por el core.
var ValidDocumentTypeCodes = map[string]bool{
	DocTypeFactura:     true,
	DocTypeBoleta:      true,
	DocTypeNotaCredito: true,
	DocTypeNotaDebito:  true,
}

// =============================================================================
// Catálogo 02 - Monedas (ISO 4217, subconjunto de uso frecuente)
// =============================================================================

const (
	CurrencyPEN = "PEN" // Sol
	CurrencyUSD = "USD" // Dólar americano
	CurrencyEUR = "EUR" // Euro
)

// ValidCurrencyCodes monedas aceptadas en comprobantes.
var ValidCurrencyCodes = map[string]bool{
	CurrencyPEN: true,
	CurrencyUSD: true,
	CurrencyEUR: true,
}

// =============================================================================
// Catálogo 03 - Unidades de medida (UN/ECE rec 20, subconjunto)
// =============================================================================

const (
	UnitUnidad   = "NIU" // Unidad (bienes)
	UnitServicio = "ZZ"  // Servicios
	UnitKilogram = "KGM" // Kilogramo
	UnitLitre    = "LTR" // Litro
	UnitMetre    = "MTR" // Metro
	UnitHour     = "HUR" // Hora
)

// ValidMeasurementUnitCodes códigos de unidad de medida de uso común.
var ValidMeasurementUnitCodes = map[string]bool{
	UnitUnidad: true, UnitServicio: true, UnitKilogram: true,
	UnitLitre: true, UnitMetre: true, UnitHour: true,
}

// =============================================================================
// Catálogo 05 - Tipos de tributo
// =============================================================================

const (
	TaxCodeIGV = "1000" // IGV - Impuesto General a las Ventas (18%)
	TaxCodeISC = "2000" // ISC - Impuesto Selectivo al Consumo
	TaxCodeEXO = "9997" // Exonerado
	TaxCodeINA = "9998" // Inafecto
)

// =============================================================================
// Clasificación de códigos de respuesta del WS SUNAT
//
// 0           → aceptado
// 0100 – 1999 → error del sistema/contribuyente: el envío puede reintentarse
// 2000 – 3999 → rechazo del comprobante: terminal, el número queda quemado
// 4000 en adelante → observaciones: aceptado con observaciones
// =============================================================================

// ResponseClass clasifica un código de respuesta SUNAT.
type ResponseClass int

const (
	ResponseAccepted ResponseClass = iota // aceptado (con o sin observaciones)
	ResponseRejected                      // rechazo terminal del comprobante
	ResponseRetryable                     // error de sistema, reintentable
	ResponseUnknown
)

// ClassifyResponseCode interpreta el código numérico devuelto por SUNAT.
// Los códigos no numéricos se tratan como desconocidos (el caller decide).
func ClassifyResponseCode(code string) ResponseClass {
	if code == "" {
		return ResponseUnknown
	}
	n := 0
	for _, r := range code {
		if r < '0' || r > '9' {
			return ResponseUnknown
		}
		n = n*10 + int(r-'0')
	}
	switch {
	case n == 0:
		return ResponseAccepted
	case n >= 100 && n < 2000:
		return ResponseRetryable
	case n >= 2000 && n < 4000:
		return ResponseRejected
	case n >= 4000:
		return ResponseAccepted // observación: aceptado con reparos
	default:
		return ResponseUnknown
	}
}
