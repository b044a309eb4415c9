// Package pdf implementa la representación impresa del comprobante
// electrónico SUNAT (factura, boleta, notas) con Maroto v2.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón Social + RUC  │  Tipo + Serie-Correlativo     │
//	│  ─────────────────────────────────────────────────────────  │
//	│  EMISOR: Dirección                                           │
//	│  ADQUIRIENTE: Nombre + RUC/DNI                               │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Descripción | P.Unit | IGV | Subtotal         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Op. gravada / IGV / IMPORTE TOTAL                  │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: QR de verificación + leyenda legal                  │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/pkg/sunat"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// nombres legales por tipo de comprobante (catálogo 01)
var documentTypeTitles = map[string]string{
	sunat.DocTypeFactura:     "FACTURA ELECTRÓNICA",
	sunat.DocTypeBoleta:      "BOLETA DE VENTA ELECTRÓNICA",
	sunat.DocTypeNotaCredito: "NOTA DE CRÉDITO ELECTRÓNICA",
	sunat.DocTypeNotaDebito:  "NOTA DE DÉBITO ELECTRÓNICA",
}

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator implementa billing.DocumentPDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateDocumentPDF genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateDocumentPDF(
	_ context.Context,
	doc *entity.Document,
	company *entity.Company,
	items []*entity.DocumentItem,
) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(documentTitle(doc), true).
		WithAuthor(company.Name, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(doc, company))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(emisorRow(company))
	m.AddRows(adquirienteRow(doc))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	for _, r := range tableDetailRows(items) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(doc))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, r := range footerRows(doc, company) {
		m.AddRows(r)
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return out.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func documentTitle(doc *entity.Document) string {
	if t, ok := documentTypeTitles[doc.DocumentTypeCode]; ok {
		return t
	}
	return "COMPROBANTE ELECTRÓNICO"
}

// headerRow: razón social + RUC (izq) y tipo + numeración legal (der).
func headerRow(doc *entity.Document, company *entity.Company) core.Row {
	fecha := doc.IssuedAt.Format("02/01/2006")

	return row.New(18).Add(
		col.New(7).Add(
			text.New(company.Name, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("RUC: "+company.RUC, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(documentTitle(doc), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(doc.FullNumber(), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha de emisión: "+fecha, props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// emisorRow: datos del emisor (empresa).
func emisorRow(company *entity.Company) core.Row {
	return row.New(12).Add(
		col.New(12).Add(
			text.New("DATOS DEL EMISOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New("Domicilio fiscal: "+nonEmpty(company.Address, "—"),
				props.Text{Size: 8, Top: 7, Color: colorGray}),
		),
	)
}

// adquirienteRow: datos del comprador.
func adquirienteRow(doc *entity.Document) core.Row {
	return row.New(14).Add(
		col.New(12).Add(
			text.New("ADQUIRIENTE", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(nonEmpty(doc.CustomerName, "—"), props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("RUC/DNI: %s   |   Moneda: %s",
				nonEmpty(doc.CustomerDoc, "—"), doc.Currency,
			), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

// tableHeaderRow: cabecera de la tabla de detalle.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 5, align.Left),
		h("P. Unitario", 2, align.Right),
		h("IGV%", 1, align.Center),
		h("Subtotal", 3, align.Right),
	)
}

// tableDetailRows: una fila por línea del comprobante.
func tableDetailRows(items []*entity.DocumentItem) []core.Row {
	result := make([]core.Row, 0, len(items))
	for _, it := range items {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				it.Quantity.StringFixed(0),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(5).Add(text.New(
				it.Description,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				it.UnitPrice.StringFixed(2),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(1).Add(text.New(
				it.TaxRate.Mul(hundred).StringFixed(0)+"%",
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(3).Add(text.New(
				it.Subtotal.StringFixed(2),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(doc *entity.Document) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	grandLabel := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 2,
		})
	}
	grandValue := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 1,
		})
	}

	cur := doc.Currency + " "
	return row.New(26).Add(
		col.New(3),
		col.New(4).Add(
			label("Op. gravada:"),
			label("IGV:"),
			grandLabel("IMPORTE TOTAL:"),
		),
		col.New(3).Add(
			value(cur+doc.NetTotal.StringFixed(2)),
			value(cur+doc.TaxTotal.StringFixed(2)),
			grandValue(cur+doc.GrandTotal.StringFixed(2)),
		),
		col.New(2),
	)
}

// footerRows: QR de verificación + leyenda legal.
func footerRows(doc *entity.Document, company *entity.Company) []core.Row {
	// contenido QR según R.S. 193-2020/SUNAT: RUC|tipo|serie|correlativo|igv|total|fecha|tipoDocAdq|numDocAdq
	qr := fmt.Sprintf("%s|%s|%s|%08d|%s|%s|%s||%s",
		company.RUC,
		doc.DocumentTypeCode,
		doc.Series,
		doc.Correlativo,
		doc.TaxTotal.StringFixed(2),
		doc.GrandTotal.StringFixed(2),
		doc.IssuedAt.Format("2006-01-02"),
		doc.CustomerDoc,
	)

	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("INFORMACIÓN ELECTRÓNICA SUNAT", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
		row.New(40).Add(
			col.New(4).Add(code.NewQr(qr, props.Rect{
				Percent: 95,
				Center:  true,
			})),
			col.New(8).Add(
				text.New("Escanee el código QR para verificar\neste comprobante en el portal SUNAT.", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New("Representación impresa de la\n"+documentTitle(doc), props.Text{
					Style: fontstyle.Bold, Size: 10, Top: 18,
					Left: 3, Color: colorPrimary,
				}),
			),
		),
	}

	rows = append(rows, row.New(8).Add(col.New(12).Add(
		text.New(
			"Comprobante de pago electrónico emitido conforme a la normativa SUNAT "+
				"(R.S. 097-2012/SUNAT y modificatorias). "+
				"Conserve este documento como sustento tributario.",
			props.Text{Size: 6.5, Color: colorGray, Top: 2},
		),
	)))

	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

var hundred = decimal.NewFromInt(100)

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
