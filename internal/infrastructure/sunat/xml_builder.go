// Package sunat implementa la integración con el WS de comprobantes
// electrónicos de SUNAT (billService): construcción del XML UBL 2.1,
// empaquetado ZIP, envío SOAP y lectura de la constancia de recepción (CDR).
//
// La firma digital XAdES queda fuera: el XML se envía tal cual lo produce el
// builder y se asume que el ambiente lo admite (beta) o que un servicio
// externo firma antes del envío.
package sunat

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
)

// Namespaces oficiales UBL 2.1 usados por SUNAT.
const (
	nsInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	nsVoided  = "urn:sunat:names:specification:ubl:peru:schema:xsd:VoidedDocuments-1"
	nsCac     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	nsCbc     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	nsExt     = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	nsSac     = "urn:sunat:names:specification:ubl:peru:schema:xsd:SunatAggregateComponents-1"
)

// XMLBuilder construye los documentos UBL que consume el billService.
type XMLBuilder struct{}

// NewXMLBuilder crea el builder.
func NewXMLBuilder() *XMLBuilder {
	return &XMLBuilder{}
}

// BuildDocument genera el XML UBL 2.1 del comprobante (Invoice).
func (b *XMLBuilder) BuildDocument(company *entity.Company, doc *entity.Document, items []*entity.DocumentItem) ([]byte, error) {
	if company == nil || doc == nil {
		return nil, fmt.Errorf("sunat: faltan company o document")
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "Invoice"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: nsInvoice},
			{Name: xml.Name{Local: "xmlns:cac"}, Value: nsCac},
			{Name: xml.Name{Local: "xmlns:cbc"}, Value: nsCbc},
			{Name: xml.Name{Local: "xmlns:ext"}, Value: nsExt},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	writeCbc(enc, "UBLVersionID", "2.1")
	writeCbc(enc, "CustomizationID", "2.0")
	writeCbc(enc, "ID", doc.FullNumber())
	writeCbc(enc, "IssueDate", doc.IssuedAt.Format("2006-01-02"))
	writeCbcAttr(enc, "InvoiceTypeCode", doc.DocumentTypeCode,
		xml.Attr{Name: xml.Name{Local: "listID"}, Value: "0101"})
	writeCbcAttr(enc, "DocumentCurrencyCode", doc.Currency,
		xml.Attr{Name: xml.Name{Local: "listID"}, Value: "ISO 4217 Alpha"})

	if err := b.writeSupplierParty(enc, company); err != nil {
		return nil, err
	}
	if err := b.writeCustomerParty(enc, doc); err != nil {
		return nil, err
	}
	if err := b.writeTaxTotal(enc, doc); err != nil {
		return nil, err
	}
	if err := b.writeMonetaryTotal(enc, doc); err != nil {
		return nil, err
	}
	for i, it := range items {
		if err := b.writeInvoiceLine(enc, doc, it, i+1); err != nil {
			return nil, err
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildVoidedDocuments genera el XML de la comunicación de baja
// (VoidedDocuments) que anula el comprobante referenciado.
func (b *XMLBuilder) BuildVoidedDocuments(company *entity.Company, req *entity.CancellationRequest, doc *entity.Document) ([]byte, error) {
	if company == nil || req == nil || doc == nil {
		return nil, fmt.Errorf("sunat: faltan company, request o document")
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "VoidedDocuments"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: nsVoided},
			{Name: xml.Name{Local: "xmlns:cac"}, Value: nsCac},
			{Name: xml.Name{Local: "xmlns:cbc"}, Value: nsCbc},
			{Name: xml.Name{Local: "xmlns:ext"}, Value: nsExt},
			{Name: xml.Name{Local: "xmlns:sac"}, Value: nsSac},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	writeCbc(enc, "UBLVersionID", "2.0")
	writeCbc(enc, "CustomizationID", "1.0")
	writeCbc(enc, "ID", req.Identifier())
	writeCbc(enc, "ReferenceDate", doc.IssuedAt.Format("2006-01-02"))
	writeCbc(enc, "IssueDate", req.CommunicationDate.Format("2006-01-02"))

	if err := b.writeSupplierParty(enc, company); err != nil {
		return nil, err
	}

	// sac:VoidedDocumentsLine: referencia al comprobante que se da de baja
	line := startEl("sac:VoidedDocumentsLine")
	enc.EncodeToken(line)
	writeCbc(enc, "LineID", "1")
	writeCbc(enc, "DocumentTypeCode", doc.DocumentTypeCode)
	writeCbcNS(enc, "sac:DocumentSerialID", doc.Series)
	writeCbcNS(enc, "sac:DocumentNumberID", fmt.Sprintf("%d", doc.Correlativo))
	writeCbcNS(enc, "sac:VoidReasonDescription", req.Motivo)
	enc.EncodeToken(line.End())

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func (b *XMLBuilder) writeSupplierParty(enc *xml.Encoder, company *entity.Company) error {
	party := startEl("cac:AccountingSupplierParty")
	enc.EncodeToken(party)
	inner := startEl("cac:Party")
	enc.EncodeToken(inner)

	ident := startEl("cac:PartyIdentification")
	enc.EncodeToken(ident)
	// schemeID 6 = RUC (catálogo 06)
	writeCbcAttr(enc, "ID", company.RUC,
		xml.Attr{Name: xml.Name{Local: "schemeID"}, Value: "6"})
	enc.EncodeToken(ident.End())

	legal := startEl("cac:PartyLegalEntity")
	enc.EncodeToken(legal)
	writeCbc(enc, "RegistrationName", company.Name)
	enc.EncodeToken(legal.End())

	enc.EncodeToken(inner.End())
	return enc.EncodeToken(party.End())
}

func (b *XMLBuilder) writeCustomerParty(enc *xml.Encoder, doc *entity.Document) error {
	party := startEl("cac:AccountingCustomerParty")
	enc.EncodeToken(party)
	inner := startEl("cac:Party")
	enc.EncodeToken(inner)

	ident := startEl("cac:PartyIdentification")
	enc.EncodeToken(ident)
	// schemeID 6 = RUC, 1 = DNI (catálogo 06); el RUC tiene 11 dígitos
	scheme := "1"
	if len(doc.CustomerDoc) == 11 {
		scheme = "6"
	}
	writeCbcAttr(enc, "ID", doc.CustomerDoc,
		xml.Attr{Name: xml.Name{Local: "schemeID"}, Value: scheme})
	enc.EncodeToken(ident.End())

	legal := startEl("cac:PartyLegalEntity")
	enc.EncodeToken(legal)
	writeCbc(enc, "RegistrationName", doc.CustomerName)
	enc.EncodeToken(legal.End())

	enc.EncodeToken(inner.End())
	return enc.EncodeToken(party.End())
}

func (b *XMLBuilder) writeTaxTotal(enc *xml.Encoder, doc *entity.Document) error {
	total := startEl("cac:TaxTotal")
	enc.EncodeToken(total)
	writeAmount(enc, "cbc:TaxAmount", doc.TaxTotal, doc.Currency)
	return enc.EncodeToken(total.End())
}

func (b *XMLBuilder) writeMonetaryTotal(enc *xml.Encoder, doc *entity.Document) error {
	total := startEl("cac:LegalMonetaryTotal")
	enc.EncodeToken(total)
	writeAmount(enc, "cbc:LineExtensionAmount", doc.NetTotal, doc.Currency)
	writeAmount(enc, "cbc:TaxInclusiveAmount", doc.GrandTotal, doc.Currency)
	writeAmount(enc, "cbc:PayableAmount", doc.GrandTotal, doc.Currency)
	return enc.EncodeToken(total.End())
}

func (b *XMLBuilder) writeInvoiceLine(enc *xml.Encoder, doc *entity.Document, it *entity.DocumentItem, lineID int) error {
	line := startEl("cac:InvoiceLine")
	enc.EncodeToken(line)
	writeCbc(enc, "ID", fmt.Sprintf("%d", lineID))

	unit := it.UnitCode
	if unit == "" {
		unit = "NIU"
	}
	qty := startEl("cbc:InvoicedQuantity")
	qty.Attr = append(qty.Attr, xml.Attr{Name: xml.Name{Local: "unitCode"}, Value: unit})
	enc.EncodeToken(qty)
	enc.EncodeToken(xml.CharData(it.Quantity.String()))
	enc.EncodeToken(qty.End())

	writeAmount(enc, "cbc:LineExtensionAmount", it.Subtotal, doc.Currency)

	taxTotal := startEl("cac:TaxTotal")
	enc.EncodeToken(taxTotal)
	writeAmount(enc, "cbc:TaxAmount", it.TaxAmount, doc.Currency)
	enc.EncodeToken(taxTotal.End())

	item := startEl("cac:Item")
	enc.EncodeToken(item)
	writeCbcNS(enc, "cbc:Description", it.Description)
	enc.EncodeToken(item.End())

	price := startEl("cac:Price")
	enc.EncodeToken(price)
	writeAmount(enc, "cbc:PriceAmount", it.UnitPrice, doc.Currency)
	enc.EncodeToken(price.End())

	return enc.EncodeToken(line.End())
}

// ── helpers ───────────────────────────────────────────────────────────────────

func startEl(name string) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Local: name}}
}

func writeCbc(enc *xml.Encoder, local, value string) {
	writeCbcNS(enc, "cbc:"+local, value)
}

func writeCbcNS(enc *xml.Encoder, qualified, value string) {
	el := startEl(qualified)
	enc.EncodeToken(el)
	enc.EncodeToken(xml.CharData(value))
	enc.EncodeToken(el.End())
}

func writeCbcAttr(enc *xml.Encoder, local, value string, attrs ...xml.Attr) {
	el := startEl("cbc:" + local)
	el.Attr = append(el.Attr, attrs...)
	enc.EncodeToken(el)
	enc.EncodeToken(xml.CharData(value))
	enc.EncodeToken(el.End())
}

func writeAmount(enc *xml.Encoder, qualified string, amount decimal.Decimal, currency string) {
	el := startEl(qualified)
	el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: "currencyID"}, Value: currency})
	enc.EncodeToken(el)
	enc.EncodeToken(xml.CharData(amount.StringFixed(2)))
	enc.EncodeToken(el.End())
}
