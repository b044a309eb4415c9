package sunat_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	infrasunat "github.com/jhoicas/Facturacion-api/internal/infrastructure/sunat"
	"github.com/jhoicas/Facturacion-api/pkg/config"
	"github.com/jhoicas/Facturacion-api/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────────────────────────────────

func testCompany() *entity.Company {
	return &entity.Company{
		ID: "emp-1", Name: "Comercial Andina SAC", RUC: "20123456789",
		TaxRegime: entity.TaxRegimeGeneral, Status: "active",
	}
}

func testDocument() (*entity.Document, []*entity.DocumentItem) {
	doc := &entity.Document{
		ID: "doc-1", CompanyID: "emp-1", EstablishmentID: "est-1",
		DocumentTypeCode: "01", Series: "F001", Correlativo: 42,
		CustomerName: "Importaciones del Sur EIRL", CustomerDoc: "20987654321",
		Currency:   "PEN",
		NetTotal:   decimal.RequireFromString("200.00"),
		TaxTotal:   decimal.RequireFromString("36.00"),
		GrandTotal: decimal.RequireFromString("236.00"),
		State:      entity.StateSubmittedPending,
		IssuedAt:   time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC),
	}
	items := []*entity.DocumentItem{{
		ID: "item-1", DocumentID: "doc-1", Description: "Monitor 27 pulgadas",
		UnitCode: "NIU", Quantity: decimal.NewFromInt(2),
		UnitPrice: decimal.RequireFromString("100.00"),
		TaxRate:   decimal.RequireFromString("0.18"),
		Subtotal:  decimal.RequireFromString("200.00"),
		TaxAmount: decimal.RequireFromString("36.00"),
	}}
	return doc, items
}

func testCancellation() *entity.CancellationRequest {
	return &entity.CancellationRequest{
		ID: "baja-1", CompanyID: "emp-1", DocumentID: "doc-1",
		CommunicationNumber: "00001",
		CommunicationDate:   time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
		Motivo:              "Error en los datos del adquiriente",
		State:               entity.CancellationPending,
	}
}

// applicationResponseXML arma un CDR mínimo con el código indicado.
func applicationResponseXML(code, description string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<ApplicationResponse>
  <DocumentResponse>
    <Response>
      <ResponseCode>` + code + `</ResponseCode>
      <Description>` + description + `</Description>
    </Response>
  </DocumentResponse>
</ApplicationResponse>`
}

// ──────────────────────────────────────────────────────────────────────────────
// XML UBL
// ──────────────────────────────────────────────────────────────────────────────

func TestBuildDocument_InvoiceUBL(t *testing.T) {
	doc, items := testDocument()
	xmlBytes, err := infrasunat.NewXMLBuilder().BuildDocument(testCompany(), doc, items)
	require.NoError(t, err)

	s := string(xmlBytes)
	assert.Contains(t, s, `<cbc:UBLVersionID>2.1</cbc:UBLVersionID>`)
	assert.Contains(t, s, `<cbc:ID>F001-00000042</cbc:ID>`,
		"el ID del Invoice es la numeración legal completa")
	assert.Contains(t, s, `<cbc:InvoiceTypeCode listID="0101">01</cbc:InvoiceTypeCode>`)
	assert.Contains(t, s, `<cbc:ID schemeID="6">20123456789</cbc:ID>`,
		"el emisor se identifica por RUC (schemeID 6)")
	assert.Contains(t, s, `<cbc:ID schemeID="6">20987654321</cbc:ID>`,
		"adquiriente con documento de 11 dígitos es RUC")
	assert.Contains(t, s, `<cbc:PayableAmount currencyID="PEN">236.00</cbc:PayableAmount>`)
	assert.Contains(t, s, `<cbc:InvoicedQuantity unitCode="NIU">2</cbc:InvoicedQuantity>`)
	assert.Contains(t, s, "Monitor 27 pulgadas")
}

func TestBuildDocument_AdquirienteConDNI(t *testing.T) {
	doc, items := testDocument()
	doc.DocumentTypeCode = "03"
	doc.CustomerDoc = "45678912" // DNI: 8 dígitos
	xmlBytes, err := infrasunat.NewXMLBuilder().BuildDocument(testCompany(), doc, items)
	require.NoError(t, err)

	assert.Contains(t, string(xmlBytes), `<cbc:ID schemeID="1">45678912</cbc:ID>`,
		"documento de menos de 11 dígitos se marca como DNI (schemeID 1)")
}

func TestBuildVoidedDocuments_ComunicacionDeBaja(t *testing.T) {
	doc, _ := testDocument()
	req := testCancellation()
	xmlBytes, err := infrasunat.NewXMLBuilder().BuildVoidedDocuments(testCompany(), req, doc)
	require.NoError(t, err)

	s := string(xmlBytes)
	assert.Contains(t, s, `<cbc:ID>RA-20260827-00001</cbc:ID>`)
	assert.Contains(t, s, `<sac:DocumentSerialID>F001</sac:DocumentSerialID>`)
	assert.Contains(t, s, `<sac:DocumentNumberID>42</sac:DocumentNumberID>`)
	assert.Contains(t, s, req.Motivo)
	assert.True(t, strings.HasPrefix(s, "<?xml"), "debe llevar declaración XML")
}

// ──────────────────────────────────────────────────────────────────────────────
// Nombres de archivo (clave de idempotencia del envío)
// ──────────────────────────────────────────────────────────────────────────────

func TestDocumentFilenames(t *testing.T) {
	doc, _ := testDocument()
	xmlName, zipName := infrasunat.DocumentFilenames(testCompany(), doc)
	assert.Equal(t, "20123456789-01-F001-42.xml", xmlName)
	assert.Equal(t, "20123456789-01-F001-42.zip", zipName)
}

func TestDocumentFilenames_DeterministasParaReenvio(t *testing.T) {
	doc, _ := testDocument()
	a, _ := infrasunat.DocumentFilenames(testCompany(), doc)
	b, _ := infrasunat.DocumentFilenames(testCompany(), doc)
	assert.Equal(t, a, b, "el reenvío del mismo comprobante produce el mismo archivo")
}

func TestCancellationFilenames(t *testing.T) {
	xmlName, zipName := infrasunat.CancellationFilenames(testCompany(), testCancellation())
	assert.Equal(t, "20123456789-RA-20260827-00001.xml", xmlName)
	assert.Equal(t, "20123456789-RA-20260827-00001.zip", zipName)
}

// ──────────────────────────────────────────────────────────────────────────────
// Submitter en entorno dev (sin red)
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmitter_EntornoDev_SimulaAceptacion(t *testing.T) {
	sub, err := infrasunat.NewSubmitter(config.SUNATConfig{Env: infrasunat.EnvDev}, logger.Nop())
	require.NoError(t, err)

	doc, items := testDocument()
	res, err := sub.SubmitDocument(context.Background(), testCompany(), doc, items)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "0", res.Code)

	res, err = sub.SubmitCancellation(context.Background(), testCompany(), testCancellation(), doc)
	require.NoError(t, err)
	assert.True(t, res.Accepted, "en dev la baja también se simula aceptada")
}

func TestNewSubmitter_EntornoDesconocido(t *testing.T) {
	_, err := infrasunat.NewSubmitter(config.SUNATConfig{Env: "staging"}, logger.Nop())
	assert.Error(t, err, "un entorno sin endpoint conocido debe rechazarse al arrancar")
}

// ──────────────────────────────────────────────────────────────────────────────
// CDR (constancia de recepción)
// ──────────────────────────────────────────────────────────────────────────────

func TestParseCDR_LeeCodigoYDescripcion(t *testing.T) {
	xmlContent := applicationResponseXML("0", "La Factura numero F001-42 ha sido aceptada")
	cdrZip, err := infrasunat.CompressXMLToZip([]byte(xmlContent), "R-20123456789-01-F001-42.xml")
	require.NoError(t, err)

	cdr, err := infrasunat.ParseCDR(cdrZip)
	require.NoError(t, err)
	assert.Equal(t, "0", cdr.ResponseCode)
	assert.Contains(t, cdr.Description, "aceptada")
}

func TestParseCDR_CodigoDeRechazo(t *testing.T) {
	xmlContent := applicationResponseXML("2017", "El RUC del adquiriente no existe")
	cdrZip, err := infrasunat.CompressXMLToZip([]byte(xmlContent), "R-x.xml")
	require.NoError(t, err)

	cdr, err := infrasunat.ParseCDR(cdrZip)
	require.NoError(t, err)
	assert.Equal(t, "2017", cdr.ResponseCode)
}

func TestParseCDR_ZIPCorrupto(t *testing.T) {
	_, err := infrasunat.ParseCDR([]byte("esto no es un zip"))
	assert.Error(t, err)
}

func TestParseCDR_ZIPSinXML(t *testing.T) {
	cdrZip, err := infrasunat.CompressXMLToZip([]byte("hola"), "leeme.txt")
	require.NoError(t, err)
	_, err = infrasunat.ParseCDR(cdrZip)
	assert.Error(t, err, "un ZIP sin XML no es un CDR válido")
}

func TestParseCDR_SinResponseCode(t *testing.T) {
	xmlContent := `<?xml version="1.0"?><ApplicationResponse><DocumentResponse><Response><Description>sin código</Description></Response></DocumentResponse></ApplicationResponse>`
	cdrZip, err := infrasunat.CompressXMLToZip([]byte(xmlContent), "R-x.xml")
	require.NoError(t, err)
	_, err = infrasunat.ParseCDR(cdrZip)
	assert.Error(t, err, "ResponseCode vacío debe rechazarse")
}
