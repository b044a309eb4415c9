package sunat

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"

	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
)

// CompressXMLToZip empaqueta el XML en un archivo ZIP en memoria. SUNAT exige
// que el ZIP contenga un único archivo XML con el mismo nombre base que el ZIP.
func CompressXMLToZip(xmlBytes []byte, xmlFilename string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(xmlFilename)
	if err != nil {
		return nil, fmt.Errorf("zip: crear entrada %s: %w", xmlFilename, err)
	}
	if _, err := fw.Write(xmlBytes); err != nil {
		return nil, fmt.Errorf("zip: escribir XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}

var nonDigit = regexp.MustCompile(`[^0-9]`)

// DocumentFilenames genera los nombres de archivo que exige SUNAT para un
// comprobante: {RUC}-{tipo}-{serie}-{correlativo}. El nombre es también la
// clave de idempotencia del envío: un reenvío del mismo comprobante produce
// exactamente el mismo archivo.
// Ejemplo: 20123456789-01-F001-42.xml / .zip
func DocumentFilenames(company *entity.Company, doc *entity.Document) (xmlName, zipName string) {
	ruc := nonDigit.ReplaceAllString(company.RUC, "")
	base := fmt.Sprintf("%s-%s-%s-%d", ruc, doc.DocumentTypeCode, doc.Series, doc.Correlativo)
	return base + ".xml", base + ".zip"
}

// CancellationFilenames genera los nombres de archivo de una comunicación de
// baja: {RUC}-RA-YYYYMMDD-NNNNN.
// Ejemplo: 20123456789-RA-20260827-00001.xml / .zip
func CancellationFilenames(company *entity.Company, req *entity.CancellationRequest) (xmlName, zipName string) {
	ruc := nonDigit.ReplaceAllString(company.RUC, "")
	base := fmt.Sprintf("%s-%s", ruc, req.Identifier())
	return base + ".xml", base + ".zip"
}
