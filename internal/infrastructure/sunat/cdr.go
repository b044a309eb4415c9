package sunat

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
)

// CDR es la constancia de recepción que SUNAT devuelve por cada envío:
// un ApplicationResponse con el código de respuesta y su descripción.
type CDR struct {
	ResponseCode string
	Description  string
}

// ParseCDR extrae el ApplicationResponse del ZIP de constancia. El ZIP trae
// un único XML cuyo nombre empieza con "R-".
func ParseCDR(cdrZip []byte) (*CDR, error) {
	zr, err := zip.NewReader(bytes.NewReader(cdrZip), int64(len(cdrZip)))
	if err != nil {
		return nil, fmt.Errorf("cdr: abrir ZIP: %w", err)
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("cdr: abrir %s: %w", f.Name, err)
		}
		xmlBytes, err := io.ReadAll(io.LimitReader(rc, 4<<20))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("cdr: leer %s: %w", f.Name, err)
		}
		return parseApplicationResponse(xmlBytes)
	}
	return nil, fmt.Errorf("cdr: el ZIP no contiene XML")
}

// parseApplicationResponse lee ResponseCode y Description del XML del CDR.
func parseApplicationResponse(xmlBytes []byte) (*CDR, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("cdr: XML ilegible: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("cdr: XML sin raíz")
	}

	resp := root.FindElement("//DocumentResponse/Response")
	if resp == nil {
		resp = root.FindElement("//Response")
	}
	if resp == nil {
		return nil, fmt.Errorf("cdr: ApplicationResponse sin elemento Response")
	}

	cdr := &CDR{}
	if code := resp.FindElement("ResponseCode"); code != nil {
		cdr.ResponseCode = strings.TrimSpace(code.Text())
	}
	if desc := resp.FindElement("Description"); desc != nil {
		cdr.Description = strings.TrimSpace(desc.Text())
	}
	if cdr.ResponseCode == "" {
		return nil, fmt.Errorf("cdr: ResponseCode vacío")
	}
	return cdr, nil
}
