package sunat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/domain"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// EnvDev es el identificador local: no envía al WS SUNAT (simulado).
	EnvDev = "dev"
	// EnvBeta es el ambiente de pruebas de SUNAT.
	EnvBeta = "beta"
	// EnvProd es el ambiente de producción.
	EnvProd = "prod"

	soapURLBeta = "https://e-beta.sunat.gob.pe/ol-ti-itcpfegem-beta/billService"
	soapURLProd = "https://e-factura.sunat.gob.pe/ol-ti-itcpfegem/billService"

	soapNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	serviceNS = "http://service.sunat.gob.pe"
	wsseNS    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
)

// ── Cliente SOAP ──────────────────────────────────────────────────────────────

// SOAPClient habla con el billService de SUNAT: sendBill para comprobantes
// (respuesta síncrona con CDR) y sendSummary + getStatus para comunicaciones
// de baja (respuesta diferida vía ticket).
type SOAPClient struct {
	httpClient *http.Client
	endpoint   string
	solUser    string
	solKey     string
}

// NewSOAPClient construye el cliente para el entorno dado. endpointOverride,
// si no está vacío, reemplaza la URL oficial (tests, proxies).
func NewSOAPClient(env, solUser, solKey, endpointOverride string) (*SOAPClient, error) {
	endpoint := endpointOverride
	if endpoint == "" {
		switch env {
		case EnvBeta:
			endpoint = soapURLBeta
		case EnvProd:
			endpoint = soapURLProd
		default:
			return nil, fmt.Errorf("sunat: entorno desconocido %q (usar 'beta' o 'prod')", env)
		}
	}
	return &SOAPClient{
		// el WS SUNAT puede tardar varios segundos en responder
		httpClient: &http.Client{Timeout: 60 * time.Second},
		endpoint:   endpoint,
		solUser:    solUser,
		solKey:     solKey,
	}, nil
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name   `xml:"soapenv:Envelope"`
	XmlnsS  string     `xml:"xmlns:soapenv,attr"`
	XmlnsSer string    `xml:"xmlns:ser,attr"`
	XmlnsW  string     `xml:"xmlns:wsse,attr"`
	Header  soapHeader `xml:"soapenv:Header"`
	Body    soapBody   `xml:"soapenv:Body"`
}

type soapHeader struct {
	Security wsseSecurity `xml:"wsse:Security"`
}

type wsseSecurity struct {
	Token wsseUsernameToken `xml:"wsse:UsernameToken"`
}

type wsseUsernameToken struct {
	Username string `xml:"wsse:Username"`
	Password string `xml:"wsse:Password"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	e.EncodeToken(start)
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type sendBillBody struct {
	XMLName     xml.Name `xml:"ser:sendBill"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"` // ZIP en Base64
}

type sendSummaryBody struct {
	XMLName     xml.Name `xml:"ser:sendSummary"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"`
}

type getStatusBody struct {
	XMLName xml.Name `xml:"ser:getStatus"`
	Ticket  string   `xml:"ticket"`
}

// ── Estructuras de respuesta SOAP ─────────────────────────────────────────────

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	SendBillResponse    *sendBillResponse    `xml:"sendBillResponse"`
	SendSummaryResponse *sendSummaryResponse `xml:"sendSummaryResponse"`
	GetStatusResponse   *getStatusResponse   `xml:"getStatusResponse"`
	Fault               *soapFault           `xml:"Fault"`
}

type sendBillResponse struct {
	ApplicationResponse string `xml:"applicationResponse"` // CDR ZIP en Base64
}

type sendSummaryResponse struct {
	Ticket string `xml:"ticket"`
}

type getStatusResponse struct {
	Status struct {
		StatusCode string `xml:"statusCode"`
		Content    string `xml:"content"` // CDR ZIP en Base64 (cuando ya hay resultado)
	} `xml:"status"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// Code extrae el código numérico SUNAT del faultcode
// (ej: "soap-env:Client.2324" -> "2324").
func (f *soapFault) Code() string {
	code := f.FaultCode
	if idx := strings.LastIndexAny(code, ".:"); idx != -1 {
		code = code[idx+1:]
	}
	return code
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// SendBill envía el ZIP del comprobante. La respuesta trae el CDR (ZIP con el
// ApplicationResponse) en la misma llamada.
func (c *SOAPClient) SendBill(ctx context.Context, zipName string, zipBytes []byte) (cdrZip []byte, fault *soapFault, err error) {
	body := &sendBillBody{
		FileName:    zipName,
		ContentFile: base64.StdEncoding.EncodeToString(zipBytes),
	}
	resp, err := c.call(ctx, body)
	if err != nil {
		return nil, nil, err
	}
	if resp.Body.Fault != nil {
		return nil, resp.Body.Fault, nil
	}
	if resp.Body.SendBillResponse == nil {
		return nil, nil, fmt.Errorf("sunat: respuesta sendBill vacía: %w", domain.ErrAuthorityUnavailable)
	}
	cdr, err := base64.StdEncoding.DecodeString(resp.Body.SendBillResponse.ApplicationResponse)
	if err != nil {
		return nil, nil, fmt.Errorf("sunat: decodificar CDR: %w", err)
	}
	return cdr, nil, nil
}

// SendSummary envía el ZIP de una comunicación de baja. SUNAT responde con un
// ticket que se consulta luego con GetStatus.
func (c *SOAPClient) SendSummary(ctx context.Context, zipName string, zipBytes []byte) (ticket string, fault *soapFault, err error) {
	body := &sendSummaryBody{
		FileName:    zipName,
		ContentFile: base64.StdEncoding.EncodeToString(zipBytes),
	}
	resp, err := c.call(ctx, body)
	if err != nil {
		return "", nil, err
	}
	if resp.Body.Fault != nil {
		return "", resp.Body.Fault, nil
	}
	if resp.Body.SendSummaryResponse == nil || resp.Body.SendSummaryResponse.Ticket == "" {
		return "", nil, fmt.Errorf("sunat: respuesta sendSummary sin ticket: %w", domain.ErrAuthorityUnavailable)
	}
	return resp.Body.SendSummaryResponse.Ticket, nil, nil
}

// GetStatus consulta el resultado de un ticket. Si el proceso sigue en curso
// (statusCode 98) devuelve (nil, "98", nil, nil) y el caller debe reintentar.
func (c *SOAPClient) GetStatus(ctx context.Context, ticket string) (cdrZip []byte, statusCode string, fault *soapFault, err error) {
	resp, err := c.call(ctx, &getStatusBody{Ticket: ticket})
	if err != nil {
		return nil, "", nil, err
	}
	if resp.Body.Fault != nil {
		return nil, "", resp.Body.Fault, nil
	}
	if resp.Body.GetStatusResponse == nil {
		return nil, "", nil, fmt.Errorf("sunat: respuesta getStatus vacía: %w", domain.ErrAuthorityUnavailable)
	}
	st := resp.Body.GetStatusResponse.Status
	if st.Content == "" {
		return nil, st.StatusCode, nil, nil
	}
	cdr, err := base64.StdEncoding.DecodeString(st.Content)
	if err != nil {
		return nil, "", nil, fmt.Errorf("sunat: decodificar CDR del ticket: %w", err)
	}
	return cdr, st.StatusCode, nil, nil
}

// call arma el envelope, ejecuta el POST y desempaqueta la respuesta. Los
// fallos de red y los 5xx del WS se reportan envolviendo
// domain.ErrAuthorityUnavailable (transitorios, el caller reintenta).
func (c *SOAPClient) call(ctx context.Context, content interface{}) (*soapResponseEnvelope, error) {
	envelope := soapEnvelope{
		XmlnsS:   soapNS,
		XmlnsSer: serviceNS,
		XmlnsW:   wsseNS,
		Header: soapHeader{
			Security: wsseSecurity{
				Token: wsseUsernameToken{Username: c.solUser, Password: c.solKey},
			},
		},
		Body: soapBody{Content: content},
	}
	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("sunat: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("sunat: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sunat: llamada HTTP fallida (%v): %w", err, domain.ErrAuthorityUnavailable)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20)) // max 4 MB
	if err != nil {
		return nil, fmt.Errorf("sunat: leer respuesta: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("sunat: WS devolvió %d: %w", resp.StatusCode, domain.ErrAuthorityUnavailable)
	}

	var envResp soapResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		return nil, fmt.Errorf("sunat: respuesta SOAP ilegible: %w", domain.ErrAuthorityUnavailable)
	}
	return &envResp, nil
}
