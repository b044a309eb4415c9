package sunat

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Facturacion-api/internal/application/billing"
	"github.com/jhoicas/Facturacion-api/internal/domain"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/pkg/config"
	"github.com/jhoicas/Facturacion-api/pkg/logger"
	catalog "github.com/jhoicas/Facturacion-api/pkg/sunat"
)

var _ billing.Submitter = (*Submitter)(nil)

// presupuesto de sondeo del ticket de una comunicación de baja
const (
	ticketPollInterval = 2 * time.Second
	ticketPollMax      = 5
)

// Submitter implementa billing.Submitter contra el billService de SUNAT.
//
// En entorno "dev" no hay llamada de red: todo envío se simula como aceptado,
// lo que permite levantar el sistema completo sin credenciales SOL.
type Submitter struct {
	env     string
	builder *XMLBuilder
	client  *SOAPClient // nil en dev
	log     *logger.Logger
}

// NewSubmitter construye el adaptador según la configuración SUNAT.
func NewSubmitter(cfg config.SUNATConfig, log *logger.Logger) (*Submitter, error) {
	s := &Submitter{
		env:     cfg.Env,
		builder: NewXMLBuilder(),
		log:     log,
	}
	if cfg.Env == EnvDev {
		return s, nil
	}
	client, err := NewSOAPClient(cfg.Env, cfg.SOLUser, cfg.SOLKey, cfg.EndpointOverride)
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

// SubmitDocument entrega un comprobante y devuelve la resolución de SUNAT.
// Los fallos transitorios (red, 5xx, códigos 0100-1999) envuelven
// domain.ErrAuthorityUnavailable para que el caller reintente.
func (s *Submitter) SubmitDocument(ctx context.Context, company *entity.Company, doc *entity.Document, items []*entity.DocumentItem) (*billing.SubmitResult, error) {
	if s.client == nil {
		s.log.Debug().Str("number", doc.FullNumber()).Msg("envío simulado (entorno dev)")
		return &billing.SubmitResult{Accepted: true, Code: "0", Message: "aceptado (simulado)"}, nil
	}

	xmlBytes, err := s.builder.BuildDocument(company, doc, items)
	if err != nil {
		return nil, fmt.Errorf("construir XML: %w", err)
	}
	xmlName, zipName := DocumentFilenames(company, doc)
	zipBytes, err := CompressXMLToZip(xmlBytes, xmlName)
	if err != nil {
		return nil, err
	}

	cdrZip, fault, err := s.client.SendBill(ctx, zipName, zipBytes)
	if err != nil {
		return nil, err
	}
	if fault != nil {
		return s.resultFromFault(fault)
	}
	cdr, err := ParseCDR(cdrZip)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrAuthorityUnavailable)
	}
	return s.resultFromCDR(cdr)
}

// SubmitCancellation entrega una comunicación de baja. SUNAT la procesa en
// diferido: sendSummary devuelve un ticket que se sondea con getStatus hasta
// obtener el CDR o agotar el presupuesto local (y entonces se reintenta toda
// la entrega más tarde; el reenvío es idempotente por el identificador RA).
func (s *Submitter) SubmitCancellation(ctx context.Context, company *entity.Company, req *entity.CancellationRequest, doc *entity.Document) (*billing.SubmitResult, error) {
	if s.client == nil {
		s.log.Debug().Str("identifier", req.Identifier()).Msg("baja simulada (entorno dev)")
		return &billing.SubmitResult{Accepted: true, Code: "0", Message: "baja aceptada (simulado)"}, nil
	}

	xmlBytes, err := s.builder.BuildVoidedDocuments(company, req, doc)
	if err != nil {
		return nil, fmt.Errorf("construir XML de baja: %w", err)
	}
	xmlName, zipName := CancellationFilenames(company, req)
	zipBytes, err := CompressXMLToZip(xmlBytes, xmlName)
	if err != nil {
		return nil, err
	}

	ticket, fault, err := s.client.SendSummary(ctx, zipName, zipBytes)
	if err != nil {
		return nil, err
	}
	if fault != nil {
		return s.resultFromFault(fault)
	}

	for i := 0; i < ticketPollMax; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("sondeo de ticket cancelado: %w", domain.ErrAuthorityUnavailable)
		case <-time.After(ticketPollInterval):
		}
		cdrZip, statusCode, fault, err := s.client.GetStatus(ctx, ticket)
		if err != nil {
			return nil, err
		}
		if fault != nil {
			return s.resultFromFault(fault)
		}
		if statusCode == "98" || cdrZip == nil {
			continue // aún en proceso
		}
		cdr, err := ParseCDR(cdrZip)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, domain.ErrAuthorityUnavailable)
		}
		return s.resultFromCDR(cdr)
	}
	return nil, fmt.Errorf("ticket %s sigue en proceso: %w", ticket, domain.ErrAuthorityUnavailable)
}

// resultFromCDR traduce el CDR a un SubmitResult según la clase del código.
func (s *Submitter) resultFromCDR(cdr *CDR) (*billing.SubmitResult, error) {
	switch catalog.ClassifyResponseCode(cdr.ResponseCode) {
	case catalog.ResponseAccepted:
		return &billing.SubmitResult{Accepted: true, Code: cdr.ResponseCode, Message: cdr.Description}, nil
	case catalog.ResponseRejected:
		return &billing.SubmitResult{Accepted: false, Code: cdr.ResponseCode, Message: cdr.Description}, nil
	default:
		// error de sistema de SUNAT o código fuera de catálogo: reintentable
		return nil, fmt.Errorf("SUNAT código %s (%s): %w", cdr.ResponseCode, cdr.Description, domain.ErrAuthorityUnavailable)
	}
}

// resultFromFault traduce un SOAP Fault. Los faults llevan el mismo espacio de
// códigos que los CDR (ej: Client.2324).
func (s *Submitter) resultFromFault(fault *soapFault) (*billing.SubmitResult, error) {
	code := fault.Code()
	switch catalog.ClassifyResponseCode(code) {
	case catalog.ResponseRejected:
		return &billing.SubmitResult{Accepted: false, Code: code, Message: fault.FaultString}, nil
	default:
		return nil, fmt.Errorf("SOAP Fault %s (%s): %w", fault.FaultCode, fault.FaultString, domain.ErrAuthorityUnavailable)
	}
}
