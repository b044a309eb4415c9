package entity

import "fmt"

// SequenceKey identifica un contador monótono de correlativos: una combinación
// empresa + establecimiento + terminal POS (opcional) + tipo de comprobante + serie.
// POSTerminalID vacío significa "sin terminal" y participa igual en la clave.
type SequenceKey struct {
	CompanyID        string
	EstablishmentID  string
	POSTerminalID    string
	DocumentTypeCode string
	Series           string
}

// String devuelve una representación canónica de la clave. Se usa como
// LaneKey del worker pool para serializar envíos de la misma secuencia.
func (k SequenceKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		k.CompanyID, k.EstablishmentID, k.POSTerminalID, k.DocumentTypeCode, k.Series)
}

// DocumentSequence es la fila durable del contador por clave.
// LastValue es el último correlativo entregado; el siguiente es LastValue+1.
type DocumentSequence struct {
	Key       SequenceKey
	LastValue int64
}
