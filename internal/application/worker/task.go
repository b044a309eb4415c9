// Package worker implementa la cola de tareas de envío a SUNAT y el pool que
// la drena. La cola vive en memoria: la fuente de verdad es la DB (estados
// SUBMITTED_PENDING / VOID_PENDING) y un rescan periódico la repuebla tras un
// reinicio, por lo que la entrega es al-menos-una-vez y los consumidores deben
// ser idempotentes.
package worker

// Kind distingue qué flujo procesa la tarea.
type Kind string

const (
	KindDocument     Kind = "document"     // envío de comprobante
	KindCancellation Kind = "cancellation" // envío de comunicación de baja
)

// Task es la unidad de trabajo encolada.
//
// LaneKey decide el carril serial: tareas con la misma clave de secuencia se
// procesan en orden de encolado (orden de reserva de correlativo), mientras
// que claves distintas corren en paralelo. Attempt es la cantidad de intentos
// de envío ya realizados para esta tarea.
type Task struct {
	Kind    Kind
	RefID   string // ID del comprobante o de la comunicación de baja
	LaneKey string
	Attempt int
}
