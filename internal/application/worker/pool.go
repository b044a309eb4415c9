package worker

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/Facturacion-api/internal/domain"
	"github.com/jhoicas/Facturacion-api/pkg/logger"
)

// Handler procesa una tarea del pool.
//
// Handle debe ser idempotente: la misma tarea puede entregarse más de una vez.
// Un error que envuelva domain.ErrAuthorityUnavailable programa un reintento
// con backoff; cualquier otro error se registra y la tarea se descarta (la DB
// conserva el estado pendiente y el rescan la recuperará).
// Exhaust se invoca cuando el presupuesto de reintentos se agota; debe dejar
// el registro en un estado visible para revisión manual.
type Handler interface {
	Handle(ctx context.Context, t Task) error
	Exhaust(ctx context.Context, t Task)
}

// Config parámetros del pool.
type Config struct {
	Lanes       int           // carriles seriales (goroutines consumidoras)
	QueueDepth  int           // capacidad del buffer de cada carril
	MaxAttempts int           // intentos totales antes de Exhaust
	BackoffBase time.Duration // retardo base; el efectivo es base * 2^(attempt-1)
	BackoffMax  time.Duration // techo del retardo
}

func (c Config) withDefaults() Config {
	if c.Lanes <= 0 {
		c.Lanes = 4
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 1024
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 6
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Minute
	}
	return c
}

// Pool drena la cola de envíos con carriles seriales por clave de secuencia.
type Pool struct {
	cfg     Config
	handler Handler
	log     *logger.Logger
	lanes   []chan Task
}

// NewPool construye el pool. No arranca consumidores hasta Run.
func NewPool(cfg Config, handler Handler, log *logger.Logger) *Pool {
	cfg = cfg.withDefaults()
	lanes := make([]chan Task, cfg.Lanes)
	for i := range lanes {
		lanes[i] = make(chan Task, cfg.QueueDepth)
	}
	return &Pool{cfg: cfg, handler: handler, log: log, lanes: lanes}
}

// Enqueue publica la tarea en su carril. Tareas con el mismo LaneKey comparten
// carril FIFO, así los envíos de una misma secuencia conservan el orden de
// reserva. Bloquea solo si el carril está lleno.
func (p *Pool) Enqueue(t Task) {
	p.lanes[p.laneFor(t.LaneKey)] <- t
}

func (p *Pool) laneFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.lanes)))
}

// Run consume los carriles hasta que ctx se cancele.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range p.lanes {
		lane := p.lanes[i]
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case t := <-lane:
					p.process(ctx, t)
				}
			}
		})
	}
	return g.Wait()
}

// process ejecuta un intento y decide reintento, agotamiento o descarte.
func (p *Pool) process(ctx context.Context, t Task) {
	err := p.handler.Handle(ctx, t)
	if err == nil {
		return
	}
	if !errors.Is(err, domain.ErrAuthorityUnavailable) {
		p.log.Error().Err(err).
			Str("kind", string(t.Kind)).Str("ref_id", t.RefID).
			Msg("tarea descartada por error no reintentable")
		return
	}

	t.Attempt++
	if t.Attempt >= p.cfg.MaxAttempts {
		p.log.Warn().
			Str("kind", string(t.Kind)).Str("ref_id", t.RefID).
			Int("attempts", t.Attempt).
			Msg("presupuesto de reintentos agotado")
		p.handler.Exhaust(ctx, t)
		return
	}

	delay := p.backoff(t.Attempt)
	p.log.Debug().
		Str("kind", string(t.Kind)).Str("ref_id", t.RefID).
		Int("attempt", t.Attempt).Dur("delay", delay).
		Msg("reintento programado")
	// el reintento vuelve al final del carril: durante el backoff una tarea
	// posterior de la misma clave puede adelantarse. Bloquear el carril
	// preservaría el orden exacto entre reintentos pero frenaría a las demás
	// claves que comparten el hash; el consumidor tolera el reordenamiento
	// porque relee el estado en cada entrega.
	task := t
	time.AfterFunc(delay, func() { p.Enqueue(task) })
}

// backoff devuelve base * 2^(attempt-1) con techo y jitter de ±10%.
func (p *Pool) backoff(attempt int) time.Duration {
	d := p.cfg.BackoffBase
	for i := 1; i < attempt && d < p.cfg.BackoffMax; i++ {
		d *= 2
	}
	if d > p.cfg.BackoffMax {
		d = p.cfg.BackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	return d + jitter
}
