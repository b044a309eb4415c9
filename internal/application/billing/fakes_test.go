package billing_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-api/internal/application/billing"
	"github.com/jhoicas/Facturacion-api/internal/application/dto"
	"github.com/jhoicas/Facturacion-api/internal/application/worker"
	"github.com/jhoicas/Facturacion-api/internal/domain"
	"github.com/jhoicas/Facturacion-api/internal/domain/entity"
	"github.com/jhoicas/Facturacion-api/internal/domain/repository"
	"github.com/jhoicas/Facturacion-api/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Base de datos en memoria
//
// Reproduce el contrato de los repositorios Postgres: índice único de
// numeración (ErrDuplicateNumber), CAS por versión (ErrConflict), Resolve solo
// sobre PENDING y contadores upsert. Las transacciones se serializan con un
// snapshot/rollback del estado completo.
// ──────────────────────────────────────────────────────────────────────────────

type memDB struct {
	mu         sync.Mutex
	docs       map[string]entity.Document
	items      map[string][]entity.DocumentItem
	numbering  map[string]bool // company|est|pos|tipo|serie|correlativo
	seqs       map[string]int64
	cancels    map[string]entity.CancellationRequest
	cancelIdx  map[string]bool // company|fecha|número
	cancelSeqs map[string]int64
	companies  map[string]entity.Company
	ests       map[string]entity.Establishment

	txMu sync.Mutex // serializa transacciones (snapshot global)
}

func newMemDB() *memDB {
	return &memDB{
		docs:       map[string]entity.Document{},
		items:      map[string][]entity.DocumentItem{},
		numbering:  map[string]bool{},
		seqs:       map[string]int64{},
		cancels:    map[string]entity.CancellationRequest{},
		cancelIdx:  map[string]bool{},
		cancelSeqs: map[string]int64{},
		companies:  map[string]entity.Company{},
		ests:       map[string]entity.Establishment{},
	}
}

type memSnapshot struct {
	docs       map[string]entity.Document
	items      map[string][]entity.DocumentItem
	numbering  map[string]bool
	seqs       map[string]int64
	cancels    map[string]entity.CancellationRequest
	cancelIdx  map[string]bool
	cancelSeqs map[string]int64
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memDB) snapshot() memSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return memSnapshot{
		docs:       cloneMap(d.docs),
		items:      cloneMap(d.items),
		numbering:  cloneMap(d.numbering),
		seqs:       cloneMap(d.seqs),
		cancels:    cloneMap(d.cancels),
		cancelIdx:  cloneMap(d.cancelIdx),
		cancelSeqs: cloneMap(d.cancelSeqs),
	}
}

func (d *memDB) restore(s memSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs = s.docs
	d.items = s.items
	d.numbering = s.numbering
	d.seqs = s.seqs
	d.cancels = s.cancels
	d.cancelIdx = s.cancelIdx
	d.cancelSeqs = s.cancelSeqs
}

func numberingKey(doc *entity.Document) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		doc.CompanyID, doc.EstablishmentID, doc.POSTerminalID,
		doc.DocumentTypeCode, doc.Series, doc.Correlativo)
}

// ── DocumentRepository ────────────────────────────────────────────────────────

type memDocRepo struct{ db *memDB }

var _ repository.DocumentRepository = (*memDocRepo)(nil)

func (r *memDocRepo) Create(_ context.Context, doc *entity.Document) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := numberingKey(doc)
	if r.db.numbering[key] {
		return fmt.Errorf("numeración %s ya existe: %w", doc.FullNumber(), domain.ErrDuplicateNumber)
	}
	r.db.numbering[key] = true
	r.db.docs[doc.ID] = *doc
	return nil
}

func (r *memDocRepo) CreateItem(_ context.Context, item *entity.DocumentItem) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.items[item.DocumentID] = append(r.db.items[item.DocumentID], *item)
	return nil
}

func (r *memDocRepo) GetByID(_ context.Context, id string) (*entity.Document, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	doc, ok := r.db.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (r *memDocRepo) GetItems(_ context.Context, documentID string) ([]*entity.DocumentItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*entity.DocumentItem, 0, len(r.db.items[documentID]))
	for _, it := range r.db.items[documentID] {
		item := it
		out = append(out, &item)
	}
	return out, nil
}

func (r *memDocRepo) UpdateState(_ context.Context, doc *entity.Document) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.docs[doc.ID]
	if !ok || existing.Version != doc.Version {
		return fmt.Errorf("documento %s: %w", doc.ID, domain.ErrConflict)
	}
	updated := *doc
	updated.Version++
	r.db.docs[doc.ID] = updated
	doc.Version++
	return nil
}

func (r *memDocRepo) RecordAttempt(_ context.Context, doc *entity.Document) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.docs[doc.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.AttemptCount = doc.AttemptCount
	existing.LastAttemptAt = doc.LastAttemptAt
	r.db.docs[doc.ID] = existing
	return nil
}

func (r *memDocRepo) ListByEstablishment(_ context.Context, establishmentID string, limit, offset int) ([]*entity.Document, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.Document
	for _, d := range r.db.docs {
		if d.EstablishmentID == establishmentID {
			doc := d
			out = append(out, &doc)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDocRepo) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]*entity.Document, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.Document
	for _, d := range r.db.docs {
		unresolved := d.State == entity.StateDraft || d.IsPending()
		if !unresolved || len(out) >= limit {
			continue
		}
		last := d.CreatedAt
		if d.LastAttemptAt != nil {
			last = *d.LastAttemptAt
		}
		if last.Before(olderThan) {
			doc := d
			out = append(out, &doc)
		}
	}
	return out, nil
}

// ── CancellationRepository ────────────────────────────────────────────────────

type memCancelRepo struct{ db *memDB }

var _ repository.CancellationRepository = (*memCancelRepo)(nil)

func cancelIdxKey(req *entity.CancellationRequest) string {
	return fmt.Sprintf("%s|%s|%s", req.CompanyID,
		req.CommunicationDate.Format("2006-01-02"), req.CommunicationNumber)
}

func (r *memCancelRepo) Create(_ context.Context, req *entity.CancellationRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := cancelIdxKey(req)
	if r.db.cancelIdx[key] {
		return fmt.Errorf("comunicación %s ya existe: %w", req.Identifier(), domain.ErrDuplicateNumber)
	}
	for _, c := range r.db.cancels {
		if c.DocumentID == req.DocumentID && c.State == entity.CancellationPending {
			return fmt.Errorf("baja pendiente para el comprobante: %w", domain.ErrDuplicateNumber)
		}
	}
	r.db.cancelIdx[key] = true
	r.db.cancels[req.ID] = *req
	return nil
}

func (r *memCancelRepo) GetByID(_ context.Context, id string) (*entity.CancellationRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.cancels[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r *memCancelRepo) GetPendingByDocument(_ context.Context, documentID string) (*entity.CancellationRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.cancels {
		if c.DocumentID == documentID && c.State == entity.CancellationPending {
			req := c
			return &req, nil
		}
	}
	return nil, nil
}

func (r *memCancelRepo) Resolve(_ context.Context, req *entity.CancellationRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.cancels[req.ID]
	if !ok || existing.State != entity.CancellationPending {
		return fmt.Errorf("comunicación %s: %w", req.ID, domain.ErrConflict)
	}
	existing.State = req.State
	existing.AuthorityCode = req.AuthorityCode
	existing.AuthorityMessage = req.AuthorityMessage
	r.db.cancels[req.ID] = existing
	return nil
}

func (r *memCancelRepo) RecordAttempt(_ context.Context, req *entity.CancellationRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.cancels[req.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.AttemptCount = req.AttemptCount
	existing.LastAttemptAt = req.LastAttemptAt
	r.db.cancels[req.ID] = existing
	return nil
}

func (r *memCancelRepo) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]*entity.CancellationRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*entity.CancellationRequest
	for _, c := range r.db.cancels {
		if c.State != entity.CancellationPending || len(out) >= limit {
			continue
		}
		last := c.CreatedAt
		if c.LastAttemptAt != nil {
			last = *c.LastAttemptAt
		}
		if last.Before(olderThan) {
			req := c
			out = append(out, &req)
		}
	}
	return out, nil
}

// ── SequenceRepository ────────────────────────────────────────────────────────

type memSeqRepo struct{ db *memDB }

var _ repository.SequenceRepository = (*memSeqRepo)(nil)

func (r *memSeqRepo) NextCorrelativo(_ context.Context, key entity.SequenceKey) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.seqs[key.String()]++
	return r.db.seqs[key.String()], nil
}

func (r *memSeqRepo) NextCommunicationNumber(_ context.Context, companyID string, day time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := companyID + "|" + day.Format("2006-01-02")
	r.db.cancelSeqs[key]++
	return r.db.cancelSeqs[key], nil
}

// ── Company / Establishment (solo lectura) ────────────────────────────────────

type memCompanyRepo struct{ db *memDB }

func (r *memCompanyRepo) GetByID(_ context.Context, id string) (*entity.Company, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.companies[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type memEstRepo struct{ db *memDB }

func (r *memEstRepo) GetByID(_ context.Context, id string) (*entity.Establishment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.ests[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memEstRepo) GetSubmissionConfig(_ context.Context, establishmentID string) (*entity.SubmissionConfig, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.ests[establishmentID]
	if !ok {
		return nil, nil
	}
	return &entity.SubmissionConfig{
		SubmissionMode:   e.SubmissionMode,
		AsyncJobsEnabled: e.AsyncJobsEnabled,
	}, nil
}

// ── TxRunner ──────────────────────────────────────────────────────────────────

type memTxRunner struct{ db *memDB }

var _ billing.TxRunner = (*memTxRunner)(nil)

func (tx *memTxRunner) RunDocument(ctx context.Context, fn func(
	repository.DocumentRepository, repository.SequenceRepository) error) error {
	tx.db.txMu.Lock()
	defer tx.db.txMu.Unlock()
	snap := tx.db.snapshot()
	if err := fn(&memDocRepo{db: tx.db}, &memSeqRepo{db: tx.db}); err != nil {
		tx.db.restore(snap)
		return err
	}
	return nil
}

func (tx *memTxRunner) RunCancellation(ctx context.Context, fn func(
	repository.DocumentRepository, repository.CancellationRepository, repository.SequenceRepository) error) error {
	tx.db.txMu.Lock()
	defer tx.db.txMu.Unlock()
	snap := tx.db.snapshot()
	if err := fn(&memDocRepo{db: tx.db}, &memCancelRepo{db: tx.db}, &memSeqRepo{db: tx.db}); err != nil {
		tx.db.restore(snap)
		return err
	}
	return nil
}

// flakyTxRunner simula perder la carrera del índice único: las primeras
// `failures` transacciones fallan con ErrDuplicateNumber sin ejecutarse.
type flakyTxRunner struct {
	inner    billing.TxRunner
	mu       sync.Mutex
	failures int
}

func (tx *flakyTxRunner) fail() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.failures == 0 {
		return false
	}
	if tx.failures > 0 {
		tx.failures--
	}
	return true
}

func (tx *flakyTxRunner) RunDocument(ctx context.Context, fn func(
	repository.DocumentRepository, repository.SequenceRepository) error) error {
	if tx.fail() {
		return fmt.Errorf("numeración en disputa: %w", domain.ErrDuplicateNumber)
	}
	return tx.inner.RunDocument(ctx, fn)
}

func (tx *flakyTxRunner) RunCancellation(ctx context.Context, fn func(
	repository.DocumentRepository, repository.CancellationRepository, repository.SequenceRepository) error) error {
	if tx.fail() {
		return fmt.Errorf("numeración en disputa: %w", domain.ErrDuplicateNumber)
	}
	return tx.inner.RunCancellation(ctx, fn)
}

// ── Submitter, cola y auditoría ───────────────────────────────────────────────

// fakeSubmitter devuelve resultados programados y cuenta las llamadas.
type fakeSubmitter struct {
	mu           sync.Mutex
	docResult    *billing.SubmitResult
	docErr       error
	cancelResult *billing.SubmitResult
	cancelErr    error
	docCalls     int
	cancelCalls  int
}

var _ billing.Submitter = (*fakeSubmitter)(nil)

func (s *fakeSubmitter) SubmitDocument(_ context.Context, _ *entity.Company, _ *entity.Document, _ []*entity.DocumentItem) (*billing.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docCalls++
	if s.docErr != nil {
		return nil, s.docErr
	}
	if s.docResult != nil {
		return s.docResult, nil
	}
	return &billing.SubmitResult{Accepted: true, Code: "0", Message: "aceptado"}, nil
}

func (s *fakeSubmitter) SubmitCancellation(_ context.Context, _ *entity.Company, _ *entity.CancellationRequest, _ *entity.Document) (*billing.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	if s.cancelResult != nil {
		return s.cancelResult, nil
	}
	return &billing.SubmitResult{Accepted: true, Code: "0", Message: "aceptado"}, nil
}

// fakeQueue acumula tareas sin procesarlas.
type fakeQueue struct {
	mu    sync.Mutex
	tasks []worker.Task
}

var _ billing.TaskQueue = (*fakeQueue)(nil)

func (q *fakeQueue) Enqueue(t worker.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

func (q *fakeQueue) all() []worker.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]worker.Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// fakePublisher acumula los eventos de transición publicados.
type fakePublisher struct {
	mu     sync.Mutex
	events []billing.StateTransition
}

var _ billing.EventPublisher = (*fakePublisher)(nil)

func (p *fakePublisher) PublishTransition(ev billing.StateTransition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) all() []billing.StateTransition {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]billing.StateTransition, len(p.events))
	copy(out, p.events)
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Entorno de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	envCompanyID = "emp-1"
	envEstID     = "est-1"
)

type testEnv struct {
	db        *memDB
	docRepo   repository.DocumentRepository
	cancelRepo repository.CancellationRepository
	submitter *fakeSubmitter
	queue     *fakeQueue
	publisher *fakePublisher
	dispatcher *billing.Dispatcher
	createUC  *billing.CreateDocumentUseCase
	cancelUC  *billing.CancellationUseCase
	processor *billing.SubmitProcessor
}

// newTestEnv arma el grafo completo del caso de uso con una empresa y un
// establecimiento en el modo de envío indicado.
func newTestEnv(t *testing.T, mode string) *testEnv {
	t.Helper()
	db := newMemDB()
	db.companies[envCompanyID] = entity.Company{
		ID: envCompanyID, Name: "Comercial Andina SAC", RUC: "20123456789",
		TaxRegime: entity.TaxRegimeGeneral, Status: "active",
	}
	db.ests[envEstID] = entity.Establishment{
		ID: envEstID, CompanyID: envCompanyID, Code: "0001",
		Name: "Local principal", SubmissionMode: mode,
	}

	docRepo := &memDocRepo{db: db}
	cancelRepo := &memCancelRepo{db: db}
	companyRepo := &memCompanyRepo{db: db}
	estRepo := &memEstRepo{db: db}
	txRunner := &memTxRunner{db: db}
	submitter := &fakeSubmitter{}
	queue := &fakeQueue{}
	publisher := &fakePublisher{}
	log := logger.Nop()

	dispatcher := billing.NewDispatcher(
		estRepo, companyRepo, docRepo, cancelRepo,
		submitter, queue, publisher, time.Second, log,
	)
	return &testEnv{
		db:         db,
		docRepo:    docRepo,
		cancelRepo: cancelRepo,
		submitter:  submitter,
		queue:      queue,
		publisher:  publisher,
		dispatcher: dispatcher,
		createUC: billing.NewCreateDocumentUseCase(
			txRunner, companyRepo, estRepo, docRepo, dispatcher, log),
		cancelUC: billing.NewCancellationUseCase(
			txRunner, docRepo, cancelRepo, dispatcher, publisher, log),
		processor: billing.NewSubmitProcessor(
			docRepo, cancelRepo, companyRepo, submitter, publisher, log),
	}
}

func decimalFrom(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// validCreateReq payload coherente: una línea de 2 x 100.00 al 18%.
func validCreateReq() dto.CreateDocumentRequest {
	return dto.CreateDocumentRequest{
		EstablishmentID:  envEstID,
		DocumentTypeCode: "01",
		Series:           "F001",
		CustomerName:     "Importaciones del Sur EIRL",
		CustomerDoc:      "20987654321",
		Currency:         "PEN",
		Items: []dto.DocumentItemRequest{{
			Description: "Monitor 27 pulgadas",
			UnitCode:    "NIU",
			Quantity:    decimal.NewFromInt(2),
			UnitPrice:   decimal.RequireFromString("100.00"),
			TaxRate:     decimal.RequireFromString("0.18"),
		}},
	}
}

// seedAcceptedDocument inserta directamente un comprobante ACCEPTED (como si
// SUNAT ya lo hubiera aceptado) y devuelve su ID.
func seedAcceptedDocument(t *testing.T, env *testEnv) string {
	t.Helper()
	return seedDocument(t, env, entity.StateAccepted)
}

func seedDocument(t *testing.T, env *testEnv, state string) string {
	t.Helper()
	now := time.Now()
	doc := &entity.Document{
		ID:               uuid.New().String(),
		CompanyID:        envCompanyID,
		EstablishmentID:  envEstID,
		DocumentTypeCode: "01",
		Series:           "F001",
		CustomerName:     "Cliente de prueba",
		CustomerDoc:      "20987654321",
		Currency:         "PEN",
		NetTotal:         decimal.RequireFromString("200.00"),
		TaxTotal:         decimal.RequireFromString("36.00"),
		GrandTotal:       decimal.RequireFromString("236.00"),
		State:            state,
		IssuedAt:         now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	env.db.mu.Lock()
	env.db.seqs[doc.SequenceKey().String()]++
	doc.Correlativo = env.db.seqs[doc.SequenceKey().String()]
	env.db.mu.Unlock()
	require.NoError(t, env.docRepo.Create(context.Background(), doc))
	require.NoError(t, env.docRepo.CreateItem(context.Background(), &entity.DocumentItem{
		ID: uuid.New().String(), DocumentID: doc.ID, Description: "Línea de prueba",
		Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("100.00"),
		TaxRate: decimal.RequireFromString("0.18"),
		Subtotal: decimal.RequireFromString("200.00"), TaxAmount: decimal.RequireFromString("36.00"),
	}))
	return doc.ID
}

// mustGetDoc relee el comprobante desde la "DB".
func mustGetDoc(t *testing.T, env *testEnv, id string) *entity.Document {
	t.Helper()
	doc, err := env.docRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}
