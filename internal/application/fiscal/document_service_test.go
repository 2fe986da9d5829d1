package fiscal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/fiscal/assembly"
	"github.com/emissor/backend/internal/domain/shared"
)

// fakeDocumentRepository is an in-memory FiscalDocumentRepository. Loads
// return copies and writes go through the same version and status checks as
// the real repository, so concurrency guards behave the same way.
type fakeDocumentRepository struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*fiscal.FiscalDocument
	counters map[string]int64
}

func newFakeDocumentRepository() *fakeDocumentRepository {
	return &fakeDocumentRepository{
		docs:     make(map[uuid.UUID]*fiscal.FiscalDocument),
		counters: make(map[string]int64),
	}
}

func copyDoc(doc *fiscal.FiscalDocument) *fiscal.FiscalDocument {
	clone := *doc
	clone.Items = append([]fiscal.DocumentItem(nil), doc.Items...)
	clone.ClearDomainEvents()
	return &clone
}

func (r *fakeDocumentRepository) FindByID(_ context.Context, id uuid.UUID) (*fiscal.FiscalDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (r *fakeDocumentRepository) FindByIDForCompany(_ context.Context, companyID, id uuid.UUID) (*fiscal.FiscalDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (r *fakeDocumentRepository) FindByAccessKey(_ context.Context, accessKey string) (*fiscal.FiscalDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.AccessKey == accessKey {
			return copyDoc(doc), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeDocumentRepository) FindAllForCompany(_ context.Context, companyID uuid.UUID, filter shared.Filter) (shared.Paginated[fiscal.FiscalDocument], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []fiscal.FiscalDocument
	for _, doc := range r.docs {
		if doc.CompanyID == companyID {
			items = append(items, *copyDoc(doc))
		}
	}
	return shared.NewPaginated(items, int64(len(items)), filter.Page, filter.PageSize), nil
}

func (r *fakeDocumentRepository) FindStuck(_ context.Context, _ time.Duration) ([]fiscal.FiscalDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stuck []fiscal.FiscalDocument
	for _, doc := range r.docs {
		if doc.Status.IsTransient() {
			stuck = append(stuck, *copyDoc(doc))
		}
	}
	return stuck, nil
}

func (r *fakeDocumentRepository) Save(_ context.Context, doc *fiscal.FiscalDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = copyDoc(doc)
	return nil
}

func (r *fakeDocumentRepository) SaveWithLock(_ context.Context, doc *fiscal.FiscalDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.docs[doc.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != doc.Version {
		return shared.ErrConcurrencyConflict
	}
	doc.IncrementVersion()
	r.docs[doc.ID] = copyDoc(doc)
	return nil
}

func (r *fakeDocumentRepository) TransitionStatus(_ context.Context, id uuid.UUID, from, to fiscal.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.docs[id]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Status != from {
		return shared.ErrAlreadyInProgress
	}
	stored.Status = to
	return nil
}

func (r *fakeDocumentRepository) NextNumber(_ context.Context, companyID uuid.UUID, docType fiscal.DocumentType, series int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%d", companyID, docType, series)
	r.counters[key]++
	return r.counters[key], nil
}

func (r *fakeDocumentRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

// fakeAuditLog records lifecycle events in memory
type fakeAuditLog struct {
	mu     sync.Mutex
	events []fiscal.LifecycleEvent
}

func (l *fakeAuditLog) Append(_ context.Context, event *fiscal.LifecycleEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, *event)
	return nil
}

func (l *fakeAuditLog) FindByDocument(_ context.Context, documentID uuid.UUID) ([]fiscal.LifecycleEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []fiscal.LifecycleEvent
	for _, e := range l.events {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeAuditLog) transitions(documentID uuid.UUID) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e.DocumentID == documentID {
			out = append(out, fmt.Sprintf("%s>%s", e.PreviousStatus, e.NewStatus))
		}
	}
	return out
}

// stubGateway scripts authority responses and counts calls
type stubGateway struct {
	docType     fiscal.DocumentType
	submitFn    func(doc *fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error)
	queryFn     func(accessKey string) (fiscal.SubmissionOutcome, error)
	cancelFn    func(accessKey, justification string) (fiscal.CancelOutcome, error)
	disagreeFn  func(accessKey, justification string) (fiscal.DisagreementOutcome, error)
	submitCalls atomic.Int32
	queryCalls  atomic.Int32
	cancelCalls atomic.Int32
}

func (g *stubGateway) DocumentType() fiscal.DocumentType { return g.docType }

func (g *stubGateway) Submit(_ context.Context, doc *fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error) {
	g.submitCalls.Add(1)
	if g.submitFn == nil {
		return fiscal.AuthorizedOutcome("proto-1", doc.AccessKey, `{"cStat":"100"}`), nil
	}
	return g.submitFn(doc)
}

func (g *stubGateway) Query(_ context.Context, accessKey string) (fiscal.SubmissionOutcome, error) {
	g.queryCalls.Add(1)
	if g.queryFn == nil {
		return fiscal.NotFoundOutcome(`{"cStat":"217"}`), nil
	}
	return g.queryFn(accessKey)
}

func (g *stubGateway) Cancel(_ context.Context, accessKey, justification string) (fiscal.CancelOutcome, error) {
	g.cancelCalls.Add(1)
	if g.cancelFn == nil {
		return fiscal.CancelOutcome{Kind: fiscal.CancelAccepted, Protocol: "cancel-proto"}, nil
	}
	return g.cancelFn(accessKey, justification)
}

func (g *stubGateway) FileDisagreement(_ context.Context, accessKey, justification string) (fiscal.DisagreementOutcome, error) {
	if g.disagreeFn == nil {
		return fiscal.DisagreementOutcome{Kind: fiscal.DisagreementAcknowledged, Protocol: "dis-proto"}, nil
	}
	return g.disagreeFn(accessKey, justification)
}

// fakeGatewayRegistry routes every family to one stub
type fakeGatewayRegistry struct {
	gateways map[fiscal.DocumentType]fiscal.AuthorityGateway
}

func newFakeGatewayRegistry(gateways ...fiscal.AuthorityGateway) *fakeGatewayRegistry {
	r := &fakeGatewayRegistry{gateways: make(map[fiscal.DocumentType]fiscal.AuthorityGateway)}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

func (r *fakeGatewayRegistry) Register(gateway fiscal.AuthorityGateway) {
	r.gateways[gateway.DocumentType()] = gateway
}

func (r *fakeGatewayRegistry) RegisterMunicipal(_ string, gateway fiscal.AuthorityGateway) {
	r.gateways[fiscal.DocumentTypeNFSE] = gateway
}

func (r *fakeGatewayRegistry) Resolve(docType fiscal.DocumentType, _ string) (fiscal.AuthorityGateway, error) {
	g, ok := r.gateways[docType]
	if !ok {
		return nil, shared.NewDomainError("CONFIGURATION_ERROR", "no gateway")
	}
	return g, nil
}

// recordingBus captures published domain events
type recordingBus struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (b *recordingBus) Publish(_ context.Context, events ...shared.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
	return nil
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.EventType())
	}
	return out
}

type serviceFixture struct {
	service *DocumentService
	repo    *fakeDocumentRepository
	audit   *fakeAuditLog
	gateway *stubGateway
	bus     *recordingBus
}

func newServiceFixture(t *testing.T, gateway *stubGateway) *serviceFixture {
	t.Helper()
	repo := newFakeDocumentRepository()
	audit := &fakeAuditLog{}
	bus := &recordingBus{}

	assemblers := assembly.NewRegistry()
	assemblers.Register(assembly.NewNFeAssembler(assembly.NullSigner{}))
	assemblers.Register(assembly.NewNFCeAssembler(assembly.NullSigner{}))
	assemblers.Register(assembly.NewCTeAssembler(assembly.NullSigner{}))
	assemblers.Register(assembly.NewNFSeAssembler(assembly.NullSigner{}))

	service := NewDocumentService(
		repo, audit, assemblers, newFakeGatewayRegistry(gateway), bus,
		zap.NewNop(), time.Second, time.Minute,
	)
	return &serviceFixture{service: service, repo: repo, audit: audit, gateway: gateway, bus: bus}
}

func createCommand(companyID uuid.UUID, docType fiscal.DocumentType) CreateDocumentCommand {
	cmd := CreateDocumentCommand{
		CompanyID:       companyID,
		DocumentType:    docType,
		Series:          1,
		IssueDate:       time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
		OperationNature: "Venda de mercadoria",
		Issuer:          PartyInput{TaxID: "11.222.333/0001-81", LegalName: "Emissor Ltda", StateUF: "SP"},
		Counterparty:    PartyInput{TaxID: "11.444.777/0001-61", LegalName: "Destinatario SA", StateUF: "SP"},
		Items: []ItemInput{
			{Description: "Widget", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50), Total: decimal.NewFromInt(100)},
		},
		TotalValue: decimal.NewFromInt(100),
	}
	if docType == fiscal.DocumentTypeCTE {
		cmd.CarrierName = "Transportadora Rapida"
		cmd.CarrierTaxID = "12.345.678/0001-95"
	}
	return cmd
}

func TestDocumentService_Create(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()

	t.Run("allocates sequential numbers per series", func(t *testing.T) {
		f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeNFE})

		first, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)
		second, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		assert.Equal(t, int64(1), first.Number)
		assert.Equal(t, int64(2), second.Number)
		assert.Equal(t, fiscal.StatusDraft, first.Status)
		assert.Equal(t, "11222333000181", first.Issuer.TaxID, "tax ID normalized to digits")
		assert.Contains(t, f.bus.types(), fiscal.EventDocumentCreated)
	})

	t.Run("rejects an invalid issuer tax ID", func(t *testing.T) {
		f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeNFE})
		cmd := createCommand(companyID, fiscal.DocumentTypeNFE)
		cmd.Issuer.TaxID = "11222333000199"

		_, err := f.service.Create(ctx, cmd)
		assert.Error(t, err)
	})

	t.Run("rejects a mismatched total", func(t *testing.T) {
		f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeNFE})
		cmd := createCommand(companyID, fiscal.DocumentTypeNFE)
		cmd.TotalValue = decimal.NewFromInt(999)

		_, err := f.service.Create(ctx, cmd)
		assert.ErrorIs(t, err, fiscal.ErrTotalMismatch)
	})
}

func TestDocumentService_Emit(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()

	t.Run("authorized submission assigns the attempt key", func(t *testing.T) {
		f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeNFE})
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		emitted, err := f.service.Emit(ctx, companyID, doc.ID)
		require.NoError(t, err)

		assert.Equal(t, fiscal.StatusAuthorized, emitted.Status)
		assert.Len(t, emitted.AccessKey, fiscal.AccessKeyLength)
		assert.Equal(t, emitted.LastAttemptKey, emitted.AccessKey)
		assert.True(t, fiscal.VerifyKey(emitted.AccessKey))
		assert.Equal(t, "proto-1", emitted.AuthorityProtocol)
		assert.Equal(t, []string{"DRAFT>SUBMITTING", "SUBMITTING>AUTHORIZED"}, f.audit.transitions(doc.ID))
	})

	t.Run("rejected submission keeps the document editable", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			submitFn: func(*fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error) {
				return fiscal.RejectedOutcome("217", "Rejeicao: dados invalidos", `{"cStat":"217"}`), nil
			},
		}
		f := newServiceFixture(t, gateway)
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		emitted, err := f.service.Emit(ctx, companyID, doc.ID)
		require.NoError(t, err)

		assert.Equal(t, fiscal.StatusRejected, emitted.Status)
		assert.Contains(t, emitted.RejectionReason, "217")
		assert.Empty(t, emitted.AccessKey)
		assert.Contains(t, f.bus.types(), fiscal.EventDocumentRejected)
	})

	t.Run("unavailable authority rolls back to draft with no key", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			submitFn: func(*fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error) {
				return fiscal.UnavailableOutcome(true, `{"error":"timeout"}`), nil
			},
		}
		f := newServiceFixture(t, gateway)
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		emitted, err := f.service.Emit(ctx, companyID, doc.ID)
		require.Error(t, err)
		assert.True(t, IsUnavailable(err))

		assert.Equal(t, fiscal.StatusDraft, emitted.Status)
		assert.Empty(t, emitted.AccessKey)
		assert.NotEmpty(t, emitted.LastAttemptKey, "attempt key kept for reconciliation")
		assert.Equal(t, []string{"DRAFT>SUBMITTING", "SUBMITTING>DRAFT"}, f.audit.transitions(doc.ID))
		assert.Contains(t, f.bus.types(), fiscal.EventSubmissionUnavailable)
	})

	t.Run("gateway transport error is treated as unavailable", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			submitFn: func(*fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error) {
				return fiscal.SubmissionOutcome{}, errors.New("connection refused")
			},
		}
		f := newServiceFixture(t, gateway)
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		emitted, err := f.service.Emit(ctx, companyID, doc.ID)
		require.Error(t, err)
		assert.True(t, IsUnavailable(err))
		assert.Equal(t, fiscal.StatusDraft, emitted.Status)
	})

	t.Run("re-emission is blocked until the attempt is reconciled", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			submitFn: func(*fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error) {
				return fiscal.UnavailableOutcome(true, ""), nil
			},
		}
		f := newServiceFixture(t, gateway)
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		_, err = f.service.Emit(ctx, companyID, doc.ID)
		require.Error(t, err)

		_, err = f.service.Emit(ctx, companyID, doc.ID)
		assert.ErrorIs(t, err, ErrReconcileRequired)
		assert.Equal(t, int32(1), f.gateway.submitCalls.Load(), "no second submission before reconciliation")
	})

	t.Run("concurrent emits submit exactly once", func(t *testing.T) {
		gateway := &stubGateway{docType: fiscal.DocumentTypeNFE}
		f := newServiceFixture(t, gateway)
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		const callers = 8
		errs := make(chan error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.service.Emit(ctx, companyID, doc.ID)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var succeeded, inProgress int
		for err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, shared.ErrAlreadyInProgress):
				inProgress++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, callers-1, inProgress)
		assert.Equal(t, int32(1), gateway.submitCalls.Load())
	})

	t.Run("emitting an authorized document is a state error, not contention", func(t *testing.T) {
		f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeNFE})
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)
		_, err = f.service.Emit(ctx, companyID, doc.ID)
		require.NoError(t, err)

		_, err = f.service.Emit(ctx, companyID, doc.ID)
		var derr *shared.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "INVALID_STATE", derr.Code)
		assert.Equal(t, int32(1), f.gateway.submitCalls.Load())
	})
}

func TestDocumentService_Reconcile(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()

	emitUnavailable := func(t *testing.T, f *serviceFixture) *fiscal.FiscalDocument {
		t.Helper()
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)
		rolled, err := f.service.Emit(ctx, companyID, doc.ID)
		require.Error(t, err)
		require.Equal(t, fiscal.StatusDraft, rolled.Status)
		return rolled
	}

	unavailableGateway := func() *stubGateway {
		return &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			submitFn: func(*fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error) {
				return fiscal.UnavailableOutcome(true, ""), nil
			},
		}
	}

	t.Run("adopts an authorization decided after the timeout", func(t *testing.T) {
		gateway := unavailableGateway()
		gateway.queryFn = func(accessKey string) (fiscal.SubmissionOutcome, error) {
			return fiscal.AuthorizedOutcome("late-proto", accessKey, `{"cStat":"100"}`), nil
		}
		f := newServiceFixture(t, gateway)
		doc := emitUnavailable(t, f)

		reconciled, err := f.service.Reconcile(ctx, companyID, doc.ID)
		require.NoError(t, err)

		assert.Equal(t, fiscal.StatusAuthorized, reconciled.Status)
		assert.Equal(t, doc.LastAttemptKey, reconciled.AccessKey)
		assert.Equal(t, "late-proto", reconciled.AuthorityProtocol)
	})

	t.Run("not-found clears the attempt and allows re-emission", func(t *testing.T) {
		gateway := unavailableGateway()
		f := newServiceFixture(t, gateway)
		doc := emitUnavailable(t, f)

		reconciled, err := f.service.Reconcile(ctx, companyID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusDraft, reconciled.Status)
		assert.Empty(t, reconciled.LastAttemptKey)

		// The next emission draws a fresh key and succeeds
		gateway.submitFn = nil
		emitted, err := f.service.Emit(ctx, companyID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusAuthorized, emitted.Status)
		assert.NotEqual(t, doc.LastAttemptKey, emitted.AccessKey)
	})

	t.Run("adopts a rejection decided after the timeout", func(t *testing.T) {
		gateway := unavailableGateway()
		gateway.queryFn = func(string) (fiscal.SubmissionOutcome, error) {
			return fiscal.RejectedOutcome("217", "Rejeicao", ""), nil
		}
		f := newServiceFixture(t, gateway)
		doc := emitUnavailable(t, f)

		reconciled, err := f.service.Reconcile(ctx, companyID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusRejected, reconciled.Status)
	})

	t.Run("an unreachable authority leaves the state undetermined", func(t *testing.T) {
		gateway := unavailableGateway()
		gateway.queryFn = func(string) (fiscal.SubmissionOutcome, error) {
			return fiscal.SubmissionOutcome{}, errors.New("connection refused")
		}
		f := newServiceFixture(t, gateway)
		doc := emitUnavailable(t, f)

		_, err := f.service.Reconcile(ctx, companyID, doc.ID)
		assert.ErrorIs(t, err, shared.ErrInconsistentState)
	})

	t.Run("a document with nothing pending cannot be reconciled", func(t *testing.T) {
		f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeNFE})
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		_, err = f.service.Reconcile(ctx, companyID, doc.ID)
		assert.Error(t, err)
	})
}

func TestDocumentService_Cancel(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()

	authorize := func(t *testing.T, f *serviceFixture) *fiscal.FiscalDocument {
		t.Helper()
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)
		emitted, err := f.service.Emit(ctx, companyID, doc.ID)
		require.NoError(t, err)
		return emitted
	}

	t.Run("a short justification never reaches the authority", func(t *testing.T) {
		gateway := &stubGateway{docType: fiscal.DocumentTypeNFE}
		f := newServiceFixture(t, gateway)
		doc := authorize(t, f)

		_, err := f.service.Cancel(ctx, companyID, doc.ID, "curta")
		assert.ErrorIs(t, err, fiscal.ErrInvalidJustification)
		assert.Equal(t, int32(0), gateway.cancelCalls.Load())

		current, err := f.service.Get(ctx, companyID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusAuthorized, current.Status)
	})

	t.Run("an accepted cancellation completes", func(t *testing.T) {
		f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeNFE})
		doc := authorize(t, f)

		cancelled, err := f.service.Cancel(ctx, companyID, doc.ID, "duplicidade de emissao do documento")
		require.NoError(t, err)

		assert.Equal(t, fiscal.StatusCancelled, cancelled.Status)
		assert.Equal(t, "cancel-proto", cancelled.AuthorityProtocol)
		assert.Contains(t, f.audit.transitions(doc.ID), "CANCELLING>CANCELLED")
	})

	t.Run("a refused cancellation keeps the document authorized", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			cancelFn: func(string, string) (fiscal.CancelOutcome, error) {
				return fiscal.CancelOutcome{Kind: fiscal.CancelRefusedKind, ReasonText: "prazo expirado"}, nil
			},
		}
		f := newServiceFixture(t, gateway)
		doc := authorize(t, f)

		result, err := f.service.Cancel(ctx, companyID, doc.ID, "duplicidade de emissao do documento")
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusAuthorized, result.Status)
		assert.Contains(t, f.bus.types(), fiscal.EventCancelRejected)
	})

	t.Run("an unreachable authority leaves the cancellation pending", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			cancelFn: func(string, string) (fiscal.CancelOutcome, error) {
				return fiscal.CancelOutcome{}, errors.New("context deadline exceeded")
			},
		}
		f := newServiceFixture(t, gateway)
		doc := authorize(t, f)

		result, err := f.service.Cancel(ctx, companyID, doc.ID, "duplicidade de emissao do documento")
		require.Error(t, err)
		assert.True(t, IsUnavailable(err))
		assert.Equal(t, fiscal.StatusCancelling, result.Status, "the outcome is undetermined until queried")

		// A retry must not issue a second cancel call while the first is
		// unresolved
		_, err = f.service.Cancel(ctx, companyID, doc.ID, "duplicidade de emissao do documento")
		var derr *shared.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "INVALID_STATE", derr.Code)
		assert.Equal(t, int32(1), gateway.cancelCalls.Load())
	})

	t.Run("reconciliation adopts a cancellation that did go through", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			cancelFn: func(string, string) (fiscal.CancelOutcome, error) {
				return fiscal.CancelOutcome{}, errors.New("context deadline exceeded")
			},
			queryFn: func(string) (fiscal.SubmissionOutcome, error) {
				return fiscal.CancelledOutcome("late-cancel-proto", `{"cStat":"101"}`), nil
			},
		}
		f := newServiceFixture(t, gateway)
		doc := authorize(t, f)

		_, err := f.service.Cancel(ctx, companyID, doc.ID, "duplicidade de emissao do documento")
		require.Error(t, err)

		reconciled, err := f.service.Reconcile(ctx, companyID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusCancelled, reconciled.Status)
		assert.Equal(t, "late-cancel-proto", reconciled.AuthorityProtocol)
		assert.Equal(t, int32(1), gateway.queryCalls.Load())
		assert.Contains(t, f.audit.transitions(doc.ID), "CANCELLING>CANCELLED")
	})

	t.Run("reconciliation restores a cancellation the authority never saw", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			cancelFn: func(string, string) (fiscal.CancelOutcome, error) {
				return fiscal.CancelOutcome{}, errors.New("context deadline exceeded")
			},
			queryFn: func(accessKey string) (fiscal.SubmissionOutcome, error) {
				return fiscal.AuthorizedOutcome("proto-1", accessKey, `{"cStat":"100"}`), nil
			},
		}
		f := newServiceFixture(t, gateway)
		doc := authorize(t, f)

		_, err := f.service.Cancel(ctx, companyID, doc.ID, "duplicidade de emissao do documento")
		require.Error(t, err)

		reconciled, err := f.service.Reconcile(ctx, companyID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusAuthorized, reconciled.Status)

		// The document is cancellable again once settled
		gateway.cancelFn = nil
		cancelled, err := f.service.Cancel(ctx, companyID, doc.ID, "duplicidade de emissao do documento")
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusCancelled, cancelled.Status)
	})

	t.Run("cancelling a draft is a state error, not contention", func(t *testing.T) {
		gateway := &stubGateway{docType: fiscal.DocumentTypeNFE}
		f := newServiceFixture(t, gateway)
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		_, err = f.service.Cancel(ctx, companyID, doc.ID, "duplicidade de emissao do documento")
		var derr *shared.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "INVALID_STATE", derr.Code)
		assert.Equal(t, int32(0), gateway.cancelCalls.Load())
	})
}

func TestDocumentService_FileDisagreement(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()

	t.Run("acknowledged filing leaves the status untouched", func(t *testing.T) {
		f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeCTE})
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeCTE))
		require.NoError(t, err)
		emitted, err := f.service.Emit(ctx, companyID, doc.ID)
		require.NoError(t, err)

		result, err := f.service.FileDisagreement(ctx, companyID, emitted.ID, "servico de transporte nao foi prestado")
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusAuthorized, result.Status)
		assert.Contains(t, f.audit.transitions(doc.ID), "AUTHORIZED>AUTHORIZED")
	})

	t.Run("rejected for non-transport documents", func(t *testing.T) {
		f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeNFE})
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)
		emitted, err := f.service.Emit(ctx, companyID, doc.ID)
		require.NoError(t, err)

		_, err = f.service.FileDisagreement(ctx, companyID, emitted.ID, "servico de transporte nao foi prestado")
		assert.Error(t, err)
	})
}

func TestDocumentService_RecoverStuck(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()

	t.Run("sweeps a stranded submission", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			queryFn: func(accessKey string) (fiscal.SubmissionOutcome, error) {
				return fiscal.AuthorizedOutcome("swept-proto", accessKey, ""), nil
			},
		}
		f := newServiceFixture(t, gateway)
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)

		// Strand the document mid-submission, as a crash would
		stored, err := f.repo.FindByID(ctx, doc.ID)
		require.NoError(t, err)
		require.NoError(t, stored.BeginSubmission("35250311222333000181550010000000421123456780"))
		require.NoError(t, f.repo.SaveWithLock(ctx, stored))

		recovered, err := f.service.RecoverStuck(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, recovered)

		current, err := f.service.Get(ctx, companyID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusAuthorized, current.Status)
		assert.Equal(t, "swept-proto", current.AuthorityProtocol)
	})

	t.Run("sweeps a stranded cancellation", func(t *testing.T) {
		gateway := &stubGateway{
			docType: fiscal.DocumentTypeNFE,
			cancelFn: func(string, string) (fiscal.CancelOutcome, error) {
				return fiscal.CancelOutcome{}, errors.New("context deadline exceeded")
			},
			queryFn: func(string) (fiscal.SubmissionOutcome, error) {
				return fiscal.CancelledOutcome("swept-cancel-proto", `{"cStat":"101"}`), nil
			},
		}
		f := newServiceFixture(t, gateway)
		doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
		require.NoError(t, err)
		_, err = f.service.Emit(ctx, companyID, doc.ID)
		require.NoError(t, err)
		_, err = f.service.Cancel(ctx, companyID, doc.ID, "duplicidade de emissao do documento")
		require.Error(t, err)

		recovered, err := f.service.RecoverStuck(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, recovered)

		current, err := f.service.Get(ctx, companyID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusCancelled, current.Status)
	})
}

func TestDocumentService_VerifyAccessKey(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	f := newServiceFixture(t, &stubGateway{docType: fiscal.DocumentTypeNFE})

	doc, err := f.service.Create(ctx, createCommand(companyID, fiscal.DocumentTypeNFE))
	require.NoError(t, err)
	emitted, err := f.service.Emit(ctx, companyID, doc.ID)
	require.NoError(t, err)

	t.Run("finds the document behind a valid key", func(t *testing.T) {
		valid, found := f.service.VerifyAccessKey(ctx, emitted.AccessKey)
		assert.True(t, valid)
		require.NotNil(t, found)
		assert.Equal(t, emitted.ID, found.ID)
	})

	t.Run("a valid key with no document verifies without a match", func(t *testing.T) {
		valid, found := f.service.VerifyAccessKey(ctx, "35250311222333000181570010000000071000000018")
		assert.True(t, valid)
		assert.Nil(t, found)
	})

	t.Run("a corrupted key fails verification", func(t *testing.T) {
		wrongDigit := byte('0')
		if emitted.AccessKey[43] == wrongDigit {
			wrongDigit = '1'
		}
		valid, found := f.service.VerifyAccessKey(ctx, emitted.AccessKey[:43]+string(wrongDigit))
		assert.False(t, valid)
		assert.Nil(t, found)
	})
}
