// Package fiscal orchestrates the emission lifecycle of fiscal documents.
// All status mutation goes through DocumentService; callers never touch
// the document status directly.
package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/fiscal/assembly"
	"github.com/emissor/backend/internal/domain/shared"
	"github.com/emissor/backend/internal/domain/shared/valueobject"
)

// ErrReconcileRequired blocks re-emission while a previous submission
// attempt has an undetermined authority-side outcome
var ErrReconcileRequired = shared.NewDomainError("INVALID_STATE", "A previous submission attempt must be reconciled before emitting again")

// emissionTypeNormal is the tpEmis digit for regular online emission
const emissionTypeNormal = 1

// DocumentService drives fiscal documents through their lifecycle
type DocumentService struct {
	docs             fiscal.FiscalDocumentRepository
	auditLog         fiscal.LifecycleEventRepository
	assemblers       *assembly.Registry
	gateways         fiscal.GatewayRegistry
	eventBus         shared.EventPublisher
	logger           *zap.Logger
	authorityTimeout time.Duration
	stuckAge         time.Duration
}

// NewDocumentService creates a new document service
func NewDocumentService(
	docs fiscal.FiscalDocumentRepository,
	auditLog fiscal.LifecycleEventRepository,
	assemblers *assembly.Registry,
	gateways fiscal.GatewayRegistry,
	eventBus shared.EventPublisher,
	logger *zap.Logger,
	authorityTimeout time.Duration,
	stuckAge time.Duration,
) *DocumentService {
	return &DocumentService{
		docs:             docs,
		auditLog:         auditLog,
		assemblers:       assemblers,
		gateways:         gateways,
		eventBus:         eventBus,
		logger:           logger,
		authorityTimeout: authorityTimeout,
		stuckAge:         stuckAge,
	}
}

// PartyInput carries party fields from the caller
type PartyInput struct {
	TaxID     string
	LegalName string
	StateUF   string
	Street    string
	Number    string
	District  string
	City      string
	CityCode  string
	ZipCode   string
}

// ItemInput carries one document line from the caller
type ItemInput struct {
	ItemCode    string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	CFOP        string
	ServiceCode string
}

// CreateDocumentCommand creates a draft document
type CreateDocumentCommand struct {
	CompanyID       uuid.UUID
	DocumentType    fiscal.DocumentType
	Series          int
	IssueDate       time.Time
	OperationNature string
	Issuer          PartyInput
	Counterparty    PartyInput
	Items           []ItemInput
	TotalValue      decimal.Decimal

	CarrierName  string
	CarrierTaxID string

	MunicipalServiceCode string
	ServiceCityCode      string
	RPSNumber            int64
}

// UpdateDocumentCommand edits a draft (or rejected) document
type UpdateDocumentCommand struct {
	CompanyID       uuid.UUID
	DocumentID      uuid.UUID
	OperationNature string
	Counterparty    PartyInput
	Items           []ItemInput
	TotalValue      decimal.Decimal
}

// Create builds and persists a draft fiscal document. The document number
// is allocated sequentially per issuer, series and type.
func (s *DocumentService) Create(ctx context.Context, cmd CreateDocumentCommand) (*fiscal.FiscalDocument, error) {
	issuer, err := buildParty(cmd.Issuer, true)
	if err != nil {
		return nil, err
	}
	counterparty, err := buildParty(cmd.Counterparty, false)
	if err != nil {
		return nil, err
	}
	items, err := buildItems(cmd.Items)
	if err != nil {
		return nil, err
	}

	number, err := s.docs.NextNumber(ctx, cmd.CompanyID, cmd.DocumentType, cmd.Series)
	if err != nil {
		return nil, err
	}

	issueDate := cmd.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now()
	}

	doc, err := fiscal.NewFiscalDocument(
		cmd.CompanyID, cmd.DocumentType, cmd.Series, number, issueDate,
		cmd.OperationNature, issuer, counterparty, items,
		valueobject.NewMoneyBRL(cmd.TotalValue),
	)
	if err != nil {
		return nil, err
	}
	doc.CarrierName = cmd.CarrierName
	doc.CarrierTaxID = normalizeTaxID(cmd.CarrierTaxID)
	doc.MunicipalServiceCode = cmd.MunicipalServiceCode
	doc.ServiceCityCode = cmd.ServiceCityCode
	doc.RPSNumber = cmd.RPSNumber

	if err := s.docs.Save(ctx, doc); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, doc)

	s.logger.Info("fiscal document created",
		zap.String("document_id", doc.ID.String()),
		zap.String("type", doc.DocumentType.String()),
		zap.Int64("number", doc.Number))
	return doc, nil
}

// Update revises a draft document; a rejected document returns to draft
func (s *DocumentService) Update(ctx context.Context, cmd UpdateDocumentCommand) (*fiscal.FiscalDocument, error) {
	doc, err := s.docs.FindByIDForCompany(ctx, cmd.CompanyID, cmd.DocumentID)
	if err != nil {
		return nil, err
	}
	counterparty, err := buildParty(cmd.Counterparty, false)
	if err != nil {
		return nil, err
	}
	items, err := buildItems(cmd.Items)
	if err != nil {
		return nil, err
	}
	if err := doc.Revise(cmd.OperationNature, counterparty, items, valueobject.NewMoneyBRL(cmd.TotalValue)); err != nil {
		return nil, err
	}
	if err := s.docs.SaveWithLock(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get loads one document scoped to the company
func (s *DocumentService) Get(ctx context.Context, companyID, documentID uuid.UUID) (*fiscal.FiscalDocument, error) {
	return s.docs.FindByIDForCompany(ctx, companyID, documentID)
}

// List returns a page of the company's documents
func (s *DocumentService) List(ctx context.Context, companyID uuid.UUID, filter shared.Filter) (shared.Paginated[fiscal.FiscalDocument], error) {
	return s.docs.FindAllForCompany(ctx, companyID, filter)
}

// Events returns the append-only audit trail of a document
func (s *DocumentService) Events(ctx context.Context, companyID, documentID uuid.UUID) ([]fiscal.LifecycleEvent, error) {
	if _, err := s.docs.FindByIDForCompany(ctx, companyID, documentID); err != nil {
		return nil, err
	}
	return s.auditLog.FindByDocument(ctx, documentID)
}

// Emit submits a draft document to the tax authority. At most one
// submission is in flight per document; a concurrent second caller fails
// with ALREADY_IN_PROGRESS. An unavailable authority rolls the document
// back to draft with no access key persisted.
func (s *DocumentService) Emit(ctx context.Context, companyID, documentID uuid.UUID) (*fiscal.FiscalDocument, error) {
	doc, err := s.docs.FindByIDForCompany(ctx, companyID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != fiscal.StatusDraft {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot emit document in status %s", doc.Status))
	}
	if doc.LastAttemptKey != "" {
		// An earlier attempt timed out; its authority-side outcome must be
		// adopted or ruled out before a new key is drawn, otherwise two
		// authorized records could exist for one logical document
		return nil, ErrReconcileRequired
	}

	attemptKey, err := s.buildAttemptKey(doc)
	if err != nil {
		return nil, err
	}

	assembler, err := s.assemblers.Resolve(doc.DocumentType)
	if err != nil {
		return nil, err
	}
	serialized, err := assembler.Assemble(doc, attemptKey)
	if err != nil {
		return nil, err
	}
	gateway, err := s.gateways.Resolve(doc.DocumentType, doc.ServiceCityCode)
	if err != nil {
		return nil, err
	}

	// Claim the in-flight slot before any network call
	if err := s.docs.TransitionStatus(ctx, doc.ID, fiscal.StatusDraft, fiscal.StatusSubmitting); err != nil {
		return nil, err
	}
	if err := doc.BeginSubmission(attemptKey); err != nil {
		return nil, err
	}
	if err := s.docs.SaveWithLock(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, doc.ID, fiscal.StatusDraft, fiscal.StatusSubmitting, "", ""); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, doc)

	// The authority call and the outcome persistence run on a detached
	// context: a caller navigating away must not strand local state while
	// the authority may still decide
	dctx := context.WithoutCancel(ctx)
	outcome := s.submit(dctx, gateway, serialized)
	if err := s.applySubmissionOutcome(dctx, doc, outcome); err != nil {
		return nil, err
	}
	if outcome.Kind == fiscal.OutcomeUnavailable && outcome.Retriable {
		return doc, shared.ErrAuthorityUnavailable
	}
	return doc, nil
}

func (s *DocumentService) submit(ctx context.Context, gateway fiscal.AuthorityGateway, serialized *fiscal.SerializedDocument) fiscal.SubmissionOutcome {
	callCtx, cancel := context.WithTimeout(ctx, s.authorityTimeout)
	defer cancel()

	outcome, err := gateway.Submit(callCtx, serialized)
	if err != nil {
		// A timeout or transport failure is never a silent success or
		// failure: it is Unavailable, and the document is reconciled via
		// Query before any retry
		s.logger.Warn("authority submission failed",
			zap.String("access_key", serialized.AccessKey),
			zap.Error(err))
		return fiscal.UnavailableOutcome(true, err.Error())
	}
	return outcome
}

func (s *DocumentService) applySubmissionOutcome(ctx context.Context, doc *fiscal.FiscalDocument, outcome fiscal.SubmissionOutcome) error {
	previous := doc.Status
	switch outcome.Kind {
	case fiscal.OutcomeAuthorized:
		key := outcome.AuthorityKey
		if key == "" {
			key = doc.LastAttemptKey
		}
		if err := doc.MarkAuthorized(key, outcome.Protocol); err != nil {
			return err
		}
	case fiscal.OutcomeRejected:
		if err := doc.MarkRejected(outcome.ReasonCode, outcome.ReasonText); err != nil {
			return err
		}
	case fiscal.OutcomeUnavailable:
		if !outcome.Retriable {
			// A permanent refusal is a decided outcome, not a transient one
			if err := doc.MarkRejected(outcome.ReasonCode, outcome.ReasonText); err != nil {
				return err
			}
		} else if err := doc.RollbackToDraft(); err != nil {
			return err
		}
	default:
		return shared.ErrInconsistentState
	}

	if err := s.docs.SaveWithLock(ctx, doc); err != nil {
		return err
	}
	if err := s.appendAudit(ctx, doc.ID, previous, doc.Status, outcome.RawPayload, ""); err != nil {
		return err
	}
	s.publishEvents(ctx, doc)

	s.logger.Info("submission outcome applied",
		zap.String("document_id", doc.ID.String()),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("status", doc.Status.String()))
	return nil
}

// Cancel requests authority-side cancellation of an authorized document.
// The justification length is validated locally before any network call;
// an authority refusal keeps the document authorized. When the authority
// cannot be reached the document stays in CANCELLING until Reconcile or
// the recovery sweep settles the outcome.
func (s *DocumentService) Cancel(ctx context.Context, companyID, documentID uuid.UUID, justification string) (*fiscal.FiscalDocument, error) {
	if err := fiscal.ValidateJustification(justification); err != nil {
		return nil, err
	}
	doc, err := s.docs.FindByIDForCompany(ctx, companyID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != fiscal.StatusAuthorized {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel document in status %s", doc.Status))
	}
	gateway, err := s.gateways.Resolve(doc.DocumentType, doc.ServiceCityCode)
	if err != nil {
		return nil, err
	}

	if err := s.docs.TransitionStatus(ctx, doc.ID, fiscal.StatusAuthorized, fiscal.StatusCancelling); err != nil {
		return nil, err
	}
	if err := doc.BeginCancellation(justification); err != nil {
		return nil, err
	}
	if err := s.docs.SaveWithLock(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, doc.ID, fiscal.StatusAuthorized, fiscal.StatusCancelling, "", justification); err != nil {
		return nil, err
	}

	dctx := context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(dctx, s.authorityTimeout)
	outcome, err := gateway.Cancel(callCtx, doc.AccessKey, justification)
	cancel()
	if err != nil {
		outcome = fiscal.CancelOutcome{Kind: fiscal.CancelUnavailable, Retriable: true, RawPayload: err.Error()}
	}

	if outcome.Kind == fiscal.CancelUnavailable {
		// The authority-side outcome is undetermined: the cancellation may
		// still have been registered. The document stays cancelling so the
		// only way forward is reconciliation via Query, mirroring the guard
		// the emit path applies to a timed-out submission.
		if err := s.appendAudit(dctx, doc.ID, fiscal.StatusCancelling, fiscal.StatusCancelling, outcome.RawPayload, "authority unavailable"); err != nil {
			return nil, err
		}
		return doc, shared.ErrAuthorityUnavailable
	}

	previous := doc.Status
	switch outcome.Kind {
	case fiscal.CancelAccepted:
		if err := doc.MarkCancelled(outcome.Protocol); err != nil {
			return nil, err
		}
	case fiscal.CancelRefusedKind:
		// Not a fatal local error; the document is still valid
		if err := doc.CancelRefused(outcome.ReasonText); err != nil {
			return nil, err
		}
	default:
		return nil, shared.ErrInconsistentState
	}

	if err := s.docs.SaveWithLock(dctx, doc); err != nil {
		return nil, err
	}
	if err := s.appendAudit(dctx, doc.ID, previous, doc.Status, outcome.RawPayload, ""); err != nil {
		return nil, err
	}
	s.publishEvents(dctx, doc)
	return doc, nil
}

// FileDisagreement files a counterparty disagreement against an authorized
// transport document. The filing is informational and never changes the
// document status.
func (s *DocumentService) FileDisagreement(ctx context.Context, companyID, documentID uuid.UUID, justification string) (*fiscal.FiscalDocument, error) {
	doc, err := s.docs.FindByIDForCompany(ctx, companyID, documentID)
	if err != nil {
		return nil, err
	}
	if err := doc.RecordDisagreement(justification); err != nil {
		return nil, err
	}
	gateway, err := s.gateways.Resolve(doc.DocumentType, doc.ServiceCityCode)
	if err != nil {
		return nil, err
	}

	dctx := context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(dctx, s.authorityTimeout)
	outcome, err := gateway.FileDisagreement(callCtx, doc.AccessKey, justification)
	cancel()
	if err != nil {
		return nil, shared.ErrAuthorityUnavailable
	}
	if outcome.Kind == fiscal.DisagreementUnavailable {
		return nil, shared.ErrAuthorityUnavailable
	}

	note := justification
	if outcome.Kind == fiscal.DisagreementRefused {
		note = "refused: " + outcome.ReasonText
	}
	if err := s.appendAudit(dctx, doc.ID, doc.Status, doc.Status, outcome.RawPayload, note); err != nil {
		return nil, err
	}
	s.publishEvents(dctx, doc)
	return doc, nil
}

// Reconcile adopts the authority-side outcome for a document whose last
// transition could not be completed (crash or timeout). It is the only way
// out of a transient status and the prerequisite for re-emitting after an
// unavailable submission.
func (s *DocumentService) Reconcile(ctx context.Context, companyID, documentID uuid.UUID) (*fiscal.FiscalDocument, error) {
	doc, err := s.docs.FindByIDForCompany(ctx, companyID, documentID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, doc)
}

func (s *DocumentService) reconcile(ctx context.Context, doc *fiscal.FiscalDocument) (*fiscal.FiscalDocument, error) {
	switch {
	case doc.Status == fiscal.StatusSubmitting:
		return doc, s.reconcileSubmission(ctx, doc)
	case doc.Status == fiscal.StatusCancelling:
		return doc, s.reconcileCancellation(ctx, doc)
	case doc.Status == fiscal.StatusDraft && doc.LastAttemptKey != "":
		// A rolled-back submission may still have been decided by the
		// authority after the local timeout. Claim the in-flight slot so
		// reconciliation cannot race a concurrent emit.
		if err := s.docs.TransitionStatus(ctx, doc.ID, fiscal.StatusDraft, fiscal.StatusSubmitting); err != nil {
			return nil, err
		}
		doc.Status = fiscal.StatusSubmitting
		return doc, s.reconcileSubmission(ctx, doc)
	default:
		return nil, shared.NewDomainError("INVALID_STATE", "Document has no pending transition to reconcile")
	}
}

func (s *DocumentService) reconcileSubmission(ctx context.Context, doc *fiscal.FiscalDocument) error {
	key := doc.ReconcileKey()
	if key == "" {
		return shared.ErrInconsistentState
	}
	gateway, err := s.gateways.Resolve(doc.DocumentType, doc.ServiceCityCode)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.authorityTimeout)
	outcome, err := gateway.Query(callCtx, key)
	cancel()
	if err != nil {
		// The outcome cannot be determined; reported, never silently
		// resolved
		s.logger.Error("reconciliation query failed",
			zap.String("document_id", doc.ID.String()),
			zap.String("access_key", key),
			zap.Error(err))
		return shared.ErrInconsistentState
	}

	previous := doc.Status
	switch outcome.Kind {
	case fiscal.OutcomeAuthorized:
		authorizedKey := outcome.AuthorityKey
		if authorizedKey == "" {
			authorizedKey = key
		}
		if err := doc.MarkAuthorized(authorizedKey, outcome.Protocol); err != nil {
			return err
		}
	case fiscal.OutcomeRejected:
		if err := doc.MarkRejected(outcome.ReasonCode, outcome.ReasonText); err != nil {
			return err
		}
	case fiscal.OutcomeNotFound:
		// The submission never reached the authority; safe to retry with
		// a fresh key
		if err := doc.DiscardAttempt(); err != nil {
			return err
		}
	default:
		return shared.ErrInconsistentState
	}

	if err := s.docs.SaveWithLock(ctx, doc); err != nil {
		return err
	}
	if err := s.appendAudit(ctx, doc.ID, previous, doc.Status, outcome.RawPayload, "reconciled"); err != nil {
		return err
	}
	s.publishEvents(ctx, doc)
	return nil
}

func (s *DocumentService) reconcileCancellation(ctx context.Context, doc *fiscal.FiscalDocument) error {
	if doc.AccessKey == "" {
		return shared.ErrInconsistentState
	}
	gateway, err := s.gateways.Resolve(doc.DocumentType, doc.ServiceCityCode)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.authorityTimeout)
	outcome, err := gateway.Query(callCtx, doc.AccessKey)
	cancel()
	if err != nil {
		return shared.ErrInconsistentState
	}

	previous := doc.Status
	switch outcome.Kind {
	case fiscal.OutcomeCancelled:
		if err := doc.MarkCancelled(outcome.Protocol); err != nil {
			return err
		}
	case fiscal.OutcomeAuthorized:
		// The cancellation never took effect; the document stands
		if err := doc.CancelRefused("cancellation not registered by the authority"); err != nil {
			return err
		}
	default:
		return shared.ErrInconsistentState
	}

	if err := s.docs.SaveWithLock(ctx, doc); err != nil {
		return err
	}
	if err := s.appendAudit(ctx, doc.ID, previous, doc.Status, outcome.RawPayload, "reconciled"); err != nil {
		return err
	}
	s.publishEvents(ctx, doc)
	return nil
}

// RecoverStuck reconciles every document left in a transient status longer
// than the configured age. Run at startup and periodically; a transient
// status must never survive a crash unexamined.
func (s *DocumentService) RecoverStuck(ctx context.Context) (int, error) {
	stuck, err := s.docs.FindStuck(ctx, s.stuckAge)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for i := range stuck {
		doc := &stuck[i]
		if _, err := s.reconcile(ctx, doc); err != nil {
			s.logger.Error("stuck document could not be reconciled",
				zap.String("document_id", doc.ID.String()),
				zap.String("status", doc.Status.String()),
				zap.Error(err))
			continue
		}
		recovered++
	}
	if len(stuck) > 0 {
		s.logger.Info("recovery sweep finished",
			zap.Int("stuck", len(stuck)),
			zap.Int("recovered", recovered))
	}
	return recovered, nil
}

// VerifyAccessKey checks a 44-digit key's check digit and looks up the
// matching document, if any
func (s *DocumentService) VerifyAccessKey(ctx context.Context, key string) (bool, *fiscal.FiscalDocument) {
	if !fiscal.VerifyKey(key) {
		return false, nil
	}
	doc, err := s.docs.FindByAccessKey(ctx, key)
	if err != nil {
		return true, nil
	}
	return true, doc
}

func (s *DocumentService) buildAttemptKey(doc *fiscal.FiscalDocument) (string, error) {
	numericCode, err := fiscal.NewNumericCode()
	if err != nil {
		return "", err
	}
	components, err := fiscal.NewAccessKeyComponents(
		doc.Issuer.StateUF, doc.IssueDate, doc.Issuer.TaxID,
		doc.DocumentType.ModelCode(), doc.Series, doc.Number,
		emissionTypeNormal, numericCode,
	)
	if err != nil {
		return "", err
	}
	return fiscal.GenerateKey(components)
}

func (s *DocumentService) appendAudit(ctx context.Context, documentID uuid.UUID, previous, next fiscal.DocumentStatus, payload, note string) error {
	event := fiscal.NewLifecycleEvent(documentID, previous, next, payload, note)
	if err := s.auditLog.Append(ctx, event); err != nil {
		s.logger.Error("audit trail append failed",
			zap.String("document_id", documentID.String()),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *DocumentService) publishEvents(ctx context.Context, doc *fiscal.FiscalDocument) {
	events := doc.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.eventBus.Publish(ctx, events...); err != nil {
		s.logger.Warn("domain event publication failed", zap.Error(err))
	}
	doc.ClearDomainEvents()
}

func buildParty(in PartyInput, required bool) (fiscal.Party, error) {
	if in.TaxID == "" && in.LegalName == "" {
		if required {
			return fiscal.Party{}, shared.NewDomainError("VALIDATION_ERROR", "Party tax ID and legal name are required")
		}
		return fiscal.Party{}, nil
	}
	taxID, err := valueobject.NewTaxID(in.TaxID)
	if err != nil {
		return fiscal.Party{}, shared.NewDomainError("VALIDATION_ERROR", err.Error())
	}
	party := fiscal.Party{
		TaxID:     taxID.Padded14(),
		LegalName: in.LegalName,
		StateUF:   in.StateUF,
	}
	if taxID.Kind == valueobject.TaxIDCPF {
		party.TaxID = taxID.Digits
	}
	if in.Street != "" || in.City != "" {
		address, err := valueobject.NewAddress(in.Street, in.Number, in.District, in.City, in.CityCode, in.StateUF, in.ZipCode)
		if err != nil {
			return fiscal.Party{}, shared.NewDomainError("VALIDATION_ERROR", err.Error())
		}
		party.Address = address
	}
	return party, nil
}

func buildItems(in []ItemInput) ([]fiscal.DocumentItem, error) {
	if len(in) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "At least one item is required")
	}
	items := make([]fiscal.DocumentItem, 0, len(in))
	for _, it := range in {
		if it.Quantity.IsNegative() || it.UnitPrice.IsNegative() || it.Total.IsNegative() {
			return nil, shared.NewDomainError("VALIDATION_ERROR", "Item amounts must not be negative")
		}
		items = append(items, fiscal.DocumentItem{
			ItemCode:    it.ItemCode,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
			CFOP:        it.CFOP,
			ServiceCode: it.ServiceCode,
		})
	}
	return items, nil
}

func normalizeTaxID(raw string) string {
	if raw == "" {
		return ""
	}
	taxID, err := valueobject.NewTaxID(raw)
	if err != nil {
		return raw
	}
	return taxID.Digits
}

// IsUnavailable reports whether an error is the transient authority error
func IsUnavailable(err error) bool {
	return errors.Is(err, shared.ErrAuthorityUnavailable)
}
