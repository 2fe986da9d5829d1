package fiscal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emissor/backend/internal/domain/shared"
	"github.com/emissor/backend/internal/domain/shared/valueobject"
)

// MinJustificationLength is the minimum length accepted for cancellation
// and disagreement justifications, enforced before any authority call
const MinJustificationLength = 15

// Fiscal domain errors
var (
	ErrInvalidJustification = shared.NewDomainError("INVALID_JUSTIFICATION", fmt.Sprintf("Justification must have at least %d characters", MinJustificationLength))
	ErrKeyAlreadyAssigned   = shared.NewDomainError("INVALID_STATE", "Access key is already assigned and immutable")
	ErrTotalMismatch        = shared.NewDomainError("VALIDATION_ERROR", "Document total does not match the sum of item totals")
	ErrNoItems              = shared.NewDomainError("VALIDATION_ERROR", "Document must have at least one item")
)

// Party identifies one side of a fiscal document
type Party struct {
	TaxID     string              `gorm:"size:14" json:"tax_id"`
	LegalName string              `gorm:"size:255" json:"legal_name"`
	StateUF   string              `gorm:"size:2" json:"state_uf"`
	Address   valueobject.Address `gorm:"embedded" json:"address"`
}

// DocumentItem is one line of a fiscal document. Items have no lifecycle
// of their own; document order is preserved through Position.
type DocumentItem struct {
	shared.BaseEntity
	DocumentID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	Position    int             `gorm:"not null" json:"position"`
	ItemCode    string          `gorm:"size:60" json:"item_code"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(15,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(15,4);not null" json:"unit_price"`
	Total       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total"`
	CFOP        string          `gorm:"size:4" json:"cfop"`
	ServiceCode string          `gorm:"size:20" json:"service_code"`
}

// FiscalDocument is the aggregate root for one electronic fiscal document.
// Status is mutated only through the lifecycle methods below; the access
// key is assigned exactly once, at authorization.
type FiscalDocument struct {
	shared.CompanyAggregateRoot
	DocumentType    DocumentType      `gorm:"size:10;not null;index" json:"document_type"`
	Series          int               `gorm:"not null" json:"series"`
	Number          int64             `gorm:"not null" json:"number"`
	IssueDate       time.Time         `gorm:"not null" json:"issue_date"`
	OperationNature string            `gorm:"size:120" json:"operation_nature"`
	Issuer          Party             `gorm:"embedded;embeddedPrefix:issuer_" json:"issuer"`
	Counterparty    Party             `gorm:"embedded;embeddedPrefix:counterparty_" json:"counterparty"`
	Items           []DocumentItem    `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"items"`
	TotalValue      valueobject.Money `gorm:"embedded;embeddedPrefix:total_" json:"total_value"`
	Status          DocumentStatus    `gorm:"size:20;not null;index" json:"status"`

	// AccessKey is the authorized 44-digit key; LastAttemptKey is the key
	// of the in-flight or most recent submission attempt, persisted before
	// the authority call so a crashed submission can be reconciled.
	AccessKey      string `gorm:"size:44;index" json:"access_key"`
	LastAttemptKey string `gorm:"size:44;index" json:"last_attempt_key"`

	AuthorityProtocol   string `gorm:"size:60" json:"authority_protocol"`
	RejectionReason     string `gorm:"size:500" json:"rejection_reason"`
	CancelJustification string `gorm:"size:500" json:"cancel_justification"`

	// CTe
	CarrierName  string `gorm:"size:255" json:"carrier_name"`
	CarrierTaxID string `gorm:"size:14" json:"carrier_tax_id"`

	// NFSe
	MunicipalServiceCode string `gorm:"size:20" json:"municipal_service_code"`
	ServiceCityCode      string `gorm:"size:7" json:"service_city_code"`
	RPSNumber            int64  `json:"rps_number"`

	SubmittedAt  *time.Time `json:"submitted_at"`
	AuthorizedAt *time.Time `json:"authorized_at"`
	CancelledAt  *time.Time `json:"cancelled_at"`
}

// TableName specifies the table name for GORM
func (FiscalDocument) TableName() string {
	return "fiscal_documents"
}

// TableName specifies the table name for GORM
func (DocumentItem) TableName() string {
	return "fiscal_document_items"
}

// NewFiscalDocument creates a draft fiscal document
func NewFiscalDocument(companyID uuid.UUID, docType DocumentType, series int, number int64, issueDate time.Time, operationNature string, issuer, counterparty Party, items []DocumentItem, totalValue valueobject.Money) (*FiscalDocument, error) {
	if !docType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Invalid document type: %s", docType))
	}
	if series <= 0 || number <= 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Series and number must be positive")
	}
	if issuer.TaxID == "" || issuer.LegalName == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Issuer tax ID and legal name are required")
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if err := checkTotals(items, totalValue); err != nil {
		return nil, err
	}

	doc := &FiscalDocument{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID),
		DocumentType:         docType,
		Series:               series,
		Number:               number,
		IssueDate:            issueDate,
		OperationNature:      operationNature,
		Issuer:               issuer,
		Counterparty:         counterparty,
		TotalValue:           totalValue,
		Status:               StatusDraft,
	}
	doc.replaceItems(items)

	doc.AddDomainEvent(NewFiscalDocumentCreatedEvent(doc))
	return doc, nil
}

func checkTotals(items []DocumentItem, total valueobject.Money) error {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Total)
	}
	if !sum.Equal(total.Amount) {
		return ErrTotalMismatch
	}
	return nil
}

func (d *FiscalDocument) replaceItems(items []DocumentItem) {
	d.Items = d.Items[:0]
	for i := range items {
		it := items[i]
		if it.ID == uuid.Nil {
			it.BaseEntity = shared.NewBaseEntity()
		}
		it.DocumentID = d.ID
		it.Position = i + 1
		d.Items = append(d.Items, it)
	}
}

// Revise replaces the editable fields of a draft. A rejected document
// returns to draft on revision; its previous access key attempt is never
// reused.
func (d *FiscalDocument) Revise(operationNature string, counterparty Party, items []DocumentItem, totalValue valueobject.Money) error {
	if d.Status != StatusDraft && d.Status != StatusRejected {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot edit document in status %s", d.Status))
	}
	if len(items) == 0 {
		return ErrNoItems
	}
	if err := checkTotals(items, totalValue); err != nil {
		return err
	}
	if d.Status == StatusRejected {
		// A rejection is a decided outcome; the attempt key needs no
		// reconciliation and the next emission draws a fresh one
		d.Status = StatusDraft
		d.RejectionReason = ""
		d.LastAttemptKey = ""
	}
	d.OperationNature = operationNature
	d.Counterparty = counterparty
	d.TotalValue = totalValue
	d.replaceItems(items)
	d.UpdatedAt = time.Now()
	return nil
}

// BeginSubmission marks the document in flight toward the authority.
// The attempt key is persisted before the network call so that a crash
// mid-submission can be reconciled by querying the authority.
func (d *FiscalDocument) BeginSubmission(attemptKey string) error {
	if !d.Status.CanTransitionTo(StatusSubmitting) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot emit document in status %s", d.Status))
	}
	if !VerifyKey(attemptKey) {
		return shared.NewDomainError("INVALID_COMPONENT", "Attempt key failed check digit verification")
	}
	now := time.Now()
	d.Status = StatusSubmitting
	d.LastAttemptKey = attemptKey
	d.SubmittedAt = &now
	d.UpdatedAt = now
	d.AddDomainEvent(NewFiscalDocumentSubmittedEvent(d, attemptKey))
	return nil
}

// MarkAuthorized records an authority authorization. The access key is
// assigned here, exactly once.
func (d *FiscalDocument) MarkAuthorized(accessKey, protocol string) error {
	if !d.Status.CanTransitionTo(StatusAuthorized) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot authorize document in status %s", d.Status))
	}
	if d.AccessKey != "" && d.AccessKey != accessKey {
		return ErrKeyAlreadyAssigned
	}
	now := time.Now()
	d.Status = StatusAuthorized
	d.AccessKey = accessKey
	d.AuthorityProtocol = protocol
	d.AuthorizedAt = &now
	d.UpdatedAt = now
	d.AddDomainEvent(NewFiscalDocumentAuthorizedEvent(d))
	return nil
}

// MarkRejected records an authority rejection. The document stays
// editable; re-emission generates a new key.
func (d *FiscalDocument) MarkRejected(reasonCode, reasonText string) error {
	if !d.Status.CanTransitionTo(StatusRejected) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot reject document in status %s", d.Status))
	}
	d.Status = StatusRejected
	d.RejectionReason = strings.TrimSpace(reasonCode + " " + reasonText)
	d.UpdatedAt = time.Now()
	d.AddDomainEvent(NewFiscalDocumentRejectedEvent(d))
	return nil
}

// RollbackToDraft returns an in-flight submission to draft after the
// authority was unavailable. No access key is persisted; LastAttemptKey is
// kept for reconciliation.
func (d *FiscalDocument) RollbackToDraft() error {
	if d.Status != StatusSubmitting {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot roll back document in status %s", d.Status))
	}
	d.Status = StatusDraft
	d.UpdatedAt = time.Now()
	d.AddDomainEvent(NewSubmissionUnavailableEvent(d))
	return nil
}

// DiscardAttempt rolls a submission back to draft and forgets the attempt
// key after the authority confirmed it never received the submission
func (d *FiscalDocument) DiscardAttempt() error {
	if err := d.RollbackToDraft(); err != nil {
		return err
	}
	d.LastAttemptKey = ""
	return nil
}

// BeginCancellation marks an authorized document as cancelling. The
// justification is validated locally, before any network call.
func (d *FiscalDocument) BeginCancellation(justification string) error {
	if err := ValidateJustification(justification); err != nil {
		return err
	}
	if !d.Status.CanTransitionTo(StatusCancelling) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel document in status %s", d.Status))
	}
	d.Status = StatusCancelling
	d.CancelJustification = justification
	d.UpdatedAt = time.Now()
	return nil
}

// MarkCancelled records an authority-confirmed cancellation
func (d *FiscalDocument) MarkCancelled(protocol string) error {
	if !d.Status.CanTransitionTo(StatusCancelled) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete cancellation in status %s", d.Status))
	}
	now := time.Now()
	d.Status = StatusCancelled
	if protocol != "" {
		d.AuthorityProtocol = protocol
	}
	d.CancelledAt = &now
	d.UpdatedAt = now
	d.AddDomainEvent(NewFiscalDocumentCancelledEvent(d))
	return nil
}

// CancelRefused returns a cancelling document to authorized after the
// authority refused the cancellation. Not a fatal local error; the
// document remains valid.
func (d *FiscalDocument) CancelRefused(reason string) error {
	if d.Status != StatusCancelling {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot refuse cancellation in status %s", d.Status))
	}
	d.Status = StatusAuthorized
	d.CancelJustification = ""
	d.UpdatedAt = time.Now()
	d.AddDomainEvent(NewCancelRejectedEvent(d, reason))
	return nil
}

// RecordDisagreement validates a CTe disagreement filing. Disagreement is
// informational and never changes the document status.
func (d *FiscalDocument) RecordDisagreement(justification string) error {
	if d.DocumentType != DocumentTypeCTE {
		return shared.NewDomainError("INVALID_STATE", "Disagreement filing applies only to transport documents")
	}
	if d.Status != StatusAuthorized {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot file disagreement for document in status %s", d.Status))
	}
	if err := ValidateJustification(justification); err != nil {
		return err
	}
	d.AddDomainEvent(NewDisagreementFiledEvent(d, justification))
	return nil
}

// ValidateJustification enforces the minimum justification length
func ValidateJustification(justification string) error {
	if len(strings.TrimSpace(justification)) < MinJustificationLength {
		return ErrInvalidJustification
	}
	return nil
}

// ReconcileKey returns the access key to query the authority with when the
// document is stuck in a transient state
func (d *FiscalDocument) ReconcileKey() string {
	if d.Status == StatusCancelling && d.AccessKey != "" {
		return d.AccessKey
	}
	return d.LastAttemptKey
}
