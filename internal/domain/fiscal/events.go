package fiscal

import (
	"github.com/emissor/backend/internal/domain/shared"
)

// Event types for the fiscal document aggregate
const (
	EventDocumentCreated       = "fiscal.document.created"
	EventDocumentSubmitted     = "fiscal.document.submitted"
	EventDocumentAuthorized    = "fiscal.document.authorized"
	EventDocumentRejected      = "fiscal.document.rejected"
	EventSubmissionUnavailable = "fiscal.document.submission_unavailable"
	EventDocumentCancelled     = "fiscal.document.cancelled"
	EventCancelRejected        = "fiscal.document.cancel_rejected"
	EventDisagreementFiled     = "fiscal.document.disagreement_filed"
)

const aggregateTypeFiscalDocument = "FiscalDocument"

// FiscalDocumentCreatedEvent is raised when a draft is created
type FiscalDocumentCreatedEvent struct {
	shared.BaseDomainEvent
	DocumentType DocumentType `json:"document_type"`
	Series       int          `json:"series"`
	Number       int64        `json:"number"`
}

// NewFiscalDocumentCreatedEvent creates a new created event
func NewFiscalDocumentCreatedEvent(doc *FiscalDocument) *FiscalDocumentCreatedEvent {
	return &FiscalDocumentCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventDocumentCreated, aggregateTypeFiscalDocument, doc.ID, doc.CompanyID),
		DocumentType:    doc.DocumentType,
		Series:          doc.Series,
		Number:          doc.Number,
	}
}

// FiscalDocumentSubmittedEvent is raised when a submission attempt starts
type FiscalDocumentSubmittedEvent struct {
	shared.BaseDomainEvent
	AttemptKey string `json:"attempt_key"`
}

// NewFiscalDocumentSubmittedEvent creates a new submitted event
func NewFiscalDocumentSubmittedEvent(doc *FiscalDocument, attemptKey string) *FiscalDocumentSubmittedEvent {
	return &FiscalDocumentSubmittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventDocumentSubmitted, aggregateTypeFiscalDocument, doc.ID, doc.CompanyID),
		AttemptKey:      attemptKey,
	}
}

// FiscalDocumentAuthorizedEvent is raised when the authority authorizes
type FiscalDocumentAuthorizedEvent struct {
	shared.BaseDomainEvent
	AccessKey string `json:"access_key"`
	Protocol  string `json:"protocol"`
}

// NewFiscalDocumentAuthorizedEvent creates a new authorized event
func NewFiscalDocumentAuthorizedEvent(doc *FiscalDocument) *FiscalDocumentAuthorizedEvent {
	return &FiscalDocumentAuthorizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventDocumentAuthorized, aggregateTypeFiscalDocument, doc.ID, doc.CompanyID),
		AccessKey:       doc.AccessKey,
		Protocol:        doc.AuthorityProtocol,
	}
}

// FiscalDocumentRejectedEvent is raised when the authority rejects
type FiscalDocumentRejectedEvent struct {
	shared.BaseDomainEvent
	Reason string `json:"reason"`
}

// NewFiscalDocumentRejectedEvent creates a new rejected event
func NewFiscalDocumentRejectedEvent(doc *FiscalDocument) *FiscalDocumentRejectedEvent {
	return &FiscalDocumentRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventDocumentRejected, aggregateTypeFiscalDocument, doc.ID, doc.CompanyID),
		Reason:          doc.RejectionReason,
	}
}

// SubmissionUnavailableEvent is raised when the authority could not be
// reached and the document rolled back to draft
type SubmissionUnavailableEvent struct {
	shared.BaseDomainEvent
	AttemptKey string `json:"attempt_key"`
}

// NewSubmissionUnavailableEvent creates a new unavailable event
func NewSubmissionUnavailableEvent(doc *FiscalDocument) *SubmissionUnavailableEvent {
	return &SubmissionUnavailableEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventSubmissionUnavailable, aggregateTypeFiscalDocument, doc.ID, doc.CompanyID),
		AttemptKey:      doc.LastAttemptKey,
	}
}

// FiscalDocumentCancelledEvent is raised when a cancellation is confirmed
type FiscalDocumentCancelledEvent struct {
	shared.BaseDomainEvent
	AccessKey string `json:"access_key"`
	Protocol  string `json:"protocol"`
}

// NewFiscalDocumentCancelledEvent creates a new cancelled event
func NewFiscalDocumentCancelledEvent(doc *FiscalDocument) *FiscalDocumentCancelledEvent {
	return &FiscalDocumentCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventDocumentCancelled, aggregateTypeFiscalDocument, doc.ID, doc.CompanyID),
		AccessKey:       doc.AccessKey,
		Protocol:        doc.AuthorityProtocol,
	}
}

// CancelRejectedEvent is raised when the authority refuses a cancellation
type CancelRejectedEvent struct {
	shared.BaseDomainEvent
	Reason string `json:"reason"`
}

// NewCancelRejectedEvent creates a new cancel-rejected event
func NewCancelRejectedEvent(doc *FiscalDocument, reason string) *CancelRejectedEvent {
	return &CancelRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventCancelRejected, aggregateTypeFiscalDocument, doc.ID, doc.CompanyID),
		Reason:          reason,
	}
}

// DisagreementFiledEvent is raised when a transport document disagreement
// is acknowledged by the authority
type DisagreementFiledEvent struct {
	shared.BaseDomainEvent
	Justification string `json:"justification"`
}

// NewDisagreementFiledEvent creates a new disagreement event
func NewDisagreementFiledEvent(doc *FiscalDocument, justification string) *DisagreementFiledEvent {
	return &DisagreementFiledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventDisagreementFiled, aggregateTypeFiscalDocument, doc.ID, doc.CompanyID),
		Justification:   justification,
	}
}
