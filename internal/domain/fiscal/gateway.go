package fiscal

import (
	"context"
)

// SerializedDocument is the canonical authority-facing form of a document
type SerializedDocument struct {
	DocumentType DocumentType
	AccessKey    string
	ContentType  string
	Payload      []byte
}

// OutcomeKind discriminates authority submission outcomes
type OutcomeKind string

const (
	OutcomeAuthorized  OutcomeKind = "AUTHORIZED"
	OutcomeRejected    OutcomeKind = "REJECTED"
	OutcomeUnavailable OutcomeKind = "UNAVAILABLE"
	// OutcomeCancelled is reported by Query for a key whose document was
	// cancelled after authorization
	OutcomeCancelled OutcomeKind = "CANCELLED"
	// OutcomeNotFound is returned by Query when the authority has no record
	// of the key; a submission that never arrived can be safely rolled back
	OutcomeNotFound OutcomeKind = "NOT_FOUND"
)

// SubmissionOutcome is the tagged result of a submit or query call
type SubmissionOutcome struct {
	Kind         OutcomeKind
	Protocol     string
	AuthorityKey string
	ReasonCode   string
	ReasonText   string
	Retriable    bool
	RawPayload   string
}

// AuthorizedOutcome builds an authorized submission outcome
func AuthorizedOutcome(protocol, authorityKey, raw string) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomeAuthorized, Protocol: protocol, AuthorityKey: authorityKey, RawPayload: raw}
}

// RejectedOutcome builds a rejected submission outcome
func RejectedOutcome(reasonCode, reasonText, raw string) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomeRejected, ReasonCode: reasonCode, ReasonText: reasonText, RawPayload: raw}
}

// UnavailableOutcome builds an unavailable submission outcome
func UnavailableOutcome(retriable bool, raw string) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomeUnavailable, Retriable: retriable, RawPayload: raw}
}

// NotFoundOutcome builds a query outcome for a key the authority never saw
func NotFoundOutcome(raw string) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomeNotFound, RawPayload: raw}
}

// CancelledOutcome builds a query outcome for a cancelled document
func CancelledOutcome(protocol, raw string) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomeCancelled, Protocol: protocol, RawPayload: raw}
}

// CancelOutcomeKind discriminates authority cancellation outcomes
type CancelOutcomeKind string

const (
	CancelAccepted    CancelOutcomeKind = "CANCELLED"
	CancelRefusedKind CancelOutcomeKind = "CANCEL_REJECTED"
	CancelUnavailable CancelOutcomeKind = "UNAVAILABLE"
)

// CancelOutcome is the tagged result of a cancel call
type CancelOutcome struct {
	Kind       CancelOutcomeKind
	Protocol   string
	ReasonCode string
	ReasonText string
	Retriable  bool
	RawPayload string
}

// DisagreementOutcomeKind discriminates disagreement filing outcomes
type DisagreementOutcomeKind string

const (
	DisagreementAcknowledged DisagreementOutcomeKind = "ACKNOWLEDGED"
	DisagreementRefused      DisagreementOutcomeKind = "REFUSED"
	DisagreementUnavailable  DisagreementOutcomeKind = "UNAVAILABLE"
)

// DisagreementOutcome is the tagged result of a disagreement filing
type DisagreementOutcome struct {
	Kind       DisagreementOutcomeKind
	Protocol   string
	ReasonText string
	RawPayload string
}

// AuthorityGateway abstracts the tax authority webservice for one document
// family (one adapter per family; service invoices vary per municipality).
// Submit must be idempotent from the caller's perspective: resubmitting an
// already-decided access key returns the original decision instead of
// creating a second authority-side record.
type AuthorityGateway interface {
	// DocumentType returns the family this gateway serves
	DocumentType() DocumentType

	// Submit sends a serialized document for authorization
	Submit(ctx context.Context, doc *SerializedDocument) (SubmissionOutcome, error)

	// Query fetches the authority-side outcome for an access key, used to
	// reconcile state after a timeout or crash
	Query(ctx context.Context, accessKey string) (SubmissionOutcome, error)

	// Cancel requests cancellation of an authorized document
	Cancel(ctx context.Context, accessKey, justification string) (CancelOutcome, error)

	// FileDisagreement files a counterparty disagreement (transport
	// documents only)
	FileDisagreement(ctx context.Context, accessKey, justification string) (DisagreementOutcome, error)
}

// GatewayRegistry resolves the gateway for a document. Service invoice
// gateways are registered per municipality code.
type GatewayRegistry interface {
	Register(gateway AuthorityGateway)
	RegisterMunicipal(cityCode string, gateway AuthorityGateway)
	Resolve(docType DocumentType, cityCode string) (AuthorityGateway, error)
}
