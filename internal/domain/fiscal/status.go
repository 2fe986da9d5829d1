package fiscal

// DocumentType identifies the fiscal document family
type DocumentType string

const (
	DocumentTypeNFE  DocumentType = "NFE"  // product invoice, model 55
	DocumentTypeNFCE DocumentType = "NFCE" // consumer invoice, model 65
	DocumentTypeCTE  DocumentType = "CTE"  // transport document, model 57
	DocumentTypeNFSE DocumentType = "NFSE" // municipal service invoice
)

// IsValid checks if the document type is valid
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeNFE, DocumentTypeNFCE, DocumentTypeCTE, DocumentTypeNFSE:
		return true
	}
	return false
}

// String returns the string representation
func (t DocumentType) String() string {
	return string(t)
}

// ModelCode returns the two-digit document model used inside the access
// key. NFSe has no federal model; 99 is the internal placeholder used for
// its provisional key.
func (t DocumentType) ModelCode() string {
	switch t {
	case DocumentTypeNFE:
		return "55"
	case DocumentTypeNFCE:
		return "65"
	case DocumentTypeCTE:
		return "57"
	case DocumentTypeNFSE:
		return "99"
	}
	return ""
}

// DocumentStatus represents the lifecycle status of a fiscal document
type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "DRAFT"
	StatusSubmitting DocumentStatus = "SUBMITTING" // transient, never survives recovery
	StatusAuthorized DocumentStatus = "AUTHORIZED"
	StatusRejected   DocumentStatus = "REJECTED"
	StatusCancelling DocumentStatus = "CANCELLING" // transient, never survives recovery
	StatusCancelled  DocumentStatus = "CANCELLED"
)

// IsValid checks if the status is valid
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitting, StatusAuthorized, StatusRejected, StatusCancelling, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation
func (s DocumentStatus) String() string {
	return string(s)
}

// IsTransient reports whether the status marks an in-flight authority call
func (s DocumentStatus) IsTransient() bool {
	return s == StatusSubmitting || s == StatusCancelling
}

// IsTerminal reports whether no further transition is allowed
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCancelled
}

// CanTransitionTo checks if a transition to the target status is allowed
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	allowed, ok := statusTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

var statusTransitions = map[DocumentStatus][]DocumentStatus{
	StatusDraft:      {StatusSubmitting},
	StatusSubmitting: {StatusAuthorized, StatusRejected, StatusDraft},
	StatusAuthorized: {StatusCancelling},
	StatusCancelling: {StatusCancelled, StatusAuthorized},
	StatusRejected:   {StatusDraft},
	StatusCancelled:  {},
}
