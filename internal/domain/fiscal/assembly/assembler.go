// Package assembly builds the authority-facing XML form of a fiscal
// document, one strategy per document family.
package assembly

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/shared"
)

// ContentTypeXML is the content type of every serialized document
const ContentTypeXML = "application/xml"

// Assembler serializes one document family into its authority dialect
type Assembler interface {
	// DocumentType returns the family this assembler serves
	DocumentType() fiscal.DocumentType

	// Assemble builds the serialized form embedding the given access key.
	// Fails with INCOMPLETE_DOCUMENT when a family-required field is
	// missing; required business fields are never silently defaulted.
	Assemble(doc *fiscal.FiscalDocument, accessKey string) (*fiscal.SerializedDocument, error)
}

// Signer produces the XML digital signature block. Real cryptographic
// signing is out of scope; NullSigner emits an empty placeholder element.
type Signer interface {
	Sign(referenceID string, content []byte) (string, error)
}

// NullSigner is the stub signature seam
type NullSigner struct{}

// Sign returns an empty signature value
func (NullSigner) Sign(string, []byte) (string, error) {
	return "", nil
}

// Registry selects the assembler for a document family
type Registry struct {
	assemblers map[fiscal.DocumentType]Assembler
}

// NewRegistry creates an empty assembler registry
func NewRegistry() *Registry {
	return &Registry{assemblers: make(map[fiscal.DocumentType]Assembler)}
}

// Register adds an assembler for its document family
func (r *Registry) Register(a Assembler) {
	r.assemblers[a.DocumentType()] = a
}

// Resolve returns the assembler for a document family
func (r *Registry) Resolve(docType fiscal.DocumentType) (Assembler, error) {
	a, ok := r.assemblers[docType]
	if !ok {
		return nil, shared.NewDomainError("INCOMPLETE_DOCUMENT", fmt.Sprintf("No assembler registered for document type %s", docType))
	}
	return a, nil
}

// NewIncompleteDocument builds the error for a missing required field
func NewIncompleteDocument(field string) *shared.DomainError {
	return shared.NewDomainError("INCOMPLETE_DOCUMENT", fmt.Sprintf("Required field missing: %s", field))
}

// checkDocument enforces the family-independent assembly preconditions
func checkDocument(doc *fiscal.FiscalDocument) error {
	if len(doc.Items) == 0 {
		return NewIncompleteDocument("items")
	}
	if doc.Issuer.TaxID == "" {
		return NewIncompleteDocument("issuer.tax_id")
	}
	if doc.Issuer.LegalName == "" {
		return NewIncompleteDocument("issuer.legal_name")
	}
	if doc.Issuer.StateUF == "" {
		return NewIncompleteDocument("issuer.state_uf")
	}
	sum := decimal.Zero
	for _, it := range doc.Items {
		if strings.TrimSpace(it.Description) == "" {
			return NewIncompleteDocument(fmt.Sprintf("items[%d].description", it.Position))
		}
		sum = sum.Add(it.Total)
	}
	if !sum.Equal(doc.TotalValue.Amount) {
		return shared.NewDomainError("INCOMPLETE_DOCUMENT", "Document total does not match the sum of item totals")
	}
	return nil
}

// currency renders a monetary amount with the fixed two-place precision
func currency(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// quantity renders a quantity with four decimal places
func quantity(d decimal.Decimal) string {
	return d.StringFixed(4)
}

// trimmed applies the only defaulting allowed on text fields
func trimmed(s string) string {
	return strings.TrimSpace(s)
}
