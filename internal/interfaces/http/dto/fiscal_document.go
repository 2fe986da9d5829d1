package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/emissor/backend/internal/domain/fiscal"
)

// PartyRequest carries one document party
type PartyRequest struct {
	TaxID     string `json:"tax_id" binding:"required,taxid"`
	LegalName string `json:"legal_name" binding:"required"`
	StateUF   string `json:"state_uf" binding:"omitempty,len=2"`
	Street    string `json:"street"`
	Number    string `json:"number"`
	District  string `json:"district"`
	City      string `json:"city"`
	CityCode  string `json:"city_code"`
	ZipCode   string `json:"zip_code"`
}

// ItemRequest carries one document line
type ItemRequest struct {
	ItemCode    string          `json:"item_code"`
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
	Total       decimal.Decimal `json:"total" binding:"required"`
	CFOP        string          `json:"cfop"`
	ServiceCode string          `json:"service_code"`
}

// CreateDocumentRequest creates a draft document
type CreateDocumentRequest struct {
	DocumentType    string          `json:"document_type" binding:"required,oneof=NFE NFCE CTE NFSE"`
	Series          int             `json:"series" binding:"required,min=1"`
	IssueDate       *time.Time      `json:"issue_date"`
	OperationNature string          `json:"operation_nature"`
	Issuer          PartyRequest    `json:"issuer" binding:"required"`
	Counterparty    *PartyRequest   `json:"counterparty"`
	Items           []ItemRequest   `json:"items" binding:"required,min=1,dive"`
	TotalValue      decimal.Decimal `json:"total_value" binding:"required"`

	CarrierName  string `json:"carrier_name"`
	CarrierTaxID string `json:"carrier_tax_id"`

	MunicipalServiceCode string `json:"municipal_service_code"`
	ServiceCityCode      string `json:"service_city_code"`
	RPSNumber            int64  `json:"rps_number"`
}

// UpdateDocumentRequest edits a draft document
type UpdateDocumentRequest struct {
	OperationNature string          `json:"operation_nature"`
	Counterparty    *PartyRequest   `json:"counterparty"`
	Items           []ItemRequest   `json:"items" binding:"required,min=1,dive"`
	TotalValue      decimal.Decimal `json:"total_value" binding:"required"`
}

// JustificationRequest carries the justification for cancellation and
// disagreement filings
type JustificationRequest struct {
	Justification string `json:"justification" binding:"required,min=15"`
}

// ListDocumentsQuery filters the document listing
type ListDocumentsQuery struct {
	Status       string `form:"status" binding:"omitempty,oneof=DRAFT SUBMITTING AUTHORIZED REJECTED CANCELLING CANCELLED"`
	DocumentType string `form:"document_type" binding:"omitempty,oneof=NFE NFCE CTE NFSE"`
	Search       string `form:"search"`
	Page         int    `form:"page,default=1" binding:"omitempty,min=1"`
	PageSize     int    `form:"page_size,default=20" binding:"omitempty,min=1,max=100"`
}

// PartyResponse is the API shape of a party
type PartyResponse struct {
	TaxID     string `json:"tax_id"`
	LegalName string `json:"legal_name"`
	StateUF   string `json:"state_uf"`
	City      string `json:"city,omitempty"`
}

// ItemResponse is the API shape of a document line
type ItemResponse struct {
	Position    int             `json:"position"`
	ItemCode    string          `json:"item_code,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	CFOP        string          `json:"cfop,omitempty"`
	ServiceCode string          `json:"service_code,omitempty"`
}

// DocumentResponse is the API shape of a fiscal document
type DocumentResponse struct {
	ID                  string          `json:"id"`
	DocumentType        string          `json:"document_type"`
	Series              int             `json:"series"`
	Number              int64           `json:"number"`
	IssueDate           time.Time       `json:"issue_date"`
	OperationNature     string          `json:"operation_nature,omitempty"`
	Issuer              PartyResponse   `json:"issuer"`
	Counterparty        *PartyResponse  `json:"counterparty,omitempty"`
	Items               []ItemResponse  `json:"items"`
	TotalValue          decimal.Decimal `json:"total_value"`
	Currency            string          `json:"currency"`
	Status              string          `json:"status"`
	AccessKey           string          `json:"access_key,omitempty"`
	AuthorityProtocol   string          `json:"authority_protocol,omitempty"`
	RejectionReason     string          `json:"rejection_reason,omitempty"`
	CancelJustification string          `json:"cancel_justification,omitempty"`
	SubmittedAt         *time.Time      `json:"submitted_at,omitempty"`
	AuthorizedAt        *time.Time      `json:"authorized_at,omitempty"`
	CancelledAt         *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// LifecycleEventResponse is the API shape of one audit record
type LifecycleEventResponse struct {
	ID               string    `json:"id"`
	PreviousStatus   string    `json:"previous_status"`
	NewStatus        string    `json:"new_status"`
	AuthorityPayload string    `json:"authority_payload,omitempty"`
	OperatorNote     string    `json:"operator_note,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// AccessKeyResponse is the API shape of a key verification
type AccessKeyResponse struct {
	AccessKey  string `json:"access_key"`
	Valid      bool   `json:"valid"`
	DocumentID string `json:"document_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// FromDocument maps the aggregate to its API shape
func FromDocument(doc *fiscal.FiscalDocument) DocumentResponse {
	resp := DocumentResponse{
		ID:                  doc.ID.String(),
		DocumentType:        doc.DocumentType.String(),
		Series:              doc.Series,
		Number:              doc.Number,
		IssueDate:           doc.IssueDate,
		OperationNature:     doc.OperationNature,
		Issuer:              fromParty(doc.Issuer),
		TotalValue:          doc.TotalValue.Amount,
		Currency:            doc.TotalValue.Currency,
		Status:              doc.Status.String(),
		AccessKey:           doc.AccessKey,
		AuthorityProtocol:   doc.AuthorityProtocol,
		RejectionReason:     doc.RejectionReason,
		CancelJustification: doc.CancelJustification,
		SubmittedAt:         doc.SubmittedAt,
		AuthorizedAt:        doc.AuthorizedAt,
		CancelledAt:         doc.CancelledAt,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}
	if doc.Counterparty.TaxID != "" || doc.Counterparty.LegalName != "" {
		cp := fromParty(doc.Counterparty)
		resp.Counterparty = &cp
	}
	for _, it := range doc.Items {
		resp.Items = append(resp.Items, ItemResponse{
			Position:    it.Position,
			ItemCode:    it.ItemCode,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
			CFOP:        it.CFOP,
			ServiceCode: it.ServiceCode,
		})
	}
	return resp
}

// FromDocuments maps a slice of aggregates
func FromDocuments(docs []fiscal.FiscalDocument) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, FromDocument(&docs[i]))
	}
	return out
}

// FromLifecycleEvents maps the audit trail
func FromLifecycleEvents(events []fiscal.LifecycleEvent) []LifecycleEventResponse {
	out := make([]LifecycleEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, LifecycleEventResponse{
			ID:               e.ID.String(),
			PreviousStatus:   e.PreviousStatus.String(),
			NewStatus:        e.NewStatus.String(),
			AuthorityPayload: e.AuthorityPayload,
			OperatorNote:     e.OperatorNote,
			CreatedAt:        e.CreatedAt,
		})
	}
	return out
}

func fromParty(p fiscal.Party) PartyResponse {
	return PartyResponse{
		TaxID:     p.TaxID,
		LegalName: p.LegalName,
		StateUF:   p.StateUF,
		City:      p.Address.City,
	}
}
