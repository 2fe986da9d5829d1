package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appfiscal "github.com/emissor/backend/internal/application/fiscal"
	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/shared"
	"github.com/emissor/backend/internal/interfaces/http/dto"
	"github.com/emissor/backend/internal/interfaces/http/middleware"
)

// FiscalDocumentHandler exposes the emission lifecycle over HTTP. Status
// mutation happens only through the application service.
type FiscalDocumentHandler struct {
	BaseHandler
	service *appfiscal.DocumentService
}

// NewFiscalDocumentHandler creates the handler
func NewFiscalDocumentHandler(service *appfiscal.DocumentService, logger *zap.Logger) *FiscalDocumentHandler {
	return &FiscalDocumentHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// Create handles POST /fiscal/documents
func (h *FiscalDocumentHandler) Create(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	cmd := appfiscal.CreateDocumentCommand{
		CompanyID:            companyID(c),
		DocumentType:         fiscal.DocumentType(req.DocumentType),
		Series:               req.Series,
		OperationNature:      req.OperationNature,
		Issuer:               toPartyInput(&req.Issuer),
		Counterparty:         toPartyInput(req.Counterparty),
		Items:                toItemInputs(req.Items),
		TotalValue:           req.TotalValue,
		CarrierName:          req.CarrierName,
		CarrierTaxID:         req.CarrierTaxID,
		MunicipalServiceCode: req.MunicipalServiceCode,
		ServiceCityCode:      req.ServiceCityCode,
		RPSNumber:            req.RPSNumber,
	}
	if req.IssueDate != nil {
		cmd.IssueDate = *req.IssueDate
	}

	doc, err := h.service.Create(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDocument(doc))
}

// List handles GET /fiscal/documents
func (h *FiscalDocumentHandler) List(c *gin.Context) {
	var query dto.ListDocumentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	filter := shared.DefaultFilter()
	filter.Page = query.Page
	filter.PageSize = query.PageSize
	filter.Search = query.Search
	filter.Filters["status"] = query.Status
	filter.Filters["document_type"] = query.DocumentType

	page, err := h.service.List(c.Request.Context(), companyID(c), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OKWithMeta(c, dto.FromDocuments(page.Items), dto.Meta{
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	})
}

// Get handles GET /fiscal/documents/:id
func (h *FiscalDocumentHandler) Get(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), companyID(c), id)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// Update handles PUT /fiscal/documents/:id
func (h *FiscalDocumentHandler) Update(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	doc, err := h.service.Update(c.Request.Context(), appfiscal.UpdateDocumentCommand{
		CompanyID:       companyID(c),
		DocumentID:      id,
		OperationNature: req.OperationNature,
		Counterparty:    toPartyInput(req.Counterparty),
		Items:           toItemInputs(req.Items),
		TotalValue:      req.TotalValue,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// Emit handles POST /fiscal/documents/:id/emit
func (h *FiscalDocumentHandler) Emit(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	doc, err := h.service.Emit(c.Request.Context(), companyID(c), id)
	if err != nil && !appfiscal.IsUnavailable(err) {
		h.Error(c, err)
		return
	}
	if appfiscal.IsUnavailable(err) {
		// The document rolled back to draft; surface the transient error
		// together with the safe state to retry from
		c.JSON(dto.HTTPStatusForCode("AUTHORITY_UNAVAILABLE"), dto.Response{
			Success: false,
			Data:    dto.FromDocument(doc),
			Error:   &dto.ErrorInfo{Code: "AUTHORITY_UNAVAILABLE", Message: "Tax authority webservice is unavailable"},
		})
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// Cancel handles POST /fiscal/documents/:id/cancel
func (h *FiscalDocumentHandler) Cancel(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	var req dto.JustificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	doc, err := h.service.Cancel(c.Request.Context(), companyID(c), id, req.Justification)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// Disagreement handles POST /fiscal/documents/:id/disagreement
func (h *FiscalDocumentHandler) Disagreement(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	var req dto.JustificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	doc, err := h.service.FileDisagreement(c.Request.Context(), companyID(c), id, req.Justification)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// Reconcile handles POST /fiscal/documents/:id/reconcile
func (h *FiscalDocumentHandler) Reconcile(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	doc, err := h.service.Reconcile(c.Request.Context(), companyID(c), id)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// Events handles GET /fiscal/documents/:id/events
func (h *FiscalDocumentHandler) Events(c *gin.Context) {
	id, ok := h.documentID(c)
	if !ok {
		return
	}
	events, err := h.service.Events(c.Request.Context(), companyID(c), id)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLifecycleEvents(events))
}

// VerifyAccessKey handles GET /fiscal/access-keys/:key
func (h *FiscalDocumentHandler) VerifyAccessKey(c *gin.Context) {
	key := c.Param("key")
	valid, doc := h.service.VerifyAccessKey(c.Request.Context(), key)
	resp := dto.AccessKeyResponse{AccessKey: key, Valid: valid}
	if doc != nil && doc.CompanyID == companyID(c) {
		resp.DocumentID = doc.ID.String()
		resp.Status = doc.Status.String()
	}
	h.OK(c, resp)
}

func (h *FiscalDocumentHandler) documentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid document ID")
		return uuid.Nil, false
	}
	return id, true
}

func companyID(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextCompanyID).(uuid.UUID)
}

func toPartyInput(req *dto.PartyRequest) appfiscal.PartyInput {
	if req == nil {
		return appfiscal.PartyInput{}
	}
	return appfiscal.PartyInput{
		TaxID:     req.TaxID,
		LegalName: req.LegalName,
		StateUF:   req.StateUF,
		Street:    req.Street,
		Number:    req.Number,
		District:  req.District,
		City:      req.City,
		CityCode:  req.CityCode,
		ZipCode:   req.ZipCode,
	}
}

func toItemInputs(items []dto.ItemRequest) []appfiscal.ItemInput {
	out := make([]appfiscal.ItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, appfiscal.ItemInput{
			ItemCode:    it.ItemCode,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
			CFOP:        it.CFOP,
			ServiceCode: it.ServiceCode,
		})
	}
	return out
}
