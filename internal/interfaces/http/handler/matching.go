package handler

import (
	"github.com/flexidesk/backend/internal/application/matching"
	"github.com/flexidesk/backend/internal/domain/reconciliation"
	"github.com/flexidesk/backend/internal/infrastructure/export"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MatchingHandler serves payment matching.
type MatchingHandler struct {
	BaseHandler
	service *matching.Service
}

// NewMatchingHandler creates a new matching handler
func NewMatchingHandler(service *matching.Service) *MatchingHandler {
	return &MatchingHandler{service: service}
}

// InvoiceSelectionRequest is one invoice chosen to settle a payment.
type InvoiceSelectionRequest struct {
	InvoiceReference string           `json:"invoiceReference" binding:"required"`
	SourceType       string           `json:"sourceType" binding:"required,source_type"`
	PartialAmount    *decimal.Decimal `json:"partialAmount,omitempty"`
}

// MatchPaymentRequest is the body of POST /flexi/match-payment.
type MatchPaymentRequest struct {
	PaymentID         string                    `json:"paymentId" binding:"required"`
	InvoiceSelections []InvoiceSelectionRequest `json:"invoiceSelections" binding:"required,min=1,dive"`
	RemainderPolicy   string                    `json:"remainderPolicy" binding:"omitempty,remainder_policy"`
}

func (r *MatchPaymentRequest) instruction() reconciliation.MatchInstruction {
	m := reconciliation.MatchInstruction{
		PaymentID:  r.PaymentID,
		Remainder:  reconciliation.RemainderPolicy(r.RemainderPolicy),
		Selections: make([]reconciliation.InvoiceSelection, len(r.InvoiceSelections)),
	}
	for i, s := range r.InvoiceSelections {
		// already checked by the source_type tag
		source, _ := reconciliation.ParseSourceType(s.SourceType)
		m.Selections[i] = reconciliation.InvoiceSelection{
			InvoiceRef:    s.InvoiceReference,
			SourceType:    source,
			PartialAmount: s.PartialAmount,
		}
	}
	return m
}

// MatchPayment settles a bank payment against the selected invoices.
// POST /api/v1/flexi/match-payment
func (h *MatchingHandler) MatchPayment(c *gin.Context) {
	var req MatchPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.service.SubmitMatch(c.Request.Context(), req.instruction())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ExportMatching downloads unmatched payments joined with candidate invoices.
// GET /api/v1/flexi/export-matching?format=
func (h *MatchingHandler) ExportMatching(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	doc, err := h.service.ExportUnmatched(c.Request.Context(), format)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	sendDocument(c, doc)
}

// FindInvoices looks up invoices by variable symbol.
// GET /api/v1/flexi/find-invoices?varSym=&type=vydane|prijate|all
func (h *MatchingHandler) FindInvoices(c *gin.Context) {
	result, err := h.service.FindInvoices(c.Request.Context(), c.Query("varSym"), c.Query("type"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
