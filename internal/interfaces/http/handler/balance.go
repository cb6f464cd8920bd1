package handler

import (
	"strconv"

	"github.com/flexidesk/backend/internal/application/balance"
	"github.com/flexidesk/backend/internal/domain/reconciliation"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/export"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BalanceHandler serves the customer balance report.
type BalanceHandler struct {
	BaseHandler
	service *balance.Service
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(service *balance.Service) *BalanceHandler {
	return &BalanceHandler{service: service}
}

// CustomerBalance returns one page of counterparty balances.
// GET /api/v1/flexi/customer-balance?page=&limit=&filterType=&year=&minSaldo=
func (h *BalanceHandler) CustomerBalance(c *gin.Context) {
	q, err := parseBalanceQuery(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.Compute(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Truncated {
		c.Header(HeaderTruncated, "true")
	}
	h.Success(c, result)
}

// ExportCustomerBalance downloads the filtered balances as CSV or XLSX.
// GET /api/v1/flexi/export-customer-balance?format=
func (h *BalanceHandler) ExportCustomerBalance(c *gin.Context) {
	q, err := parseBalanceQuery(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	doc, err := h.service.Export(c.Request.Context(), q, format)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	sendDocument(c, doc)
}

func parseBalanceQuery(c *gin.Context) (balance.Query, error) {
	var (
		q   balance.Query
		err error
	)
	q.FilterType = reconciliation.FilterType(c.Query("filterType"))
	if q.Page, err = intParam(c, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(c, "limit"); err != nil {
		return q, err
	}
	if q.Year, err = intParam(c, "year"); err != nil {
		return q, err
	}
	if raw := c.Query("minSaldo"); raw != "" {
		minBalance, err := decimal.NewFromString(raw)
		if err != nil {
			return q, shared.NewValidationError("minSaldo must be a number")
		}
		q.MinBalance = &minBalance
	}
	return q, nil
}

// intParam parses an optional integer query parameter. Absent means zero,
// which the services treat as "use the default". An explicit 0 is rejected.
func intParam(c *gin.Context, name string) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.NewValidationError("%s must be an integer", name)
	}
	if v == 0 {
		return 0, shared.NewValidationError("%s must be positive", name)
	}
	return v, nil
}
