package handler

import (
	"net/http"
	"strconv"

	"github.com/flexidesk/backend/internal/application/evidence"
	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// EvidenceHandler proxies generic evidence operations.
type EvidenceHandler struct {
	BaseHandler
	service *evidence.Service
}

// NewEvidenceHandler creates a new evidence handler
func NewEvidenceHandler(service *evidence.Service) *EvidenceHandler {
	return &EvidenceHandler{service: service}
}

// Connection reports whether the Flexi server is reachable. Failures are part
// of the payload, never an error response.
// GET /api/v1/flexi/connection
func (h *EvidenceHandler) Connection(c *gin.Context) {
	h.Success(c, h.service.TestConnection(c.Request.Context()))
}

// Evidences lists the known evidence definitions.
// GET /api/v1/flexi/evidences
func (h *EvidenceHandler) Evidences(c *gin.Context) {
	h.Success(c, h.service.Registry())
}

// List returns rows of an evidence.
// GET /api/v1/flexi/evidence/:evidence?filter=&detail=&limit=&start=&order=
func (h *EvidenceHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	start, err := queryInt(c, "start")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), c.Param("evidence"), evidence.ListQuery{
		Filter: c.Query("filter"),
		Detail: c.Query("detail"),
		Limit:  limit,
		Start:  start,
		Order:  c.Query("order"),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Get returns one record.
// GET /api/v1/flexi/evidence/:evidence/:id?detail=
func (h *EvidenceHandler) Get(c *gin.Context) {
	record, err := h.service.Get(c.Request.Context(), c.Param("evidence"), c.Param("id"), c.Query("detail"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, record)
}

// Sum returns the server-side aggregate.
// GET /api/v1/flexi/evidence/:evidence/sum?filter=
func (h *EvidenceHandler) Sum(c *gin.Context) {
	record, err := h.service.Sum(c.Request.Context(), c.Param("evidence"), c.Query("filter"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, record)
}

// Create posts one record or an array of records.
// POST /api/v1/flexi/evidence/:evidence?dryRun=
func (h *EvidenceHandler) Create(c *gin.Context) {
	dryRun, err := queryBool(c, "dryRun")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	result, err := h.service.Create(c.Request.Context(), c.Param("evidence"), body, dryRun)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Update changes the record named by the id query parameter.
// PUT /api/v1/flexi/evidence/:evidence?id=&dryRun=
func (h *EvidenceHandler) Update(c *gin.Context) {
	dryRun, err := queryBool(c, "dryRun")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	result, err := h.service.Update(c.Request.Context(), c.Param("evidence"), c.Query("id"), body, dryRun)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Delete removes the record named by the id query parameter.
// DELETE /api/v1/flexi/evidence/:evidence?id=
func (h *EvidenceHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("evidence"), c.Query("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.NewValidationError("%s must be an integer", name)
	}
	return v, nil
}

func queryBool(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, shared.NewValidationError("%s must be true or false", name)
	}
	return v, nil
}
