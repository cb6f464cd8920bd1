package handler

import (
	"mime"
	"net/http"

	"github.com/flexidesk/backend/internal/application/exports"
	"github.com/flexidesk/backend/internal/infrastructure/export"
	"github.com/flexidesk/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Export response headers
const (
	HeaderTruncated  = "X-Result-Truncated"
	HeaderArchiveKey = "X-Export-Archive-Key"
)

// sendDocument streams a rendered export as an attachment.
func sendDocument(c *gin.Context, doc *export.Document) {
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	if doc.Truncated {
		c.Header(HeaderTruncated, "true")
	}
	if doc.ArchiveKey != "" {
		c.Header(HeaderArchiveKey, doc.ArchiveKey)
	}
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

// ExportHandler serves archived exports.
type ExportHandler struct {
	BaseHandler
	publisher *exports.Publisher
}

// NewExportHandler creates a new export handler
func NewExportHandler(publisher *exports.Publisher) *ExportHandler {
	return &ExportHandler{publisher: publisher}
}

// DownloadURL returns a presigned link for an archived export.
// GET /api/v1/flexi/exports/url?key=
func (h *ExportHandler) DownloadURL(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "key is required")
		return
	}
	url, err := h.publisher.DownloadURL(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, url)
}
