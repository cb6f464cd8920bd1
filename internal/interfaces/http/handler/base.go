// Package handler exposes the reconciliation console over HTTP.
package handler

import (
	"errors"
	"net/http"

	"github.com/flexidesk/backend/internal/domain/shared"
	"github.com/flexidesk/backend/internal/infrastructure/flexi"
	"github.com/flexidesk/backend/internal/infrastructure/logger"
	"github.com/flexidesk/backend/internal/infrastructure/storage"
	"github.com/flexidesk/backend/internal/interfaces/http/dto"
	"github.com/flexidesk/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, meta dto.Meta) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, meta))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// HandleError converts service errors to HTTP responses.
//
//	flexi.GatewayError   -> upstream status, ERR_UPSTREAM with status and details
//	flexi.NotFoundError  -> 404 ERR_NOT_FOUND
//	flexi.TransportError -> 500 ERR_UPSTREAM_UNAVAILABLE
//	shared.DomainError   -> mapped through dto.NormalizeErrorCode
//
// Anything else is logged and answered with a generic 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	requestID := middleware.GetRequestID(c)

	var (
		gwErr        *flexi.GatewayError
		notFoundErr  *flexi.NotFoundError
		transportErr *flexi.TransportError
		domainErr    *shared.DomainError
		fieldErrs    validator.ValidationErrors
	)

	switch {
	case errors.As(err, &gwErr):
		status := gwErr.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		resp := dto.NewErrorResponse(dto.ErrCodeUpstream, gwErr.Error(), requestID)
		resp.Status = gwErr.Status
		resp.Details = gwErr.Details
		logger.FromGin(c).Warn("Flexi request failed",
			zap.Int("upstream_status", gwErr.Status),
			zap.String("url", gwErr.URL),
		)
		c.JSON(status, resp)

	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, notFoundErr.Error(), requestID))

	case errors.As(err, &transportErr):
		logger.FromGin(c).Error("Flexi server unreachable", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeUpstreamUnavailable, err.Error(), requestID))

	case errors.Is(err, flexi.ErrInvalidLimit), errors.Is(err, storage.ErrInvalidKey):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeValidation, err.Error(), requestID))

	case errors.Is(err, storage.ErrArchiveDisabled):
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeArchiveDisabled, err.Error(), requestID))

	case errors.As(err, &fieldErrs):
		middleware.HandleValidationError(c, err)

	case errors.As(err, &domainErr):
		code := dto.NormalizeErrorCode(domainErr.Code)
		if code == dto.ErrCodeInternal {
			logger.FromGin(c).Error("Unmapped domain error", zap.Error(err))
		}
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, domainErr.Message, requestID))

	default:
		logger.FromGin(c).Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, "An internal error occurred", requestID))
	}
}

// bindJSON binds the request body and writes the error response on failure.
func (h *BaseHandler) bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var (
		maxErr    *http.MaxBytesError
		fieldErrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &maxErr):
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
	case errors.As(err, &fieldErrs):
		middleware.HandleValidationError(c, err)
	default:
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid JSON body")
	}
	return false
}

// readBody returns the raw request body.
func (h *BaseHandler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
			return nil, false
		}
		h.BadRequest(c, "Failed to read request body")
		return nil, false
	}
	return body, true
}
