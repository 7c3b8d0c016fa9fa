package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"billscope/internal/domain"
	"billscope/internal/middleware"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListMeta describes a page of analyses.
type ListMeta struct {
	Count        int     `json:"count" example:"3"`
	Limit        int     `json:"limit" example:"20"`
	TotalSavings float64 `json:"total_savings" example:"412.5"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondWithMeta sends a 200 success response with metadata.
func RespondWithMeta(c *gin.Context, data, meta interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	var stageErr *domain.StageError
	switch {
	case errors.As(err, &stageErr):
		return http.StatusUnprocessableEntity, "ANALYSIS_FAILED", stageErr.UserMessage()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "forbidden"
	case errors.Is(err, domain.ErrEmptyFile):
		return http.StatusBadRequest, "EMPTY_FILE", "file is empty"
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "unsupported file type; allowed: pdf, jpg, png, webp"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size"
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusBadGateway, "UPLOAD_FAILED", "bill image upload to storage failed"
	case errors.Is(err, domain.ErrAnalysisInProgress):
		return http.StatusConflict, "ANALYSIS_IN_PROGRESS", "analysis is still in progress"
	case errors.Is(err, domain.ErrAnalysisNotComplete):
		return http.StatusConflict, "ANALYSIS_NOT_COMPLETE", "analysis is not complete"
	case errors.Is(err, domain.ErrInvalidFeedback):
		return http.StatusBadRequest, "INVALID_FEEDBACK", err.Error()
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict, "INVALID_STATE", "analysis was modified concurrently"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, logger *zap.Logger, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		logger.Error("internal error",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	RespondError(c, status, code, msg)
}
