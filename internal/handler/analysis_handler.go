package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"billscope/internal/domain"
	"billscope/internal/middleware"
	"billscope/internal/service"
)

// AnalysisHandler handles bill analysis endpoints.
type AnalysisHandler struct {
	svc      service.AnalysisService
	maxBytes int64
	logger   *zap.Logger
}

// NewAnalysisHandler creates a new AnalysisHandler. maxBytes bounds how much
// of an upload is read before the service rejects it as too large.
func NewAnalysisHandler(svc service.AnalysisService, maxBytes int64, logger *zap.Logger) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandler{svc: svc, maxBytes: maxBytes, logger: logger}
}

// Analyze handles POST /api/v1/analyses
// @Summary Analyze a medical bill
// @Description Upload a bill image or PDF. The bill is read, itemized, priced against benchmarks and explained.
// @Tags analyses
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Bill image (PDF, JPG, PNG or WEBP)"
// @Param location formData string false "City, metro or state used for regional pricing"
// @Param extracted_text formData string false "Bill text already extracted on the device; skips OCR"
// @Success 201 {object} Response{data=AnalyzeResponse}
// @Failure 400 {object} ErrorResponseBody "Missing, empty or unsupported file"
// @Failure 401 {object} ErrorResponseBody "Unauthorized"
// @Failure 413 {object} ErrorResponseBody "File too large"
// @Failure 422 {object} AnalysisFailedResponse "Pipeline failed"
// @Failure 502 {object} ErrorResponseBody "Storage upload failed"
// @Security BearerAuth
// @Router /analyses [post]
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	if h.maxBytes > 0 && header.Size > h.maxBytes {
		HandleError(c, h.logger, domain.ErrFileTooLarge)
		return
	}
	reader := io.Reader(file)
	if h.maxBytes > 0 {
		reader = io.LimitReader(file, h.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_FILE", "could not read uploaded file")
		return
	}

	traceID := middleware.GetRequestID(c)
	result, err := h.svc.Analyze(c.Request.Context(), service.AnalyzeInput{
		UserID:        userID,
		ImageBytes:    data,
		ContentType:   header.Header.Get("Content-Type"),
		FileName:      header.Filename,
		LocationHint:  c.PostForm("location"),
		ExtractedText: c.PostForm("extracted_text"),
		TraceID:       traceID,
	})
	if err != nil {
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) && result != nil {
			c.JSON(http.StatusUnprocessableEntity, APIResponse{
				Success: false,
				Data:    FailedRef{BillID: result.BillID, TraceID: stageErr.TraceID},
				Error:   &APIError{Code: "ANALYSIS_FAILED", Message: stageErr.UserMessage()},
			})
			return
		}
		HandleError(c, h.logger, err)
		return
	}

	RespondCreated(c, result)
}

// List handles GET /api/v1/analyses
// @Summary List the caller's analyses
// @Description Newest first. Meta carries the savings realized across the returned analyses.
// @Tags analyses
// @Produce json
// @Param limit query int false "Page size (default 20, max 100)"
// @Success 200 {object} Response{data=[]domain.BillAnalysis,meta=ListMeta}
// @Failure 401 {object} ErrorResponseBody "Unauthorized"
// @Security BearerAuth
// @Router /analyses [get]
func (h *AnalysisHandler) List(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	res, err := h.svc.List(c.Request.Context(), userID, limit)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	RespondWithMeta(c, res.Analyses, ListMeta{
		Count:        len(res.Analyses),
		Limit:        limit,
		TotalSavings: res.TotalSavings,
	})
}

// Get handles GET /api/v1/analyses/:id
// @Summary Get an analysis
// @Tags analyses
// @Produce json
// @Param id path string true "Analysis ID"
// @Success 200 {object} Response{data=domain.BillAnalysis}
// @Failure 403 {object} ErrorResponseBody "Not the owner"
// @Failure 404 {object} ErrorResponseBody "Not found"
// @Security BearerAuth
// @Router /analyses/{id} [get]
func (h *AnalysisHandler) Get(c *gin.Context) {
	userID, billID, ok := h.ids(c)
	if !ok {
		return
	}
	bill, err := h.svc.Get(c.Request.Context(), billID, userID)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	RespondOK(c, bill)
}

// SubmitFeedback handles PUT /api/v1/analyses/:id/feedback
// @Summary Report a negotiation outcome
// @Tags analyses
// @Accept json
// @Produce json
// @Param id path string true "Analysis ID"
// @Param body body FeedbackRequest true "Outcome"
// @Success 200 {object} Response{data=domain.BillAnalysis}
// @Failure 400 {object} ErrorResponseBody "Invalid or duplicate feedback"
// @Failure 409 {object} ErrorResponseBody "Analysis not complete"
// @Security BearerAuth
// @Router /analyses/{id}/feedback [put]
func (h *AnalysisHandler) SubmitFeedback(c *gin.Context) {
	userID, billID, ok := h.ids(c)
	if !ok {
		return
	}
	var req service.FeedbackInput
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	bill, err := h.svc.SubmitFeedback(c.Request.Context(), billID, userID, req)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	RespondOK(c, bill)
}

// RecordInteraction handles PUT /api/v1/analyses/:id/interaction
// @Summary Track how the analysis was used
// @Tags analyses
// @Accept json
// @Produce json
// @Param id path string true "Analysis ID"
// @Param body body InteractionRequest true "Flags to set"
// @Success 200 {object} Response{data=domain.BillAnalysis}
// @Security BearerAuth
// @Router /analyses/{id}/interaction [put]
func (h *AnalysisHandler) RecordInteraction(c *gin.Context) {
	userID, billID, ok := h.ids(c)
	if !ok {
		return
	}
	var req service.InteractionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	bill, err := h.svc.RecordInteraction(c.Request.Context(), billID, userID, req)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	RespondOK(c, bill)
}

// Delete handles DELETE /api/v1/analyses/:id
// @Summary Delete an analysis and its image
// @Tags analyses
// @Produce json
// @Param id path string true "Analysis ID"
// @Success 200 {object} Response{data=MessageResponse}
// @Failure 404 {object} ErrorResponseBody "Not found"
// @Failure 409 {object} ErrorResponseBody "Analysis still in progress"
// @Security BearerAuth
// @Router /analyses/{id} [delete]
func (h *AnalysisHandler) Delete(c *gin.Context) {
	userID, billID, ok := h.ids(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), billID, userID); err != nil {
		HandleError(c, h.logger, err)
		return
	}
	RespondOK(c, MessageResponse{Message: "analysis deleted"})
}

func (h *AnalysisHandler) userID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *AnalysisHandler) ids(c *gin.Context) (userID, billID uuid.UUID, ok bool) {
	userID, ok = h.userID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	billID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid analysis ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, billID, true
}
