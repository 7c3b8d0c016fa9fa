package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"billscope/internal/domain"
	"billscope/internal/handler"
	"billscope/internal/middleware"
	"billscope/internal/service"
	"billscope/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newRouter mounts the analysis routes behind a stub that injects userID.
func newRouter(h *handler.AnalysisHandler, userID uuid.UUID) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(middleware.ContextKeyUserID, userID)
		}
		c.Next()
	})
	r.POST("/analyses", h.Analyze)
	r.GET("/analyses", h.List)
	r.GET("/analyses/:id", h.Get)
	r.PUT("/analyses/:id/feedback", h.SubmitFeedback)
	r.PUT("/analyses/:id/interaction", h.RecordInteraction)
	r.DELETE("/analyses/:id", h.Delete)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("file", "bill.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAnalysisHandler_Analyze_Success(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	userID := uuid.New()
	billID := uuid.New()
	svc.On("Analyze", mock.Anything, mock.MatchedBy(func(in service.AnalyzeInput) bool {
		return in.UserID == userID && in.LocationHint == "Austin, TX" &&
			string(in.ImageBytes) == "png-bytes" && in.FileName == "bill.png" && in.TraceID != ""
	})).Return(&service.AnalyzeResult{BillID: billID, State: domain.StateComplete}, nil)

	body, ct := multipartBody(t, map[string]string{"location": "Austin, TX"}, []byte("png-bytes"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyses", body)
	req.Header.Set("Content-Type", ct)
	newRouter(handler.NewAnalysisHandler(svc, 1<<20, nil), userID).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["success"])
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, billID.String(), data["bill_id"])
	assert.Equal(t, "complete", data["state"])
	svc.AssertExpectations(t)
}

func TestAnalysisHandler_Analyze_StageFailure(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	billID := uuid.New()
	stageErr := domain.NewStageError(domain.StageParsing, "trace-9", domain.ErrParseValidationFailed)
	svc.On("Analyze", mock.Anything, mock.Anything).
		Return(&service.AnalyzeResult{BillID: billID, State: domain.StateError}, stageErr)

	body, ct := multipartBody(t, nil, []byte("png-bytes"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyses", body)
	req.Header.Set("Content-Type", ct)
	newRouter(handler.NewAnalysisHandler(svc, 1<<20, nil), uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	errBody := resp["error"].(map[string]interface{})
	assert.Equal(t, "ANALYSIS_FAILED", errBody["code"])
	assert.Equal(t, "analysis failed at parsing", errBody["message"])
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, billID.String(), data["bill_id"])
	assert.Equal(t, "trace-9", data["trace_id"])
	assert.NotContains(t, w.Body.String(), "validation")
}

func TestAnalysisHandler_Analyze_MissingFile(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	body, ct := multipartBody(t, map[string]string{"location": "x"}, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyses", body)
	req.Header.Set("Content-Type", ct)
	newRouter(handler.NewAnalysisHandler(svc, 1<<20, nil), uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestAnalysisHandler_Analyze_TooLarge(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	body, ct := multipartBody(t, nil, bytes.Repeat([]byte("a"), 2048))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyses", body)
	req.Header.Set("Content-Type", ct)
	newRouter(handler.NewAnalysisHandler(svc, 1024, nil), uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	svc.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestAnalysisHandler_Analyze_Unauthenticated(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	body, ct := multipartBody(t, nil, []byte("png"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyses", body)
	req.Header.Set("Content-Type", ct)
	newRouter(handler.NewAnalysisHandler(svc, 1<<20, nil), uuid.Nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAnalysisHandler_List(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	userID := uuid.New()
	svc.On("List", mock.Anything, userID, 5).Return(&service.ListResult{
		Analyses:     []domain.BillAnalysis{{ID: uuid.New(), UserID: userID}},
		TotalSavings: 125.5,
	}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/analyses?limit=5", http.NoBody)
	newRouter(handler.NewAnalysisHandler(svc, 0, nil), userID).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	meta := resp["meta"].(map[string]interface{})
	assert.Equal(t, 125.5, meta["total_savings"])
	assert.Equal(t, float64(1), meta["count"])
	assert.Len(t, resp["data"], 1)
}

func TestAnalysisHandler_Get_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"internal", errors.New("db exploded"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.MockAnalysisService)
			id := uuid.New()
			svc.On("Get", mock.Anything, id, mock.Anything).Return(nil, tt.err)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/analyses/"+id.String(), http.NoBody)
			newRouter(handler.NewAnalysisHandler(svc, 0, nil), uuid.New()).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["error"].(map[string]interface{})["code"])
			assert.NotContains(t, w.Body.String(), "exploded")
		})
	}
}

func TestAnalysisHandler_Get_InvalidID(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/analyses/not-a-uuid", http.NoBody)
	newRouter(handler.NewAnalysisHandler(new(mocks.MockAnalysisService), 0, nil), uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalysisHandler_SubmitFeedback(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	userID := uuid.New()
	id := uuid.New()
	final := 300.0
	svc.On("SubmitFeedback", mock.Anything, id, userID, service.FeedbackInput{
		Attempted: true, Successful: true, FinalAmount: &final,
	}).Return(&domain.BillAnalysis{ID: id}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/analyses/"+id.String()+"/feedback",
		strings.NewReader(`{"attempted":true,"successful":true,"final_amount":300}`))
	req.Header.Set("Content-Type", "application/json")
	newRouter(handler.NewAnalysisHandler(svc, 0, nil), userID).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestAnalysisHandler_SubmitFeedback_Duplicate(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	id := uuid.New()
	svc.On("SubmitFeedback", mock.Anything, id, mock.Anything, mock.Anything).
		Return(nil, errors.Join(domain.ErrInvalidFeedback, errors.New("feedback already submitted")))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/analyses/"+id.String()+"/feedback",
		strings.NewReader(`{"attempted":true}`))
	req.Header.Set("Content-Type", "application/json")
	newRouter(handler.NewAnalysisHandler(svc, 0, nil), uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FEEDBACK", decode(t, w)["error"].(map[string]interface{})["code"])
}

func TestAnalysisHandler_SubmitFeedback_BadJSON(t *testing.T) {
	id := uuid.New()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/analyses/"+id.String()+"/feedback", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	newRouter(handler.NewAnalysisHandler(new(mocks.MockAnalysisService), 0, nil), uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalysisHandler_RecordInteraction(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	userID := uuid.New()
	id := uuid.New()
	svc.On("RecordInteraction", mock.Anything, id, userID, service.InteractionInput{ScriptCopied: true}).
		Return(&domain.BillAnalysis{ID: id}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/analyses/"+id.String()+"/interaction",
		strings.NewReader(`{"script_copied":true}`))
	req.Header.Set("Content-Type", "application/json")
	newRouter(handler.NewAnalysisHandler(svc, 0, nil), userID).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestAnalysisHandler_Delete(t *testing.T) {
	svc := new(mocks.MockAnalysisService)
	userID := uuid.New()
	id := uuid.New()
	svc.On("Delete", mock.Anything, id, userID).Return(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/analyses/"+id.String(), http.NoBody)
	newRouter(handler.NewAnalysisHandler(svc, 0, nil), userID).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrEmptyFile, http.StatusBadRequest, "EMPTY_FILE"},
		{domain.ErrUnsupportedFileType, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE"},
		{domain.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{domain.ErrUploadFailed, http.StatusBadGateway, "UPLOAD_FAILED"},
		{domain.ErrAnalysisNotComplete, http.StatusConflict, "ANALYSIS_NOT_COMPLETE"},
		{domain.ErrAnalysisInProgress, http.StatusConflict, "ANALYSIS_IN_PROGRESS"},
		{domain.ErrInvalidStateTransition, http.StatusConflict, "INVALID_STATE"},
		{domain.NewStageError(domain.StageTextExtraction, "t", domain.ErrExtractionTimeout), http.StatusUnprocessableEntity, "ANALYSIS_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code, _ := handler.MapDomainError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name   string
		checks map[string]handler.Pinger
		status int
	}{
		{"all up", map[string]handler.Pinger{"database": ok}, http.StatusOK},
		{"db down", map[string]handler.Pinger{"database": down}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.checks)
			r := gin.New()
			r.GET("/readyz", h.Readiness)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))

			assert.Equal(t, tt.status, w.Code)
		})
	}
}
