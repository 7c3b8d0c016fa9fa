package handler

import (
	"github.com/google/uuid"

	"billscope/internal/domain"
)

// Swagger type definitions for API documentation.
// These types are used by swag to generate OpenAPI documentation.

// FeedbackRequest represents the negotiation outcome request body.
type FeedbackRequest struct {
	Attempted   bool     `json:"attempted" example:"true"`
	Successful  bool     `json:"successful" example:"true"`
	FinalAmount *float64 `json:"final_amount" example:"450.00"`
	Notes       string   `json:"notes" example:"Billing office accepted a prompt-pay discount"`
}

// InteractionRequest represents the interaction tracking request body.
type InteractionRequest struct {
	Viewed         bool `json:"viewed" example:"true"`
	ScriptCopied   bool `json:"script_copied" example:"false"`
	ProviderCalled bool `json:"provider_called" example:"false"`
}

// AnalyzeResponse represents the result of a completed analysis.
type AnalyzeResponse struct {
	BillID     uuid.UUID              `json:"bill_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	State      domain.ProcessingState `json:"state" example:"complete"`
	Summary    domain.Summary         `json:"summary"`
	DurationMs int64                  `json:"duration_ms" example:"8421"`
	Warnings   []domain.Warning       `json:"warnings"`
}

// AnalysisFailedResponse represents a pipeline failure.
type AnalysisFailedResponse struct {
	Success bool      `json:"success" example:"false"`
	Data    FailedRef `json:"data"`
	Error   *APIError `json:"error"`
}

// FailedRef identifies the errored analysis and its trace id.
type FailedRef struct {
	BillID  uuid.UUID `json:"bill_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	TraceID string    `json:"trace_id" example:"7d1f1c9e-2f7a-4c1e-9a55-0c1b8a3c2d10"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Error  string `json:"error,omitempty" example:"database not reachable"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message" example:"analysis deleted"`
}

// --- Generic Response Wrappers ---

// Response wraps a successful response with data.
type Response struct {
	Success bool        `json:"success" example:"true"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorResponseBody wraps an error response.
type ErrorResponseBody struct {
	Success bool      `json:"success" example:"false"`
	Error   *APIError `json:"error"`
}
