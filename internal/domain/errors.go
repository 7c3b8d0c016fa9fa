package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrEmptyFile           = errors.New("file is empty")
	ErrUploadFailed        = errors.New("bill image upload failed")
)

// Pipeline errors.
var (
	ErrExtractionTimeout      = errors.New("text extraction timed out")
	ErrExtractionFailed       = errors.New("text extraction failed")
	ErrNoTextDetected         = errors.New("no text detected in image")
	ErrParseValidationFailed  = errors.New("structured extraction output failed validation")
	ErrParseIdentifierLeak    = errors.New("line item description may contain a personal identifier")
	ErrNarrativeFailed        = errors.New("narrative generation failed")
	ErrInvalidStateTransition = errors.New("invalid processing state transition")
	ErrAnalysisNotComplete    = errors.New("analysis is not complete")
	ErrAnalysisInProgress     = errors.New("analysis is still in progress")
	ErrInvalidFeedback        = errors.New("invalid feedback")
)

// StageError carries the pipeline stage an unrecoverable failure came from.
// TraceID correlates the user-facing failure with operator logs.
type StageError struct {
	Stage   PipelineStage
	TraceID string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// UserMessage is the text safe to show to the bill owner.
func (e *StageError) UserMessage() string {
	return fmt.Sprintf("analysis failed at %s", e.Stage)
}

// NewStageError wraps err with its originating stage.
func NewStageError(stage PipelineStage, traceID string, err error) *StageError {
	return &StageError{Stage: stage, TraceID: traceID, Err: err}
}
