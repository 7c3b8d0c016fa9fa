package domain

import "fmt"

// ProcessingState tracks where a bill analysis is in the pipeline.
type ProcessingState string

const (
	StateUploading             ProcessingState = "uploading"
	StateExtractingText        ProcessingState = "extracting_text"
	StateParsing               ProcessingState = "parsing"
	StateAnalyzing             ProcessingState = "analyzing"
	StateGeneratingExplanation ProcessingState = "generating_explanation"
	StateComplete              ProcessingState = "complete"
	StateError                 ProcessingState = "error"
)

// stateTransitions lists the forward edge out of each non-terminal state.
// StateError is reachable from every non-terminal state and is handled separately.
var stateTransitions = map[ProcessingState]ProcessingState{
	StateUploading:             StateExtractingText,
	StateExtractingText:        StateParsing,
	StateParsing:               StateAnalyzing,
	StateAnalyzing:             StateGeneratingExplanation,
	StateGeneratingExplanation: StateComplete,
}

// IsTerminal reports whether no further transitions are allowed.
func (s ProcessingState) IsTerminal() bool {
	return s == StateComplete || s == StateError
}

// Valid reports whether s is a known state.
func (s ProcessingState) Valid() bool {
	_, ok := stateTransitions[s]
	return ok || s.IsTerminal()
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ProcessingState) CanTransitionTo(next ProcessingState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateError {
		return true
	}
	return stateTransitions[s] == next
}

// ValidateTransition returns ErrInvalidStateTransition when s cannot move to next.
func (s ProcessingState) ValidateTransition(next ProcessingState) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s, next)
	}
	return nil
}

// PipelineStage names the stage a failure originated from.
type PipelineStage string

const (
	StageUpload         PipelineStage = "upload"
	StageTextExtraction PipelineStage = "text_extraction"
	StageParsing        PipelineStage = "parsing"
	StagePricing        PipelineStage = "pricing"
	StageNarrative      PipelineStage = "narrative"
	StagePersistence    PipelineStage = "persistence"
)
