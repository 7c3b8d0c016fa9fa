package port

import "context"

// CompletionRequest is a single-turn prompt for a language model.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
	// JSONOutput asks providers that support it to constrain output to a JSON object.
	JSONOutput bool
}

// CompletionResponse is the raw text a language model returned.
type CompletionResponse struct {
	Text  string
	Model string
}

// Completer abstracts a language-model completion API.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
