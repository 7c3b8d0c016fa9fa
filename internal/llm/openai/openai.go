package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"billscope/internal/config"
	"billscope/internal/llm"
	"billscope/internal/port"
)

const (
	apiURL = "https://api.openai.com/v1/chat/completions"

	defaultMaxTokens = 4096
)

// Completer implements port.Completer using the OpenAI Chat Completions API.
type Completer struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewCompleter creates an OpenAI completer from a provider config.
func NewCompleter(cfg *config.LLMProviderConfig) *Completer {
	return newCompleter(cfg, apiURL)
}

// NewCompleterWithEndpoint creates a completer pointing at a custom API endpoint (for testing).
func NewCompleterWithEndpoint(cfg *config.LLMProviderConfig, endpoint string) *Completer {
	return newCompleter(cfg, endpoint)
}

func newCompleter(cfg *config.LLMProviderConfig, endpoint string) *Completer {
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-4o"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Completer{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *Completer) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	messages := make([]map[string]interface{}, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]interface{}{"role": "user", "content": req.Prompt})

	reqBody := map[string]interface{}{
		"model":                 c.model,
		"max_completion_tokens": maxTokens,
		"messages":              messages,
	}
	if req.JSONOutput {
		reqBody["response_format"] = map[string]interface{}{"type": "json_object"}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling openai API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, llm.Truncate(string(respBody), 500))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := llm.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, llm.NewRateLimitError("openai", baseErr, retryAfter)
		}
		return nil, baseErr
	}

	return parseResponse(respBody, c.model)
}

// chatResponse models the OpenAI Chat Completions API response.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func parseResponse(body []byte, model string) (*port.CompletionResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API: no choices")
	}
	if resp.Choices[0].FinishReason == "length" {
		return nil, fmt.Errorf("output truncated (finish_reason: length)")
	}
	if resp.Model != "" {
		model = resp.Model
	}
	return &port.CompletionResponse{Text: resp.Choices[0].Message.Content, Model: model}, nil
}
