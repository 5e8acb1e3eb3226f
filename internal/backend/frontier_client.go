package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"persona/internal/errors"
	"persona/internal/logging"
)

var _ Generator = (*frontierClient)(nil)

// frontierClient refines candidates against an OpenAI-compatible chat
// completions endpoint. This is the expensive backend: every call is metered
// against the run's budget.
type frontierClient struct {
	model      string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

// NewFrontierClient builds the expensive/frontier generation backend.
func NewFrontierClient(config Config) Generator {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &frontierClient{
		model:      config.Model,
		baseURL:    baseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("frontier-backend"),
	}
}

func (c *frontierClient) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *frontierClient) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewTransientError(fmt.Errorf("frontier request: %w", err), 0)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyStatus(resp.StatusCode, fmt.Errorf("frontier request failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var response chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.NewPermanentError(fmt.Errorf("decode completion response: %w", err), 0)
	}
	if response.Error != nil {
		return nil, errors.NewPermanentError(fmt.Errorf("frontier error: %s", response.Error.Message), 0)
	}
	if len(response.Choices) == 0 {
		return nil, errors.NewPermanentError(fmt.Errorf("frontier response contained no choices"), 0)
	}

	c.logger.Debug("frontier generation finished in %v (%d completion tokens)",
		time.Since(start), response.Usage.CompletionTokens)

	return &GenerationResult{
		Raw:   response.Choices[0].Message.Content,
		Model: c.model,
		Usage: TokenUsage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		},
	}, nil
}
