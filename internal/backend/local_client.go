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

var _ Generator = (*localClient)(nil)

// localClient drafts candidates against an Ollama-compatible server. This is
// the cheap backend: slow-ish, free, runs on the researcher's own machine.
type localClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewLocalClient builds the cheap/local generation backend.
func NewLocalClient(config Config) Generator {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if !strings.HasSuffix(baseURL, "/api") {
		baseURL = baseURL + "/api"
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &localClient{
		model:      config.Model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("local-backend"),
	}
}

func (c *localClient) Model() string {
	return c.model
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Error           string        `json:"error,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (c *localClient) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.Prompt})

	options := map[string]interface{}{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	payload, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewTransientError(fmt.Errorf("ollama request: %w", err), 0)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyStatus(resp.StatusCode, fmt.Errorf("ollama request failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var response ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.NewPermanentError(fmt.Errorf("decode ollama response: %w", err), 0)
	}
	if response.Error != "" {
		return nil, errors.NewPermanentError(fmt.Errorf("ollama error: %s", response.Error), 0)
	}

	c.logger.Debug("local generation finished in %v (%d eval tokens)", time.Since(start), response.EvalCount)

	return &GenerationResult{
		Raw:   response.Message.Content,
		Model: c.model,
		Usage: TokenUsage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
			TotalTokens:      response.PromptEvalCount + response.EvalCount,
		},
	}, nil
}

// classifyStatus wraps an HTTP failure as transient or permanent so the retry
// decorator can decide without re-parsing error text.
func classifyStatus(statusCode int, err error) error {
	if statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return errors.NewTransientError(err, statusCode)
	}
	return errors.NewPermanentError(err, statusCode)
}
