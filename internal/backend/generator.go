// Package backend abstracts the generation backends behind one Generator
// interface, implemented by a cheap local client (Ollama-style) and an
// expensive frontier client (OpenAI-compatible), plus decorators for retry
// and circuit breaking.
package backend

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Role of a backend within the pipeline.
type Role string

const (
	RoleLocal    Role = "local"
	RoleFrontier Role = "frontier"
)

// GenerationRequest asks a backend for a batch of persona candidates.
type GenerationRequest struct {
	System      string
	Prompt      string
	Count       int // candidates wanted from this single call
	Temperature float64
	MaxTokens   int
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationResult is the raw model output before candidate parsing.
type GenerationResult struct {
	Raw   string
	Usage TokenUsage
	Model string
}

// Generator represents any generation backend.
type Generator interface {
	// Generate sends one prompt and returns the raw completion.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)

	// Model returns the model identifier.
	Model() string
}

// Pricing is a backend's cost per 1000 tokens, fixed-point.
type Pricing struct {
	InputPer1K  decimal.Decimal
	OutputPer1K decimal.Decimal
}

// Config holds the connection settings for one backend.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxBatch   int // most candidates one call may request; 0 means no limit
	Pricing    Pricing
}
