package backend

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"
	"github.com/shopspring/decimal"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// initEncoding lazily loads the cl100k_base encoding. On failure the
// estimator falls back to a character heuristic rather than erroring: cost
// estimates only gate spending, they are not billed amounts.
func initEncoding() {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
}

// Estimator predicts the cost of a backend call before it is made, in the
// same fixed-point currency the budget tracker uses. Token counts are cached
// per text: refinement loops re-estimate near-identical prompts.
type Estimator struct {
	useEncoding bool
	cache       *lru.Cache[string, int]
}

// NewEstimator returns an estimator backed by tiktoken when available.
func NewEstimator() *Estimator {
	initEncoding()
	cache, _ := lru.New[string, int](8192)
	return &Estimator{useEncoding: true, cache: cache}
}

// NewHeuristicEstimator skips tiktoken and always uses the fallback
// heuristic. Deterministic and dependency-free, for tests and offline use.
func NewHeuristicEstimator() *Estimator {
	cache, _ := lru.New[string, int](8192)
	return &Estimator{useEncoding: false, cache: cache}
}

// CountTokens returns the token count for text.
func (e *Estimator) CountTokens(text string) int {
	if count, ok := e.cache.Get(text); ok {
		return count
	}

	var count int
	if e.useEncoding && encoding != nil {
		count = len(encoding.Encode(text, nil, nil))
	} else {
		count = estimateFast(text)
	}

	e.cache.Add(text, count)
	return count
}

// estimateFast is a heuristic token estimate: max(runes/4, word count).
func estimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := len([]rune(trimmed))
	words := len(strings.Fields(trimmed))
	estimate := runes / 4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// EstimateCost predicts the cost of sending prompt and receiving up to
// maxOutputTokens under the given pricing.
func (e *Estimator) EstimateCost(prompt string, maxOutputTokens int, pricing Pricing) decimal.Decimal {
	inputTokens := decimal.NewFromInt(int64(e.CountTokens(prompt)))
	outputTokens := decimal.NewFromInt(int64(maxOutputTokens))
	thousand := decimal.NewFromInt(1000)

	inputCost := inputTokens.Div(thousand).Mul(pricing.InputPer1K)
	outputCost := outputTokens.Div(thousand).Mul(pricing.OutputPer1K)
	return inputCost.Add(outputCost)
}

// ActualCost converts reported usage into spend under the given pricing.
func ActualCost(usage TokenUsage, pricing Pricing) decimal.Decimal {
	thousand := decimal.NewFromInt(1000)
	inputCost := decimal.NewFromInt(int64(usage.PromptTokens)).Div(thousand).Mul(pricing.InputPer1K)
	outputCost := decimal.NewFromInt(int64(usage.CompletionTokens)).Div(thousand).Mul(pricing.OutputPer1K)
	return inputCost.Add(outputCost)
}
