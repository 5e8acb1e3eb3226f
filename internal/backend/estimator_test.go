package backend

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cents(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCountTokensHeuristic(t *testing.T) {
	e := NewHeuristicEstimator()

	assert.Equal(t, 0, e.CountTokens(""))
	assert.Equal(t, 1, e.CountTokens("hi"))

	// 400 runes -> 100 tokens under the runes/4 heuristic.
	text := strings.Repeat("abcd", 100)
	assert.Equal(t, 100, e.CountTokens(text))

	// Word count wins when words are short.
	assert.Equal(t, 4, e.CountTokens("a b c d"))
}

func TestCountTokensIsCached(t *testing.T) {
	e := NewHeuristicEstimator()
	text := "the same prompt twice"
	first := e.CountTokens(text)
	second := e.CountTokens(text)
	assert.Equal(t, first, second)
	_, ok := e.cache.Get(text)
	assert.True(t, ok)
}

func TestEstimateCostFixedPoint(t *testing.T) {
	e := NewHeuristicEstimator()
	pricing := Pricing{
		InputPer1K:  cents("0.01"),
		OutputPer1K: cents("0.03"),
	}

	// 400 runes -> 100 input tokens; 500 output tokens budgeted.
	prompt := strings.Repeat("abcd", 100)
	cost := e.EstimateCost(prompt, 500, pricing)

	// 100/1000*0.01 + 500/1000*0.03 = 0.001 + 0.015 = 0.016 exactly.
	assert.True(t, cost.Equal(cents("0.016")), "cost = %s", cost)
}

func TestActualCostFromUsage(t *testing.T) {
	pricing := Pricing{
		InputPer1K:  cents("0.0005"),
		OutputPer1K: cents("0.0015"),
	}
	usage := TokenUsage{PromptTokens: 2000, CompletionTokens: 1000, TotalTokens: 3000}

	cost := ActualCost(usage, pricing)
	// 2*0.0005 + 1*0.0015 = 0.0025 exactly.
	assert.True(t, cost.Equal(cents("0.0025")), "cost = %s", cost)
}

func TestActualCostZeroUsage(t *testing.T) {
	cost := ActualCost(TokenUsage{}, Pricing{InputPer1K: cents("1"), OutputPer1K: cents("1")})
	require.True(t, cost.IsZero())
}
