package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona/internal/backend"
	"persona/internal/budget"
	"persona/internal/evidence"
	"persona/internal/logging"
	"persona/internal/persona"
	"persona/internal/quality"
)

// stubMetric lets tests dictate scores by candidate, so pipeline behavior can
// be driven without constructing content that games the real metrics.
type stubMetric struct {
	dim   persona.Dimension
	score func(c *persona.Candidate) float64
}

func (m *stubMetric) Dimension() persona.Dimension { return m.dim }

func (m *stubMetric) Evaluate(_ context.Context, in quality.Input) (quality.Evaluation, error) {
	return quality.Evaluation{Score: m.score(in.Candidate)}, nil
}

func stubScorer(t *testing.T, src *evidence.SourceData, score func(c *persona.Candidate) float64) *quality.Scorer {
	t.Helper()
	var metrics []quality.Metric
	for _, dim := range persona.Dimensions() {
		metrics = append(metrics, &stubMetric{dim: dim, score: score})
	}
	registry, err := quality.NewRegistry(metrics...)
	require.NoError(t, err)
	scorer, err := quality.NewScorerWithRegistry(quality.DefaultConfig(), registry, evidence.NewLexicalLinker(src), logging.Nop())
	require.NoError(t, err)
	return scorer
}

// scoreByPrefix accepts candidates whose name starts with "Refined" and
// rejects the rest (0.5 of each dimension is an overall 50, below the
// default threshold of 70).
func scoreByPrefix(c *persona.Candidate) float64 {
	if strings.HasPrefix(c.Name, "Refined") {
		return 0.9
	}
	return 0.5
}

func testSource() *evidence.SourceData {
	return &evidence.SourceData{Documents: []evidence.Document{{
		ID:   "interviews",
		Text: "Users struggle to export reports quickly.\n\nBilling admins want clearer invoices.",
	}}}
}

func personaJSON(t *testing.T, names ...string) string {
	t.Helper()
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]any{
			"name":        name,
			"age":         "34",
			"occupation":  "billing administrator",
			"location":    "Leeds, UK",
			"goals":       []string{"export monthly reports without manual work", "understand invoice line items"},
			"pain_points": []string{"report exports take too long"},
			"quotes":      []string{"I just want the export to finish before my meeting."},
		})
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return string(data)
}

func singlePersonaJSON(t *testing.T, name string) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"name":        name,
		"age":         "34",
		"occupation":  "billing administrator",
		"goals":       []string{"export monthly reports without manual work", "understand invoice line items"},
		"pain_points": []string{"report exports take too long"},
		"quotes":      []string{"I just want the export to finish before my meeting."},
	})
	require.NoError(t, err)
	return string(data)
}

func zeroPricing() backend.Pricing {
	return backend.Pricing{InputPer1K: decimal.Zero, OutputPer1K: decimal.Zero}
}

func outputPricing(per1K string) backend.Pricing {
	return backend.Pricing{InputPer1K: decimal.Zero, OutputPer1K: decimal.RequireFromString(per1K)}
}

func newTestOrchestrator(t *testing.T, opts Options, backends Backends, scorer *quality.Scorer, ceiling string) (*Orchestrator, *budget.Tracker) {
	t.Helper()
	tracker := budget.NewTracker(decimal.RequireFromString(ceiling), false, logging.Nop())
	orch, err := NewOrchestrator(opts, backends, backend.NewHeuristicEstimator(), scorer, tracker, logging.Nop(), nil)
	require.NoError(t, err)
	return orch, tracker
}

// All drafts pass the filter: the frontier backend is never called, the final
// set is the top TargetCount by score, and the run completes on local spend
// alone.
func TestRunCompletesWithoutRefinement(t *testing.T) {
	src := testSource()
	local := &backend.MockGenerator{
		ModelName: "llama3",
		Responses: []*backend.GenerationResult{{
			Raw:   personaJSON(t, "Refined Alpha", "Refined Beta", "Refined Gamma", "Refined Delta"),
			Usage: backend.TokenUsage{CompletionTokens: 1000},
			Model: "llama3",
		}},
	}
	frontier := &backend.MockGenerator{ModelName: "gpt-4o"}

	orch, tracker := newTestOrchestrator(t, Options{
		TargetCount:      2,
		OversampleFactor: 2,
		DraftBatchSize:   4,
		Concurrency:      1,
		MaxOutputTokens:  1000,
	}, Backends{
		Local:           local,
		LocalPricing:    outputPricing("0.2"),
		Frontier:        frontier,
		FrontierPricing: outputPricing("1"),
	}, stubScorer(t, src, scoreByPrefix), "10")

	run, err := orch.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Len(t, run.Final, 2)
	assert.Equal(t, 0, run.Shortfall())
	assert.Equal(t, 0, frontier.Calls(), "frontier backend must not be touched when drafts meet the target")
	for _, c := range run.Final {
		assert.Equal(t, persona.StateAccepted, c.State)
		assert.False(t, c.BestEffort)
		require.NotNil(t, c.Score)
		assert.InDelta(t, 90.0, c.Score.Overall, 0.001)
	}

	// Only the local call spent anything: 1000 completion tokens at 0.2/1K.
	want := decimal.RequireFromString("0.2")
	assert.True(t, run.TotalCost.Equal(want), "total cost %s, want %s", run.TotalCost, want)
	assert.True(t, tracker.Spent().Equal(want))
	assert.Len(t, run.Stages, 2, "refine stage must not run")
	assert.True(t, run.Finalized())
}

// Budget covers only two frontier calls: two rejects are refined to
// acceptance, the other three end budget-skipped, and the run is partial.
func TestRunPartialWhenBudgetLimitsRefinement(t *testing.T) {
	src := testSource()
	local := &backend.MockGenerator{
		ModelName: "llama3",
		Responses: []*backend.GenerationResult{{
			Raw:   personaJSON(t, "Alpha", "Beta", "Gamma", "Delta", "Epsilon"),
			Model: "llama3",
		}},
	}
	frontier := &backend.MockGenerator{
		ModelName: "gpt-4o",
		Responses: []*backend.GenerationResult{
			{Raw: singlePersonaJSON(t, "Refined Alpha"), Usage: backend.TokenUsage{CompletionTokens: 500}, Model: "gpt-4o"},
			{Raw: singlePersonaJSON(t, "Refined Beta"), Usage: backend.TokenUsage{CompletionTokens: 500}, Model: "gpt-4o"},
		},
	}

	// Each frontier call is estimated at exactly 1.00 (1000 output tokens at
	// 1/1K, zero input pricing) and commits 0.50. Ceiling 1.8 admits two
	// reservations and declines the third.
	orch, tracker := newTestOrchestrator(t, Options{
		TargetCount:         5,
		OversampleFactor:    1,
		DraftBatchSize:      5,
		Concurrency:         1,
		MaxRefineIterations: 2,
		MaxOutputTokens:     1000,
	}, Backends{
		Local:           local,
		LocalPricing:    zeroPricing(),
		Frontier:        frontier,
		FrontierPricing: outputPricing("1"),
	}, stubScorer(t, src, scoreByPrefix), "1.8")

	run, err := orch.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, run.Status)
	assert.Len(t, run.Final, 2)
	assert.Equal(t, 3, run.Shortfall())
	assert.Equal(t, 2, frontier.Calls())
	assert.True(t, tracker.Spent().Equal(decimal.RequireFromString("1")), "spent %s", tracker.Spent())

	skipped := 0
	for _, c := range run.All {
		if c.State == persona.StateUnrefinedBudgetExceeded {
			skipped++
		}
	}
	assert.Equal(t, 3, skipped, "rejects the budget could not cover must be marked, not lost")

	// Drafts plus the two refinement revisions are all preserved.
	assert.Len(t, run.All, 7)
}

// A draft stage that yields nothing parseable fails the run: there is no
// pool for any later stage to work with.
func TestRunFailsOnDraftExhaustion(t *testing.T) {
	src := testSource()
	local := &backend.MockGenerator{
		ModelName: "llama3",
		Responses: []*backend.GenerationResult{{Raw: "", Model: "llama3"}},
	}
	frontier := &backend.MockGenerator{ModelName: "gpt-4o"}

	orch, _ := newTestOrchestrator(t, Options{
		TargetCount:      3,
		OversampleFactor: 1,
		DraftBatchSize:   3,
		Concurrency:      1,
	}, Backends{
		Local:           local,
		LocalPricing:    zeroPricing(),
		Frontier:        frontier,
		FrontierPricing: zeroPricing(),
	}, stubScorer(t, src, scoreByPrefix), "10")

	run, err := orch.Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, IsDraftExhaustion(err), "got %v", err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Empty(t, run.Final)
	assert.Equal(t, 0, frontier.Calls())
	assert.True(t, run.Finalized())
}

func TestRunCancelledMidDraft(t *testing.T) {
	src := testSource()
	ctx, cancel := context.WithCancel(context.Background())

	local := &backend.MockGenerator{
		ModelName: "llama3",
		GenerateFunc: func(ctx context.Context, _ backend.GenerationRequest) (*backend.GenerationResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	frontier := &backend.MockGenerator{ModelName: "gpt-4o"}

	orch, _ := newTestOrchestrator(t, Options{
		TargetCount:      2,
		OversampleFactor: 1,
		DraftBatchSize:   2,
		Concurrency:      1,
	}, Backends{
		Local:           local,
		LocalPricing:    zeroPricing(),
		Frontier:        frontier,
		FrontierPricing: zeroPricing(),
	}, stubScorer(t, src, scoreByPrefix), "10")

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	run, err := orch.Run(ctx, src)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, run.Status)
	assert.True(t, run.Finalized())
}

// Refinement that never reaches the threshold stops at the iteration cap and
// delivers the best version flagged best-effort.
func TestRefinementIterationBound(t *testing.T) {
	src := testSource()
	local := &backend.MockGenerator{
		ModelName: "llama3",
		Responses: []*backend.GenerationResult{{Raw: personaJSON(t, "Alpha"), Model: "llama3"}},
	}
	frontier := &backend.MockGenerator{
		ModelName: "gpt-4o",
		Responses: []*backend.GenerationResult{
			{Raw: singlePersonaJSON(t, "Alpha Again"), Usage: backend.TokenUsage{CompletionTokens: 100}, Model: "gpt-4o"},
			{Raw: singlePersonaJSON(t, "Alpha Still"), Usage: backend.TokenUsage{CompletionTokens: 100}, Model: "gpt-4o"},
		},
	}

	orch, _ := newTestOrchestrator(t, Options{
		TargetCount:         1,
		OversampleFactor:    1,
		DraftBatchSize:      1,
		Concurrency:         1,
		MaxRefineIterations: 2,
		MaxOutputTokens:     100,
	}, Backends{
		Local:           local,
		LocalPricing:    zeroPricing(),
		Frontier:        frontier,
		FrontierPricing: outputPricing("0.01"),
	}, stubScorer(t, src, scoreByPrefix), "10")

	run, err := orch.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, frontier.Calls(), "iteration cap bounds frontier calls")
	assert.Equal(t, StatusPartial, run.Status, "best-effort delivery is never a clean completion")
	require.Len(t, run.Final, 1)
	assert.Equal(t, persona.StateBestEffort, run.Final[0].State)
	assert.True(t, run.Final[0].BestEffort)
	// Draft plus two revisions in the provenance record.
	assert.Len(t, run.All, 3)
	assert.LessOrEqual(t, run.Final[0].RefinementCount, 2)
}

// A frontier backend failure mid-refinement downgrades the candidate to
// best-effort instead of dropping it.
func TestRefinementBackendFailureDeliversBestEffort(t *testing.T) {
	src := testSource()
	local := &backend.MockGenerator{
		ModelName: "llama3",
		Responses: []*backend.GenerationResult{{Raw: personaJSON(t, "Alpha"), Model: "llama3"}},
	}
	frontier := &backend.MockGenerator{
		ModelName: "gpt-4o",
		Errs:      []error{fmt.Errorf("backend down")},
	}

	orch, tracker := newTestOrchestrator(t, Options{
		TargetCount:         1,
		OversampleFactor:    1,
		DraftBatchSize:      1,
		Concurrency:         1,
		MaxRefineIterations: 2,
		MaxOutputTokens:     100,
	}, Backends{
		Local:           local,
		LocalPricing:    zeroPricing(),
		Frontier:        frontier,
		FrontierPricing: outputPricing("0.01"),
	}, stubScorer(t, src, scoreByPrefix), "10")

	run, err := orch.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, run.Status)
	require.Len(t, run.Final, 1)
	assert.Equal(t, persona.StateBestEffort, run.Final[0].State)
	// The released reservation means the failed call spent nothing.
	assert.True(t, tracker.Spent().IsZero())
}

func TestFilterPartitionsByThreshold(t *testing.T) {
	src := testSource()
	scorer := stubScorer(t, src, scoreByPrefix)
	filter := NewFilterStage(scorer, 2, logging.Nop(), nil)

	var pool []*persona.Candidate
	for _, name := range []string{"Refined High One", "Low One", "Refined High Two", "Low Two", "Low Three"} {
		c := persona.NewDraft("llama3", "batch-0")
		c.Name = name
		pool = append(pool, c)
	}

	accepted, rejected, result, err := filter.Run(context.Background(), pool)
	require.NoError(t, err)

	assert.Len(t, accepted, 2)
	assert.Len(t, rejected, 3)
	assert.Equal(t, len(pool), result.Accepted+result.Rejected+result.Dropped,
		"every candidate lands in exactly one partition")
	for _, c := range accepted {
		assert.Equal(t, persona.StateAccepted, c.State)
		require.NotNil(t, c.Score)
		assert.GreaterOrEqual(t, c.Score.Overall, scorer.Config().QualityThreshold)
	}
	for _, c := range rejected {
		assert.Equal(t, persona.StateRejected, c.State)
		require.NotNil(t, c.Score)
		assert.Less(t, c.Score.Overall, scorer.Config().QualityThreshold)
	}
	assert.True(t, result.Cost.IsZero(), "scoring spends nothing")
}

func TestTruncateTopOrdersByScoreThenID(t *testing.T) {
	mk := func(id string, score float64) *persona.Candidate {
		return &persona.Candidate{ID: id, Score: &persona.QualityScore{Overall: score}}
	}
	pool := []*persona.Candidate{mk("c", 80), mk("a", 75), mk("b", 80), mk("d", 95)}

	top := TruncateTop(pool, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "d", top[0].ID)
	assert.Equal(t, "b", top[1].ID, "equal scores break ties by ID")
	assert.Equal(t, "c", top[2].ID)

	// Input order is untouched.
	assert.Equal(t, "c", pool[0].ID)
}

func TestBatchSizes(t *testing.T) {
	assert.Equal(t, []int{5, 5, 2}, batchSizes(12, 5))
	assert.Equal(t, []int{3}, batchSizes(3, 5))
	assert.Nil(t, batchSizes(0, 5))
}
