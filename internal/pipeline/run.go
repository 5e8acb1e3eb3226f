// Package pipeline implements the hybrid generation workflow: draft with the
// cheap backend, filter by quality score, refine rejects with the frontier
// backend under a budget, then assemble the final persona set.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"persona/internal/persona"
)

// Status is the overall outcome of one pipeline run.
type Status string

const (
	// StatusCompleted - full target count delivered within budget.
	StatusCompleted Status = "completed"
	// StatusPartial - fewer personas than requested, or budget overshoot.
	StatusPartial Status = "partial"
	// StatusFailed - the run could not produce anything usable.
	StatusFailed Status = "failed"
	// StatusCancelled - externally interrupted; accepted candidates preserved.
	StatusCancelled Status = "cancelled"
)

// StageName identifies one pipeline stage in results and metrics.
type StageName string

const (
	StageDraft  StageName = "draft"
	StageFilter StageName = "filter"
	StageRefine StageName = "refine"
)

// StageResult is the per-stage outcome recorded on the run.
type StageResult struct {
	Stage    StageName       `json:"stage"`
	Duration time.Duration   `json:"duration"`
	Cost     decimal.Decimal `json:"cost"`
	Produced int             `json:"produced"`
	Accepted int             `json:"accepted,omitempty"`
	Rejected int             `json:"rejected,omitempty"`
	Dropped  int             `json:"dropped,omitempty"`
	Err      string          `json:"error,omitempty"`
}

// Run aggregates one end-to-end execution. It is created at orchestration
// start and immutable after Finalize.
type Run struct {
	ID            string          `json:"id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Status        Status          `json:"status"`
	TargetCount   int             `json:"target_count"`
	Stages        []StageResult   `json:"stages"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	BudgetCeiling decimal.Decimal `json:"budget_ceiling"`
	BudgetSpent   decimal.Decimal `json:"budget_spent"`
	Overshot      bool            `json:"budget_overshot,omitempty"`

	// Final is the delivered persona set, at most TargetCount entries.
	Final []*persona.Candidate `json:"final"`

	// All preserves every candidate version for provenance, including
	// rejected drafts, refinement revisions and budget-skipped candidates.
	All []*persona.Candidate `json:"all_candidates"`

	finalized bool
}

// NewRun starts a run aggregate.
func NewRun(targetCount int, ceiling decimal.Decimal) *Run {
	return &Run{
		ID:            uuid.NewString(),
		StartedAt:     time.Now().UTC(),
		TargetCount:   targetCount,
		BudgetCeiling: ceiling,
		TotalCost:     decimal.Zero,
		BudgetSpent:   decimal.Zero,
	}
}

// AddStage appends a stage result and accumulates its cost.
func (r *Run) AddStage(result StageResult) {
	if r.finalized {
		return
	}
	r.Stages = append(r.Stages, result)
	r.TotalCost = r.TotalCost.Add(result.Cost)
}

// Finalize freezes the run with its overall status. Further mutation via
// AddStage is ignored.
func (r *Run) Finalize(status Status) {
	if r.finalized {
		return
	}
	r.Status = status
	r.FinishedAt = time.Now().UTC()
	r.finalized = true
}

// Finalized reports whether the run has been frozen.
func (r *Run) Finalized() bool {
	return r.finalized
}

// Shortfall is how many personas short of the target the run ended.
func (r *Run) Shortfall() int {
	missing := r.TargetCount - len(r.Final)
	if missing < 0 {
		return 0
	}
	return missing
}

// newBatchID gives backend calls a stable provenance identifier.
func newBatchID(runID string, stage StageName, n int) string {
	return fmt.Sprintf("%s-%s-%d", runID[:8], stage, n)
}
