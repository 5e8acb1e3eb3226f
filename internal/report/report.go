// Package report renders a finished pipeline run as a machine-readable JSON
// document and a human terminal summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"persona/internal/persona"
	"persona/internal/pipeline"
)

// Report is the serializable view of one run.
type Report struct {
	RunID       string                 `json:"run_id"`
	Status      pipeline.Status        `json:"status"`
	GeneratedAt time.Time              `json:"generated_at"`
	Duration    string                 `json:"duration"`
	TargetCount int                    `json:"target_count"`
	Delivered   int                    `json:"delivered"`
	Shortfall   int                    `json:"shortfall,omitempty"`
	Budget      BudgetSummary          `json:"budget"`
	Stages      []pipeline.StageResult `json:"stages"`
	Personas    []*persona.Candidate   `json:"personas"`
	Provenance  []ProvenanceEntry      `json:"provenance,omitempty"`
}

// BudgetSummary reports spend as decimal strings to keep exact values in the
// JSON output.
type BudgetSummary struct {
	Ceiling  string `json:"ceiling"`
	Spent    string `json:"spent"`
	Overshot bool   `json:"overshot,omitempty"`
}

// ProvenanceEntry is one candidate version in the run's audit trail.
type ProvenanceEntry struct {
	ID              string        `json:"id"`
	ParentID        string        `json:"parent_id,omitempty"`
	Name            string        `json:"name"`
	State           persona.State `json:"state"`
	Stage           persona.Stage `json:"stage"`
	Model           string        `json:"model"`
	BatchID         string        `json:"batch_id,omitempty"`
	RefinementCount int           `json:"refinement_count"`
	Overall         float64       `json:"overall_score,omitempty"`
}

// Build assembles a report from a finalized run.
func Build(run *pipeline.Run) *Report {
	r := &Report{
		RunID:       run.ID,
		Status:      run.Status,
		GeneratedAt: time.Now().UTC(),
		Duration:    run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(),
		TargetCount: run.TargetCount,
		Delivered:   len(run.Final),
		Shortfall:   run.Shortfall(),
		Budget: BudgetSummary{
			Ceiling:  run.BudgetCeiling.String(),
			Spent:    run.BudgetSpent.String(),
			Overshot: run.Overshot,
		},
		Stages:   run.Stages,
		Personas: run.Final,
	}
	for _, c := range run.All {
		entry := ProvenanceEntry{
			ID:              c.ID,
			ParentID:        c.ParentID,
			Name:            c.Name,
			State:           c.State,
			Stage:           c.Stage,
			Model:           c.Model,
			BatchID:         c.BatchID,
			RefinementCount: c.RefinementCount,
		}
		if c.Score != nil {
			entry.Overall = c.Score.Overall
		}
		r.Provenance = append(r.Provenance, entry)
	}
	sort.Slice(r.Provenance, func(i, j int) bool {
		return r.Provenance[i].ID < r.Provenance[j].ID
	})
	return r
}

// Writer renders a report to some destination.
type Writer interface {
	Write(r *Report) error
}

// JSONWriter writes the report as indented JSON.
type JSONWriter struct {
	Out io.Writer
}

func (w *JSONWriter) Write(r *Report) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// TerminalWriter prints a colorized human summary.
type TerminalWriter struct {
	Out io.Writer
}

func (w *TerminalWriter) Write(r *Report) error {
	bold := color.New(color.Bold).FprintfFunc()
	statusColor := statusColorFor(r.Status).FprintfFunc()
	dim := color.New(color.Faint).FprintfFunc()

	bold(w.Out, "Run %s\n", r.RunID)
	statusColor(w.Out, "  status    %s\n", r.Status)
	fmt.Fprintf(w.Out, "  personas  %d of %d", r.Delivered, r.TargetCount)
	if r.Shortfall > 0 {
		fmt.Fprintf(w.Out, "  (short by %d)", r.Shortfall)
	}
	fmt.Fprintln(w.Out)
	fmt.Fprintf(w.Out, "  budget    %s spent of %s", r.Budget.Spent, r.Budget.Ceiling)
	if r.Budget.Overshot {
		color.New(color.FgYellow).Fprintf(w.Out, "  OVERSHOT")
	}
	fmt.Fprintln(w.Out)
	fmt.Fprintf(w.Out, "  duration  %s\n", r.Duration)

	for _, stage := range r.Stages {
		dim(w.Out, "  %-7s produced=%d accepted=%d rejected=%d dropped=%d cost=%s\n",
			stage.Stage, stage.Produced, stage.Accepted, stage.Rejected, stage.Dropped, stage.Cost)
	}

	for i, p := range r.Personas {
		fmt.Fprintf(w.Out, "\n%d. ", i+1)
		bold(w.Out, "%s", p.Name)
		if p.Occupation != "" {
			fmt.Fprintf(w.Out, ", %s", p.Occupation)
		}
		fmt.Fprintln(w.Out)
		if p.Score != nil {
			fmt.Fprintf(w.Out, "   score %.1f (%s)", p.Score.Overall, p.Score.Level)
			if p.BestEffort {
				color.New(color.FgYellow).Fprintf(w.Out, "  best-effort")
			}
			fmt.Fprintln(w.Out)
		}
		for _, goal := range p.Goals {
			fmt.Fprintf(w.Out, "   - %s\n", goal)
		}
	}
	return nil
}

func statusColorFor(status pipeline.Status) *color.Color {
	switch status {
	case pipeline.StatusCompleted:
		return color.New(color.FgGreen)
	case pipeline.StatusPartial:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
