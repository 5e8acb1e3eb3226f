package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"persona/internal/backend"
	"persona/internal/budget"
	"persona/internal/errors"
	"persona/internal/evidence"
	"persona/internal/logging"
	"persona/internal/persona"
	"persona/internal/quality"
)

// Options configures one orchestrated run.
type Options struct {
	// TargetCount is the number of personas to deliver.
	TargetCount int

	// OversampleFactor multiplies TargetCount for the draft stage. Must be
	// at least 1; there is no sensible universal default, so the caller
	// chooses it explicitly.
	OversampleFactor float64

	// MaxRefineIterations caps frontier calls per rejected candidate.
	MaxRefineIterations int

	// Concurrency bounds simultaneous backend calls per stage.
	Concurrency int

	// DraftBatchSize is the candidate count requested per draft call.
	DraftBatchSize int

	Temperature     float64
	MaxOutputTokens int
}

// Validate rejects option sets the pipeline cannot run with.
func (o Options) Validate() error {
	if o.TargetCount <= 0 {
		return &errors.ConfigError{Field: "target_count", Reason: "must be positive"}
	}
	if o.OversampleFactor < 1 {
		return &errors.ConfigError{Field: "oversample_factor", Reason: "must be at least 1"}
	}
	if o.Concurrency < 0 {
		return &errors.ConfigError{Field: "concurrency", Reason: "must not be negative"}
	}
	return nil
}

// Orchestrator sequences draft, filter and refine into one run and assembles
// the delivered persona set.
type Orchestrator struct {
	opts    Options
	draft   *DraftStage
	filter  *FilterStage
	refine  *RefineStage
	tracker *budget.Tracker
	logger  logging.Logger
	metrics *Metrics
}

// Backends groups the two generators with their pricing.
type Backends struct {
	Local           backend.Generator
	LocalPricing    backend.Pricing
	Frontier        backend.Generator
	FrontierPricing backend.Pricing
}

// NewOrchestrator validates opts and wires the three stages over shared
// estimator, scorer and budget tracker.
func NewOrchestrator(opts Options, backends Backends, est *backend.Estimator, scorer *quality.Scorer, tracker *budget.Tracker, logger logging.Logger, metrics *Metrics) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	// One limiter for all backend calls of a run, shared by draft and refine.
	limiter := semaphore.NewWeighted(int64(concurrency))

	draft := NewDraftStage(backends.Local, est, tracker, backends.LocalPricing, limiter, DraftOptions{
		BatchSize:   opts.DraftBatchSize,
		Concurrency: concurrency,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxOutputTokens,
	}, logger, metrics)

	filter := NewFilterStage(scorer, concurrency, logger, metrics)

	refine := NewRefineStage(backends.Frontier, est, scorer, tracker, backends.FrontierPricing, limiter, RefineOptions{
		MaxIterations: opts.MaxRefineIterations,
		Concurrency:   concurrency,
		Temperature:   opts.Temperature,
		MaxTokens:     opts.MaxOutputTokens,
	}, logger, metrics)

	return &Orchestrator{
		opts:    opts,
		draft:   draft,
		filter:  filter,
		refine:  refine,
		tracker: tracker,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Run executes the full pipeline against one source corpus. The returned Run
// is always non-nil and finalized, even on failure, so callers can report
// whatever the pipeline managed to produce before the error.
func (o *Orchestrator) Run(ctx context.Context, source *evidence.SourceData) (*Run, error) {
	run := NewRun(o.opts.TargetCount, o.tracker.Ceiling())
	o.metrics.runStarted()
	defer o.metrics.runFinished()

	if source == nil || source.Empty() {
		run.Finalize(StatusFailed)
		return run, fmt.Errorf("pipeline run %s: source data is empty", run.ID)
	}

	wanted := int(float64(o.opts.TargetCount) * o.opts.OversampleFactor)
	if wanted < o.opts.TargetCount {
		wanted = o.opts.TargetCount
	}
	o.logger.Info("run %s: target %d, drafting %d (oversample %.2f), budget %s",
		run.ID, o.opts.TargetCount, wanted, o.opts.OversampleFactor, run.BudgetCeiling)

	// Draft.
	drafts, draftResult, err := o.draft.Run(ctx, source, wanted, run.ID)
	run.AddStage(draftResult)
	run.All = append(run.All, drafts...)
	if err != nil {
		return o.finish(run, err)
	}

	// Filter.
	accepted, rejected, filterResult, err := o.filter.Run(ctx, drafts)
	run.AddStage(filterResult)
	if err != nil {
		return o.finish(run, err)
	}

	final := accepted

	// Refine only when the accepted pool falls short of the target; enough
	// accepted drafts means the frontier backend is never touched.
	if len(accepted) < o.opts.TargetCount && len(rejected) > 0 {
		outcomes, refineResult, rerr := o.refine.Run(ctx, rejected, drafts, source, run.ID)
		run.AddStage(refineResult)
		for _, outcome := range outcomes {
			run.All = append(run.All, outcome.Versions...)
			if outcome.Final == nil {
				continue
			}
			switch outcome.Final.State {
			case persona.StateAccepted, persona.StateBestEffort:
				final = append(final, outcome.Final)
			}
		}
		if rerr != nil {
			run.Final = TruncateTop(final, o.opts.TargetCount)
			return o.finish(run, rerr)
		}
	} else if len(rejected) > 0 {
		// Target already met: rejected drafts stay rejected, recorded for
		// provenance but never sent to the frontier backend.
		o.logger.Debug("run %s: target met by drafts, skipping refinement of %d rejects", run.ID, len(rejected))
	}

	run.Final = TruncateTop(final, o.opts.TargetCount)
	return o.finish(run, nil)
}

// finish derives the overall status, freezes the run and surfaces spend.
func (o *Orchestrator) finish(run *Run, err error) (*Run, error) {
	run.BudgetSpent = o.tracker.Spent()
	run.Overshot = o.tracker.Overshot()

	switch {
	case err != nil && stderrors.Is(err, context.Canceled):
		run.Finalize(StatusCancelled)
		o.logger.Warn("run %s cancelled with %d personas assembled", run.ID, len(run.Final))
		return run, err
	case err != nil && stderrors.Is(err, context.DeadlineExceeded):
		run.Finalize(StatusCancelled)
		return run, err
	case err != nil:
		run.Finalize(StatusFailed)
		o.logger.Error("run %s failed: %v", run.ID, err)
		return run, err
	case run.Shortfall() > 0 || run.Overshot || hasBestEffort(run.Final):
		run.Finalize(StatusPartial)
		o.logger.Warn("run %s partial: %d of %d personas, spent %s of %s",
			run.ID, len(run.Final), run.TargetCount, run.BudgetSpent, run.BudgetCeiling)
		return run, nil
	default:
		run.Finalize(StatusCompleted)
		o.logger.Info("run %s completed: %d personas, spent %s of %s",
			run.ID, len(run.Final), run.BudgetSpent, run.BudgetCeiling)
		return run, nil
	}
}

func hasBestEffort(candidates []*persona.Candidate) bool {
	for _, c := range candidates {
		if c.BestEffort {
			return true
		}
	}
	return false
}
