package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"persona/internal/backend"
	"persona/internal/budget"
	"persona/internal/evidence"
	"persona/internal/logging"
	"persona/internal/persona"
	"persona/internal/quality"
)

// RefineStage sends rejected candidates to the frontier backend for
// budget-gated iterative improvement. Each candidate refines independently up
// to the iteration cap; the shared budget tracker is the only coordination
// point between concurrent refinement loops.
type RefineStage struct {
	generator backend.Generator
	estimator *backend.Estimator
	scorer    *quality.Scorer
	tracker   *budget.Tracker
	pricing   backend.Pricing
	limiter   *semaphore.Weighted
	logger    logging.Logger
	metrics   *Metrics

	maxIterations int
	temperature   float64
	maxTokens     int
}

// RefineOptions tunes the refine stage.
type RefineOptions struct {
	MaxIterations int // refinement attempts per candidate
	Concurrency   int // concurrent refinement loops
	Temperature   float64
	MaxTokens     int
}

// NewRefineStage wires a refine stage over the frontier backend. The limiter
// bounds concurrent frontier calls; passing nil creates a private one from
// opts.Concurrency.
func NewRefineStage(gen backend.Generator, est *backend.Estimator, scorer *quality.Scorer, tracker *budget.Tracker, pricing backend.Pricing, limiter *semaphore.Weighted, opts RefineOptions, logger logging.Logger, metrics *Metrics) *RefineStage {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 2
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if limiter == nil {
		limiter = semaphore.NewWeighted(int64(opts.Concurrency))
	}
	return &RefineStage{
		generator:     gen,
		estimator:     est,
		scorer:        scorer,
		tracker:       tracker,
		pricing:       pricing,
		limiter:       limiter,
		logger:        logging.OrNop(logger),
		metrics:       metrics,
		maxIterations: opts.MaxIterations,
		temperature:   opts.Temperature,
		maxTokens:     opts.MaxTokens,
	}
}

// RefineOutcome is one candidate's result from the refine stage.
type RefineOutcome struct {
	// Final is the version to deliver, nil when the candidate ended in
	// UnrefinedBudgetExceeded with nothing usable.
	Final *persona.Candidate

	// Versions holds every revision created during refinement, for the
	// provenance record.
	Versions []*persona.Candidate
}

// Run refines each rejected candidate concurrently. For every candidate the
// loop is: reserve budget for the next frontier call, generate a revision,
// commit actual spend, re-score. A revision meeting the threshold is
// Accepted; exhausted iterations yield the best-scoring version flagged
// BestEffort; a declined reservation marks the candidate
// UnrefinedBudgetExceeded without calling the backend. The sibling pool is
// the original draft pool so distinctiveness stays comparable across stages.
func (r *RefineStage) Run(ctx context.Context, rejected, pool []*persona.Candidate, source *evidence.SourceData, runID string) ([]RefineOutcome, StageResult, error) {
	start := time.Now()
	result := StageResult{Stage: StageRefine, Cost: decimal.Zero, Produced: len(rejected)}
	threshold := r.scorer.Config().QualityThreshold

	outcomes := make([]RefineOutcome, len(rejected))
	var (
		mu   sync.Mutex
		cost decimal.Decimal = decimal.Zero
	)

	g, gctx := errgroup.WithContext(ctx)

	for i, candidate := range rejected {
		g.Go(func() error {
			outcome, spent, err := r.refineOne(gctx, candidate, pool, source, newBatchID(runID, StageRefine, i), threshold)
			mu.Lock()
			outcomes[i] = outcome
			cost = cost.Add(spent)
			mu.Unlock()
			return err
		})
	}

	err := g.Wait()
	result.Duration = time.Since(start)
	result.Cost = cost

	for _, o := range outcomes {
		if o.Final == nil {
			continue
		}
		switch o.Final.State {
		case persona.StateAccepted:
			result.Accepted++
		case persona.StateBestEffort:
			result.Rejected++
		}
	}

	if err != nil {
		result.Err = err.Error()
		r.metrics.observeStage(StageRefine, "cancelled", result.Duration)
		return outcomes, result, err
	}
	r.metrics.observeStage(StageRefine, "ok", result.Duration)
	r.logger.Info("refine stage: %d candidates, %d now accepted, %d best-effort, cost %s",
		len(rejected), result.Accepted, result.Rejected, cost)
	return outcomes, result, nil
}

// refineOne runs the refinement loop for a single rejected candidate. It
// returns the outcome, the spend it committed, and a non-nil error only on
// cancellation.
func (r *RefineStage) refineOne(ctx context.Context, candidate *persona.Candidate, pool []*persona.Candidate, source *evidence.SourceData, batchID string, threshold float64) (RefineOutcome, decimal.Decimal, error) {
	outcome := RefineOutcome{Versions: []*persona.Candidate{}}
	spent := decimal.Zero
	current := candidate

	for current.RefinementCount < r.maxIterations {
		rev, delta, verdict, err := r.generateRevision(ctx, current, source, batchID)
		spent = spent.Add(delta)
		switch verdict {
		case revisionCancelled:
			outcome.Final = r.settleBestEffort(current)
			return outcome, spent, err
		case revisionBudgetDeclined:
			// Budget cannot cover another frontier call. The candidate keeps
			// its rejected score and is marked skipped, never silently lost.
			if terr := current.TransitionTo(persona.StateUnrefinedBudgetExceeded); terr == nil {
				outcome.Final = current
			}
			return outcome, spent, nil
		case revisionFailed:
			// Backend irrecoverably failed or returned garbage: deliver the
			// last scored version as best-effort rather than dropping it.
			outcome.Final = r.settleBestEffort(current)
			return outcome, spent, nil
		}
		outcome.Versions = append(outcome.Versions, rev)

		score, links, serr := r.scorer.Score(ctx, rev, pool)
		if serr != nil {
			r.logger.Warn("revision %s failed scoring: %v", rev.ID, serr)
			outcome.Final = r.settleBestEffort(current)
			return outcome, spent, nil
		}
		rev.Score = score
		rev.EvidenceLinks = links
		if err := rev.TransitionTo(persona.StateScored); err != nil {
			outcome.Final = r.settleBestEffort(current)
			return outcome, spent, nil
		}

		if score.Overall >= threshold {
			if err := rev.TransitionTo(persona.StateAccepted); err == nil {
				r.logger.Debug("revision %s accepted at %.1f after %d refinement(s)", rev.ID, score.Overall, rev.RefinementCount)
				outcome.Final = rev
				return outcome, spent, nil
			}
		}

		if err := rev.TransitionTo(persona.StateRejected); err != nil {
			outcome.Final = r.settleBestEffort(current)
			return outcome, spent, nil
		}
		current = rev
	}

	// Iterations exhausted: deliver the best-scoring version, flagged.
	best := bestScored(append([]*persona.Candidate{candidate}, outcome.Versions...))
	outcome.Final = r.settleBestEffort(best)
	return outcome, spent, nil
}

type revisionVerdict int

const (
	revisionOK revisionVerdict = iota
	revisionBudgetDeclined
	revisionFailed
	revisionCancelled
)

// generateRevision performs one frontier call for current under the
// concurrency limiter. Holding the limiter across reserve, generate and
// commit serializes the budget decision with the spend it gates, so a
// declined reservation always reflects committed costs, not in-flight
// estimates.
func (r *RefineStage) generateRevision(ctx context.Context, current *persona.Candidate, source *evidence.SourceData, batchID string) (*persona.Candidate, decimal.Decimal, revisionVerdict, error) {
	if err := r.limiter.Acquire(ctx, 1); err != nil {
		return nil, decimal.Zero, revisionCancelled, err
	}
	defer r.limiter.Release(1)

	prompt := buildRefinePrompt(current, source)
	estimated := r.estimator.EstimateCost(refineSystemPrompt+prompt, r.maxTokens, r.pricing)
	reservation, ok := r.tracker.Reserve(estimated)
	if !ok {
		r.logger.Info("candidate %s skipped: budget cannot cover refinement estimate %s", current.ID, estimated)
		return nil, decimal.Zero, revisionBudgetDeclined, nil
	}

	rev := current.NewRevision(r.generator.Model())
	rev.BatchID = batchID

	res, err := r.generator.Generate(ctx, backend.GenerationRequest{
		System:      refineSystemPrompt,
		Prompt:      prompt,
		Count:       1,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		reservation.Release()
		r.metrics.recordFailure(StageRefine, "backend")
		r.logger.Warn("refinement call for %s failed: %v", current.ID, err)
		if ctx.Err() != nil {
			return nil, decimal.Zero, revisionCancelled, ctx.Err()
		}
		return nil, decimal.Zero, revisionFailed, nil
	}

	actual := backend.ActualCost(res.Usage, r.pricing)
	if cerr := reservation.Commit(actual); cerr != nil {
		r.logger.Warn("refinement of %s breached strict budget on commit: %v", current.ID, cerr)
	}
	r.metrics.addSpend(string(backend.RoleFrontier), actual)

	parsed, _, perr := backend.ParseCandidates(res.Raw, res.Model, batchID, r.logger)
	if perr != nil || len(parsed) == 0 {
		r.metrics.recordFailure(StageRefine, "parse")
		r.logger.Warn("refinement of %s returned unparseable output", current.ID)
		return nil, actual, revisionFailed, nil
	}
	mergeRevision(rev, parsed[0])
	return rev, actual, revisionOK, nil
}

// settleBestEffort moves a rejected version to BestEffort and flags it. Nil
// when the candidate was in no state to deliver.
func (r *RefineStage) settleBestEffort(c *persona.Candidate) *persona.Candidate {
	if c == nil {
		return nil
	}
	if err := c.TransitionTo(persona.StateBestEffort); err != nil {
		r.logger.Warn("candidate %s not deliverable: %v", c.ID, err)
		return nil
	}
	c.BestEffort = true
	return c
}

// bestScored picks the highest-scoring version, ties broken by ID.
func bestScored(versions []*persona.Candidate) *persona.Candidate {
	var best *persona.Candidate
	for _, v := range versions {
		if v == nil || v.Score == nil {
			continue
		}
		if best == nil || v.Score.Overall > best.Score.Overall ||
			(v.Score.Overall == best.Score.Overall && v.ID < best.ID) {
			best = v
		}
	}
	if best == nil && len(versions) > 0 {
		best = versions[0]
	}
	return best
}

// mergeRevision copies the parsed content of gen onto rev, preserving rev's
// identity and provenance fields.
func mergeRevision(rev, gen *persona.Candidate) {
	if gen.Name != "" {
		rev.Name = gen.Name
	}
	if gen.Age != "" {
		rev.Age = gen.Age
	}
	if gen.Occupation != "" {
		rev.Occupation = gen.Occupation
	}
	if gen.Location != "" {
		rev.Location = gen.Location
	}
	if len(gen.Demographics) > 0 {
		rev.Demographics = gen.Demographics
	}
	if len(gen.Goals) > 0 {
		rev.Goals = gen.Goals
	}
	if len(gen.PainPoints) > 0 {
		rev.PainPoints = gen.PainPoints
	}
	if len(gen.Behaviors) > 0 {
		rev.Behaviors = gen.Behaviors
	}
	if len(gen.Motivations) > 0 {
		rev.Motivations = gen.Motivations
	}
	if len(gen.Quotes) > 0 {
		rev.Quotes = gen.Quotes
	}
}
