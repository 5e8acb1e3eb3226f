package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"persona/internal/backend"
	"persona/internal/budget"
	"persona/internal/errors"
	"persona/internal/evidence"
	"persona/internal/logging"
	"persona/internal/persona"
)

// DraftStage oversamples candidate personas from the cheap local backend.
// Batches run concurrently up to the configured limit; each batch records its
// actual spend against the shared tracker.
type DraftStage struct {
	generator backend.Generator
	estimator *backend.Estimator
	tracker   *budget.Tracker
	pricing   backend.Pricing
	limiter   *semaphore.Weighted
	logger    logging.Logger
	metrics   *Metrics

	batchSize   int
	temperature float64
	maxTokens   int
}

// DraftOptions tunes the draft stage.
type DraftOptions struct {
	BatchSize   int // candidates requested per backend call
	Concurrency int // concurrent backend calls
	Temperature float64
	MaxTokens   int // completion token cap per call
}

// NewDraftStage wires a draft stage over the local backend. The limiter
// bounds concurrent backend calls; passing nil creates a private one from
// opts.Concurrency.
func NewDraftStage(gen backend.Generator, est *backend.Estimator, tracker *budget.Tracker, pricing backend.Pricing, limiter *semaphore.Weighted, opts DraftOptions, logger logging.Logger, metrics *Metrics) *DraftStage {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if limiter == nil {
		limiter = semaphore.NewWeighted(int64(opts.Concurrency))
	}
	return &DraftStage{
		generator:   gen,
		estimator:   est,
		tracker:     tracker,
		pricing:     pricing,
		limiter:     limiter,
		logger:      logging.OrNop(logger),
		metrics:     metrics,
		batchSize:   opts.BatchSize,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// Run requests wanted candidates from the backend in concurrent batches and
// returns every parseable draft. Individual batch failures degrade the yield,
// they do not abort the stage; only a stage that yields zero candidates is an
// error (DraftExhaustionError), because nothing downstream can run.
func (d *DraftStage) Run(ctx context.Context, source *evidence.SourceData, wanted int, runID string) ([]*persona.Candidate, StageResult, error) {
	start := time.Now()
	result := StageResult{Stage: StageDraft, Cost: decimal.Zero}

	batches := batchSizes(wanted, d.batchSize)
	d.logger.Info("draft stage: %d candidates in %d batches via %s", wanted, len(batches), d.generator.Model())

	var (
		mu         sync.Mutex
		candidates []*persona.Candidate
		malformed  int
		cost       decimal.Decimal = decimal.Zero
	)

	g, gctx := errgroup.WithContext(ctx)

	for i, size := range batches {
		g.Go(func() error {
			if err := d.limiter.Acquire(gctx, 1); err != nil {
				return err
			}
			defer d.limiter.Release(1)

			batchID := newBatchID(runID, StageDraft, i)
			prompt := buildDraftPrompt(source, size)

			estimated := d.estimator.EstimateCost(draftSystemPrompt+prompt, d.maxTokens, d.pricing)
			reservation, ok := d.tracker.Reserve(estimated)
			if !ok {
				d.logger.Warn("draft batch %s skipped: budget cannot cover estimate %s", batchID, estimated)
				return nil
			}

			res, err := d.generator.Generate(gctx, backend.GenerationRequest{
				System:      draftSystemPrompt,
				Prompt:      prompt,
				Count:       size,
				Temperature: d.temperature,
				MaxTokens:   d.maxTokens,
			})
			if err != nil {
				reservation.Release()
				d.metrics.recordFailure(StageDraft, "backend")
				d.logger.Warn("draft batch %s failed: %v", batchID, err)
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return nil
			}

			actual := backend.ActualCost(res.Usage, d.pricing)
			if err := reservation.Commit(actual); err != nil {
				// Strict-mode ceiling breach. The call already happened, so
				// its candidates are kept; the spend stays unrecorded.
				d.logger.Warn("draft batch %s exceeded budget on commit: %v", batchID, err)
			}
			d.metrics.addSpend(string(backend.RoleLocal), actual)

			parsed, dropped, perr := backend.ParseCandidates(res.Raw, res.Model, batchID, d.logger)
			if perr != nil {
				d.metrics.recordFailure(StageDraft, "parse")
				d.logger.Warn("draft batch %s produced no parseable candidates: %v", batchID, perr)
			}

			mu.Lock()
			cost = cost.Add(actual)
			malformed += dropped
			candidates = append(candidates, parsed...)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	result.Duration = time.Since(start)
	result.Cost = cost
	result.Produced = len(candidates)
	result.Dropped = malformed

	if err != nil {
		result.Err = err.Error()
		d.metrics.observeStage(StageDraft, "cancelled", result.Duration)
		return candidates, result, err
	}
	if len(candidates) == 0 {
		exhaustion := &errors.DraftExhaustionError{Requested: wanted, Malformed: malformed}
		result.Err = exhaustion.Error()
		d.metrics.observeStage(StageDraft, "failed", result.Duration)
		return nil, result, exhaustion
	}

	d.metrics.observeStage(StageDraft, "ok", result.Duration)
	d.logger.Info("draft stage: %d candidates produced, %d malformed dropped, cost %s", len(candidates), malformed, cost)
	return candidates, result, nil
}

// batchSizes splits wanted into batches of at most batchSize.
func batchSizes(wanted, batchSize int) []int {
	var sizes []int
	for remaining := wanted; remaining > 0; remaining -= batchSize {
		size := batchSize
		if remaining < batchSize {
			size = remaining
		}
		sizes = append(sizes, size)
	}
	return sizes
}

// IsDraftExhaustion reports whether err is the zero-yield draft failure.
func IsDraftExhaustion(err error) bool {
	var exhaustion *errors.DraftExhaustionError
	return stderrors.As(err, &exhaustion)
}
