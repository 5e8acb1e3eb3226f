package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"persona/internal/logging"
	"persona/internal/persona"
	"persona/internal/quality"
)

// FilterStage scores every draft against the full pool and partitions it by
// the quality threshold. Scoring is CPU-bound and deterministic; it spends
// nothing.
type FilterStage struct {
	scorer      *quality.Scorer
	logger      logging.Logger
	metrics     *Metrics
	concurrency int
}

// NewFilterStage wires a filter stage over a validated scorer.
func NewFilterStage(scorer *quality.Scorer, concurrency int, logger logging.Logger, metrics *Metrics) *FilterStage {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &FilterStage{
		scorer:      scorer,
		logger:      logging.OrNop(logger),
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// Run scores candidates concurrently, attaches scores and evidence links, and
// splits the pool into accepted and rejected sets. Candidates that fail to
// score at all (malformed input) are dropped with a warning rather than
// poisoning the run. Every candidate is compared against the whole input pool
// so distinctiveness sees the same siblings regardless of scoring order.
func (f *FilterStage) Run(ctx context.Context, candidates []*persona.Candidate) (accepted, rejected []*persona.Candidate, result StageResult, err error) {
	start := time.Now()
	result = StageResult{Stage: StageFilter, Cost: decimal.Zero, Produced: len(candidates)}
	threshold := f.scorer.Config().QualityThreshold

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	scoreErrs := make([]error, len(candidates))
	for i, c := range candidates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			score, links, serr := f.scorer.Score(gctx, c, candidates)
			if serr != nil {
				scoreErrs[i] = serr
				return nil
			}
			// Each goroutine writes only its own candidate.
			c.Score = score
			c.EvidenceLinks = links
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		result.Duration = time.Since(start)
		result.Err = werr.Error()
		f.metrics.observeStage(StageFilter, "cancelled", result.Duration)
		return nil, nil, result, werr
	}

	for i, c := range candidates {
		if scoreErrs[i] != nil {
			result.Dropped++
			f.metrics.recordFailure(StageFilter, "scoring")
			f.logger.Warn("candidate %s dropped unscored: %v", c.ID, scoreErrs[i])
			continue
		}
		if terr := c.TransitionTo(persona.StateScored); terr != nil {
			result.Dropped++
			f.logger.Warn("candidate %s dropped: %v", c.ID, terr)
			continue
		}
		if c.Score.Overall >= threshold {
			if terr := c.TransitionTo(persona.StateAccepted); terr == nil {
				accepted = append(accepted, c)
			}
		} else {
			if terr := c.TransitionTo(persona.StateRejected); terr == nil {
				rejected = append(rejected, c)
			}
		}
	}

	result.Duration = time.Since(start)
	result.Accepted = len(accepted)
	result.Rejected = len(rejected)
	f.metrics.observeStage(StageFilter, "ok", result.Duration)
	f.logger.Info("filter stage: %d accepted, %d rejected, %d dropped at threshold %.1f",
		len(accepted), len(rejected), result.Dropped, threshold)
	return accepted, rejected, result, nil
}

// SortByScore orders candidates by overall score descending, breaking ties by
// ID so the ordering is stable across runs.
func SortByScore(candidates []*persona.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := 0.0, 0.0
		if candidates[i].Score != nil {
			si = candidates[i].Score.Overall
		}
		if candidates[j].Score != nil {
			sj = candidates[j].Score.Overall
		}
		if si != sj {
			return si > sj
		}
		return candidates[i].ID < candidates[j].ID
	})
}

// TruncateTop returns the best n candidates by score.
func TruncateTop(candidates []*persona.Candidate, n int) []*persona.Candidate {
	out := make([]*persona.Candidate, len(candidates))
	copy(out, candidates)
	SortByScore(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
