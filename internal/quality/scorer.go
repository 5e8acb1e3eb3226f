package quality

import (
	"context"
	"strings"
	"time"

	"persona/internal/errors"
	"persona/internal/evidence"
	"persona/internal/logging"
	"persona/internal/persona"
)

// Scorer computes multi-dimensional quality scores for candidates. It holds
// the validated configuration and the evidence linker for the run's source
// data; both are read-only after construction.
type Scorer struct {
	config   Config
	registry *Registry
	linker   evidence.Linker
	logger   logging.Logger
}

// NewScorer validates cfg and builds a scorer over the default metric set.
func NewScorer(cfg Config, linker evidence.Linker, logger logging.Logger) (*Scorer, error) {
	return NewScorerWithRegistry(cfg, DefaultRegistry(), linker, logger)
}

// NewScorerWithRegistry builds a scorer with an injected metric registry.
func NewScorerWithRegistry(cfg Config, registry *Registry, linker evidence.Linker, logger logging.Logger) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{
		config:   cfg,
		registry: registry,
		linker:   linker,
		logger:   logging.OrNop(logger),
	}, nil
}

// Config returns the scorer's active configuration.
func (s *Scorer) Config() Config {
	return s.config
}

// Score evaluates one candidate against the full sibling pool and the run's
// source data. Inputs are never mutated; the returned evidence links are for
// the caller to attach. A candidate without a name is malformed input and
// yields a ScoringError, not a low score.
func (s *Scorer) Score(ctx context.Context, candidate *persona.Candidate, siblings []*persona.Candidate) (*persona.QualityScore, []persona.EvidenceLink, error) {
	if strings.TrimSpace(candidate.Name) == "" {
		return nil, nil, &errors.ScoringError{CandidateID: candidate.ID, Reason: "missing name"}
	}

	in := Input{
		Candidate: candidate,
		Siblings:  siblings,
		Linker:    s.linker,
		Config:    s.config,
	}

	dimensions := make(map[persona.Dimension]persona.DimensionScore, len(persona.Dimensions()))
	var links []persona.EvidenceLink
	overall := 0.0

	for _, metric := range s.registry.Metrics() {
		eval, err := metric.Evaluate(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		dim := metric.Dimension()
		dimensions[dim] = persona.DimensionScore{Score: eval.Score, Issues: eval.Issues}
		overall += eval.Score * s.config.Weights[dim]
		if len(eval.Links) > 0 {
			links = eval.Links
		}
	}

	overall *= 100
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	score := &persona.QualityScore{
		Overall:    overall,
		Level:      s.config.LevelFor(overall),
		Dimensions: dimensions,
		ScoredAt:   time.Now().UTC(),
	}
	s.logger.Debug("scored candidate %s: %.1f (%s)", candidate.ID, overall, score.Level)
	return score, links, nil
}
