// Package quality scores persona candidates across five dimensions and
// assigns discrete quality tiers. The dimension set is fixed; thresholds and
// weights come from an immutable Config constructed (and validated) once at
// pipeline start.
package quality

import (
	"fmt"
	"math"

	"persona/internal/errors"
	"persona/internal/persona"
)

const weightEpsilon = 1e-6

// TierBoundaries are the inclusive lower bounds of the top four quality
// tiers. A score exactly at a boundary belongs to the higher tier; anything
// below Poor is failing.
type TierBoundaries struct {
	Excellent  float64 `yaml:"excellent"`
	Good       float64 `yaml:"good"`
	Acceptable float64 `yaml:"acceptable"`
	Poor       float64 `yaml:"poor"`
}

// Config is an immutable set of scoring weights and thresholds.
type Config struct {
	// Weights per dimension, must sum to 1.0.
	Weights map[persona.Dimension]float64 `yaml:"weights"`

	// QualityThreshold is the overall score ([0,100]) at or above which a
	// candidate passes the filter.
	QualityThreshold float64 `yaml:"quality_threshold"`

	Tiers TierBoundaries `yaml:"tiers"`

	// MinGoals is the minimum goal count for full completeness credit.
	MinGoals int `yaml:"min_goals"`

	// EvidenceSimilarityThreshold is the minimum passage similarity for an
	// attribute to count as evidenced.
	EvidenceSimilarityThreshold float64 `yaml:"evidence_similarity_threshold"`

	// EvidenceCoverageMin is the evidenced-attribute fraction below which the
	// evidence dimension reports an issue.
	EvidenceCoverageMin float64 `yaml:"evidence_coverage_min"`

	// ConsistencyPenalty is subtracted from the consistency dimension per
	// violated rule, floored at zero.
	ConsistencyPenalty float64 `yaml:"consistency_penalty"`
}

// defaultWeights is shared by every preset: presets differ only in threshold
// values, never in the dimension set or its weighting.
func defaultWeights() map[persona.Dimension]float64 {
	return map[persona.Dimension]float64{
		persona.DimCompleteness:    0.25,
		persona.DimConsistency:     0.20,
		persona.DimEvidence:        0.25,
		persona.DimDistinctiveness: 0.15,
		persona.DimRealism:         0.15,
	}
}

// DefaultConfig is the balanced preset.
func DefaultConfig() Config {
	return Config{
		Weights:                     defaultWeights(),
		QualityThreshold:            70,
		Tiers:                       TierBoundaries{Excellent: 90, Good: 75, Acceptable: 60, Poor: 40},
		MinGoals:                    2,
		EvidenceSimilarityThreshold: 0.25,
		EvidenceCoverageMin:         0.6,
		ConsistencyPenalty:          0.25,
	}
}

// StrictConfig raises every threshold; weights are unchanged.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.QualityThreshold = 80
	cfg.Tiers = TierBoundaries{Excellent: 92, Good: 80, Acceptable: 70, Poor: 50}
	cfg.MinGoals = 3
	cfg.EvidenceSimilarityThreshold = 0.35
	cfg.EvidenceCoverageMin = 0.75
	return cfg
}

// LenientConfig lowers every threshold; weights are unchanged.
func LenientConfig() Config {
	cfg := DefaultConfig()
	cfg.QualityThreshold = 60
	cfg.Tiers = TierBoundaries{Excellent: 85, Good: 70, Acceptable: 50, Poor: 30}
	cfg.MinGoals = 1
	cfg.EvidenceSimilarityThreshold = 0.15
	cfg.EvidenceCoverageMin = 0.4
	return cfg
}

// Preset returns the named canonical preset.
func Preset(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "strict":
		return StrictConfig(), nil
	case "lenient":
		return LenientConfig(), nil
	}
	return Config{}, &errors.ConfigError{Field: "quality.preset", Reason: fmt.Sprintf("unknown preset %q", name)}
}

// Validate fails fast on malformed configuration, before any backend call.
func (c Config) Validate() error {
	sum := 0.0
	for _, dim := range persona.Dimensions() {
		weight, ok := c.Weights[dim]
		if !ok {
			return &errors.ConfigError{Field: "quality.weights", Reason: fmt.Sprintf("missing weight for dimension %s", dim)}
		}
		if weight < 0 {
			return &errors.ConfigError{Field: "quality.weights", Reason: fmt.Sprintf("negative weight for dimension %s", dim)}
		}
		sum += weight
	}
	if len(c.Weights) != len(persona.Dimensions()) {
		return &errors.ConfigError{Field: "quality.weights", Reason: "unknown dimension in weights"}
	}
	if math.Abs(sum-1.0) > weightEpsilon {
		return &errors.ConfigError{Field: "quality.weights", Reason: fmt.Sprintf("weights sum to %.6f, want 1.0", sum)}
	}

	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return &errors.ConfigError{Field: "quality.quality_threshold", Reason: "must be in [0,100]"}
	}
	tiers := []float64{c.Tiers.Excellent, c.Tiers.Good, c.Tiers.Acceptable, c.Tiers.Poor}
	for i, b := range tiers {
		if b <= 0 || b > 100 {
			return &errors.ConfigError{Field: "quality.tiers", Reason: "boundaries must be in (0,100]"}
		}
		if i > 0 && b >= tiers[i-1] {
			return &errors.ConfigError{Field: "quality.tiers", Reason: "boundaries must be strictly descending"}
		}
	}
	if c.MinGoals < 1 {
		return &errors.ConfigError{Field: "quality.min_goals", Reason: "must be at least 1"}
	}
	if c.EvidenceSimilarityThreshold < 0 || c.EvidenceSimilarityThreshold > 1 {
		return &errors.ConfigError{Field: "quality.evidence_similarity_threshold", Reason: "must be in [0,1]"}
	}
	if c.EvidenceCoverageMin < 0 || c.EvidenceCoverageMin > 1 {
		return &errors.ConfigError{Field: "quality.evidence_coverage_min", Reason: "must be in [0,1]"}
	}
	if c.ConsistencyPenalty <= 0 || c.ConsistencyPenalty > 1 {
		return &errors.ConfigError{Field: "quality.consistency_penalty", Reason: "must be in (0,1]"}
	}
	return nil
}

// LevelFor maps an overall score to its tier. Boundaries are inclusive-lower.
func (c Config) LevelFor(overall float64) persona.QualityLevel {
	switch {
	case overall >= c.Tiers.Excellent:
		return persona.LevelExcellent
	case overall >= c.Tiers.Good:
		return persona.LevelGood
	case overall >= c.Tiers.Acceptable:
		return persona.LevelAcceptable
	case overall >= c.Tiers.Poor:
		return persona.LevelPoor
	default:
		return persona.LevelFailing
	}
}
