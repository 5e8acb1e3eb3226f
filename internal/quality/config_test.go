package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona/internal/errors"
	"persona/internal/persona"
)

func TestPresetsAreValid(t *testing.T) {
	for _, name := range []string{"default", "strict", "lenient"} {
		cfg, err := Preset(name)
		require.NoError(t, err, name)
		assert.NoError(t, cfg.Validate(), name)
	}

	_, err := Preset("bogus")
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestPresetsDifferOnlyInThresholds(t *testing.T) {
	def, strict, lenient := DefaultConfig(), StrictConfig(), LenientConfig()
	assert.Equal(t, def.Weights, strict.Weights)
	assert.Equal(t, def.Weights, lenient.Weights)
	assert.Greater(t, strict.QualityThreshold, def.QualityThreshold)
	assert.Less(t, lenient.QualityThreshold, def.QualityThreshold)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[persona.DimRealism] = 0.5 // sum now > 1
	var cfgErr *errors.ConfigError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "quality.weights", cfgErr.Field)

	cfg = DefaultConfig()
	delete(cfg.Weights, persona.DimEvidence)
	assert.ErrorAs(t, cfg.Validate(), &cfgErr)

	cfg = DefaultConfig()
	cfg.Weights[persona.DimEvidence] = -0.25
	cfg.Weights[persona.DimCompleteness] = 0.75
	assert.ErrorAs(t, cfg.Validate(), &cfgErr)
}

func TestValidateRejectsInvertedTiers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tiers = TierBoundaries{Excellent: 60, Good: 75, Acceptable: 50, Poor: 40}
	var cfgErr *errors.ConfigError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "quality.tiers", cfgErr.Field)
}

func TestLevelForInclusiveLowerBoundaries(t *testing.T) {
	cfg := DefaultConfig() // tiers 90/75/60/40

	// A score exactly at a boundary belongs to the higher tier.
	assert.Equal(t, persona.LevelExcellent, cfg.LevelFor(90))
	assert.Equal(t, persona.LevelGood, cfg.LevelFor(89.999))
	assert.Equal(t, persona.LevelGood, cfg.LevelFor(75))
	assert.Equal(t, persona.LevelAcceptable, cfg.LevelFor(60))
	assert.Equal(t, persona.LevelPoor, cfg.LevelFor(40))
	assert.Equal(t, persona.LevelFailing, cfg.LevelFor(39.999))
}

func TestLevelForMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	rank := map[persona.QualityLevel]int{
		persona.LevelFailing:    0,
		persona.LevelPoor:       1,
		persona.LevelAcceptable: 2,
		persona.LevelGood:       3,
		persona.LevelExcellent:  4,
	}
	prev := -1
	for score := 0.0; score <= 100; score += 0.5 {
		r := rank[cfg.LevelFor(score)]
		assert.GreaterOrEqual(t, r, prev, "tier dropped at score %.1f", score)
		prev = r
	}
}
