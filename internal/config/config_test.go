package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	ceiling, err := cfg.BudgetCeiling()
	require.NoError(t, err)
	assert.True(t, ceiling.Equal(decimal.RequireFromString("5.00")))
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
local:
  model: mistral
budget:
  ceiling: "2.50"
  strict: true
pipeline:
  target_count: 8
  oversample_factor: 1.5
quality:
  preset: strict
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mistral", cfg.Local.Model)
	// Untouched sections keep their defaults.
	assert.Equal(t, "http://localhost:11434", cfg.Local.BaseURL)
	assert.True(t, cfg.Budget.Strict)
	assert.Equal(t, 8, cfg.Pipeline.TargetCount)

	qc, err := cfg.QualityConfig()
	require.NoError(t, err)
	assert.InDelta(t, 80.0, qc.QualityThreshold, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
frontier:
  model: gpt-4o
budget:
  ceiling: "9.00"
`)
	t.Setenv("PERSONA_FRONTIER_MODEL", "gpt-4.1")
	t.Setenv("PERSONA_BUDGET_CEILING", "1.25")
	t.Setenv("PERSONA_FRONTIER_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1", cfg.Frontier.Model)
	assert.Equal(t, "sk-test", cfg.Frontier.APIKey)
	ceiling, err := cfg.BudgetCeiling()
	require.NoError(t, err)
	assert.True(t, ceiling.Equal(decimal.RequireFromString("1.25")))
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
		field string
	}{
		{"non-decimal ceiling", "budget:\n  ceiling: lots\n", "budget.ceiling"},
		{"negative ceiling", "budget:\n  ceiling: \"-1\"\n", "budget.ceiling"},
		{"bad pricing", "frontier:\n  input_per_1k: cheap\n", "frontier.input_per_1k"},
		{"zero target", "pipeline:\n  target_count: 0\n", "pipeline.target_count"},
		{"oversample below one", "pipeline:\n  oversample_factor: 0.5\n", "pipeline.oversample_factor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			var cerr *errors.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestQualityThresholdOverride(t *testing.T) {
	path := writeConfig(t, `
quality:
  preset: default
  quality_threshold: 85
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	qc, err := cfg.QualityConfig()
	require.NoError(t, err)
	assert.InDelta(t, 85.0, qc.QualityThreshold, 0.001)
}
