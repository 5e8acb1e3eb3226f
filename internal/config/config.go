// Package config loads the run configuration from YAML with environment
// overrides. File values are merged under environment variables so secrets
// like API keys never have to live on disk.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"persona/internal/backend"
	"persona/internal/errors"
	"persona/internal/quality"
)

// BackendConfig is the YAML shape of one backend section. Pricing is given
// as decimal strings; floats would corrupt cost arithmetic on parse.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxBatch       int    `yaml:"max_batch"`
	InputPer1K     string `yaml:"input_per_1k"`
	OutputPer1K    string `yaml:"output_per_1k"`
}

// BudgetConfig bounds frontier spend for one run.
type BudgetConfig struct {
	Ceiling string `yaml:"ceiling"`
	Strict  bool   `yaml:"strict"`
}

// PipelineConfig tunes the orchestrated stages.
type PipelineConfig struct {
	TargetCount         int     `yaml:"target_count"`
	OversampleFactor    float64 `yaml:"oversample_factor"`
	MaxRefineIterations int     `yaml:"max_refine_iterations"`
	Concurrency         int     `yaml:"concurrency"`
	DraftBatchSize      int     `yaml:"draft_batch_size"`
	Temperature         float64 `yaml:"temperature"`
	MaxOutputTokens     int     `yaml:"max_output_tokens"`
}

// QualitySection selects a scoring preset, optionally overriding the pass
// threshold.
type QualitySection struct {
	Preset           string   `yaml:"preset"`
	QualityThreshold *float64 `yaml:"quality_threshold"`
}

// RetryConfig is the YAML shape of backend retry tuning.
type RetryConfig struct {
	MaxAttempts   int     `yaml:"max_attempts"`
	BaseDelayMS   int     `yaml:"base_delay_ms"`
	MaxDelayMS    int     `yaml:"max_delay_ms"`
	JitterFactor  float64 `yaml:"jitter_factor"`
	BreakerErrors int     `yaml:"breaker_errors"`
}

// Config is the full on-disk configuration.
type Config struct {
	Local    BackendConfig  `yaml:"local"`
	Frontier BackendConfig  `yaml:"frontier"`
	Budget   BudgetConfig   `yaml:"budget"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Quality  QualitySection `yaml:"quality"`
	Retry    RetryConfig    `yaml:"retry"`
	LogLevel string         `yaml:"log_level"`
}

// Default returns a runnable configuration for a stock local Ollama plus an
// OpenAI-compatible frontier endpoint. The frontier API key always comes
// from the environment.
func Default() Config {
	return Config{
		Local: BackendConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "llama3",
			TimeoutSeconds: 120,
			MaxBatch:       5,
			InputPer1K:     "0",
			OutputPer1K:    "0",
		},
		Frontier: BackendConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o",
			TimeoutSeconds: 60,
			MaxBatch:       1,
			InputPer1K:     "0.0025",
			OutputPer1K:    "0.01",
		},
		Budget: BudgetConfig{Ceiling: "5.00", Strict: false},
		Pipeline: PipelineConfig{
			TargetCount:         5,
			OversampleFactor:    2.0,
			MaxRefineIterations: 2,
			Concurrency:         3,
			DraftBatchSize:      5,
			Temperature:         0.8,
			MaxOutputTokens:     2048,
		},
		Quality: QualitySection{Preset: "default"},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelayMS:   1000,
			MaxDelayMS:    30000,
			JitterFactor:  0.25,
			BreakerErrors: 5,
		},
		LogLevel: "info",
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays PERSONA_* environment variables on file values.
func (c *Config) applyEnv() {
	setString(&c.Local.BaseURL, "PERSONA_LOCAL_BASE_URL")
	setString(&c.Local.Model, "PERSONA_LOCAL_MODEL")
	setString(&c.Frontier.BaseURL, "PERSONA_FRONTIER_BASE_URL")
	setString(&c.Frontier.Model, "PERSONA_FRONTIER_MODEL")
	setString(&c.Frontier.APIKey, "PERSONA_FRONTIER_API_KEY")
	// OPENAI_API_KEY works as a fallback so stock environments need no
	// extra setup.
	if c.Frontier.APIKey == "" {
		c.Frontier.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	setString(&c.Budget.Ceiling, "PERSONA_BUDGET_CEILING")
	setString(&c.Quality.Preset, "PERSONA_QUALITY_PRESET")
	setString(&c.LogLevel, "PERSONA_LOG_LEVEL")
	if v := os.Getenv("PERSONA_TARGET_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.TargetCount = n
		}
	}
	if v := os.Getenv("PERSONA_BUDGET_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Budget.Strict = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects configurations the pipeline cannot run with. All failures
// are ConfigError so callers can surface the offending field.
func (c *Config) Validate() error {
	if c.Local.BaseURL == "" {
		return &errors.ConfigError{Field: "local.base_url", Reason: "must not be empty"}
	}
	if c.Local.Model == "" {
		return &errors.ConfigError{Field: "local.model", Reason: "must not be empty"}
	}
	if c.Frontier.BaseURL == "" {
		return &errors.ConfigError{Field: "frontier.base_url", Reason: "must not be empty"}
	}
	if c.Frontier.Model == "" {
		return &errors.ConfigError{Field: "frontier.model", Reason: "must not be empty"}
	}
	if _, err := c.BudgetCeiling(); err != nil {
		return err
	}
	if _, err := c.LocalPricing(); err != nil {
		return err
	}
	if _, err := c.FrontierPricing(); err != nil {
		return err
	}
	if c.Pipeline.TargetCount <= 0 {
		return &errors.ConfigError{Field: "pipeline.target_count", Reason: "must be positive"}
	}
	if c.Pipeline.OversampleFactor < 1 {
		return &errors.ConfigError{Field: "pipeline.oversample_factor", Reason: "must be at least 1"}
	}
	if c.Quality.QualityThreshold != nil {
		if t := *c.Quality.QualityThreshold; t < 0 || t > 100 {
			return &errors.ConfigError{Field: "quality.quality_threshold", Reason: "must be within [0,100]"}
		}
	}
	return nil
}

// BudgetCeiling parses the budget ceiling as fixed-point decimal.
func (c *Config) BudgetCeiling() (decimal.Decimal, error) {
	ceiling, err := decimal.NewFromString(c.Budget.Ceiling)
	if err != nil {
		return decimal.Zero, &errors.ConfigError{Field: "budget.ceiling", Reason: "not a decimal: " + c.Budget.Ceiling}
	}
	if ceiling.IsNegative() {
		return decimal.Zero, &errors.ConfigError{Field: "budget.ceiling", Reason: "must not be negative"}
	}
	return ceiling, nil
}

// LocalPricing parses the local backend's pricing strings.
func (c *Config) LocalPricing() (backend.Pricing, error) {
	return parsePricing("local", c.Local)
}

// FrontierPricing parses the frontier backend's pricing strings.
func (c *Config) FrontierPricing() (backend.Pricing, error) {
	return parsePricing("frontier", c.Frontier)
}

func parsePricing(section string, bc BackendConfig) (backend.Pricing, error) {
	input, err := decimal.NewFromString(bc.InputPer1K)
	if err != nil {
		return backend.Pricing{}, &errors.ConfigError{Field: section + ".input_per_1k", Reason: "not a decimal: " + bc.InputPer1K}
	}
	output, err := decimal.NewFromString(bc.OutputPer1K)
	if err != nil {
		return backend.Pricing{}, &errors.ConfigError{Field: section + ".output_per_1k", Reason: "not a decimal: " + bc.OutputPer1K}
	}
	return backend.Pricing{InputPer1K: input, OutputPer1K: output}, nil
}

// QualityConfig resolves the selected preset with any threshold override.
func (c *Config) QualityConfig() (quality.Config, error) {
	qc, err := quality.Preset(c.Quality.Preset)
	if err != nil {
		return quality.Config{}, err
	}
	if c.Quality.QualityThreshold != nil {
		qc.QualityThreshold = *c.Quality.QualityThreshold
	}
	return qc, nil
}

// RetrySettings converts the YAML retry section into retry tuning.
func (c *Config) RetrySettings() errors.RetryConfig {
	rc := errors.DefaultRetryConfig()
	if c.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.BaseDelayMS > 0 {
		rc.BaseDelay = time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
	}
	if c.Retry.MaxDelayMS > 0 {
		rc.MaxDelay = time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
	}
	if c.Retry.JitterFactor > 0 {
		rc.JitterFactor = c.Retry.JitterFactor
	}
	return rc
}

// BackendConfigFor converts a YAML backend section into the client config.
func (c *Config) BackendConfigFor(role backend.Role) (backend.Config, error) {
	var bc BackendConfig
	var pricing backend.Pricing
	var err error
	switch role {
	case backend.RoleLocal:
		bc = c.Local
		pricing, err = c.LocalPricing()
	case backend.RoleFrontier:
		bc = c.Frontier
		pricing, err = c.FrontierPricing()
	default:
		return backend.Config{}, &errors.ConfigError{Field: "role", Reason: "unknown backend role " + string(role)}
	}
	if err != nil {
		return backend.Config{}, err
	}
	return backend.Config{
		BaseURL:  bc.BaseURL,
		APIKey:   bc.APIKey,
		Model:    bc.Model,
		Timeout:  time.Duration(bc.TimeoutSeconds) * time.Second,
		MaxBatch: bc.MaxBatch,
		Pricing:  pricing,
	}, nil
}
