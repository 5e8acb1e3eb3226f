package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	chromem "github.com/philippgille/chromem-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"persona/internal/async"
	"persona/internal/backend"
	"persona/internal/budget"
	"persona/internal/config"
	"persona/internal/errors"
	"persona/internal/evidence"
	"persona/internal/logging"
	"persona/internal/pipeline"
	"persona/internal/quality"
	"persona/internal/report"
)

func newGenerateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the draft-filter-refine pipeline against research data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, v)
		},
	}

	cmd.Flags().StringSliceP("input", "i", nil, "research data files (text, or a YAML corpus)")
	cmd.Flags().StringP("output", "o", "", "write the JSON report to this path (default: stdout summary only)")
	cmd.Flags().IntP("target", "n", 0, "number of personas to deliver")
	cmd.Flags().Float64("oversample", 0, "draft this multiple of the target")
	cmd.Flags().String("budget", "", "frontier spend ceiling, e.g. 2.50")
	cmd.Flags().Bool("strict-budget", false, "refuse any spend past the ceiling instead of flagging it")
	cmd.Flags().String("preset", "", "quality preset: default, strict or lenient")
	cmd.Flags().Float64("threshold", -1, "override the quality pass threshold [0,100]")
	cmd.Flags().Int("iterations", 0, "max refinement attempts per candidate")
	cmd.Flags().Int("concurrency", 0, "max concurrent backend calls per stage")
	cmd.Flags().Bool("semantic-evidence", false, "link evidence with Ollama embeddings instead of lexical overlap")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9290")
	_ = cmd.MarkFlagRequired("input")

	_ = v.BindPFlag("input", cmd.Flags().Lookup("input"))
	_ = v.BindPFlag("target", cmd.Flags().Lookup("target"))
	_ = v.BindPFlag("budget", cmd.Flags().Lookup("budget"))
	_ = v.BindPFlag("preset", cmd.Flags().Lookup("preset"))
	return cmd
}

func runGenerate(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()

	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return err
	}
	applyFlagOverrides(&cfg, cmd, v)

	logger := buildLogger(cfg, v)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, _ := flags.GetStringSlice("input")
	source, err := loadSource(inputs)
	if err != nil {
		return err
	}

	linker, err := buildLinker(ctx, cmd, &cfg, source, logger)
	if err != nil {
		return err
	}

	qcfg, err := cfg.QualityConfig()
	if err != nil {
		return err
	}
	scorer, err := quality.NewScorer(qcfg, linker, logger)
	if err != nil {
		return err
	}

	ceiling, err := cfg.BudgetCeiling()
	if err != nil {
		return err
	}
	tracker := budget.NewTracker(ceiling, cfg.Budget.Strict, logger)

	backends, err := buildBackends(&cfg)
	if err != nil {
		return err
	}

	var metrics *pipeline.Metrics
	if addr, _ := flags.GetString("metrics-addr"); addr != "" {
		metrics = pipeline.MustNewMetrics(prometheus.DefaultRegisterer)
		async.Go(logger, "metrics-server", func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if serveErr := http.ListenAndServe(addr, mux); serveErr != nil {
				logger.Error("metrics server: %v", serveErr)
			}
		})
	}

	orch, err := pipeline.NewOrchestrator(pipeline.Options{
		TargetCount:         cfg.Pipeline.TargetCount,
		OversampleFactor:    cfg.Pipeline.OversampleFactor,
		MaxRefineIterations: cfg.Pipeline.MaxRefineIterations,
		Concurrency:         cfg.Pipeline.Concurrency,
		DraftBatchSize:      cfg.Pipeline.DraftBatchSize,
		Temperature:         cfg.Pipeline.Temperature,
		MaxOutputTokens:     cfg.Pipeline.MaxOutputTokens,
	}, backends, backend.NewEstimator(), scorer, tracker, logger, metrics)
	if err != nil {
		return err
	}

	run, runErr := orch.Run(ctx, source)

	// The report is written even for failed or interrupted runs: whatever
	// the pipeline produced before stopping is still worth inspecting.
	rep := report.Build(run)
	if path, _ := flags.GetString("output"); path != "" {
		file, ferr := os.Create(path)
		if ferr != nil {
			return fmt.Errorf("create report %s: %w", path, ferr)
		}
		defer file.Close()
		if werr := (&report.JSONWriter{Out: file}).Write(rep); werr != nil {
			return werr
		}
	}
	if werr := (&report.TerminalWriter{Out: cmd.OutOrStdout()}).Write(rep); werr != nil {
		return werr
	}
	return runErr
}

// applyFlagOverrides layers explicit CLI flags over file and env config.
func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	if n := v.GetInt("target"); n > 0 {
		cfg.Pipeline.TargetCount = n
	}
	if f, _ := flags.GetFloat64("oversample"); f >= 1 {
		cfg.Pipeline.OversampleFactor = f
	}
	if b := v.GetString("budget"); b != "" {
		cfg.Budget.Ceiling = b
	}
	if strict, _ := flags.GetBool("strict-budget"); strict {
		cfg.Budget.Strict = true
	}
	if p := v.GetString("preset"); p != "" {
		cfg.Quality.Preset = p
	}
	if t, _ := flags.GetFloat64("threshold"); t >= 0 {
		cfg.Quality.QualityThreshold = &t
	}
	if n, _ := flags.GetInt("iterations"); n > 0 {
		cfg.Pipeline.MaxRefineIterations = n
	}
	if n, _ := flags.GetInt("concurrency"); n > 0 {
		cfg.Pipeline.Concurrency = n
	}
	if lvl := v.GetString("log_level"); lvl != "" {
		cfg.LogLevel = lvl
	}
}

func buildLogger(cfg config.Config, v *viper.Viper) logging.Logger {
	if v.GetBool("verbose") {
		return logging.NewWriterLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel), "cli")
	}
	return logging.NewComponentLogger("cli")
}

// buildBackends wires both generators with retry and per-backend circuit
// breakers. The local and frontier breakers are independent: a dead Ollama
// must not block frontier refinement, and vice versa.
func buildBackends(cfg *config.Config) (pipeline.Backends, error) {
	localCfg, err := cfg.BackendConfigFor(backend.RoleLocal)
	if err != nil {
		return pipeline.Backends{}, err
	}
	frontierCfg, err := cfg.BackendConfigFor(backend.RoleFrontier)
	if err != nil {
		return pipeline.Backends{}, err
	}

	retryCfg := cfg.RetrySettings()
	breakerCfg := errors.DefaultCircuitBreakerConfig()
	if cfg.Retry.BreakerErrors > 0 {
		breakerCfg.FailureThreshold = cfg.Retry.BreakerErrors
	}

	local := backend.NewRetryGenerator(
		backend.NewLocalClient(localCfg),
		retryCfg,
		errors.NewCircuitBreaker("local", breakerCfg),
	)
	frontier := backend.NewRetryGenerator(
		backend.NewFrontierClient(frontierCfg),
		retryCfg,
		errors.NewCircuitBreaker("frontier", breakerCfg),
	)

	return pipeline.Backends{
		Local:           local,
		LocalPricing:    localCfg.Pricing,
		Frontier:        frontier,
		FrontierPricing: frontierCfg.Pricing,
	}, nil
}

// buildLinker picks the evidence linker. Lexical matching is the default:
// it is deterministic and needs no extra model. Semantic linking embeds the
// source passages through the local Ollama instance.
func buildLinker(ctx context.Context, cmd *cobra.Command, cfg *config.Config, source *evidence.SourceData, logger logging.Logger) (evidence.Linker, error) {
	semantic, _ := cmd.Flags().GetBool("semantic-evidence")
	if !semantic {
		return evidence.NewLexicalLinker(source), nil
	}
	embed := chromem.NewEmbeddingFuncOllama("nomic-embed-text", cfg.Local.BaseURL+"/api")
	linker, err := evidence.NewEmbeddingLinker(ctx, source, embed)
	if err != nil {
		logger.Warn("semantic evidence unavailable, falling back to lexical: %v", err)
		return evidence.NewLexicalLinker(source), nil
	}
	return linker, nil
}
