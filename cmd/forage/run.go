package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/entrhq/forage/pkg/agent"
	"github.com/entrhq/forage/pkg/browser"
	"github.com/entrhq/forage/pkg/config"
	"github.com/entrhq/forage/pkg/executor/headless"
	"github.com/entrhq/forage/pkg/llm/openai"
	"github.com/entrhq/forage/pkg/llm/tokenizer"
	"github.com/entrhq/forage/pkg/logging"
	"github.com/entrhq/forage/pkg/metrics"
	browsertools "github.com/entrhq/forage/pkg/tools/browser"
)

type runFlags struct {
	jsonOutput   bool
	progress     string
	noColor      bool
	metricsAddr  string
	artifactsDir string
	instructions string
}

func newRunCommand(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Research a task in the browser and print the answer",
		Long: `Run plans browser actions for the task until the planner answers or a
budget is exhausted, then prints the answer together with its sources.

Examples:
  forage run "When was Go 1.24 released?"
  forage run --json "Compare the pricing of the three largest CDNs"
  forage run --progress verbose --artifacts ./runs "Summarize the latest kernel release notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			return runTask(cmd.Context(), cfg, flags, strings.Join(args, " "))
		},
	}

	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "print the result as JSON on stdout")
	cmd.Flags().StringVar(&flags.progress, "progress", "normal", "progress output: quiet, normal, verbose or debug")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored progress output")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	cmd.Flags().StringVar(&flags.artifactsDir, "artifacts", "", "write JSON and markdown run records to this directory")
	cmd.Flags().StringVar(&flags.instructions, "instructions", "", "extra instructions appended to the system prompt")
	return cmd
}

//nolint:gocyclo
func runTask(ctx context.Context, cfg *config.Config, flags *runFlags, task string) error {
	// A file logging failure falls back to stderr and has already been logged.
	logger, closeLog, _ := logging.New(cfg.Logging)
	defer func() { _ = closeLog() }()
	cliLogger := logging.Component(logger, "cli")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)

	addr := flags.metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := serveMetrics(addr, reg, cliLogger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	provider, err := openai.NewProvider(cfg.Planner, logger)
	if err != nil {
		return fmt.Errorf("failed to create planner: %w", err)
	}

	tok, err := tokenizer.New(cfg.Planner.Model)
	if err != nil {
		cliLogger.Debug("No tokenizer for model, prompt sizes will not be logged", zap.Error(err))
		tok = nil
	}

	pool := browser.NewPool(browser.NewPlaywrightEngine(cfg.Browser), cfg.Browser.MaxSessions, logger, collector)

	executor := browsertools.NewExecutor(cfg.Tools,
		browsertools.WithAnalyzer(provider),
		browsertools.WithMetrics(collector),
		browsertools.WithLogger(logger))

	summarizer := agent.NewSummarizer(provider, cfg.Summarizer, logger, collector)

	loopOpts := []agent.LoopOption{
		agent.WithLogger(logger),
		agent.WithMetrics(collector),
		agent.WithTokenizer(tok),
		agent.WithSummarizer(summarizer),
		agent.WithLimits(cfg.Accumulator),
		agent.WithTranscriptOptions(cfg.Transcript),
		agent.WithCustomInstructions(flags.instructions),
	}

	var progress *headless.Progress
	if !flags.jsonOutput {
		progress = headless.NewProgress(os.Stderr, headless.ParseLogLevel(flags.progress), !flags.noColor)
		loopOpts = append(loopOpts, agent.WithEventHandler(progress.Handle))
	}
	loop := agent.NewLoop(provider, executor, loopOpts...)

	artifacts := cfg.Artifacts
	if flags.artifactsDir != "" {
		artifacts.Enabled = true
		artifacts.OutputDir = flags.artifactsDir
	}
	if err := artifacts.Validate(); err != nil {
		return fmt.Errorf("invalid artifact settings: %w", err)
	}

	svc, err := headless.New(pool, loop, cfg.Budgets,
		headless.WithLogger(logger),
		headless.WithMetrics(collector),
		headless.WithArtifacts(artifacts))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer func() {
		if err := svc.Shutdown(); err != nil {
			cliLogger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()

	if progress != nil {
		progress.Header(fmt.Sprintf("Forage v%s  •  %s", version, provider.Model()))
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	defer cancel()

	res, err := svc.Run(ctx, task)
	if err != nil {
		return err
	}

	if progress != nil {
		progress.Summary(task, res)
	}
	return writeResult(os.Stdout, res, flags.jsonOutput)
}

// errNoAnswer makes the process exit non-zero when a run did not succeed.
var errNoAnswer = errors.New("no answer could be produced")

// writeResult prints the answer, or the whole result as JSON, and reports
// errNoAnswer for unsuccessful runs in either format.
func writeResult(w io.Writer, res *agent.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		fmt.Fprintln(w, res.Response)
	}
	if !res.Success {
		return errNoAnswer
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))
	return srv
}
