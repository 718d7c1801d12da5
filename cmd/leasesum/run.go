package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leasesum/internal/config"
	"leasesum/internal/domain"
	"leasesum/internal/service"
	"leasesum/internal/source/fs"
)

// runFlags are command-line overrides of the loaded configuration.
type runFlags struct {
	configFile  string
	leaseDir    string
	promptDir   string
	outputDir   string
	formats     []string
	model       string
	maxCost     float64
	concurrency int
	groupBy     string
	mergePolicy string
	metricsAddr string
}

var flags runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every lease with every prompt and write the reports",
	RunE:  runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&flags.configFile, "config", "", "config file (yaml, toml or json)")
	f.StringVar(&flags.leaseDir, "lease-dir", "", "directory of lease documents")
	f.StringVar(&flags.promptDir, "prompt-dir", "", "directory of prompt templates")
	f.StringVar(&flags.outputDir, "output-dir", "", "directory for report artifacts")
	f.StringSliceVar(&flags.formats, "formats", nil, "artifact formats: json, markdown, csv, xlsx")
	f.StringVar(&flags.model, "model", "", "model of the primary provider")
	f.Float64Var(&flags.maxCost, "max-cost", 0, "stop issuing requests once the estimated cost in USD exceeds this")
	f.IntVar(&flags.concurrency, "concurrency", 0, "documents processed in parallel")
	f.StringVar(&flags.groupBy, "group-by", "", "field to group the aggregate report by")
	f.StringVar(&flags.mergePolicy, "merge-policy", "", "field collision policy: last_writer, first_writer or error")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	rootCmd.AddCommand(runCmd)
}

// applyFlags overrides cfg with every flag the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config, rf runFlags) {
	changed := cmd.Flags().Changed
	if changed("lease-dir") {
		cfg.Source.LeaseDir = rf.leaseDir
	}
	if changed("prompt-dir") {
		cfg.Source.PromptDir = rf.promptDir
	}
	if changed("output-dir") {
		cfg.Output.Dir = rf.outputDir
	}
	if changed("formats") {
		cfg.Output.Formats = rf.formats
	}
	if changed("model") {
		cfg.LLM.Primary.DefaultModel = rf.model
	}
	if changed("max-cost") {
		cfg.Pipeline.MaxCostUSD = rf.maxCost
	}
	if changed("concurrency") {
		cfg.Pipeline.Concurrency = rf.concurrency
	}
	if changed("group-by") {
		cfg.Pipeline.GroupBy = rf.groupBy
	}
	if changed("merge-policy") {
		cfg.Pipeline.MergePolicy = rf.mergePolicy
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = rf.metricsAddr
	}
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(app), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := app.pipeline.RunFromSources(ctx,
		fs.NewDocumentSource(cfg.Source.LeaseDir, logger),
		fs.NewPromptSource(cfg.Source.PromptDir, logger),
	)
	if err != nil {
		if domain.IsKind(err, domain.ErrConfiguration) {
			return err
		}
		return fmt.Errorf("run failed: %w", err)
	}

	// Publish with a fresh context so an interrupted run still writes its partial reports.
	publishCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	published, pubErr := app.pipeline.Publish(publishCtx, result)

	printSummary(cmd, result, published)
	if pubErr != nil {
		return fmt.Errorf("publishing artifacts: %w", pubErr)
	}
	return nil
}

func metricsMux(app *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	return mux
}

func printSummary(cmd *cobra.Command, result *service.RunResult, published []service.PublishedArtifact) {
	st := result.Stats
	cmd.Printf("Processed %d of %d combinations: %d successful, %d errors\n",
		st.Processed, st.TotalDocuments*st.TotalPrompts, st.Successful, st.Errors)
	cmd.Printf("Tokens: %d in / %d out, estimated cost $%.4f\n",
		st.Usage.InputTokens, st.Usage.OutputTokens, st.EstimatedCostUSD)
	switch {
	case result.CostLimitReached:
		cmd.Printf("Stopped early: cost limit reached. %d documents incomplete.\n", len(st.Interrupted))
	case result.Cancelled:
		cmd.Printf("Interrupted: %d documents incomplete.\n", len(st.Interrupted))
	}
	for _, f := range st.Failures {
		cmd.Printf("  failed %s / %s (%s): %s\n", f.DocumentID, f.PromptID, f.Status, f.Reason)
	}
	for _, p := range published {
		cmd.Printf("Wrote %s\n", p.Location)
	}
}
