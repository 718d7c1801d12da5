package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"leasesum/internal/config"
	"leasesum/internal/domain"
	"leasesum/internal/email/noop"
	"leasesum/internal/email/ses"
	"leasesum/internal/extractor"
	"leasesum/internal/llm"
	"leasesum/internal/llm/claude"
	"leasesum/internal/llm/gemini"
	"leasesum/internal/llm/openai"
	"leasesum/internal/metrics"
	"leasesum/internal/port"
	"leasesum/internal/repository/postgres"
	"leasesum/internal/resilience"
	"leasesum/internal/service"
	"leasesum/internal/storage/local"
	s3storage "leasesum/internal/storage/s3"
	"leasesum/internal/validator"
)

// app holds the wired dependencies of one invocation.
type app struct {
	pipeline service.PipelineService
	metrics  *metrics.RunMetrics
	db       *sqlx.DB
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func registerProviders() {
	llm.RegisterProvider("openai", openai.Factory)
	llm.RegisterProvider("claude", claude.Factory)
	llm.RegisterProvider("gemini", gemini.Factory)
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	registerProviders()

	completer, err := llm.NewChain(&cfg.LLM, llm.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize extraction service: %w", err)
	}

	policy, err := domain.ParseMergePolicy(cfg.Pipeline.MergePolicy)
	if err != nil {
		return nil, err
	}

	a := &app{metrics: metrics.NewRunMetrics()}

	sinks, err := buildSinks(cfg, logger, a)
	if err != nil {
		a.close()
		return nil, err
	}

	a.pipeline = service.NewPipelineService(
		extractor.New(completer, validator.DefaultRegistry(), logger),
		resilience.NewExecutor(resilience.FromPipeline(cfg.Pipeline), logger),
		service.PipelineConfig{
			Concurrency: cfg.Pipeline.Concurrency,
			MergePolicy: policy,
			GroupBy:     cfg.Pipeline.GroupBy,
			MaxCostUSD:  cfg.Pipeline.MaxCostUSD,
			Formats:     cfg.Output.Formats,
		},
		sinks,
		a.metrics,
		logger,
	)
	return a, nil
}

func buildSinks(cfg *config.Config, logger *zap.Logger, a *app) (service.Sinks, error) {
	var sinks service.Sinks

	localStore, err := local.New(cfg.Output.Dir)
	if err != nil {
		return sinks, fmt.Errorf("failed to initialize output dir: %w", err)
	}
	sinks.Stores = append(sinks.Stores, localStore)

	if cfg.Output.UploadS3 {
		s3Client, err := s3storage.NewS3Client(&cfg.S3)
		if err != nil {
			return sinks, fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		sinks.Stores = append(sinks.Stores, s3Client)
	}

	if cfg.DB.Enabled {
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return sinks, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		sinks.Runs = postgres.NewRunRepo(db)
	}

	var notifier port.RunNotifier
	switch cfg.Email.Provider {
	case "ses":
		notifier, err = ses.NewSESSender(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.FromName, cfg.Email.Recipients)
		if err != nil {
			return sinks, fmt.Errorf("failed to initialize SES: %w", err)
		}
	default:
		notifier = noop.NewNoopSender(logger)
	}
	sinks.Notifier = notifier
	return sinks, nil
}
