package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"leasesum/internal/aggregator"
	"leasesum/internal/domain"
	"leasesum/internal/metrics"
	"leasesum/internal/port"
	"leasesum/internal/processor"
	"leasesum/internal/report"
	"leasesum/internal/resilience"
)

// PipelineConfig holds the already-resolved settings of one run.
type PipelineConfig struct {
	Concurrency int
	MergePolicy domain.MergePolicy
	GroupBy     string
	MaxCostUSD  float64
	Formats     []string
}

// Sinks are the optional destinations of a finished run. Nil members are skipped.
type Sinks struct {
	Stores   []port.ArtifactStore
	Runs     port.RunRepository
	Notifier port.RunNotifier
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	Stats     domain.RunStats
	Records   []domain.LeaseRecord
	Aggregate *domain.AggregateReport
	Artifacts *report.Artifacts
	// CostLimitReached is set when the estimated cost stopped the run early.
	CostLimitReached bool
	Cancelled        bool
}

// PipelineService defines the extraction run contract.
type PipelineService interface {
	Run(ctx context.Context, docs []domain.Document, prompts []domain.PromptSpec) (*RunResult, error)
	RunFromSources(ctx context.Context, docs port.DocumentSource, prompts port.PromptSource) (*RunResult, error)
	Publish(ctx context.Context, result *RunResult) ([]PublishedArtifact, error)
}

type pipelineService struct {
	extractor port.FieldExtractor
	executor  *resilience.Executor
	cfg       PipelineConfig
	sinks     Sinks
	metrics   *metrics.RunMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipelineService creates a new PipelineService implementation.
func NewPipelineService(
	extractor port.FieldExtractor,
	executor *resilience.Executor,
	cfg PipelineConfig,
	sinks Sinks,
	runMetrics *metrics.RunMetrics,
	logger *zap.Logger,
) PipelineService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pipelineService{
		extractor: extractor,
		executor:  executor,
		cfg:       cfg,
		sinks:     sinks,
		metrics:   runMetrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ValidateInputs rejects prompt and document sets that cannot form a run.
func ValidateInputs(docs []domain.Document, prompts []domain.PromptSpec) error {
	if len(prompts) == 0 {
		return domain.NewConfigurationError("at least one prompt is required")
	}
	seen := make(map[string]bool, len(prompts))
	for i, p := range prompts {
		if p.ID == "" {
			return domain.NewConfigurationError("prompt %d has an empty id", i)
		}
		if seen[p.ID] {
			return domain.NewConfigurationError("duplicate prompt id %q", p.ID)
		}
		seen[p.ID] = true
	}
	docIDs := make(map[string]bool, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return domain.NewConfigurationError("document %d has an empty id", i)
		}
		if docIDs[d.ID] {
			return domain.NewConfigurationError("duplicate document id %q", d.ID)
		}
		docIDs[d.ID] = true
	}
	return nil
}

func (s *pipelineService) RunFromSources(ctx context.Context, docs port.DocumentSource, prompts port.PromptSource) (*RunResult, error) {
	specs, err := prompts.Prompts(ctx)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, domain.NewConfigurationError("at least one prompt is required")
	}
	documents, err := docs.Documents(ctx)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, documents, specs)
}

// Run processes every document against every prompt with bounded concurrency.
// Configuration errors are returned before any extraction. Cancellation of ctx,
// or the cost limit, stops dispatch; records finalized so far are kept and the
// result is still assembled.
func (s *pipelineService) Run(ctx context.Context, docs []domain.Document, prompts []domain.PromptSpec) (*RunResult, error) {
	if err := ValidateInputs(docs, prompts); err != nil {
		return nil, err
	}

	stats := domain.RunStats{
		RunID:          uuid.New(),
		StartedAt:      s.now(),
		TotalDocuments: len(docs),
		TotalPrompts:   len(prompts),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	guard := newCostGuard(s.extractor, s.cfg.MaxCostUSD, cancel, s.metrics, s.logger)
	proc := processor.New(guard, s.executor, s.cfg.MergePolicy, s.logger)

	s.logger.Info("pipelineService.Run: starting",
		zap.String("run_id", stats.RunID.String()),
		zap.Int("documents", len(docs)),
		zap.Int("prompts", len(prompts)),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	results := make([]*domain.LeaseRecord, len(docs))
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

dispatch:
	for i := range docs {
		select {
		case <-runCtx.Done():
			break dispatch
		case sem <- struct{}{}: // acquire
		}
		if runCtx.Err() != nil {
			<-sem
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }() // release

			s.metrics.StartDocument()
			start := time.Now()
			rec := proc.Process(runCtx, docs[i], prompts)
			s.metrics.FinishDocument(&rec, time.Since(start))
			results[i] = &rec

			s.logger.Debug("pipelineService.Run: document finalized",
				zap.String("document", rec.DocumentID),
				zap.Int("fields", len(rec.Fields)),
				zap.Bool("interrupted", rec.Interrupted),
			)
		}(i)
	}
	wg.Wait()

	result := &RunResult{
		CostLimitReached: guard.tripped(),
		Cancelled:        ctx.Err() != nil,
	}

	var completed []domain.LeaseRecord
	for i, rec := range results {
		if rec == nil {
			stats.Interrupted = append(stats.Interrupted, docs[i].ID)
			continue
		}
		result.Records = append(result.Records, *rec)
		if rec.Interrupted {
			stats.Interrupted = append(stats.Interrupted, rec.DocumentID)
		} else {
			completed = append(completed, *rec)
		}
		countOutcomes(&stats, rec)
	}
	sort.Strings(stats.Interrupted)
	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].DocumentID < result.Records[j].DocumentID
	})

	stats.Usage, stats.EstimatedCostUSD = guard.totals()
	stats.FinishedAt = s.now()
	result.Stats = stats

	agg, err := aggregator.Aggregate(completed, aggregator.Options{GroupBy: s.cfg.GroupBy})
	if err != nil {
		return result, err
	}
	result.Aggregate = agg
	result.Artifacts = report.Assemble(result.Records, agg, &result.Stats)
	result.Stats.Failures = result.Artifacts.Aggregate.Failures

	s.logger.Info("pipelineService.Run: finished",
		zap.String("run_id", stats.RunID.String()),
		zap.Int("processed", stats.Processed),
		zap.Int("successful", stats.Successful),
		zap.Int("errors", stats.Errors),
		zap.Int("interrupted", len(stats.Interrupted)),
		zap.Float64("estimated_cost_usd", stats.EstimatedCostUSD),
		zap.Duration("duration", stats.Duration()),
	)
	return result, nil
}

func countOutcomes(stats *domain.RunStats, rec *domain.LeaseRecord) {
	for _, p := range rec.Provenance {
		switch p.Status {
		case domain.ExtractionStatusSkipped:
		case domain.ExtractionStatusSuccess:
			stats.Processed++
			stats.Successful++
		default:
			stats.Processed++
			stats.Errors++
		}
	}
}
