package processor

import (
	"context"

	"go.uber.org/zap"

	"leasesum/internal/domain"
	"leasesum/internal/llm"
	"leasesum/internal/port"
	"leasesum/internal/resilience"
)

// Processor drives every prompt against one document and merges the results.
type Processor struct {
	extractor port.FieldExtractor
	executor  *resilience.Executor
	policy    domain.MergePolicy
	logger    *zap.Logger
}

// New creates a Processor. A nil executor means a single attempt per prompt.
func New(extractor port.FieldExtractor, executor *resilience.Executor, policy domain.MergePolicy, logger *zap.Logger) *Processor {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1}, logger)
	}
	if policy == "" {
		policy = domain.MergeLastWriter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{extractor: extractor, executor: executor, policy: policy, logger: logger}
}

// Process applies prompts to doc in order and returns the finalized record.
// The record always has one provenance entry per prompt. If ctx is cancelled,
// prompts not yet attempted are recorded as skipped and the record is marked
// interrupted.
func (p *Processor) Process(ctx context.Context, doc domain.Document, prompts []domain.PromptSpec) domain.LeaseRecord {
	record := domain.LeaseRecord{
		DocumentID: doc.ID,
		Fields:     make(map[string]string),
		Provenance: make([]domain.ProvenanceEntry, 0, len(prompts)),
	}
	m := newMerger(p.policy, &record)

	for _, prompt := range prompts {
		if ctx.Err() != nil {
			record.Interrupted = true
			record.Provenance = append(record.Provenance, skippedEntry(prompt))
			continue
		}

		result, attempts := p.extract(ctx, doc, prompt)
		if attempts == 0 && ctx.Err() != nil {
			record.Interrupted = true
			record.Provenance = append(record.Provenance, skippedEntry(prompt))
			continue
		}
		if result.Status == domain.ExtractionStatusServiceError && ctx.Err() != nil {
			record.Interrupted = true
		}

		entry := domain.ProvenanceEntry{
			PromptID:   prompt.ID,
			PromptName: prompt.DisplayName(),
			Status:     result.Status,
			Attempts:   attempts,
			Raw:        result.Raw,
			Model:      result.Model,
			Usage:      result.Usage,
			Fields:     provenanceFields(result.Fields),
		}
		if result.Err != nil {
			entry.Error = result.Err.Error()
		}
		record.Provenance = append(record.Provenance, entry)

		if result.Status != domain.ExtractionStatusSuccess {
			p.logger.Info("processor.Process: prompt failed",
				zap.String("document_id", doc.ID),
				zap.String("prompt_id", prompt.ID),
				zap.String("status", string(result.Status)),
				zap.Int("attempts", attempts),
				zap.Error(result.Err),
			)
			continue
		}
		if conflicts := m.apply(len(record.Provenance) - 1); len(conflicts) > 0 {
			record.Provenance[len(record.Provenance)-1].Error = conflictError(conflicts).Error()
			p.logger.Warn("processor.Process: merge conflict",
				zap.String("document_id", doc.ID),
				zap.String("prompt_id", prompt.ID),
				zap.Strings("fields", conflicts),
			)
		}
	}

	if record.Interrupted {
		p.logger.Warn("processor.Process: document interrupted", zap.String("document_id", doc.ID))
	}
	return record
}

// extract runs the extractor through the executor. Only transient service
// errors are retried.
func (p *Processor) extract(ctx context.Context, doc domain.Document, prompt domain.PromptSpec) (domain.ExtractionResult, int) {
	var result domain.ExtractionResult

	outcome, err := p.executor.Execute(ctx, "extract", func(ctx context.Context) error {
		result = p.extractor.Extract(ctx, doc, prompt)
		if result.Status == domain.ExtractionStatusServiceError {
			return result.Err
		}
		return nil
	}, classifyServiceError)

	if outcome.Attempts == 0 && err != nil {
		if resilience.IsCircuitOpen(err) {
			p.logger.Warn("processor.extract: circuit open, prompt not sent",
				zap.String("document_id", doc.ID), zap.String("prompt_id", prompt.ID))
		}
		result = domain.ExtractionResult{
			DocumentID: doc.ID,
			PromptID:   prompt.ID,
			Status:     domain.ExtractionStatusServiceError,
			Err:        domain.WrapError(domain.ErrService, "processor.extract", err),
		}
	}
	return result, outcome.Attempts
}

// classifyServiceError retries only transient provider failures. Client
// rejections, cancellations and incomplete responses are recorded once.
func classifyServiceError(err error) resilience.ErrorClassification {
	if llm.IsRetryable(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}

func provenanceFields(fields []domain.ExtractedField) []domain.ProvenanceField {
	if len(fields) == 0 {
		return nil
	}
	out := make([]domain.ProvenanceField, len(fields))
	for i, f := range fields {
		out[i] = domain.ProvenanceField{Name: f.Name, Value: f.Value, Check: f.Check}
	}
	return out
}

func skippedEntry(prompt domain.PromptSpec) domain.ProvenanceEntry {
	return domain.ProvenanceEntry{
		PromptID:   prompt.ID,
		PromptName: prompt.DisplayName(),
		Status:     domain.ExtractionStatusSkipped,
		Error:      context.Canceled.Error(),
	}
}
