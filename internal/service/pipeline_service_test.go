package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"leasesum/internal/domain"
	"leasesum/internal/extractor"
	"leasesum/internal/llm"
	"leasesum/internal/metrics"
	"leasesum/internal/port"
	"leasesum/internal/resilience"
	"leasesum/internal/service"
	"leasesum/internal/validator"
	"leasesum/mocks"
)

var (
	leaseOne   = domain.Document{ID: "L1", Text: "lease one text"}
	leaseTwo   = domain.Document{ID: "L2", Text: "lease two text"}
	leaseThree = domain.Document{ID: "L3", Text: "lease three text"}
	rentPrompt = domain.PromptSpec{ID: "rent", Name: "Rent", Template: "Extract the rent."}
)

func newService(t *testing.T, ext port.FieldExtractor, cfg service.PipelineConfig, sinks service.Sinks) service.PipelineService {
	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1}, zaptest.NewLogger(t))
	return service.NewPipelineService(ext, exec, cfg, sinks, metrics.NewRunMetrics(), zaptest.NewLogger(t))
}

func TestRun_EndToEnd(t *testing.T) {
	c := new(mocks.MockCompleter)
	c.On("Complete", mock.Anything, extractor.BuildRequest(rentPrompt.Template, leaseOne.Text)).
		Return(&port.Completion{Text: "rent: 1200", Model: "gpt-4o", InputTokens: 100, OutputTokens: 10}, nil).Once()
	c.On("Complete", mock.Anything, extractor.BuildRequest(rentPrompt.Template, leaseTwo.Text)).
		Return(&port.Completion{Text: "%%% ???", Model: "gpt-4o", InputTokens: 100, OutputTokens: 5}, nil).Once()
	ext := extractor.New(c, validator.DefaultRegistry(), zaptest.NewLogger(t))
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 2}, service.Sinks{})

	result, err := svc.Run(context.Background(), []domain.Document{leaseTwo, leaseOne}, []domain.PromptSpec{rentPrompt})

	require.NoError(t, err)
	require.Len(t, result.Records, 2)

	l1, l2 := result.Records[0], result.Records[1]
	assert.Equal(t, "L1", l1.DocumentID)
	assert.Equal(t, map[string]string{"rent": "1200"}, l1.Fields)
	require.Len(t, l1.Provenance, 1)
	assert.Equal(t, domain.ExtractionStatusSuccess, l1.Provenance[0].Status)

	assert.Equal(t, "L2", l2.DocumentID)
	assert.Empty(t, l2.Fields)
	require.Len(t, l2.Provenance, 1)
	assert.Equal(t, domain.ExtractionStatusParseError, l2.Provenance[0].Status)
	assert.Equal(t, "%%% ???", l2.Provenance[0].Raw)

	rent := result.Aggregate.Field("rent")
	require.NotNil(t, rent)
	assert.Equal(t, 1, rent.Count)
	assert.Equal(t, 1, rent.Missing)
	assert.Equal(t, 1200.0, rent.Numeric.Average)

	assert.Equal(t, 2, result.Stats.Processed)
	assert.Equal(t, 1, result.Stats.Successful)
	assert.Equal(t, 1, result.Stats.Errors)
	assert.Equal(t, domain.Usage{InputTokens: 200, OutputTokens: 15}, result.Stats.Usage)
	assert.Greater(t, result.Stats.EstimatedCostUSD, 0.0)
	assert.Empty(t, result.Stats.Interrupted)
	assert.False(t, result.Cancelled)
	assert.False(t, result.CostLimitReached)

	require.NotNil(t, result.Artifacts)
	assert.Len(t, result.Artifacts.Summary, 2)
	assert.Len(t, result.Artifacts.Aggregate.Failures, 1)
	assert.Equal(t, "L2", result.Stats.Failures[0].DocumentID)
	c.AssertExpectations(t)
}

func TestRun_ServiceErrorOnOnePairIsContained(t *testing.T) {
	termPrompt := domain.PromptSpec{ID: "term", Name: "Term", Template: "Extract the term."}
	c := new(mocks.MockCompleter)
	c.On("Complete", mock.Anything, extractor.BuildRequest(rentPrompt.Template, leaseOne.Text)).
		Return(&port.Completion{Text: "rent: 1200", Model: "gpt-4o"}, nil).Once()
	c.On("Complete", mock.Anything, extractor.BuildRequest(termPrompt.Template, leaseOne.Text)).
		Return(nil, errors.New("connection reset by peer")).Once()
	c.On("Complete", mock.Anything, extractor.BuildRequest(rentPrompt.Template, leaseTwo.Text)).
		Return(&port.Completion{Text: "rent: 900", Model: "gpt-4o"}, nil).Once()
	c.On("Complete", mock.Anything, extractor.BuildRequest(termPrompt.Template, leaseTwo.Text)).
		Return(&port.Completion{Text: "term: 24 months", Model: "gpt-4o"}, nil).Once()
	ext := extractor.New(c, validator.DefaultRegistry(), zaptest.NewLogger(t))
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 2}, service.Sinks{})

	result, err := svc.Run(context.Background(),
		[]domain.Document{leaseOne, leaseTwo}, []domain.PromptSpec{rentPrompt, termPrompt})

	require.NoError(t, err)
	require.Len(t, result.Records, 2)

	l1, l2 := result.Records[0], result.Records[1]
	assert.Equal(t, map[string]string{"rent": "1200"}, l1.Fields)
	require.Len(t, l1.Provenance, 2)
	assert.Equal(t, domain.ExtractionStatusSuccess, l1.Provenance[0].Status)
	assert.Equal(t, domain.ExtractionStatusServiceError, l1.Provenance[1].Status)

	assert.Equal(t, map[string]string{"rent": "900", "term": "24 months"}, l2.Fields)
	for _, entry := range l2.Provenance {
		assert.Equal(t, domain.ExtractionStatusSuccess, entry.Status)
	}

	assert.Equal(t, 4, result.Stats.Processed)
	assert.Equal(t, 3, result.Stats.Successful)
	assert.Equal(t, 1, result.Stats.Errors)
	require.Len(t, result.Stats.Failures, 1)
	assert.Equal(t, domain.PairFailure{
		DocumentID: "L1", PromptID: "term", Status: domain.ExtractionStatusServiceError,
		Reason: result.Stats.Failures[0].Reason,
	}, result.Stats.Failures[0])
	assert.Contains(t, result.Stats.Failures[0].Reason, "connection reset")
	assert.Equal(t, 2, result.Aggregate.Field("rent").Count)
	c.AssertExpectations(t)
}

func TestRun_UnreadableDocumentIsReportedAsFailure(t *testing.T) {
	unreadable := domain.Document{ID: "L0", LoadError: "reading lease L0.pdf: malformed PDF"}
	c := new(mocks.MockCompleter)
	c.On("Complete", mock.Anything, extractor.BuildRequest(rentPrompt.Template, leaseOne.Text)).
		Return(&port.Completion{Text: "rent: 1200", Model: "gpt-4o"}, nil).Once()
	ext := extractor.New(c, validator.DefaultRegistry(), zaptest.NewLogger(t))
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 2}, service.Sinks{})

	result, err := svc.Run(context.Background(), []domain.Document{leaseOne, unreadable}, []domain.PromptSpec{rentPrompt})

	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "L0", result.Records[0].DocumentID)
	assert.Empty(t, result.Records[0].Fields)
	require.Len(t, result.Stats.Failures, 1)
	assert.Equal(t, domain.ExtractionStatusPrecondition, result.Stats.Failures[0].Status)
	assert.Contains(t, result.Stats.Failures[0].Reason, "malformed PDF")
	assert.Equal(t, map[string]string{"rent": "1200"}, result.Records[1].Fields)
	c.AssertExpectations(t)
}

func TestRun_ZeroPrompts(t *testing.T) {
	ext := new(mocks.MockFieldExtractor)
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 1}, service.Sinks{})

	result, err := svc.Run(context.Background(), []domain.Document{leaseOne}, nil)

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
	assert.Nil(t, result)
	ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateInputs(t *testing.T) {
	tests := []struct {
		name    string
		docs    []domain.Document
		prompts []domain.PromptSpec
		wantErr bool
	}{
		{"valid", []domain.Document{leaseOne}, []domain.PromptSpec{rentPrompt}, false},
		{"no documents is valid", nil, []domain.PromptSpec{rentPrompt}, false},
		{"no prompts", []domain.Document{leaseOne}, nil, true},
		{"empty prompt id", nil, []domain.PromptSpec{{Template: "x"}}, true},
		{"duplicate prompt id", nil, []domain.PromptSpec{rentPrompt, rentPrompt}, true},
		{"duplicate document id", []domain.Document{leaseOne, leaseOne}, []domain.PromptSpec{rentPrompt}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ValidateInputs(tt.docs, tt.prompts)
			if tt.wantErr {
				assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRun_NoDocuments(t *testing.T) {
	svc := newService(t, new(mocks.MockFieldExtractor), service.PipelineConfig{Concurrency: 1}, service.Sinks{})

	result, err := svc.Run(context.Background(), nil, []domain.PromptSpec{rentPrompt})

	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, result.Aggregate.DocumentCount)
	assert.Empty(t, result.Artifacts.Summary)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ext := new(mocks.MockFieldExtractor)
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 1}, service.Sinks{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Run(ctx, []domain.Document{leaseOne, leaseTwo}, []domain.PromptSpec{rentPrompt})

	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Empty(t, result.Records)
	assert.Equal(t, []string{"L1", "L2"}, result.Stats.Interrupted)
	require.NotNil(t, result.Artifacts)
	ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CostLimitStopsDispatch(t *testing.T) {
	ext := new(mocks.MockFieldExtractor)
	ext.On("Extract", mock.Anything, leaseOne, rentPrompt).Return(domain.ExtractionResult{
		DocumentID: "L1", PromptID: "rent",
		Status: domain.ExtractionStatusSuccess,
		Fields: []domain.ExtractedField{{Name: "rent", Value: "900", Check: domain.FieldCheck{Valid: true}}},
		Model:  "gpt-4o",
		Usage:  domain.Usage{InputTokens: 1_000_000},
	}).Once()
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 1, MaxCostUSD: 1.0}, service.Sinks{})

	result, err := svc.Run(context.Background(), []domain.Document{leaseOne, leaseTwo, leaseThree}, []domain.PromptSpec{rentPrompt})

	require.NoError(t, err)
	assert.True(t, result.CostLimitReached)
	assert.False(t, result.Cancelled)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "900", result.Records[0].Fields["rent"])
	assert.Equal(t, []string{"L2", "L3"}, result.Stats.Interrupted)
	assert.InDelta(t, 2.5, result.Stats.EstimatedCostUSD, 1e-9)
	assert.Equal(t, 1, result.Aggregate.DocumentCount)
	ext.AssertExpectations(t)
}

func TestRun_TruncatedResponsesCountTowardCostLimit(t *testing.T) {
	c := new(mocks.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(nil, &llm.IncompleteResponseError{
		Provider: "openai",
		Reason:   "output truncated (finish_reason: length)",
		Model:    "gpt-4o",
		Usage:    domain.Usage{InputTokens: 1_000_000},
	}).Once()
	ext := extractor.New(c, validator.DefaultRegistry(), zaptest.NewLogger(t))
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 1, MaxCostUSD: 1.0}, service.Sinks{})

	result, err := svc.Run(context.Background(), []domain.Document{leaseOne, leaseTwo}, []domain.PromptSpec{rentPrompt})

	require.NoError(t, err)
	assert.True(t, result.CostLimitReached)
	assert.Equal(t, domain.Usage{InputTokens: 1_000_000}, result.Stats.Usage)
	assert.InDelta(t, 2.5, result.Stats.EstimatedCostUSD, 1e-9)
	require.Len(t, result.Records, 1)
	assert.Equal(t, domain.ExtractionStatusServiceError, result.Records[0].Provenance[0].Status)
	assert.Equal(t, []string{"L1", "L2"}, result.Stats.Interrupted)
	c.AssertExpectations(t)
}

func TestRun_InterruptedRecordsExcludedFromAggregate(t *testing.T) {
	second := domain.PromptSpec{ID: "term", Template: "Extract the term."}
	ext := new(mocks.MockFieldExtractor)
	ext.On("Extract", mock.Anything, leaseOne, rentPrompt).Return(domain.ExtractionResult{
		DocumentID: "L1", PromptID: "rent",
		Status: domain.ExtractionStatusSuccess,
		Fields: []domain.ExtractedField{{Name: "rent", Value: "900"}},
		Model:  "gpt-4o",
		Usage:  domain.Usage{InputTokens: 1_000_000},
	}).Once()
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 1, MaxCostUSD: 1.0}, service.Sinks{})

	result, err := svc.Run(context.Background(), []domain.Document{leaseOne}, []domain.PromptSpec{rentPrompt, second})

	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.True(t, rec.Interrupted)
	require.Len(t, rec.Provenance, 2)
	assert.Equal(t, domain.ExtractionStatusSkipped, rec.Provenance[1].Status)
	assert.Equal(t, []string{"L1"}, result.Stats.Interrupted)
	assert.Equal(t, 0, result.Aggregate.DocumentCount)
	assert.Equal(t, 1, result.Stats.Processed)
	assert.True(t, result.Artifacts.Summary[0].Interrupted)
}

func TestRun_GroupByAbsentEverywhere(t *testing.T) {
	ext := new(mocks.MockFieldExtractor)
	ext.On("Extract", mock.Anything, leaseOne, rentPrompt).Return(domain.ExtractionResult{
		DocumentID: "L1", PromptID: "rent",
		Status: domain.ExtractionStatusSuccess,
		Fields: []domain.ExtractedField{{Name: "rent", Value: "900"}},
	})
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 1, GroupBy: "lease_type"}, service.Sinks{})

	result, err := svc.Run(context.Background(), []domain.Document{leaseOne}, []domain.PromptSpec{rentPrompt})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
	require.NotNil(t, result)
	assert.Len(t, result.Records, 1)
	assert.Nil(t, result.Artifacts)
}

func TestRunFromSources(t *testing.T) {
	ext := new(mocks.MockFieldExtractor)
	ext.On("Extract", mock.Anything, leaseOne, rentPrompt).Return(domain.ExtractionResult{
		DocumentID: "L1", PromptID: "rent", Status: domain.ExtractionStatusSuccess,
		Fields: []domain.ExtractedField{{Name: "rent", Value: "900"}},
	})
	docs := new(mocks.MockDocumentSource)
	docs.On("Documents", mock.Anything).Return([]domain.Document{leaseOne}, nil)
	prompts := new(mocks.MockPromptSource)
	prompts.On("Prompts", mock.Anything).Return([]domain.PromptSpec{rentPrompt}, nil)
	svc := newService(t, ext, service.PipelineConfig{Concurrency: 1}, service.Sinks{})

	result, err := svc.RunFromSources(context.Background(), docs, prompts)

	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
}

func TestRunFromSources_NoPromptsSkipsDocuments(t *testing.T) {
	docs := new(mocks.MockDocumentSource)
	prompts := new(mocks.MockPromptSource)
	prompts.On("Prompts", mock.Anything).Return([]domain.PromptSpec{}, nil)
	svc := newService(t, new(mocks.MockFieldExtractor), service.PipelineConfig{Concurrency: 1}, service.Sinks{})

	_, err := svc.RunFromSources(context.Background(), docs, prompts)

	assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
	docs.AssertNotCalled(t, "Documents", mock.Anything)
}

func TestRunFromSources_SourceError(t *testing.T) {
	docs := new(mocks.MockDocumentSource)
	docs.On("Documents", mock.Anything).Return(nil, errors.New("disk gone"))
	prompts := new(mocks.MockPromptSource)
	prompts.On("Prompts", mock.Anything).Return([]domain.PromptSpec{rentPrompt}, nil)
	svc := newService(t, new(mocks.MockFieldExtractor), service.PipelineConfig{Concurrency: 1}, service.Sinks{})

	_, err := svc.RunFromSources(context.Background(), docs, prompts)

	assert.EqualError(t, err, "disk gone")
}
