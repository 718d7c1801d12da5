package report_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasesum/internal/aggregator"
	"leasesum/internal/domain"
	"leasesum/internal/report"
)

func endToEndRecords() []domain.LeaseRecord {
	return []domain.LeaseRecord{
		{
			DocumentID: "L2",
			Fields:     map[string]string{},
			Provenance: []domain.ProvenanceEntry{{
				PromptID: "terms",
				Status:   domain.ExtractionStatusParseError,
				Attempts: 1,
				Raw:      "garbled",
				Error:    "response could not be parsed",
				Fields:   []domain.ProvenanceField{{Name: domain.UnparsedField, Value: "garbled"}},
			}},
		},
		{
			DocumentID: "L1",
			Fields:     map[string]string{"rent": "1200"},
			Provenance: []domain.ProvenanceEntry{{
				PromptID: "terms",
				Status:   domain.ExtractionStatusSuccess,
				Attempts: 1,
				Fields:   []domain.ProvenanceField{{Name: "rent", Value: "1200", Winner: true}},
			}},
		},
	}
}

func assembleEndToEnd(t *testing.T, stats *domain.RunStats) *report.Artifacts {
	t.Helper()
	records := endToEndRecords()
	agg, err := aggregator.Aggregate(records, aggregator.Options{})
	require.NoError(t, err)
	return report.Assemble(records, agg, stats)
}

func TestAssemble_SortsAndCondenses(t *testing.T) {
	a := assembleEndToEnd(t, nil)

	require.Len(t, a.Processed, 2)
	assert.Equal(t, "L1", a.Processed[0].DocumentID)
	assert.Equal(t, "L2", a.Processed[1].DocumentID)
	assert.Len(t, a.Processed[1].Provenance, 1)

	require.Len(t, a.Summary, 2)
	assert.Equal(t, report.SummaryEntry{DocumentID: "L1", Fields: map[string]string{"rent": "1200"}}, a.Summary[0])
	assert.Empty(t, a.Summary[1].Fields)
}

func TestAssemble_DoesNotReorderInput(t *testing.T) {
	records := endToEndRecords()
	report.Assemble(records, nil, nil)
	assert.Equal(t, "L2", records[0].DocumentID)
}

func TestAssemble_Metrics(t *testing.T) {
	a := assembleEndToEnd(t, nil)

	m := a.Aggregate.Metrics
	assert.Equal(t, 2.0, m["documents"])
	assert.Equal(t, 1.0, m["field.rent.count"])
	assert.Equal(t, 1.0, m["field.rent.missing"])
	assert.Equal(t, 1200.0, m["field.rent.average"])
	assert.Equal(t, 0.5, m["field.rent.fill_rate"])
	assert.Nil(t, a.Aggregate.Run)

	require.Len(t, a.Aggregate.Failures, 1)
	assert.Equal(t, domain.PairFailure{
		DocumentID: "L2",
		PromptID:   "terms",
		Status:     domain.ExtractionStatusParseError,
		Reason:     "response could not be parsed",
	}, a.Aggregate.Failures[0])
}

func TestAssemble_RunStats(t *testing.T) {
	stats := &domain.RunStats{
		RunID:            uuid.New(),
		Processed:        2,
		Successful:       1,
		Errors:           1,
		Usage:            domain.Usage{InputTokens: 100, OutputTokens: 20},
		EstimatedCostUSD: 0.5,
	}

	a := assembleEndToEnd(t, stats)

	require.NotNil(t, a.Aggregate.Run)
	assert.Len(t, a.Aggregate.Run.Failures, 1)
	assert.Nil(t, stats.Failures)
	assert.Equal(t, 2.0, a.Aggregate.Metrics["run.processed"])
	assert.Equal(t, 1.0, a.Aggregate.Metrics["run.errors"])
	assert.Equal(t, 100.0, a.Aggregate.Metrics["run.input_tokens"])
	assert.Equal(t, 0.5, a.Aggregate.Metrics["run.estimated_cost_usd"])
}

func TestAssemble_GroupsAndFrequencies(t *testing.T) {
	records := []domain.LeaseRecord{
		{DocumentID: "A", Fields: map[string]string{"lease_type": "gross"}},
		{DocumentID: "B", Fields: map[string]string{}},
	}
	agg, err := aggregator.Aggregate(records, aggregator.Options{GroupBy: "lease_type"})
	require.NoError(t, err)

	a := report.Assemble(records, agg, nil)

	assert.Equal(t, "lease_type", a.Aggregate.GroupBy)
	assert.Len(t, a.Aggregate.Groups, 2)
	assert.Equal(t, []domain.ValueCount{{Value: "gross", Count: 1}}, a.Aggregate.Frequencies["lease_type"])
}

func TestAssemble_Idempotent(t *testing.T) {
	stats := &domain.RunStats{
		RunID:      uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FinishedAt: time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
	}
	first := assembleEndToEnd(t, stats)
	second := assembleEndToEnd(t, stats)

	for _, v := range []struct{ a, b any }{
		{first.Processed, second.Processed},
		{first.Summary, second.Summary},
		{first.Aggregate, second.Aggregate},
	} {
		x, err := report.RenderJSON(v.a)
		require.NoError(t, err)
		y, err := report.RenderJSON(v.b)
		require.NoError(t, err)
		assert.Equal(t, x, y)
	}
	assert.Equal(t, report.RenderMarkdown(first), report.RenderMarkdown(second))
}
