package xlsxexport_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"leasesum/internal/domain"
	"leasesum/internal/report"
	"leasesum/internal/xlsxexport"
)

func sampleArtifacts() *report.Artifacts {
	records := []domain.LeaseRecord{
		{
			DocumentID: "L2",
			Fields:     map[string]string{},
			Provenance: []domain.ProvenanceEntry{{PromptID: "p1", Status: domain.ExtractionStatusParseError, Error: "no fields"}},
		},
		{
			DocumentID: "L1",
			Fields:     map[string]string{"rent": "1200", "lease_type": "gross"},
			Provenance: []domain.ProvenanceEntry{{PromptID: "p1", Status: domain.ExtractionStatusSuccess}},
		},
	}
	agg := &domain.AggregateReport{
		DocumentCount: 2,
		Fields: []domain.FieldStats{
			{Field: "lease_type", Count: 1, Missing: 1, FillRate: 0.5, Frequency: []domain.ValueCount{{Value: "gross", Count: 1}}},
			{Field: "rent", Count: 1, Missing: 1, FillRate: 0.5, Numeric: &domain.NumericStats{Sum: 1200, Average: 1200, Min: 1200, Max: 1200}},
		},
		GroupBy: "lease_type",
		Groups: []domain.GroupSummary{
			{Key: domain.MissingGroupKey, Count: 1, Documents: []string{"L2"}},
			{Key: "gross", Count: 1, Documents: []string{"L1"}},
		},
	}
	return report.Assemble(records, agg, nil)
}

func TestBuild(t *testing.T) {
	data, err := xlsxexport.Build(sampleArtifacts())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Summary", "Fields", "Groups", "Failures"}, f.GetSheetList())

	summary, err := f.GetRows(xlsxexport.SheetSummary)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"Document ID", "Interrupted", "lease_type", "rent"}, summary[0])
	assert.Equal(t, "L1", summary[1][0])
	assert.Equal(t, "1200", summary[1][3])
	assert.Equal(t, "L2", summary[2][0])

	fields, err := f.GetRows(xlsxexport.SheetFields)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "rent", fields[2][0])
	assert.Equal(t, "1200", fields[2][5])
	assert.Equal(t, "gross", fields[1][8])

	groups, err := f.GetRows(xlsxexport.SheetGroups)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"lease_type", "(missing)", "1", "L2"}, groups[1])

	failures, err := f.GetRows(xlsxexport.SheetFailures)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, []string{"L2", "p1", "parse_error", "no fields"}, failures[1])
}
