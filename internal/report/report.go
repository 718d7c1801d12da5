package report

import (
	"sort"

	"leasesum/internal/domain"
)

// SummaryEntry is the condensed view of one document: its fields without provenance.
type SummaryEntry struct {
	DocumentID  string            `json:"document_id"`
	Fields      map[string]string `json:"fields"`
	Interrupted bool              `json:"interrupted,omitempty"`
}

// AggregateArtifact is the aggregate report as flat named metrics plus the
// tables that do not flatten: frequency tables, groups and failures.
type AggregateArtifact struct {
	Metrics     map[string]float64             `json:"metrics"`
	Frequencies map[string][]domain.ValueCount `json:"frequencies,omitempty"`
	GroupBy     string                         `json:"group_by,omitempty"`
	Groups      []domain.GroupSummary          `json:"groups"`
	Failures    []domain.PairFailure           `json:"failures"`
	Fields      []domain.FieldStats            `json:"-"`
	Run         *domain.RunStats               `json:"run,omitempty"`
}

// Artifacts are the three outputs of a run, each keyed by document ID where applicable.
type Artifacts struct {
	Processed []domain.LeaseRecord
	Summary   []SummaryEntry
	Aggregate AggregateArtifact
}

// Assemble builds the output artifacts from finalized records. It has no side
// effects: the same inputs always produce equal artifacts. stats may be nil.
func Assemble(records []domain.LeaseRecord, aggregate *domain.AggregateReport, stats *domain.RunStats) *Artifacts {
	sorted := make([]domain.LeaseRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DocumentID < sorted[j].DocumentID })

	a := &Artifacts{
		Processed: sorted,
		Summary:   make([]SummaryEntry, 0, len(sorted)),
		Aggregate: AggregateArtifact{
			Metrics:  map[string]float64{},
			Groups:   []domain.GroupSummary{},
			Failures: []domain.PairFailure{},
		},
	}

	for i := range sorted {
		a.Summary = append(a.Summary, SummaryEntry{
			DocumentID:  sorted[i].DocumentID,
			Fields:      sorted[i].Fields,
			Interrupted: sorted[i].Interrupted,
		})
		a.Aggregate.Failures = append(a.Aggregate.Failures, sorted[i].Failures()...)
	}

	if aggregate != nil {
		flatten(&a.Aggregate, aggregate)
	}
	if stats != nil {
		run := *stats
		run.Failures = a.Aggregate.Failures
		a.Aggregate.Run = &run
		a.Aggregate.Metrics["run.processed"] = float64(stats.Processed)
		a.Aggregate.Metrics["run.successful"] = float64(stats.Successful)
		a.Aggregate.Metrics["run.errors"] = float64(stats.Errors)
		a.Aggregate.Metrics["run.estimated_cost_usd"] = stats.EstimatedCostUSD
		a.Aggregate.Metrics["run.input_tokens"] = float64(stats.Usage.InputTokens)
		a.Aggregate.Metrics["run.output_tokens"] = float64(stats.Usage.OutputTokens)
	}
	return a
}

func flatten(out *AggregateArtifact, agg *domain.AggregateReport) {
	out.Metrics["documents"] = float64(agg.DocumentCount)
	out.Fields = agg.Fields
	for _, f := range agg.Fields {
		prefix := "field." + f.Field + "."
		out.Metrics[prefix+"count"] = float64(f.Count)
		out.Metrics[prefix+"missing"] = float64(f.Missing)
		out.Metrics[prefix+"fill_rate"] = f.FillRate
		if f.Numeric != nil {
			out.Metrics[prefix+"sum"] = f.Numeric.Sum
			out.Metrics[prefix+"average"] = f.Numeric.Average
			out.Metrics[prefix+"min"] = f.Numeric.Min
			out.Metrics[prefix+"max"] = f.Numeric.Max
		}
		if len(f.Frequency) > 0 {
			if out.Frequencies == nil {
				out.Frequencies = make(map[string][]domain.ValueCount)
			}
			out.Frequencies[f.Field] = f.Frequency
		}
	}
	out.GroupBy = agg.GroupBy
	if agg.Groups != nil {
		out.Groups = agg.Groups
	}
}
