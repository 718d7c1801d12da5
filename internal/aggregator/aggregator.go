package aggregator

import (
	"sort"
	"strings"

	"leasesum/internal/domain"
	"leasesum/internal/validator"
)

// Options configures aggregation.
type Options struct {
	// GroupBy names the categorical field to group records by. Empty disables grouping.
	GroupBy string
}

// Aggregate derives cross-document statistics from finalized records. The
// result depends only on the multiset of records, never on their order.
func Aggregate(records []domain.LeaseRecord, opts Options) (*domain.AggregateReport, error) {
	report := &domain.AggregateReport{
		DocumentCount: len(records),
		Fields:        []domain.FieldStats{},
	}

	for _, name := range fieldNames(records) {
		report.Fields = append(report.Fields, fieldStats(name, records))
	}

	if opts.GroupBy != "" {
		groups, err := groupBy(opts.GroupBy, records)
		if err != nil {
			return nil, err
		}
		report.GroupBy = opts.GroupBy
		report.Groups = groups
	}
	return report, nil
}

func fieldNames(records []domain.LeaseRecord) []string {
	seen := make(map[string]bool)
	for i := range records {
		for name, value := range records[i].Fields {
			if value != "" {
				seen[name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fieldStats(name string, records []domain.LeaseRecord) domain.FieldStats {
	var values []string
	for i := range records {
		if v, ok := records[i].Value(name); ok {
			values = append(values, v)
		}
	}

	stats := domain.FieldStats{
		Field:   name,
		Count:   len(values),
		Missing: len(records) - len(values),
	}
	if len(records) > 0 {
		stats.FillRate = float64(stats.Count) / float64(len(records))
	}

	if numbers, ok := parseAll(values); ok {
		stats.Numeric = numericStats(numbers)
	} else {
		stats.Frequency = frequency(values)
	}
	return stats
}

func parseAll(values []string) ([]float64, bool) {
	numbers := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := validator.ParseNumber(v)
		if err != nil {
			return nil, false
		}
		numbers = append(numbers, f)
	}
	return numbers, len(numbers) > 0
}

// numericStats sums in sorted order so floating-point totals are identical
// for every permutation of the input.
func numericStats(numbers []float64) *domain.NumericStats {
	sorted := append([]float64(nil), numbers...)
	sort.Float64s(sorted)

	var sum float64
	for _, n := range sorted {
		sum += n
	}
	return &domain.NumericStats{
		Sum:     sum,
		Average: sum / float64(len(sorted)),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
	}
}

// frequency counts lowercased values, most frequent first, ties by value.
func frequency(values []string) []domain.ValueCount {
	counts := make(map[string]int)
	for _, v := range values {
		counts[strings.ToLower(strings.TrimSpace(v))]++
	}
	out := make([]domain.ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, domain.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func groupBy(field string, records []domain.LeaseRecord) ([]domain.GroupSummary, error) {
	buckets := make(map[string][]string)
	present := 0
	for i := range records {
		key := domain.MissingGroupKey
		if v, ok := records[i].Value(field); ok {
			key = strings.ToLower(strings.TrimSpace(v))
			present++
		}
		buckets[key] = append(buckets[key], records[i].DocumentID)
	}
	if len(records) > 0 && present == 0 {
		return nil, domain.NewConfigurationError("group-by field %q is absent from all records", field)
	}

	groups := make([]domain.GroupSummary, 0, len(buckets))
	for key, docs := range buckets {
		sort.Strings(docs)
		groups = append(groups, domain.GroupSummary{Key: key, Count: len(docs), Documents: docs})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups, nil
}
