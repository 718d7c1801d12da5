package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"leasesum/internal/domain"
)

// RenderJSON renders v as indented JSON with a trailing newline. Map keys are
// emitted in sorted order, so equal values render to identical bytes.
func RenderJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding json: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderMarkdown renders the human-facing run summary.
func RenderMarkdown(a *Artifacts) []byte {
	var b strings.Builder
	b.WriteString("# Lease Extraction Summary\n\n")

	if run := a.Aggregate.Run; run != nil {
		writeExecutionStats(&b, run)
		writeUsageStats(&b, run)
	}
	writeErrors(&b, a.Aggregate.Failures)
	writeFieldStats(&b, a.Aggregate.Fields)
	writeGroups(&b, a.Aggregate.GroupBy, a.Aggregate.Groups)
	writeDocuments(&b, a.Summary)

	return []byte(b.String())
}

func writeExecutionStats(b *strings.Builder, run *domain.RunStats) {
	b.WriteString("## Execution Statistics\n\n")
	fmt.Fprintf(b, "- Run ID: %s\n", run.RunID)
	fmt.Fprintf(b, "- Started: %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "- Duration: %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(b, "- Total leases: %d\n", run.TotalDocuments)
	fmt.Fprintf(b, "- Total prompts: %d\n", run.TotalPrompts)
	fmt.Fprintf(b, "- Processed combinations: %d\n", run.Processed)
	fmt.Fprintf(b, "- Successful: %d\n", run.Successful)
	fmt.Fprintf(b, "- Errors: %d\n", run.Errors)
	if len(run.Interrupted) > 0 {
		fmt.Fprintf(b, "- Interrupted documents: %s\n", strings.Join(run.Interrupted, ", "))
	}
	b.WriteString("\n")
}

func writeUsageStats(b *strings.Builder, run *domain.RunStats) {
	b.WriteString("## Usage Statistics\n\n")
	fmt.Fprintf(b, "- Input tokens: %d\n", run.Usage.InputTokens)
	fmt.Fprintf(b, "- Output tokens: %d\n", run.Usage.OutputTokens)
	fmt.Fprintf(b, "- Total tokens: %d\n", run.Usage.Total())
	fmt.Fprintf(b, "- Estimated cost: $%.4f\n\n", run.EstimatedCostUSD)
}

func writeErrors(b *strings.Builder, failures []domain.PairFailure) {
	b.WriteString("## Errors\n\n")
	if len(failures) == 0 {
		b.WriteString("No errors.\n\n")
		return
	}
	for _, f := range failures {
		fmt.Fprintf(b, "- `%s` / `%s` (%s): %s\n", f.DocumentID, f.PromptID, f.Status, oneLine(f.Reason))
	}
	b.WriteString("\n")
}

func writeFieldStats(b *strings.Builder, fields []domain.FieldStats) {
	b.WriteString("## Field Statistics\n\n")
	if len(fields) == 0 {
		b.WriteString("No fields extracted.\n\n")
		return
	}
	b.WriteString("| Field | Count | Missing | Fill rate | Sum | Average | Min | Max | Top values |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
	for _, f := range fields {
		sum, avg, lo, hi := "", "", "", ""
		if f.Numeric != nil {
			sum = formatFloat(f.Numeric.Sum)
			avg = formatFloat(f.Numeric.Average)
			lo = formatFloat(f.Numeric.Min)
			hi = formatFloat(f.Numeric.Max)
		}
		fmt.Fprintf(b, "| %s | %d | %d | %.0f%% | %s | %s | %s | %s | %s |\n",
			cell(f.Field), f.Count, f.Missing, f.FillRate*100, sum, avg, lo, hi, cell(topValues(f.Frequency, 3)))
	}
	b.WriteString("\n")
}

func writeGroups(b *strings.Builder, groupBy string, groups []domain.GroupSummary) {
	if groupBy == "" {
		return
	}
	fmt.Fprintf(b, "## Groups by %s\n\n", groupBy)
	b.WriteString("| Group | Count | Documents |\n")
	b.WriteString("|---|---|---|\n")
	for _, g := range groups {
		fmt.Fprintf(b, "| %s | %d | %s |\n", cell(g.Key), g.Count, cell(strings.Join(g.Documents, ", ")))
	}
	b.WriteString("\n")
}

func writeDocuments(b *strings.Builder, summary []SummaryEntry) {
	b.WriteString("## Documents\n\n")
	for _, s := range summary {
		fmt.Fprintf(b, "### %s\n\n", s.DocumentID)
		if s.Interrupted {
			b.WriteString("_Interrupted: not all prompts were attempted._\n\n")
		}
		if len(s.Fields) == 0 {
			b.WriteString("No fields extracted.\n\n")
			continue
		}
		names := make([]string, 0, len(s.Fields))
		for name := range s.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("| Field | Value |\n|---|---|\n")
		for _, name := range names {
			fmt.Fprintf(b, "| %s | %s |\n", cell(name), cell(s.Fields[name]))
		}
		b.WriteString("\n")
	}
}

func topValues(freq []domain.ValueCount, n int) string {
	if len(freq) < n {
		n = len(freq)
	}
	parts := make([]string, 0, n)
	for _, vc := range freq[:n] {
		parts = append(parts, fmt.Sprintf("%s (%d)", vc.Value, vc.Count))
	}
	return strings.Join(parts, ", ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", `\|`)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
