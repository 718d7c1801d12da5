package xlsxexport

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"leasesum/internal/report"
)

const (
	SheetSummary  = "Summary"
	SheetFields   = "Fields"
	SheetGroups   = "Groups"
	SheetFailures = "Failures"
)

// Build renders the run artifacts as an XLSX workbook with one sheet each for
// the per-document summary, field statistics, groups and failures.
func Build(a *report.Artifacts) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for _, sheet := range []string{SheetSummary, SheetFields, SheetGroups, SheetFailures} {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("creating sheet %s: %w", sheet, err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("removing default sheet: %w", err)
	}
	idx, _ := f.GetSheetIndex(SheetSummary)
	f.SetActiveSheet(idx)

	writeSummary(f, a.Summary)
	writeFields(f, a)
	writeGroups(f, a)
	writeFailures(f, a)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func writeSummary(f *excelize.File, entries []report.SummaryEntry) {
	seen := make(map[string]bool)
	for _, e := range entries {
		for name := range e.Fields {
			seen[name] = true
		}
	}
	fields := make([]string, 0, len(seen))
	for name := range seen {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	header := []any{"Document ID", "Interrupted"}
	for _, name := range fields {
		header = append(header, name)
	}
	writeRow(f, SheetSummary, 1, header...)

	for i, e := range entries {
		row := []any{e.DocumentID, e.Interrupted}
		for _, name := range fields {
			row = append(row, e.Fields[name])
		}
		writeRow(f, SheetSummary, i+2, row...)
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 24)
}

func writeFields(f *excelize.File, a *report.Artifacts) {
	writeRow(f, SheetFields, 1, "Field", "Count", "Missing", "Fill Rate", "Sum", "Average", "Min", "Max", "Top Value", "Top Count")
	for i, fs := range a.Aggregate.Fields {
		row := []any{fs.Field, fs.Count, fs.Missing, fs.FillRate}
		if fs.Numeric != nil {
			row = append(row, fs.Numeric.Sum, fs.Numeric.Average, fs.Numeric.Min, fs.Numeric.Max)
		} else {
			row = append(row, "", "", "", "")
		}
		if len(fs.Frequency) > 0 {
			row = append(row, fs.Frequency[0].Value, fs.Frequency[0].Count)
		}
		writeRow(f, SheetFields, i+2, row...)
	}
	_ = f.SetColWidth(SheetFields, "A", "A", 28)
	_ = f.SetColWidth(SheetFields, "I", "I", 32)
}

func writeGroups(f *excelize.File, a *report.Artifacts) {
	writeRow(f, SheetGroups, 1, "Group By", "Group", "Count", "Documents")
	for i, g := range a.Aggregate.Groups {
		docs := ""
		for j, d := range g.Documents {
			if j > 0 {
				docs += ", "
			}
			docs += d
		}
		writeRow(f, SheetGroups, i+2, a.Aggregate.GroupBy, g.Key, g.Count, docs)
	}
}

func writeFailures(f *excelize.File, a *report.Artifacts) {
	writeRow(f, SheetFailures, 1, "Document ID", "Prompt ID", "Status", "Reason")
	for i, fl := range a.Aggregate.Failures {
		writeRow(f, SheetFailures, i+2, fl.DocumentID, fl.PromptID, string(fl.Status), truncate(fl.Reason, 500))
	}
	_ = f.SetColWidth(SheetFailures, "D", "D", 80)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
