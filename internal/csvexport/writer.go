package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"leasesum/internal/report"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// Fixed leading columns; extracted field columns follow.
var leadingColumns = []string{
	"Document ID",
	"Interrupted",
}

// Writer wraps csv.Writer for exporting the per-document summary as CSV.
type Writer struct {
	csv    *csv.Writer
	fields []string
}

// NewWriter creates a Writer that writes CSV to w with one column per field name.
func NewWriter(w io.Writer, fields []string) *Writer {
	return &Writer{csv: csv.NewWriter(w), fields: fields}
}

// FieldColumns returns the sorted union of field names across entries.
func FieldColumns(entries []report.SummaryEntry) []string {
	seen := make(map[string]bool)
	for _, e := range entries {
		for name := range e.Fields {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WriteHeader writes the leading columns followed by the field names.
func (w *Writer) WriteHeader() error {
	header := make([]string, 0, len(leadingColumns)+len(w.fields))
	header = append(header, leadingColumns...)
	header = append(header, w.fields...)
	return w.csv.Write(header)
}

// WriteSummary converts summary entries to CSV rows and writes them.
func (w *Writer) WriteSummary(entries []report.SummaryEntry) error {
	for i := range entries {
		if err := w.csv.Write(w.entryToRow(&entries[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// entryToRow converts one summary entry to a row. Absent fields are empty cells.
func (w *Writer) entryToRow(e *report.SummaryEntry) []string {
	row := make([]string, len(leadingColumns)+len(w.fields))
	row[0] = e.DocumentID
	row[1] = formatBool(e.Interrupted)
	for i, name := range w.fields {
		row[len(leadingColumns)+i] = e.Fields[name]
	}
	return row
}

// Export writes a BOM, the header and every summary entry to out.
func Export(out io.Writer, entries []report.SummaryEntry) error {
	if _, err := out.Write(BOM); err != nil {
		return fmt.Errorf("writing bom: %w", err)
	}
	w := NewWriter(out, FieldColumns(entries))
	if err := w.WriteHeader(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := w.WriteSummary(entries); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	w.Flush()
	return w.Error()
}

func formatBool(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in a file name or object key.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns {sanitized_name}_{YYYY-MM-DD}.csv for the given day.
func BuildFilename(name string, day time.Time) string {
	return fmt.Sprintf("%s_%s.csv", SanitizeFilename(name), day.Format("2006-01-02"))
}
