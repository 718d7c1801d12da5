package service

import (
	"bytes"
	"fmt"
	"time"

	"leasesum/internal/csvexport"
	"leasesum/internal/domain"
	"leasesum/internal/report"
	"leasesum/internal/xlsxexport"
)

// RenderedFile is one serialized artifact ready for an ArtifactStore.
type RenderedFile struct {
	Name        string
	ContentType string
	Body        []byte
}

const (
	contentTypeJSON     = "application/json"
	contentTypeMarkdown = "text/markdown; charset=utf-8"
	contentTypeCSV      = "text/csv; charset=utf-8"
	contentTypeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// RenderArtifacts serializes the artifacts in each requested format, in order.
// day dates the CSV file name.
func RenderArtifacts(a *report.Artifacts, formats []string, day time.Time) ([]RenderedFile, error) {
	var files []RenderedFile
	for _, format := range formats {
		switch format {
		case "json":
			for _, part := range []struct {
				name string
				v    any
			}{
				{"processed.json", a.Processed},
				{"summary.json", a.Summary},
				{"aggregate.json", a.Aggregate},
			} {
				body, err := report.RenderJSON(part.v)
				if err != nil {
					return nil, fmt.Errorf("rendering %s: %w", part.name, err)
				}
				files = append(files, RenderedFile{Name: part.name, ContentType: contentTypeJSON, Body: body})
			}
		case "markdown":
			files = append(files, RenderedFile{Name: "summary.md", ContentType: contentTypeMarkdown, Body: report.RenderMarkdown(a)})
		case "csv":
			var buf bytes.Buffer
			if err := csvexport.Export(&buf, a.Summary); err != nil {
				return nil, fmt.Errorf("rendering csv: %w", err)
			}
			files = append(files, RenderedFile{Name: csvexport.BuildFilename("lease summary", day), ContentType: contentTypeCSV, Body: buf.Bytes()})
		case "xlsx":
			body, err := xlsxexport.Build(a)
			if err != nil {
				return nil, fmt.Errorf("rendering xlsx: %w", err)
			}
			files = append(files, RenderedFile{Name: "aggregate.xlsx", ContentType: contentTypeXLSX, Body: body})
		default:
			return nil, domain.NewConfigurationError("unknown output format %q", format)
		}
	}
	return files, nil
}

// RunKeyPrefix names the folder a run's artifacts are stored under.
func RunKeyPrefix(stats domain.RunStats) string {
	return fmt.Sprintf("%s_%s", stats.StartedAt.UTC().Format("20060102T150405Z"), stats.RunID.String()[:8])
}
