package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document is one lease text and its identifier. It is never mutated after loading.
// LoadError is set when the source file could not be read; Text is then empty.
type Document struct {
	ID        string `json:"id"`
	Text      string `json:"-"`
	LoadError string `json:"load_error,omitempty"`
}

// PromptSpec is one configured instruction template sent to the extraction service.
type PromptSpec struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Template string `json:"-"`
}

// DisplayName returns the prompt name, falling back to its ID.
func (p PromptSpec) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Usage tracks token consumption reported by the extraction service.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// FieldCheck is the validation outcome for one extracted value.
type FieldCheck struct {
	Rule    string `json:"rule,omitempty"`
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// ExtractedField is one (name, value) pair produced by a single prompt.
type ExtractedField struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	RawValue string     `json:"raw_value,omitempty"`
	Check    FieldCheck `json:"check"`
}

// ExtractionResult is the outcome of one (Document, PromptSpec) invocation.
type ExtractionResult struct {
	DocumentID string           `json:"document_id"`
	PromptID   string           `json:"prompt_id"`
	Status     ExtractionStatus `json:"status"`
	Raw        string           `json:"raw"`
	Fields     []ExtractedField `json:"fields"`
	Model      string           `json:"model,omitempty"`
	Usage      Usage            `json:"usage"`
	Err        error            `json:"-"`
}

// ProvenanceField records one value a prompt produced and whether it won the merge.
type ProvenanceField struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Winner   bool       `json:"winner"`
	Conflict bool       `json:"conflict,omitempty"`
	Check    FieldCheck `json:"check"`
}

// ProvenanceEntry is the audit trail of one prompt attempt against one document.
type ProvenanceEntry struct {
	PromptID   string            `json:"prompt_id"`
	PromptName string            `json:"prompt_name"`
	Status     ExtractionStatus  `json:"status"`
	Attempts   int               `json:"attempts"`
	Fields     []ProvenanceField `json:"fields,omitempty"`
	Raw        string            `json:"raw,omitempty"`
	Error      string            `json:"error,omitempty"`
	Model      string            `json:"model,omitempty"`
	Usage      Usage             `json:"usage"`
}

// LeaseRecord is the finalized, merged result for one document.
type LeaseRecord struct {
	DocumentID  string            `json:"document_id"`
	Fields      map[string]string `json:"fields"`
	Provenance  []ProvenanceEntry `json:"provenance"`
	Interrupted bool              `json:"interrupted,omitempty"`
}

// Value returns the merged value of a field and whether it is present.
func (r *LeaseRecord) Value(field string) (string, bool) {
	v, ok := r.Fields[field]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Usage sums token usage across all provenance entries.
func (r *LeaseRecord) Usage() Usage {
	var u Usage
	for i := range r.Provenance {
		u = u.Add(r.Provenance[i].Usage)
	}
	return u
}

// Failures lists the failed (document, prompt) pairs of this record.
func (r *LeaseRecord) Failures() []PairFailure {
	var out []PairFailure
	for _, p := range r.Provenance {
		if p.Status.Failed() {
			out = append(out, PairFailure{
				DocumentID: r.DocumentID,
				PromptID:   p.PromptID,
				Status:     p.Status,
				Reason:     p.Error,
			})
		}
	}
	return out
}

// PairFailure identifies a failed (document, prompt) pair and the reason.
type PairFailure struct {
	DocumentID string           `json:"document_id"`
	PromptID   string           `json:"prompt_id"`
	Status     ExtractionStatus `json:"status"`
	Reason     string           `json:"reason"`
}

// NumericStats holds totals for a field whose values are all numeric.
type NumericStats struct {
	Sum     float64 `json:"sum"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// ValueCount is one entry of a value-frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FieldStats summarizes one field across all records.
type FieldStats struct {
	Field     string        `json:"field"`
	Count     int           `json:"count"`
	Missing   int           `json:"missing"`
	FillRate  float64       `json:"fill_rate"`
	Numeric   *NumericStats `json:"numeric,omitempty"`
	Frequency []ValueCount  `json:"frequency,omitempty"`
}

// GroupSummary is one row of the group-by table.
type GroupSummary struct {
	Key       string   `json:"key"`
	Count     int      `json:"count"`
	Documents []string `json:"documents"`
}

// AggregateReport is derived from the finalized records of a run.
type AggregateReport struct {
	DocumentCount int            `json:"document_count"`
	Fields        []FieldStats   `json:"fields"`
	GroupBy       string         `json:"group_by,omitempty"`
	Groups        []GroupSummary `json:"groups,omitempty"`
}

// Field returns the stats for a field name, or nil.
func (a *AggregateReport) Field(name string) *FieldStats {
	for i := range a.Fields {
		if a.Fields[i].Field == name {
			return &a.Fields[i]
		}
	}
	return nil
}

// RunStats are the execution and usage statistics of one pipeline run.
type RunStats struct {
	RunID            uuid.UUID     `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	TotalDocuments   int           `json:"total_documents"`
	TotalPrompts     int           `json:"total_prompts"`
	Processed        int           `json:"processed_combinations"`
	Successful       int           `json:"successful"`
	Errors           int           `json:"errors"`
	Usage            Usage         `json:"usage"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	Interrupted      []string      `json:"interrupted,omitempty"`
	Failures         []PairFailure `json:"failures"`
}

// Duration returns the wall time of the run.
func (s *RunStats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
