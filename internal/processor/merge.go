package processor

import (
	"fmt"

	"leasesum/internal/domain"
)

// fieldRef locates a provenance field: entry index, field index.
type fieldRef struct {
	entry int
	field int
}

// merger folds successful extraction results into one record under a policy.
// It is owned by a single Process call.
type merger struct {
	policy  domain.MergePolicy
	record  *domain.LeaseRecord
	winners map[string]fieldRef
}

func newMerger(policy domain.MergePolicy, record *domain.LeaseRecord) *merger {
	return &merger{policy: policy, record: record, winners: make(map[string]fieldRef)}
}

// apply merges the fields of entry entryIdx, which must already be appended
// to the record's provenance. It returns the names of conflicting fields
// under the error policy.
func (m *merger) apply(entryIdx int) []string {
	entry := &m.record.Provenance[entryIdx]
	var conflicts []string

	for i := range entry.Fields {
		f := &entry.Fields[i]
		prev, exists := m.winners[f.Name]
		if !exists {
			m.win(entryIdx, i)
			continue
		}
		prevField := &m.record.Provenance[prev.entry].Fields[prev.field]

		switch m.policy {
		case domain.MergeFirstWriter:
			f.Winner = false
		case domain.MergeError:
			if prevField.Value == f.Value {
				f.Winner = false
				continue
			}
			f.Winner = false
			f.Conflict = true
			conflicts = append(conflicts, f.Name)
		default:
			prevField.Winner = false
			m.win(entryIdx, i)
		}
	}
	return conflicts
}

func (m *merger) win(entryIdx, fieldIdx int) {
	f := &m.record.Provenance[entryIdx].Fields[fieldIdx]
	f.Winner = true
	m.record.Fields[f.Name] = f.Value
	m.winners[f.Name] = fieldRef{entry: entryIdx, field: fieldIdx}
}

func conflictError(fields []string) error {
	return fmt.Errorf("%w: fields %v already set by an earlier prompt", domain.ErrMergeConflict, fields)
}
