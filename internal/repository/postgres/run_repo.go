package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"leasesum/internal/port"
)

type runRepo struct {
	db *sqlx.DB
}

// NewRunRepo creates a new PostgreSQL-backed RunRepository.
func NewRunRepo(db *sqlx.DB) port.RunRepository {
	return &runRepo{db: db}
}

const (
	insertRunQuery = `INSERT INTO runs (
		id, started_at, finished_at, total_documents, total_prompts,
		processed, successful, errors, input_tokens, output_tokens,
		estimated_cost_usd, interrupted, aggregate
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	insertRecordQuery = `INSERT INTO lease_records (run_id, document_id, fields, provenance, interrupted)
		VALUES ($1, $2, $3, $4, $5)`

	insertFailureQuery = `INSERT INTO extraction_failures (run_id, document_id, prompt_id, status, reason)
		VALUES ($1, $2, $3, $4, $5)`
)

// SaveRun stores the run, its records and its failed pairs in one transaction.
func (r *runRepo) SaveRun(ctx context.Context, run *port.RunSnapshot) error {
	interrupted, err := json.Marshal(nonNil(run.Stats.Interrupted))
	if err != nil {
		return fmt.Errorf("marshaling interrupted documents: %w", err)
	}
	aggregate, err := json.Marshal(run.Aggregate)
	if err != nil {
		return fmt.Errorf("marshaling aggregate: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	s := run.Stats
	if _, err := tx.ExecContext(ctx, insertRunQuery,
		s.RunID, s.StartedAt, s.FinishedAt, s.TotalDocuments, s.TotalPrompts,
		s.Processed, s.Successful, s.Errors, s.Usage.InputTokens, s.Usage.OutputTokens,
		s.EstimatedCostUSD, interrupted, aggregate,
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i := range run.Records {
		rec := &run.Records[i]
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("marshaling fields of %s: %w", rec.DocumentID, err)
		}
		provenance, err := json.Marshal(rec.Provenance)
		if err != nil {
			return fmt.Errorf("marshaling provenance of %s: %w", rec.DocumentID, err)
		}
		if _, err := tx.ExecContext(ctx, insertRecordQuery, s.RunID, rec.DocumentID, fields, provenance, rec.Interrupted); err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.DocumentID, err)
		}
		for _, f := range rec.Failures() {
			if _, err := tx.ExecContext(ctx, insertFailureQuery, s.RunID, f.DocumentID, f.PromptID, string(f.Status), f.Reason); err != nil {
				return fmt.Errorf("inserting failure %s/%s: %w", f.DocumentID, f.PromptID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
