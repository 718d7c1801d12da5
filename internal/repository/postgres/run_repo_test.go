package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasesum/internal/domain"
	"leasesum/internal/port"
)

func newRunRepoWithMock(t *testing.T) (port.RunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRunRepo(sqlx.NewDb(db, "sqlmock")), mock
}

func snapshot() *port.RunSnapshot {
	runID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	return &port.RunSnapshot{
		Stats: domain.RunStats{
			RunID:      runID,
			StartedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			FinishedAt: time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
			Processed:  2, Successful: 1, Errors: 1,
		},
		Records: []domain.LeaseRecord{
			{DocumentID: "L1", Fields: map[string]string{"rent": "1200"}, Provenance: []domain.ProvenanceEntry{{PromptID: "p", Status: domain.ExtractionStatusSuccess}}},
			{DocumentID: "L2", Fields: map[string]string{}, Provenance: []domain.ProvenanceEntry{{PromptID: "p", Status: domain.ExtractionStatusParseError, Error: "no fields"}}},
		},
		Aggregate: &domain.AggregateReport{DocumentCount: 2},
	}
}

func TestRunRepo_SaveRun(t *testing.T) {
	repo, mock := newRunRepoWithMock(t)
	run := snapshot()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WithArgs(run.Stats.RunID, run.Stats.StartedAt, run.Stats.FinishedAt, 0, 0, 2, 1, 1, 0, 0, 0.0, []byte("[]"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO lease_records").
		WithArgs(run.Stats.RunID, "L1", []byte(`{"rent":"1200"}`), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO lease_records").
		WithArgs(run.Stats.RunID, "L2", []byte(`{}`), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO extraction_failures").
		WithArgs(run.Stats.RunID, "L2", "p", "parse_error", "no fields").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepo_SaveRun_RollsBackOnError(t *testing.T) {
	repo, mock := newRunRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO lease_records").WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.SaveRun(context.Background(), snapshot())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting record L1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepo_SaveRun_BeginFails(t *testing.T) {
	repo, mock := newRunRepoWithMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := repo.SaveRun(context.Background(), snapshot())

	assert.ErrorContains(t, err, "beginning transaction")
}
