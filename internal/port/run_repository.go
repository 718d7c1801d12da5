package port

import (
	"context"

	"leasesum/internal/domain"
)

// RunSnapshot is everything persisted about one finished run.
type RunSnapshot struct {
	Stats     domain.RunStats
	Records   []domain.LeaseRecord
	Aggregate *domain.AggregateReport
}

// RunRepository stores run history.
type RunRepository interface {
	SaveRun(ctx context.Context, run *RunSnapshot) error
}
