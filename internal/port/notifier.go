package port

import (
	"context"

	"leasesum/internal/domain"
)

// RunNotification summarizes a finished run for humans.
type RunNotification struct {
	Stats     domain.RunStats
	Locations []string
}

// RunNotifier announces finished runs.
type RunNotifier interface {
	NotifyRunCompleted(ctx context.Context, n RunNotification) error
}
