package noop

import (
	"context"

	"go.uber.org/zap"

	"leasesum/internal/port"
)

type noopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a RunNotifier that only logs the run summary.
func NewNoopSender(logger *zap.Logger) port.RunNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &noopSender{logger: logger}
}

func (s *noopSender) NotifyRunCompleted(_ context.Context, n port.RunNotification) error {
	s.logger.Info("[NOOP EMAIL] run completed",
		zap.String("run_id", n.Stats.RunID.String()),
		zap.Int("documents", n.Stats.TotalDocuments),
		zap.Int("errors", n.Stats.Errors),
		zap.Float64("estimated_cost_usd", n.Stats.EstimatedCostUSD),
		zap.Strings("artifacts", n.Locations),
	)
	return nil
}
