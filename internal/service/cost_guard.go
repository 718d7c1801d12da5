package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"leasesum/internal/domain"
	"leasesum/internal/llm"
	"leasesum/internal/metrics"
	"leasesum/internal/port"
)

// costGuard wraps a FieldExtractor, accumulating token usage across every
// attempt and cancelling the run once the estimated cost exceeds the limit.
// A limit <= 0 disables the guard but usage is still tracked.
type costGuard struct {
	next    port.FieldExtractor
	limit   float64
	cancel  context.CancelFunc
	metrics *metrics.RunMetrics
	logger  *zap.Logger

	mu      sync.Mutex
	usage   domain.Usage
	cost    float64
	stopped bool
}

func newCostGuard(next port.FieldExtractor, limit float64, cancel context.CancelFunc, m *metrics.RunMetrics, logger *zap.Logger) *costGuard {
	return &costGuard{next: next, limit: limit, cancel: cancel, metrics: m, logger: logger}
}

func (g *costGuard) Extract(ctx context.Context, doc domain.Document, prompt domain.PromptSpec) domain.ExtractionResult {
	result := g.next.Extract(ctx, doc, prompt)
	if result.Usage.Total() > 0 {
		g.add(result.Model, result.Usage)
	}
	return result
}

func (g *costGuard) add(model string, usage domain.Usage) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.usage = g.usage.Add(usage)
	g.cost += llm.EstimateCost(model, usage)
	g.metrics.SetEstimatedCost(g.cost)

	if g.limit > 0 && g.cost > g.limit && !g.stopped {
		g.stopped = true
		g.logger.Warn("costGuard: cost limit exceeded, stopping run",
			zap.Float64("estimated_cost_usd", g.cost),
			zap.Float64("max_cost_usd", g.limit),
		)
		g.cancel()
	}
}

func (g *costGuard) tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

func (g *costGuard) totals() (domain.Usage, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage, g.cost
}
