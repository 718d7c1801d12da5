package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leasesum/internal/domain"
)

// RunMetrics records pipeline activity. A nil *RunMetrics is valid and records nothing.
type RunMetrics struct {
	registry *prometheus.Registry

	extractionTotal    *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	retriesTotal       prometheus.Counter
	documentsTotal     *prometheus.CounterVec
	documentsInFlight  prometheus.Gauge
	tokensTotal        *prometheus.CounterVec
	estimatedCost      prometheus.Gauge
}

func NewRunMetrics() *RunMetrics {
	registry := prometheus.NewRegistry()

	extractionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasesum",
			Subsystem: "extractor",
			Name:      "extractions_total",
			Help:      "Total (document, prompt) extractions by final status.",
		},
		[]string{"status"},
	)
	extractionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leasesum",
			Subsystem: "extractor",
			Name:      "extraction_duration_seconds",
			Help:      "Wall time of one extraction including retries, by final status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"status"},
	)
	retriesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leasesum",
			Subsystem: "extractor",
			Name:      "retries_total",
			Help:      "Extraction attempts beyond the first.",
		},
	)
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasesum",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Finalized documents by outcome.",
		},
		[]string{"outcome"},
	)
	documentsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "leasesum",
			Subsystem: "pipeline",
			Name:      "documents_in_flight",
			Help:      "Documents currently being processed.",
		},
	)
	tokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasesum",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens consumed by direction.",
		},
		[]string{"model", "direction"},
	)
	estimatedCost := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "leasesum",
			Subsystem: "llm",
			Name:      "estimated_cost_usd",
			Help:      "Estimated cost of the current run in USD.",
		},
	)

	registry.MustRegister(extractionTotal, extractionDuration, retriesTotal, documentsTotal, documentsInFlight, tokensTotal, estimatedCost)

	return &RunMetrics{
		registry:           registry,
		extractionTotal:    extractionTotal,
		extractionDuration: extractionDuration,
		retriesTotal:       retriesTotal,
		documentsTotal:     documentsTotal,
		documentsInFlight:  documentsInFlight,
		tokensTotal:        tokensTotal,
		estimatedCost:      estimatedCost,
	}
}

func (m *RunMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RunMetrics) StartDocument() {
	if m == nil {
		return
	}
	m.documentsInFlight.Inc()
}

// FinishDocument records one finalized record and its provenance entries.
func (m *RunMetrics) FinishDocument(rec *domain.LeaseRecord, duration time.Duration) {
	if m == nil {
		return
	}
	m.documentsInFlight.Dec()

	outcome := "complete"
	if rec.Interrupted {
		outcome = "interrupted"
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()

	per := duration
	if n := len(rec.Provenance); n > 0 {
		per = duration / time.Duration(n)
	}
	for i := range rec.Provenance {
		p := &rec.Provenance[i]
		status := string(p.Status)
		m.extractionTotal.WithLabelValues(status).Inc()
		if p.Status != domain.ExtractionStatusSkipped {
			m.extractionDuration.WithLabelValues(status).Observe(per.Seconds())
		}
		if p.Attempts > 1 {
			m.retriesTotal.Add(float64(p.Attempts - 1))
		}
		if p.Usage.Total() > 0 {
			model := p.Model
			if model == "" {
				model = "unknown"
			}
			m.tokensTotal.WithLabelValues(model, "input").Add(float64(p.Usage.InputTokens))
			m.tokensTotal.WithLabelValues(model, "output").Add(float64(p.Usage.OutputTokens))
		}
	}
}

func (m *RunMetrics) SetEstimatedCost(usd float64) {
	if m == nil {
		return
	}
	m.estimatedCost.Set(usd)
}
