package evaluation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tathmini",
		Subsystem: "evaluation",
		Name:      "processed_total",
		Help:      "Evaluation attempts by outcome (completed, retried, failed).",
	}, []string{"outcome"})

	durationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tathmini",
		Subsystem: "evaluation",
		Name:      "duration_seconds",
		Help:      "Duration of evaluation attempts.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	})

	queuedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tathmini",
		Subsystem: "evaluation",
		Name:      "queued_total",
		Help:      "Evaluations queued by Start and Retry.",
	})
)
