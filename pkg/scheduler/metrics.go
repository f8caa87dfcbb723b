package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("pkg/scheduler")

var (
	tickCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reactive_tick_total",
		Help: "The total number of ticks driven through PollUpdateAll.",
	})

	tickDurationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:                            "reactive_tick_duration_seconds",
		Help:                            "The time taken to poll every registered query once.",
		Buckets:                         prometheus.ExponentialBuckets(0.0001, 2, 16),
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	})

	registeredQueriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reactive_registered_queries",
		Help: "The number of reactive queries and updaters currently registered.",
	})

	changesPerTickHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reactive_changes_per_tick",
		Help:    "The number of key changes observed across all registered queries in one tick.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
)
