package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	edits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partkit",
			Name:      "edits_total",
			Help:      "Partition edits by op and result (applied, noop, busy, error)",
		},
		[]string{"op", "result"},
	)

	regenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partkit",
			Name:      "regenerations_total",
			Help:      "Artifact regenerations by result (ok, cached, error)",
		},
		[]string{"result"},
	)

	regenerationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "partkit",
			Name:      "regeneration_duration_seconds",
			Help:      "Duration of page extraction for one artifact",
			Buckets:   prometheus.DefBuckets,
		},
	)

	exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partkit",
			Name:      "exports_total",
			Help:      "Exports by kind (single, batch, archive, combine, assemble) and result",
		},
		[]string{"kind", "result"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "partkit",
			Name:      "sessions_active",
			Help:      "Editing sessions currently held in memory",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(edits, regenerations, regenerationLatency, exports, sessionsActive)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncEdit(op, result string) { edits.WithLabelValues(op, result).Inc() }

func ObserveRegeneration(result string, dur time.Duration) {
	regenerations.WithLabelValues(result).Inc()
	if result != "cached" && result != "reused" {
		regenerationLatency.Observe(dur.Seconds())
	}
}

func IncExport(kind string, err error) { exports.WithLabelValues(kind, resultOf(err)).Inc() }

func SetSessions(n int) { sessionsActive.Set(float64(n)) }

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
