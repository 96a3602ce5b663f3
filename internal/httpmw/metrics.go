// Prometheus request instrumentation, trimmed from the teacher's
// middleware/prometheus.go down to the per-handler counters this module's
// router actually mounts (the RoundTripper/client-side instrumentation
// wasn't needed: the credit pipeline's outbound calls are HEAD/PresignPut
// against object storage, not a client this module instruments).
package httpmw

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	latencyBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10}

	inFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "credit_pipeline_in_flight_requests",
		Help: "A gauge of requests currently being served.",
	})
)

func init() {
	prometheus.MustRegister(inFlightGauge)
}

// InstrumentHandler wraps h with per-route request count and latency
// histograms labeled by name, registering collectors idempotently so the
// same route can be wrapped more than once across tests.
func InstrumentHandler(name string, h http.Handler) http.Handler {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "credit_pipeline_requests_total",
			Help:        "Number of requests per handler.",
			ConstLabels: prometheus.Labels{"handler": name},
		},
		[]string{"code", "method"},
	)
	if err := prometheus.Register(requests); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			requests = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			panic(err)
		}
	}

	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "credit_pipeline_request_duration_seconds",
			Help:        "A histogram of request latencies.",
			Buckets:     latencyBuckets,
			ConstLabels: prometheus.Labels{"handler": name},
		},
		[]string{"method"},
	)
	if err := prometheus.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			panic(err)
		}
	}

	return promhttp.InstrumentHandlerInFlight(inFlightGauge,
		promhttp.InstrumentHandlerCounter(requests, promhttp.InstrumentHandlerDuration(latency, h)),
	)
}

// Metrics serves the aggregated Prometheus registry (spec's supplemented
// GET /metrics).
func Metrics() http.Handler {
	return promhttp.Handler()
}
