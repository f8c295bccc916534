package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "olistqa_http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)

	// Turn requests wait on up to three completions, so the buckets reach
	// well past the usual sub-second API range.
	httpRequestDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "olistqa_http_request_duration_ms",
			Help:    "HTTP request latency in milliseconds by route pattern.",
			Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000, 80000},
		},
		[]string{"method", "route"},
	)

	httpInflightRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "olistqa_http_inflight_requests",
		Help: "HTTP requests currently being served.",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationMs, httpInflightRequests)
}
