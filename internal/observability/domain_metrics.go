package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "olistqa_turns_total",
			Help: "Total number of conversation turns by final status.",
		},
		[]string{"status"},
	)
	repairAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "olistqa_repair_attempts_total",
			Help: "Total number of one-shot SQL repair attempts by result.",
		},
		[]string{"result"},
	)
	completionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "olistqa_completion_latency_ms",
			Help:    "Completion service round-trip latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"purpose"},
	)
	completionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "olistqa_completion_failures_total",
			Help: "Total number of completion calls that produced no usable text.",
		},
		[]string{"purpose"},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "olistqa_query_latency_ms",
			Help:    "Working table query execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	workingTableRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "olistqa_working_table_rows",
			Help: "Row count of the loaded working table.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		repairAttemptsTotal,
		completionLatencyMs,
		completionFailuresTotal,
		queryLatencyMs,
		workingTableRows,
	)
}

func ObserveTurn(status string) {
	turnsTotal.WithLabelValues(status).Inc()
}

func ObserveRepairAttempt(succeeded bool) {
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	repairAttemptsTotal.WithLabelValues(result).Inc()
}

func ObserveCompletion(purpose string, elapsed time.Duration, err error) {
	completionLatencyMs.WithLabelValues(purpose).Observe(float64(elapsed.Milliseconds()))
	if err != nil {
		completionFailuresTotal.WithLabelValues(purpose).Inc()
	}
}

func ObserveQuery(elapsed time.Duration) {
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func SetWorkingTableRows(rows int64) {
	if rows < 0 {
		rows = 0
	}
	workingTableRows.Set(float64(rows))
}
