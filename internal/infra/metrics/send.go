package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_sends_total",
			Help: "Outbound send attempts by kind and outcome.",
		},
		[]string{"kind", "success"},
	)

	sendRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_send_retries_total",
			Help: "Transient-failure retries performed by the dispatcher.",
		},
		[]string{"kind"},
	)

	sendLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "max_send_latency_ms",
			Help:    "Logical send latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"kind"},
	)
)

func init() {
	register(sendsTotal, sendRetries, sendLatencyMs)
}

func SendFinished(kind string, success bool, elapsed time.Duration) {
	sendsTotal.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
	sendLatencyMs.WithLabelValues(kind).Observe(float64(elapsed.Milliseconds()))
}

func SendRetried(kind string) { sendRetries.WithLabelValues(kind).Inc() }
