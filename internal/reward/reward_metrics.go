package reward

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinback",
			Subsystem: "reward",
			Name:      "ops_total",
			Help:      "Reward service operations started.",
		},
		[]string{"op"},
	)

	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coinback",
			Subsystem: "reward",
			Name:      "op_duration_seconds",
			Help:      "Reward service operation latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(opsTotal, opDuration)
}

// observeOp counts the operation and returns a closure that records its
// duration when the operation finishes.
func observeOp(op string) func() {
	opsTotal.WithLabelValues(op).Inc()
	start := time.Now()
	return func() {
		opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
