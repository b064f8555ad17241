package kv

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldnotes_kv_ops_total",
		Help: "Backing store operations by op and outcome.",
	}, []string{"op", "outcome"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldnotes_kv_op_duration_seconds",
		Help:    "Backing store operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// observeOp records one store operation. A miss (ErrNotFound) is a
// normal outcome and tracked separately from real errors.
func observeOp(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "miss"
	default:
		outcome = "error"
	}
	opsTotal.WithLabelValues(op, outcome).Inc()
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
