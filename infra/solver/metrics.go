package solver

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	solveNodes        prometheus.Counter
	incumbentUpdates  prometheus.Counter
	relaxationLatency prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, prometheus.Counter, prometheus.Histogram) {
	nodes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bhkw_bnb_nodes_total",
		Help: "Number of branch and bound nodes evaluated",
	})
	inc := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bhkw_bnb_incumbents_total",
		Help: "Number of improved integer solutions found",
	})
	lat := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bhkw_lp_relaxation_seconds",
		Help:    "Time spent solving a single LP relaxation",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	})
	return nodes, inc, lat
}

func init() {
	solveNodes, incumbentUpdates, relaxationLatency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers solver metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(solveNodes, incumbentUpdates, relaxationLatency)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	solveNodes, incumbentUpdates, relaxationLatency = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
