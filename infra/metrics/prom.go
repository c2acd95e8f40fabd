package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	coremetrics "github.com/kilianp07/bhkw/core/metrics"
)

// PromConfig configures the Prometheus sink. When PushURL is set every run is
// pushed to a Pushgateway under Job, since a batch solve may exit before it is
// scraped.
type PromConfig struct {
	PushURL string `json:"push_url"`
	Job     string `json:"job"`
}

// PromSink records run outcomes in Prometheus metrics.
type PromSink struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	objective prometheus.Gauge
	gap       prometheus.Gauge
	online    prometheus.Gauge

	pusher *push.Pusher
}

// NewPromSink registers run metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using the configured port.
func NewPromSink(cfg PromConfig) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg PromConfig, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bhkw_runs_total",
			Help: "Total number of optimisation runs by solver and status",
		}, []string{"solver", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bhkw_solve_duration_seconds",
			Help:    "Wall time of the solver call",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"solver"}),
		objective: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bhkw_objective",
			Help: "Net operating cost of the last solved schedule",
		}),
		gap: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bhkw_mip_gap",
			Help: "Relative optimality gap of the last solved schedule",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bhkw_online_steps",
			Help: "Number of committed steps in the last solved schedule",
		}),
	}
	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, s.objective); err != nil {
		return nil, err
	}
	if s.gap, err = register(reg, s.gap); err != nil {
		return nil, err
	}
	if s.online, err = register(reg, s.online); err != nil {
		return nil, err
	}

	if cfg.PushURL != "" {
		job := cfg.Job
		if job == "" {
			job = "bhkw"
		}
		g, ok := reg.(prometheus.Gatherer)
		if !ok {
			g = prometheus.DefaultGatherer
		}
		s.pusher = push.New(cfg.PushURL, job).Gatherer(g)
	}
	return s, nil
}

// register adds c to reg, reusing an already registered collector of the
// same description.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRun updates the run counters and, when configured, pushes them.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(ev.Solver, ev.Status).Inc()
	s.duration.WithLabelValues(ev.Solver).Observe(ev.Runtime.Seconds())
	if ev.Status == "optimal" || ev.Status == "feasible" {
		s.objective.Set(ev.Objective)
		s.gap.Set(ev.Gap)
		s.online.Set(float64(ev.OnlineSteps))
	}
	if s.pusher != nil {
		if err := s.pusher.Grouping("run_id", ev.RunID).Push(); err != nil {
			return fmt.Errorf("push metrics: %w", err)
		}
	}
	return nil
}
