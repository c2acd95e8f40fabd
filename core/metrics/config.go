package metrics

import "github.com/kilianp07/bhkw/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusPort exposes /metrics while a run is in progress when set.
	PrometheusPort string `json:"prometheus_port"`
}
