package metrics

import (
	"fmt"

	"github.com/kilianp07/bhkw/core/factory"
)

var sinks = factory.NewRegistry[RunSink]()

// RegisterRunSink makes a sink type available to NewRunSink. Registering a
// name twice panics.
func RegisterRunSink(name string, f factory.Factory[RunSink]) {
	sinks.MustRegister(name, f)
}

// SinkTypes lists the registered sink types.
func SinkTypes() []string { return sinks.Names() }

// NewRunSink builds the configured sinks. No entry yields NopSink and several
// are combined into a MultiSink.
func NewRunSink(cfgs []factory.ModuleConfig) (RunSink, error) {
	built := make([]RunSink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := sinks.Create(c)
		if err != nil {
			return nil, fmt.Errorf("metrics sink %d: %w", i, err)
		}
		built = append(built, s)
	}
	switch len(built) {
	case 0:
		return NopSink{}, nil
	case 1:
		return built[0], nil
	}
	return NewMultiSink(built...), nil
}
