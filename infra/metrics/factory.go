package metrics

import (
	"github.com/kilianp07/bhkw/core/factory"
	coremetrics "github.com/kilianp07/bhkw/core/metrics"
)

func init() {
	coremetrics.RegisterRunSink("nop", func(map[string]any) (coremetrics.RunSink, error) {
		return coremetrics.NopSink{}, nil
	})

	coremetrics.RegisterRunSink("prometheus", func(conf map[string]any) (coremetrics.RunSink, error) {
		var c PromConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPromSink(c)
	})

	coremetrics.RegisterRunSink("influx", func(conf map[string]any) (coremetrics.RunSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
