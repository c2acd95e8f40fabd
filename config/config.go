package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/bhkw/core/metrics"
	"github.com/kilianp07/bhkw/core/runlog"
	"github.com/kilianp07/bhkw/infra/mqtt"
)

// DefaultUnit names the unit in published plans and metrics when none is set.
const DefaultUnit = "chp-1"

type Config struct {
	Unit    string         `json:"unit"`
	Input   InputConfig    `json:"input"`
	Solver  SolverConfig   `json:"solver"`
	Output  OutputConfig   `json:"output"`
	RunLog  runlog.Config  `json:"runlog"`
	Metrics metrics.Config `json:"metrics"`
	MQTT    mqtt.Config    `json:"mqtt"`
	Sentry  SentryConfig   `json:"sentry"`
	Logging LoggingConfig  `json:"logging"`
}

// Load reads the configuration file at path and applies K_ prefixed
// environment overrides, with __ separating nested keys
// (K_SOLVER__TIME_LIMIT_SECONDS=60).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const envPrefix = "K_"

// envKey maps K_SOLVER__TIME_LIMIT_SECONDS to solver.time_limit_seconds. The
// provider splits the result on ".", so nesting must already be resolved here.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// SetDefaults fills every section with its defaults.
func (c *Config) SetDefaults() {
	if c.Unit == "" {
		c.Unit = DefaultUnit
	}
	c.Input.SetDefaults()
	c.Solver.SetDefaults()
	c.Output.SetDefaults()
	c.Logging.SetDefaults()
	if c.RunLog.Backend == "" {
		c.RunLog.Backend = "jsonl"
	}
	if c.MQTT.Enabled() && c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "bhkw-" + c.Unit
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch c.RunLog.Backend {
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("runlog: unknown backend %s", c.RunLog.Backend)
	}
	if c.Sentry.TracesSampleRate < 0 || c.Sentry.TracesSampleRate > 1 {
		return fmt.Errorf("sentry: traces_sample_rate must be within [0,1]")
	}
	return nil
}
