package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `unit: "chp-north"
input:
  dir: "data/in"
  start: "2024-01-01T00:00:00Z"
  step_minutes: 15
solver:
  type: "cbc"
  time_limit_seconds: 120
  mip_gap: 0.005
  conf:
    path: "/usr/bin/cbc"
output:
  dir: "data/out"
  chart: true
  lp_file: true
runlog:
  backend: "sqlite"
  path: "runs.db"
metrics:
  sinks:
    - type: "nop"
mqtt:
  broker: "tcp://localhost:1883"
  ack_timeout: "5s"
sentry:
  dsn: ""
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"unit", cfg.Unit, "chp-north"},
		{"input.dir", cfg.Input.Dir, "data/in"},
		{"input.step_minutes", cfg.Input.StepMinutes, 15},
		{"solver.type", cfg.Solver.Type, "cbc"},
		{"solver.time_limit_seconds", cfg.Solver.TimeLimitSeconds, 120},
		{"solver.mip_gap", cfg.Solver.MIPGap, 0.005},
		{"solver.conf.path", cfg.Solver.Conf["path"], "/usr/bin/cbc"},
		{"output.chart", cfg.Output.Chart, true},
		{"output.csv", cfg.Output.CSV, false},
		{"output.lp_file", cfg.Output.LPFile, true},
		{"runlog.backend", cfg.RunLog.Backend, "sqlite"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"mqtt.ack_timeout", cfg.MQTT.AckTimeout, 5 * time.Second},
		{"mqtt.client_id", cfg.MQTT.ClientID, "bhkw-chp-north"},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"logging.format", cfg.Logging.Format, "json"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}

	opts := cfg.Solver.Options("solver.log")
	assert.Equal(t, 2*time.Minute, opts.TimeLimit)
	assert.Equal(t, "solver.log", opts.LogPath)
	assert.Equal(t, "cbc", cfg.Solver.Module().Type)

	clock, err := cfg.Input.Clock()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC), clock.At(2))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultUnit, cfg.Unit)
	assert.Equal(t, "01_Input", cfg.Input.Dir)
	assert.Equal(t, "02_Output", cfg.Output.Dir)
	assert.True(t, cfg.Output.CSV)
	assert.True(t, cfg.Output.JSON)
	assert.False(t, cfg.Output.Chart)
	assert.Equal(t, "branch_and_bound", cfg.Solver.Type)
	assert.Equal(t, "jsonl", cfg.RunLog.Backend)
	assert.Empty(t, cfg.MQTT.ClientID)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("K_SOLVER__TIME_LIMIT_SECONDS", "45")
	t.Setenv("K_UNIT", "chp-env")
	cfg, err := Load(writeConfig(t, "config.yaml", "solver:\n  time_limit_seconds: 10\n"))
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Solver.TimeLimitSeconds)
	assert.Equal(t, "chp-env", cfg.Unit)
}

func TestLoad_EnvOverrideNested(t *testing.T) {
	t.Setenv("K_MQTT__ACK_TOPIC", "plant/+/ack")
	t.Setenv("K_OUTPUT__CHART", "true")
	t.Setenv("K_SOLVER__MIP_GAP", "0.05")
	cfg, err := Load(writeConfig(t, "config.yaml", "mqtt:\n  broker: tcp://localhost:1883\n"))
	require.NoError(t, err)
	assert.Equal(t, "plant/+/ack", cfg.MQTT.AckTopic)
	assert.True(t, cfg.Output.Chart)
	assert.InDelta(t, 0.05, cfg.Solver.MIPGap, 1e-12)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "solver.time_limit_seconds", envKey("K_SOLVER__TIME_LIMIT_SECONDS"))
	assert.Equal(t, "runlog.max_size_mb", envKey("K_RUNLOG__MAX_SIZE_MB"))
	assert.Equal(t, "unit", envKey("K_UNIT"))
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"solver type":  "solver:\n  type: glpk\n",
		"mip gap":      "solver:\n  mip_gap: 1.5\n",
		"time limit":   "solver:\n  time_limit_seconds: -1\n",
		"start":        "input:\n  start: yesterday\n",
		"step minutes": "input:\n  step_minutes: -15\n",
		"runlog":       "runlog:\n  backend: csv\n",
		"level":        "logging:\n  level: loud\n",
		"format":       "logging:\n  format: xml\n",
		"sentry rate":  "sentry:\n  traces_sample_rate: 2\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, "config.toml", ""))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoggingApply(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("APP_ENV", "")
	LoggingConfig{Level: "WARN", Format: "console"}.Apply()
	assert.Equal(t, "warn", os.Getenv("LOG_LEVEL"))
	assert.Equal(t, "dev", os.Getenv("APP_ENV"))

	t.Setenv("LOG_LEVEL", "error")
	LoggingConfig{Level: "debug"}.Apply()
	assert.Equal(t, "error", os.Getenv("LOG_LEVEL"))
}
