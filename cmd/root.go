package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bhkw/config"
	"github.com/kilianp07/bhkw/core/monitoring"
	inframon "github.com/kilianp07/bhkw/infra/monitoring"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "bhkw",
	Short:         "CHP dispatch optimizer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error {
	defer monitoring.Flush(2 * time.Second)
	return rootCmd.Execute()
}

// loadConfig reads the configuration, applies the logging settings and
// installs the error monitor.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Logging.Apply()
	if err := inframon.Setup(cfg.Sentry); err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	return cfg, nil
}
