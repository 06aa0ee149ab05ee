// Command grantmesh runs the grant evaluation dispatcher, a reference
// evaluator agent and operator utilities.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/grantmesh/config"
	"github.com/hupe1980/grantmesh/logging"
)

var (
	configFile string
	logLevel   string
	logFormat  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(serveCmd, agentCmd, reapCmd, ledgerCmd)
}

var rootCmd = &cobra.Command{
	Use:           "grantmesh",
	Short:         "Multi-agent grant evaluation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) (*logging.MeshLogger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogLogger(level, cfg.Log.Format, cfg.Log.AddSource), nil
}
