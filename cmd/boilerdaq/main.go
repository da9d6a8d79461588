// Command boilerdaq acquires, controls and records a nucleate pool boiling
// experiment.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/softboiler/boilerdaq/internal/config"
	"github.com/softboiler/boilerdaq/internal/logging"
)

var (
	// Global flags
	configPath string
	debug      bool
	logLevel   string

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "boilerdaq",
	Short: "Data acquisition and control for pool boiling experiments",
	Long: `boilerdaq polls thermocouples and a power supply on a fixed cadence,
derives calibrated temperatures, heat fluxes and extrapolated surface
temperatures from them, records every tick to CSV and can hold a feedback
temperature at a setpoint by commanding the supply.

The result graph is defined by the CSV tables named in the config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "boilerdaq.yaml", "run configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "synthetic board and a fast poll interval")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(runCmd, viewCmd, setVoltageCmd, configCmd)
}

// loadConfig reads the config file. Defaults stand in for a missing file
// unless one was named explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		c, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if debug {
		c.Debug = true
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	return c, nil
}

// newLogger logs to the configured file while a terminal display owns the
// screen and to stderr otherwise.
func newLogger(display bool) (*zap.Logger, error) {
	lc := logging.Config{Level: cfg.Logging.Level}
	if display {
		lc.File = cfg.Logging.File
	}
	log, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
