package main

import (
	"bufio"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/softboiler/boilerdaq/internal/instrument"
)

var setVoltageCmd = &cobra.Command{
	Use:   "set-voltage <volts>",
	Short: "Source a fixed voltage until Enter is pressed",
	Long: `Opens the supply with the configured current limit, sources the given
voltage and waits. Pressing Enter zeroes the current and turns the output off.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		volts, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid voltage %q: %w", args[0], err)
		}
		if volts < 0 {
			return fmt.Errorf("voltage must not be negative, got %g", volts)
		}

		log, err := newLogger(false)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		return holdVoltage(cmd, newSupply(cfg, log), volts, log)
	},
}

func holdVoltage(cmd *cobra.Command, supply *instrument.Supply, volts float64, log *zap.Logger) (err error) {
	ctx := cmd.Context()
	if err := supply.Open(ctx); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, supply.Set(ctx, instrument.Current, 0))
		err = multierr.Append(err, supply.Close())
	}()

	if err := supply.Set(ctx, instrument.Voltage, volts); err != nil {
		return err
	}
	log.Info("sourcing", zap.Float64("volts", volts))
	fmt.Fprintf(cmd.OutOrStdout(), "Sourcing %g V. Press Enter to turn the output off.\n", volts)

	if _, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n'); err != nil {
		log.Warn("stdin closed", zap.Error(err))
	}
	return nil
}
