// Package sensor is the acquisition boundary for thermocouple and voltage
// channels. A Board reads one channel at a time, addressed by board and
// channel number; the rest of the program never sees a vendor SDK.
package sensor

import (
	"context"
	"fmt"
)

// Board reads analog channels.
type Board interface {
	// Temperature returns the linearized temperature of a thermocouple
	// channel in the given unit.
	Temperature(ctx context.Context, board, channel int, unit UnitCode) (float64, error)
	// Voltage returns the raw voltage of a channel.
	Voltage(ctx context.Context, board, channel int) (float64, error)
}

// AcquisitionError reports a failed channel read.
type AcquisitionError struct {
	Board   int
	Channel int
	Err     error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("board %d channel %d: %v", e.Board, e.Channel, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
