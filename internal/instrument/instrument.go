// Package instrument talks to a bench power supply through SCPI-style text
// commands. The supply is reached through the narrow Instrument contract:
// write a command, or query one and read back a single-line answer.
package instrument

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned when a command is sent through a closed session.
var ErrClosed = errors.New("instrument closed")

// Instrument is a message-based instrument connection.
type Instrument interface {
	Write(ctx context.Context, cmd string) error
	Query(ctx context.Context, cmd string) (string, error)
	Close() error
}

// Dialer opens a new connection to an instrument.
type Dialer func(ctx context.Context) (Instrument, error)

// IOError reports a failed command.
type IOError struct {
	Command string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("instrument %q: %v", e.Command, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Quantity is what a supply sources and measures.
type Quantity string

const (
	Voltage Quantity = "V"
	Current Quantity = "I"
)

func (q Quantity) word() (string, error) {
	switch q {
	case Voltage:
		return "voltage", nil
	case Current:
		return "current", nil
	default:
		return "", fmt.Errorf("unknown quantity %q", string(q))
	}
}
