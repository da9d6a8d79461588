// Package param loads the tabular configuration that defines a run: the
// hardware sensors and the parameters of every derived quantity computed
// from them. Each table is a CSV file with a header row; row order is
// preserved because later tables refer to earlier rows by name.
package param

import "fmt"

// Kind is what a sensor channel measures.
type Kind string

const (
	Temperature Kind = "temperature"
	Voltage     Kind = "voltage"
)

// Sensor describes one hardware channel.
type Sensor struct {
	Name    string
	Board   int
	Channel int
	Reading Kind
	Unit    string // C, F, K or V
	EstRise bool   // estimate step-response rise for this channel
}

// Scaled turns an upstream value into value*Scale + Offset.
type Scaled struct {
	Name           string
	UnscaledSensor string
	Scale          float64
	Offset         float64
	Unit           string
}

// Flux is the conductive heat flux between two upstream results.
type Flux struct {
	Name          string
	OriginSensor  string
	DistantSensor string
	Conductivity  float64
	Length        float64
	Unit          string
}

// Extrap projects the origin value along a flux over Length.
type Extrap struct {
	Name         string
	OriginSensor string
	Flux         string
	Conductivity float64
	Length       float64
	Unit         string
}

// Power names a quantity read from and commanded to the power supply.
// Name is "V" for voltage or "I" for current.
type Power struct {
	Name string
	Unit string
}

// ConfigError reports a malformed configuration table.
type ConfigError struct {
	Path   string
	Line   int
	Column string
	Err    error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Line > 0 && e.Column != "":
		return fmt.Sprintf("%s:%d: column %q: %v", e.Path, e.Line, e.Column, e.Err)
	case e.Column != "":
		return fmt.Sprintf("%s: column %q: %v", e.Path, e.Column, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }
