package sensor

import (
	"fmt"
	"strings"
)

// UnitCode is the scale code a board uses for temperature conversion.
type UnitCode int

const (
	Celsius    UnitCode = 0
	Fahrenheit UnitCode = 1
	Kelvin     UnitCode = 2
	Volts      UnitCode = 5
)

// unitCodes maps configured unit names to board scale codes.
var unitCodes = []struct {
	unit string
	code UnitCode
}{
	{"C", Celsius},
	{"F", Fahrenheit},
	{"K", Kelvin},
	{"V", Volts},
}

// ParseUnit returns the scale code for a unit name such as "C" or "K".
func ParseUnit(unit string) (UnitCode, error) {
	u := strings.ToUpper(strings.TrimSpace(unit))
	for _, entry := range unitCodes {
		if entry.unit == u {
			return entry.code, nil
		}
	}
	return 0, fmt.Errorf("unsupported unit %q", unit)
}

func (u UnitCode) String() string {
	for _, entry := range unitCodes {
		if entry.code == u {
			return entry.unit
		}
	}
	return fmt.Sprintf("UnitCode(%d)", int(u))
}

// FromCelsius converts a Celsius temperature to the unit.
func (u UnitCode) FromCelsius(c float64) float64 {
	switch u {
	case Fahrenheit:
		return c*9/5 + 32
	case Kelvin:
		return c + 273.15
	default:
		return c
	}
}
