package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultHwmonRoot is where Linux exposes hardware monitoring chips.
const DefaultHwmonRoot = "/sys/class/hwmon"

// Hwmon reads channels from the Linux hwmon sysfs interface. Board n is
// hwmon<n>; temperature channel c is temp<c>_input (millidegrees Celsius)
// and voltage channel c is in<c>_input (millivolts).
type Hwmon struct {
	Root string
}

// NewHwmon returns a board reading from root, or DefaultHwmonRoot if empty.
func NewHwmon(root string) *Hwmon {
	if root == "" {
		root = DefaultHwmonRoot
	}
	return &Hwmon{Root: root}
}

func (h *Hwmon) Temperature(ctx context.Context, board, channel int, unit UnitCode) (float64, error) {
	if unit == Volts {
		return h.Voltage(ctx, board, channel)
	}
	milliC, err := h.read(ctx, board, fmt.Sprintf("temp%d_input", channel))
	if err != nil {
		return 0, &AcquisitionError{Board: board, Channel: channel, Err: err}
	}
	return unit.FromCelsius(milliC / 1000.0), nil
}

func (h *Hwmon) Voltage(ctx context.Context, board, channel int) (float64, error) {
	milliV, err := h.read(ctx, board, fmt.Sprintf("in%d_input", channel))
	if err != nil {
		return 0, &AcquisitionError{Board: board, Channel: channel, Err: err}
	}
	return milliV / 1000.0, nil
}

func (h *Hwmon) read(ctx context.Context, board int, file string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b, err := os.ReadFile(filepath.Join(h.Root, fmt.Sprintf("hwmon%d", board), file))
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}

// Chip is one hwmon device found under the root.
type Chip struct {
	Board int
	Name  string
}

// Chips lists the hwmon devices under the root, ordered by board number.
func (h *Hwmon) Chips() ([]Chip, error) {
	matches, err := filepath.Glob(filepath.Join(h.Root, "hwmon*", "name"))
	if err != nil {
		return nil, err
	}

	var chips []Chip
	for _, namePath := range matches {
		dir := filepath.Base(filepath.Dir(namePath))
		n, err := strconv.Atoi(strings.TrimPrefix(dir, "hwmon"))
		if err != nil {
			continue
		}
		name, err := os.ReadFile(namePath)
		if err != nil {
			continue
		}
		chips = append(chips, Chip{Board: n, Name: strings.TrimSpace(string(name))})
	}
	sort.Slice(chips, func(i, j int) bool { return chips[i].Board < chips[j].Board })
	return chips, nil
}
