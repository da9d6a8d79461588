package param

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	errMissingColumn = errors.New("missing required column")
	errEmpty         = errors.New("empty value")
)

// table is a CSV file read into memory with its header indexed by name.
type table struct {
	path    string
	columns map[string]int
	rows    [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()
	return parseTable(path, f)
}

func parseTable(path string, r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if len(records) == 0 {
		return nil, &ConfigError{Path: path, Err: errors.New("no header row")}
	}

	t := &table{path: path, columns: make(map[string]int), rows: records[1:]}
	for i, name := range records[0] {
		t.columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	return t, nil
}

func (t *table) require(names ...string) error {
	for _, name := range names {
		if _, ok := t.columns[name]; !ok {
			return &ConfigError{Path: t.path, Column: name, Err: errMissingColumn}
		}
	}
	return nil
}

func (t *table) has(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// row gives typed access to one data row. The first error encountered is
// kept and later accessors become no-ops, so a loader can read every field
// and check err once.
type row struct {
	t    *table
	line int
	rec  []string
	err  error
}

func (t *table) each(fn func(r *row) error) error {
	for i, rec := range t.rows {
		r := &row{t: t, line: i + 2, rec: rec}
		if err := fn(r); err != nil {
			return err
		}
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

func (r *row) fail(column string, err error) {
	if r.err == nil {
		r.err = &ConfigError{Path: r.t.path, Line: r.line, Column: column, Err: err}
	}
}

func (r *row) str(column string) string {
	i := r.t.columns[column]
	if i >= len(r.rec) {
		r.fail(column, errEmpty)
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r *row) name(column string) string {
	s := r.str(column)
	if s == "" {
		r.fail(column, errEmpty)
	}
	return s
}

func (r *row) float(column string) float64 {
	s := r.str(column)
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(column, err)
	}
	return v
}

func (r *row) int(column string) int {
	s := r.str(column)
	if r.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.fail(column, err)
	}
	return v
}

// flag parses an integer column where 0 is false and anything else is true.
func (r *row) flag(column string) bool {
	return r.int(column) != 0
}

// LoadSensors reads a sensor table with columns
// name, board, channel, reading, unit and optionally est_rise.
func LoadSensors(path string) ([]Sensor, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	return sensorsFrom(t)
}

func sensorsFrom(t *table) ([]Sensor, error) {
	if err := t.require("name", "board", "channel", "reading", "unit"); err != nil {
		return nil, err
	}
	estRise := t.has("est_rise")

	var sensors []Sensor
	err := t.each(func(r *row) error {
		s := Sensor{
			Name:    r.name("name"),
			Board:   r.int("board"),
			Channel: r.int("channel"),
			Reading: Kind(strings.ToLower(r.name("reading"))),
			Unit:    r.name("unit"),
		}
		if estRise {
			s.EstRise = r.flag("est_rise")
		}
		if r.err == nil && s.Reading != Temperature && s.Reading != Voltage {
			r.fail("reading", fmt.Errorf("unknown reading kind %q", s.Reading))
		}
		sensors = append(sensors, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sensors, nil
}

// LoadScaled reads a scaled parameter table with columns
// name, unscaled_sensor, scale, offset, unit.
func LoadScaled(path string) ([]Scaled, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if err := t.require("name", "unscaled_sensor", "scale", "offset", "unit"); err != nil {
		return nil, err
	}

	var params []Scaled
	err = t.each(func(r *row) error {
		params = append(params, Scaled{
			Name:           r.name("name"),
			UnscaledSensor: r.name("unscaled_sensor"),
			Scale:          r.float("scale"),
			Offset:         r.float("offset"),
			Unit:           r.str("unit"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return params, nil
}

// LoadFlux reads a flux parameter table with columns
// name, origin_sensor, distant_sensor, conductivity, length, unit.
func LoadFlux(path string) ([]Flux, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if err := t.require("name", "origin_sensor", "distant_sensor", "conductivity", "length", "unit"); err != nil {
		return nil, err
	}

	var params []Flux
	err = t.each(func(r *row) error {
		p := Flux{
			Name:          r.name("name"),
			OriginSensor:  r.name("origin_sensor"),
			DistantSensor: r.name("distant_sensor"),
			Conductivity:  r.float("conductivity"),
			Length:        r.float("length"),
			Unit:          r.str("unit"),
		}
		if r.err == nil && p.Length == 0 {
			r.fail("length", errors.New("must be non-zero"))
		}
		params = append(params, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return params, nil
}

// LoadExtrap reads an extrapolation parameter table with columns
// name, origin_sensor, flux, conductivity, length, unit.
func LoadExtrap(path string) ([]Extrap, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if err := t.require("name", "origin_sensor", "flux", "conductivity", "length", "unit"); err != nil {
		return nil, err
	}

	var params []Extrap
	err = t.each(func(r *row) error {
		p := Extrap{
			Name:         r.name("name"),
			OriginSensor: r.name("origin_sensor"),
			Flux:         r.name("flux"),
			Conductivity: r.float("conductivity"),
			Length:       r.float("length"),
			Unit:         r.str("unit"),
		}
		if r.err == nil && p.Conductivity == 0 {
			r.fail("conductivity", errors.New("must be non-zero"))
		}
		params = append(params, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return params, nil
}

// LoadPower reads a power supply table with columns name, unit.
func LoadPower(path string) ([]Power, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if err := t.require("name", "unit"); err != nil {
		return nil, err
	}

	var params []Power
	err = t.each(func(r *row) error {
		p := Power{Name: r.name("name"), Unit: r.str("unit")}
		if r.err == nil && p.Name != "V" && p.Name != "I" {
			r.fail("name", fmt.Errorf("power supply quantity must be V or I, got %q", p.Name))
		}
		params = append(params, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return params, nil
}
