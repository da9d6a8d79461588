package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// ErrNoRuns is returned when no previous results file exists.
var ErrNoRuns = errors.New("no previous results")

// Table is a results file read back into memory.
type Table struct {
	Path    string
	Columns []string // labels after the time column
	Times   []time.Time
	Rows    [][]float64
}

// Column returns every value of the column with the given label.
func (t *Table) Column(label string) ([]float64, error) {
	i := t.index(label)
	if i < 0 {
		return nil, fmt.Errorf("%s: no column %q", t.Path, label)
	}
	out := make([]float64, len(t.Rows))
	for j, row := range t.Rows {
		out[j] = row[i]
	}
	return out, nil
}

func (t *Table) index(label string) int {
	for i, c := range t.Columns {
		if c == label {
			return i
		}
	}
	return -1
}

// LoadFile reads a results file. Rows with an unparseable time are skipped;
// unparseable values read as NaN.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 || len(records[0]) == 0 || records[0][0] != "time" {
		return nil, fmt.Errorf("read %s: missing time header", path)
	}

	t := &Table{Path: path, Columns: records[0][1:]}
	for _, rec := range records[1:] {
		at, err := iso8601.ParseString(rec[0])
		if err != nil {
			continue
		}
		row := make([]float64, len(t.Columns))
		for i := range row {
			row[i] = math.NaN()
			if i+1 < len(rec) {
				if v, err := strconv.ParseFloat(rec[i+1], 64); err == nil {
					row[i] = v
				}
			}
		}
		t.Times = append(t.Times, at)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Runs returns the results files created for base, oldest first.
func Runs(base string) ([]string, error) {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".csv"
	}
	matches, err := filepath.Glob(stem + "_*" + ext)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, m := range matches {
		rest := strings.TrimPrefix(m, stem+"_")
		if len(rest) < len(stampLayout) {
			continue
		}
		if _, err := time.Parse(stampLayout, rest[:len(stampLayout)]); err != nil {
			continue
		}
		paths = append(paths, m)
	}
	// Stamps sort lexically in time order.
	sort.Strings(paths)
	return paths, nil
}

// Latest returns the newest results file created for base.
func Latest(base string) (string, error) {
	paths, err := Runs(base)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoRuns, base)
	}
	return paths[len(paths)-1], nil
}

// LastValue returns the last finite value of a column in the newest results
// file created for base.
func LastValue(base, label string) (float64, error) {
	path, err := Latest(base)
	if err != nil {
		return 0, err
	}
	t, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	col, err := t.Column(label)
	if err != nil {
		return 0, err
	}
	for i := len(col) - 1; i >= 0; i-- {
		if !math.IsNaN(col[i]) && !math.IsInf(col[i], 0) {
			return col[i], nil
		}
	}
	return 0, fmt.Errorf("%s: column %q has no values", path, label)
}
