// Package store persists result values as CSV. A Writer owns one or more
// result files, each with its own fixed column order, and appends one row to
// every file per tick. Files are named after a base path with the creation
// time embedded, so every run gets new files.
package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/softboiler/boilerdaq/internal/result"
)

const (
	// TimeLayout is the layout of the time column.
	TimeLayout = "2006-01-02T15:04:05.000000-07:00"
	// stampLayout is embedded in file names; colons are not valid in names
	// on every filesystem.
	stampLayout = "2006-01-02T15-04-05"
)

// file is one CSV file and the results it records, in column order.
type file struct {
	path    string
	f       *os.File
	w       *csv.Writer
	results []result.Result
}

func (f *file) write(at time.Time) error {
	rec := make([]string, 0, len(f.results)+1)
	rec = append(rec, at.Format(TimeLayout))
	for _, r := range f.results {
		rec = append(rec, formatValue(r.Value()))
	}
	if err := f.w.Write(rec); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	f.w.Flush()
	if err := f.w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Writer appends result rows to CSV files once per tick.
type Writer struct {
	graph  *result.Graph
	files  []*file
	primed bool
	now    func() time.Time
	log    *zap.Logger
}

// NewWriter returns a writer that advances g on every Update.
func NewWriter(g *result.Graph, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{graph: g, now: time.Now, log: log}
}

// Add creates a new file next to base, named after base with the current
// time embedded, writes its header and a first row of current values. The
// first Add produces those values by priming the graph, which briefly
// activates hardware that is not yet open. It returns the created path.
func (w *Writer) Add(ctx context.Context, base string, results []result.Result) (string, error) {
	if len(results) == 0 {
		return "", errors.New("no results to write")
	}
	now := w.now()

	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	path, f, err := create(base, now)
	if err != nil {
		return "", err
	}

	header := make([]string, 0, len(results)+1)
	header = append(header, "time")
	for _, r := range results {
		header = append(header, result.Label(r))
	}
	out := &file{path: path, f: f, w: csv.NewWriter(f), results: append([]result.Result(nil), results...)}
	if err := out.w.Write(header); err != nil {
		return "", multierr.Append(fmt.Errorf("write %s: %w", path, err), f.Close())
	}

	if !w.primed {
		// Degradations are logged by the graph.
		_ = w.graph.Prime(ctx, now)
		w.primed = true
	}
	if err := out.write(now); err != nil {
		return "", multierr.Append(err, f.Close())
	}

	w.files = append(w.files, out)
	w.log.Info("writing results", zap.String("path", path), zap.Int("columns", len(results)))
	return path, nil
}

// create opens a new file for base stamped with at, adding a counter when a
// file with the same stamp already exists.
func create(base string, at time.Time) (string, *os.File, error) {
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".csv"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base)) + "_" + at.Format(stampLayout)
	for i := 0; ; i++ {
		path := stem + ext
		if i > 0 {
			path = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("create results file: %w", err)
		}
		return path, f, nil
	}
}

// Update advances every result of the graph once, then appends one row to
// every file. Result degradations are logged and do not fail the update;
// only file errors are returned.
func (w *Writer) Update(ctx context.Context) error {
	now := w.now()
	_ = w.graph.Update(ctx, now)

	var errs error
	for _, f := range w.files {
		errs = multierr.Append(errs, f.write(now))
	}
	return errs
}

// Paths returns the files being written, in the order they were added.
func (w *Writer) Paths() []string {
	paths := make([]string, len(w.files))
	for i, f := range w.files {
		paths[i] = f.path
	}
	return paths
}

// Close flushes and closes every file.
func (w *Writer) Close() error {
	var errs error
	for _, f := range w.files {
		f.w.Flush()
		errs = multierr.Append(errs, f.w.Error())
		errs = multierr.Append(errs, f.f.Close())
	}
	w.files = nil
	return errs
}
