package sweep

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/cbf.sweep/internal/fsutil"
	"github.com/banshee-data/cbf.sweep/internal/sim"
)

// DatasetFileName is the name of the concatenated output.
const DatasetFileName = "dataset.csv"

// BatchFileName returns the file name for batch n (0-based).
func BatchFileName(n int) string {
	return fmt.Sprintf("batch_%04d.csv", n)
}

// CSVWriter wraps csv.Writer with the dataset schema.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter creates a writer on w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// WriteHeader writes the dataset header row.
func (c *CSVWriter) WriteHeader() error {
	return c.w.Write(sim.Header)
}

// WriteOutcome writes one dataset row.
func (c *CSVWriter) WriteOutcome(o sim.Outcome) error {
	return c.w.Write(o.Record())
}

// Flush flushes buffered rows and reports any write error.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// WriteBatch writes rows to dir/batch_NNNN.csv and returns the path.
func WriteBatch(fsys fsutil.FileSystem, dir string, n int, rows []Row) (string, error) {
	path := filepath.Join(dir, BatchFileName(n))
	f, err := fsys.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}

	w := NewCSVWriter(f)
	err = w.WriteHeader()
	for i := 0; err == nil && i < len(rows); i++ {
		err = w.WriteOutcome(rows[i].Outcome)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ConcatBatches concatenates batch files into dst, keeping one header, and
// returns the number of data rows written.
func ConcatBatches(fsys fsutil.FileSystem, paths []string, dst string) (int, error) {
	f, err := fsys.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}
	w := NewCSVWriter(f)
	rows := 0

	err = w.WriteHeader()
	for _, p := range paths {
		if err != nil {
			break
		}
		var outcomes []sim.Outcome
		outcomes, err = readOutcomeFile(fsys, p)
		for i := 0; err == nil && i < len(outcomes); i++ {
			err = w.WriteOutcome(outcomes[i])
			rows++
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("concatenating into %s: %w", dst, err)
	}
	return rows, nil
}

func readOutcomeFile(fsys fsutil.FileSystem, path string) ([]sim.Outcome, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out, err := ReadOutcomes(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}

// ReadOutcomes parses a dataset CSV (with header) back into outcomes.
func ReadOutcomes(r io.Reader) ([]sim.Outcome, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(sim.Header)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i, h := range header {
		if h != sim.Header[i] {
			return nil, fmt.Errorf("unexpected column %d: %q, want %q", i, h, sim.Header[i])
		}
	}

	var out []sim.Outcome
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		o, err := parseOutcome(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(out)+1, err)
		}
		out = append(out, o)
	}
}

func parseOutcome(rec []string) (sim.Outcome, error) {
	var f [8]float64
	cols := [8]int{0, 1, 2, 3, 4, 6, 7, 8}
	for i, c := range cols {
		v, err := strconv.ParseFloat(rec[c], 64)
		if err != nil {
			return sim.Outcome{}, fmt.Errorf("column %s: %w", sim.Header[c], err)
		}
		f[i] = v
	}
	cf, err := strconv.ParseBool(rec[5])
	if err != nil {
		return sim.Outcome{}, fmt.Errorf("column %s: %w", sim.Header[5], err)
	}
	return sim.Outcome{
		Distance:      f[0],
		Velocity:      f[1],
		Theta:         f[2],
		Gamma1:        f[3],
		Gamma2:        f[4],
		CollisionFree: cf,
		SafetyLoss:    f[5],
		DeadlockTime:  f[6],
		SimTime:       f[7],
	}, nil
}
