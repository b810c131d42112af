package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/cbf.sweep/internal/fsutil"
	"github.com/banshee-data/cbf.sweep/internal/monitoring"
	"github.com/banshee-data/cbf.sweep/internal/sim"
	"github.com/banshee-data/cbf.sweep/internal/timeutil"
)

// SweepStatus represents the current state of a sweep run
type SweepStatus string

const (
	SweepStatusIdle     SweepStatus = "idle"
	SweepStatusRunning  SweepStatus = "running"
	SweepStatusComplete SweepStatus = "complete"
	SweepStatusError    SweepStatus = "error"
)

// ErrSweepRunning is returned when Run is called while a sweep is active.
var ErrSweepRunning = errors.New("sweep already in progress")

// SweepRequest defines the parameters for starting a sweep
type SweepRequest struct {
	Grid      Grid   `json:"grid"`
	Workers   int    `json:"workers"`    // concurrent runs per batch
	BatchSize int    `json:"batch_size"` // rows per flushed batch
	OutDir    string `json:"out_dir,omitempty"`
	Concat    bool   `json:"concat,omitempty"` // also write dataset.csv
}

// Row is one configuration's result. Failed rows carry the worst-case label
// (collision_free=false) and the error that caused them.
type Row struct {
	Index   int
	Outcome sim.Outcome
	Failed  bool
	Err     string
}

// SweepState holds the current state and progress of a sweep
type SweepState struct {
	ID              string        `json:"id"`
	Status          SweepStatus   `json:"status"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	TotalCombos     int           `json:"total_combos"`
	CompletedCombos int           `json:"completed_combos"`
	FailedCombos    int           `json:"failed_combos"`
	Batches         []string      `json:"batches,omitempty"`
	Dataset         string        `json:"dataset,omitempty"`
	Error           string        `json:"error,omitempty"`
	Warnings        []string      `json:"warnings,omitempty"`
	Summary         []GainSummary `json:"summary,omitempty"`
	Request         *SweepRequest `json:"request,omitempty"`
}

// Recorder persists sweep progress. All methods are called from the
// goroutine running the sweep, never concurrently.
type Recorder interface {
	StartSweep(ctx context.Context, state SweepState) error
	RecordBatch(ctx context.Context, sweepID string, rows []Row) error
	FinishSweep(ctx context.Context, state SweepState) error
}

// SimulateFunc runs one configuration.
type SimulateFunc func(p sim.Params) (sim.Outcome, error)

// RunnerConfig wires the runner's collaborators. Zero values select the
// production defaults.
type RunnerConfig struct {
	Settings sim.Settings
	// Applied to every configuration; zero selects the sim defaults.
	DeadlockThreshold float64
	MaxSimTime        float64

	FS       fsutil.FileSystem
	Clock    timeutil.Clock
	Recorder Recorder     // optional
	Simulate SimulateFunc // overrides sim.Run, for tests
}

// Runner orchestrates parameter sweeps
type Runner struct {
	fs       fsutil.FileSystem
	clock    timeutil.Clock
	recorder Recorder
	simulate SimulateFunc

	mu    sync.RWMutex
	state SweepState
}

// NewRunner creates a new sweep runner
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		fs:       cfg.FS,
		clock:    cfg.Clock,
		recorder: cfg.Recorder,
		simulate: cfg.Simulate,
		state:    SweepState{Status: SweepStatusIdle},
	}
	if r.fs == nil {
		r.fs = fsutil.OSFileSystem{}
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}
	if r.simulate == nil {
		settings := cfg.Settings
		if settings.Vehicle.Dt == 0 {
			settings = sim.DefaultSettings()
		}
		r.simulate = func(p sim.Params) (sim.Outcome, error) {
			p.DeadlockThreshold = cfg.DeadlockThreshold
			p.MaxSimTime = cfg.MaxSimTime
			res, err := sim.Run(settings, p, nil)
			return res.Outcome, err
		}
	}
	return r
}

// GetSweepState returns a copy of the current sweep state.
func (r *Runner) GetSweepState() SweepState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state := r.state
	state.Batches = append([]string(nil), r.state.Batches...)
	state.Warnings = append([]string(nil), r.state.Warnings...)
	state.Summary = append([]GainSummary(nil), r.state.Summary...)
	return state
}

// addWarning appends a warning message to the sweep state.
func (r *Runner) addWarning(msg string) {
	r.mu.Lock()
	r.state.Warnings = append(r.state.Warnings, msg)
	r.mu.Unlock()
}

// Run executes the sweep to completion and returns every row in grid
// order. Batches are flushed as they finish; a cancelled context stops
// dispatch before the next batch.
func (r *Runner) Run(ctx context.Context, req SweepRequest) ([]Row, error) {
	if err := req.Grid.Validate(); err != nil {
		return nil, err
	}
	if req.Workers <= 0 {
		req.Workers = runtime.NumCPU()
	}
	total := req.Grid.Size()
	if req.BatchSize <= 0 || req.BatchSize > total {
		req.BatchSize = total
	}

	r.mu.Lock()
	if r.state.Status == SweepStatusRunning {
		r.mu.Unlock()
		return nil, ErrSweepRunning
	}
	now := r.clock.Now()
	reqCopy := req
	r.state = SweepState{
		ID:          uuid.New().String(),
		Status:      SweepStatusRunning,
		StartedAt:   &now,
		TotalCombos: total,
		Request:     &reqCopy,
	}
	r.mu.Unlock()

	if req.OutDir != "" {
		if err := r.fs.MkdirAll(req.OutDir, 0o755); err != nil {
			return nil, r.fail(ctx, fmt.Errorf("creating output directory: %w", err))
		}
	}
	if r.recorder != nil {
		if err := r.recorder.StartSweep(ctx, r.GetSweepState()); err != nil {
			return nil, r.fail(ctx, fmt.Errorf("recording sweep start: %w", err))
		}
	}

	rows := make([]Row, 0, total)
	nBatches := (total + req.BatchSize - 1) / req.BatchSize
	for b := 0; b < nBatches; b++ {
		if err := ctx.Err(); err != nil {
			return rows, r.fail(ctx, fmt.Errorf("sweep cancelled after %d/%d batches: %w", b, nBatches, err))
		}

		start := b * req.BatchSize
		end := min(start+req.BatchSize, total)
		batch := r.runBatch(req.Grid, start, end, req.Workers)
		rows = append(rows, batch...)

		if err := r.flush(ctx, req, b, batch); err != nil {
			return rows, r.fail(ctx, err)
		}

		failed := countFailed(batch)
		r.mu.Lock()
		r.state.CompletedCombos += len(batch)
		r.state.FailedCombos += failed
		done := r.state.CompletedCombos
		r.mu.Unlock()
		monitoring.Logf("[sweep] Batch %d/%d: %d/%d configurations (%d failed)",
			b+1, nBatches, done, total, failed)
	}

	if req.Concat && req.OutDir != "" {
		dst := filepath.Join(req.OutDir, DatasetFileName)
		n, err := ConcatBatches(r.fs, r.GetSweepState().Batches, dst)
		if err != nil {
			return rows, r.fail(ctx, err)
		}
		r.mu.Lock()
		r.state.Dataset = dst
		r.mu.Unlock()
		monitoring.Logf("[sweep] Wrote %d rows to %s", n, dst)
	}

	summary := Summarize(rows)
	LogSummary(summary)

	r.mu.Lock()
	completed := r.clock.Now()
	r.state.Summary = summary
	r.state.Status = SweepStatusComplete
	r.state.CompletedAt = &completed
	r.mu.Unlock()

	if r.recorder != nil {
		if err := r.recorder.FinishSweep(ctx, r.GetSweepState()); err != nil {
			return rows, fmt.Errorf("recording sweep completion: %w", err)
		}
	}
	monitoring.Logf("[sweep] Sweep complete: %d configurations evaluated in %s",
		total, r.clock.Since(now).Round(time.Millisecond))
	return rows, nil
}

// runBatch runs configurations [start, end) on at most workers goroutines.
// Each row is written to its own slot, so the result is in index order
// regardless of scheduling.
func (r *Runner) runBatch(grid Grid, start, end, workers int) []Row {
	rows := make([]Row, end-start)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := start; i < end; i++ {
		g.Go(func() error {
			rows[i-start] = r.runOne(i, grid.At(i))
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors; failures become rows
	return rows
}

// runOne isolates a single configuration. Errors and panics produce a
// failure row instead of aborting the batch.
func (r *Runner) runOne(i int, p sim.Params) (row Row) {
	row = Row{Index: i}
	defer func() {
		if rec := recover(); rec != nil {
			row.Outcome = sim.FailureOutcome(p)
			row.Failed = true
			row.Err = fmt.Sprintf("panic: %v", rec)
			msg := fmt.Sprintf("configuration %d (%+v) panicked: %v", i, p, rec)
			monitoring.Warnf("[sweep] %s", msg)
			r.addWarning(msg)
		}
	}()

	out, err := r.simulate(p)
	if err != nil {
		row.Outcome = sim.FailureOutcome(p)
		row.Failed = true
		row.Err = err.Error()
		msg := fmt.Sprintf("configuration %d (%+v) failed: %v", i, p, err)
		monitoring.Warnf("[sweep] %s", msg)
		r.addWarning(msg)
		return row
	}
	row.Outcome = out
	return row
}

func (r *Runner) flush(ctx context.Context, req SweepRequest, b int, batch []Row) error {
	if req.OutDir != "" {
		path, err := WriteBatch(r.fs, req.OutDir, b, batch)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.state.Batches = append(r.state.Batches, path)
		r.mu.Unlock()
	}
	if r.recorder != nil {
		if err := r.recorder.RecordBatch(ctx, r.GetSweepState().ID, batch); err != nil {
			return fmt.Errorf("recording batch %d: %w", b, err)
		}
	}
	return nil
}

// fail marks the sweep as errored and returns err.
func (r *Runner) fail(ctx context.Context, err error) error {
	r.mu.Lock()
	now := r.clock.Now()
	r.state.Status = SweepStatusError
	r.state.Error = err.Error()
	r.state.CompletedAt = &now
	r.mu.Unlock()
	monitoring.Logf("[sweep] ERROR: %v", err)

	if r.recorder != nil {
		// The sweep has already failed; a recording error adds nothing.
		_ = r.recorder.FinishSweep(context.WithoutCancel(ctx), r.GetSweepState())
	}
	return err
}

func countFailed(rows []Row) int {
	n := 0
	for _, row := range rows {
		if row.Failed {
			n++
		}
	}
	return n
}
