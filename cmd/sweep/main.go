// Command sweep runs the Monte-Carlo parameter sweep over (distance,
// velocity, theta, gamma1, gamma2) and writes the labelled dataset as
// batched CSV files, optionally recording it in SQLite and rendering an
// HTML chart.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/cbf.sweep/internal/config"
	"github.com/banshee-data/cbf.sweep/internal/render"
	"github.com/banshee-data/cbf.sweep/internal/store"
	"github.com/banshee-data/cbf.sweep/internal/sweep"
	"github.com/banshee-data/cbf.sweep/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("sweep: %v", err)
	}
}

type options struct {
	configPath string
	samples    int
	distance   string
	velocity   string
	theta      string
	gamma1     string
	gamma2     string
	workers    int
	batchSize  int
	outDir     string
	concat     bool
	dbPath     string
	chartPath  string
	version    bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Simulation config JSON (defaults built in)")
	fs.IntVar(&o.samples, "samples", 0, "Values per dimension for the default grid (0 = from config)")
	fs.StringVar(&o.distance, "distance", "", "Distance values: min:max:count or comma list")
	fs.StringVar(&o.velocity, "velocity", "", "Velocity values: min:max:count or comma list")
	fs.StringVar(&o.theta, "theta", "", "Heading values (rad): min:max:count or comma list")
	fs.StringVar(&o.gamma1, "gamma1", "", "gamma1 values: min:max:count or comma list")
	fs.StringVar(&o.gamma2, "gamma2", "", "gamma2 values: min:max:count or comma list")
	fs.IntVar(&o.workers, "workers", -1, "Concurrent simulations (0 = one per CPU, -1 = from config)")
	fs.IntVar(&o.batchSize, "batch-size", 0, "Rows per flushed batch (0 = from config)")
	fs.StringVar(&o.outDir, "out-dir", "sweep-out", "Directory for batch CSV files")
	fs.BoolVar(&o.concat, "concat", false, "Also write the concatenated dataset.csv")
	fs.StringVar(&o.dbPath, "db", "", "SQLite database to record the sweep in (optional)")
	fs.StringVar(&o.chartPath, "chart", "", "Write an HTML chart of the results to this path (optional)")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func loadConfig(path string) (*config.SimConfig, error) {
	if path == "" {
		return config.EmptySimConfig(), nil
	}
	return config.LoadSimConfig(path)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(stdout, version.String("sweep"))
		return nil
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	samples := o.samples
	if samples <= 0 {
		samples = cfg.GetSamples()
	}
	workers := o.workers
	if workers < 0 {
		workers = cfg.GetWorkers()
	}
	batchSize := o.batchSize
	if batchSize <= 0 {
		batchSize = cfg.GetBatchSize()
	}

	grid, err := sweep.ParseGrid(sweep.DefaultGrid(samples), o.distance, o.velocity, o.theta, o.gamma1, o.gamma2)
	if err != nil {
		return err
	}

	runnerCfg := sweep.RunnerConfig{
		Settings:          cfg.Settings(),
		DeadlockThreshold: cfg.GetDeadlockThreshold(),
		MaxSimTime:        cfg.GetMaxSimTime(),
	}
	if o.dbPath != "" {
		db, err := store.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		runnerCfg.Recorder = store.NewSweepStore(db)
	}

	log.Printf("Sweeping %d configurations (%d workers, batch size %d) into %s",
		grid.Size(), workers, batchSize, o.outDir)

	runner := sweep.NewRunner(runnerCfg)
	rows, err := runner.Run(ctx, sweep.SweepRequest{
		Grid:      grid,
		Workers:   workers,
		BatchSize: batchSize,
		OutDir:    o.outDir,
		Concat:    o.concat,
	})
	if err != nil {
		return err
	}
	st := runner.GetSweepState()

	if o.chartPath != "" {
		f, err := os.Create(o.chartPath)
		if err != nil {
			return fmt.Errorf("creating chart: %w", err)
		}
		title := fmt.Sprintf("CBF sweep %s", st.ID)
		if err := render.SweepChart(f, title, rows, st.Summary); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("writing chart: %w", err)
		}
	}

	fmt.Fprintf(stdout, "sweep %s: %d configurations, %d failed, %d batches\n",
		st.ID, st.CompletedCombos, st.FailedCombos, len(st.Batches))
	if st.Dataset != "" {
		fmt.Fprintf(stdout, "dataset: %s\n", st.Dataset)
	}
	for _, w := range st.Warnings {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}
	return nil
}
