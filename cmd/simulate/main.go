// Command simulate runs a single labelled simulation, prints its dataset
// row and diagnostics, and optionally renders the run to a PNG.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/cbf.sweep/internal/config"
	"github.com/banshee-data/cbf.sweep/internal/render"
	"github.com/banshee-data/cbf.sweep/internal/sim"
	"github.com/banshee-data/cbf.sweep/internal/tracking"
	"github.com/banshee-data/cbf.sweep/internal/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("simulate: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Simulation config JSON (defaults built in)")
	distance := fs.Float64("distance", 1.65, "Obstacle distance ahead of the start (m)")
	velocity := fs.Float64("velocity", 0.505, "Initial speed (m/s)")
	theta := fs.Float64("theta", 0.4, "Initial heading (rad)")
	gamma1 := fs.Float64("gamma1", 0.25, "First class-K gain, in (0,1)")
	gamma2 := fs.Float64("gamma2", 0.75, "Second class-K gain, in (0,1)")
	pngPath := fs.String("png", "", "Render the run to this PNG path (optional)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String("simulate"))
		return nil
	}

	cfg := config.EmptySimConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadSimConfig(*configPath); err != nil {
			return err
		}
	}
	settings := cfg.Settings()
	p := sim.Params{
		Distance:          *distance,
		Velocity:          *velocity,
		Theta:             *theta,
		Gamma1:            *gamma1,
		Gamma2:            *gamma2,
		DeadlockThreshold: cfg.GetDeadlockThreshold(),
		MaxSimTime:        cfg.GetMaxSimTime(),
	}

	var rec *render.TrajectoryRecorder
	var obs tracking.Observer
	if *pngPath != "" {
		rec = render.NewTrajectoryRecorder()
		obs = rec
	}

	res, err := sim.Run(settings, p, obs)
	if err != nil {
		return err
	}

	w := csv.NewWriter(stdout)
	if err := w.Write(sim.Header); err != nil {
		return err
	}
	if err := w.Write(res.Record()); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "status=%s steps=%d infeasible=%d uncovered=%d unsafe_points=%d min_clearance=%.4f\n",
		res.Status, res.Steps, res.InfeasibleSteps, res.UncoveredSteps, len(res.UnsafePoints), res.MinClearance)

	if rec != nil {
		sc := settings.Scenario
		scene := render.Scene{
			Title: fmt.Sprintf("d=%.3g v=%.3g θ=%.3g γ1=%.3g γ2=%.3g (%s)",
				p.Distance, p.Velocity, p.Theta, p.Gamma1, p.Gamma2, res.Status),
			Start:     sc.Start(p),
			Obstacles: sc.Obstacles(p),
			Unsafe:    res.UnsafePoints,
		}
		if err := rec.SavePNG(*pngPath, scene); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", *pngPath)
	}
	return nil
}
