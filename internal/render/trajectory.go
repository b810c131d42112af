// Package render draws run traces and sweep results. Trajectory plots use
// gonum/plot (PNG); sweep charts use go-echarts (HTML).
package render

import (
	"fmt"
	"image/color"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
	"github.com/banshee-data/cbf.sweep/internal/geometry"
	"github.com/banshee-data/cbf.sweep/internal/tracking"
)

var (
	colorFootprint  = color.RGBA{R: 200, G: 220, B: 240, A: 255}
	colorPath       = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorObstacle   = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	colorEstimate   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorUnsafe     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	colorSafetyArea = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// TrajectoryRecorder collects frames from a run. Observe only appends, so
// the controller is never held up by rendering.
type TrajectoryRecorder struct {
	mu     sync.Mutex
	frames []tracking.Frame
}

var _ tracking.Observer = (*TrajectoryRecorder)(nil)

// NewTrajectoryRecorder creates an empty recorder.
func NewTrajectoryRecorder() *TrajectoryRecorder {
	return &TrajectoryRecorder{}
}

// Observe implements tracking.Observer.
func (r *TrajectoryRecorder) Observe(f tracking.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

// Frames returns the recorded frames.
func (r *TrajectoryRecorder) Frames() []tracking.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tracking.Frame(nil), r.frames...)
}

// Scene is the static context drawn under a trajectory.
type Scene struct {
	Title     string
	Start     dynamics.State
	Obstacles []dynamics.Obstacle
	Unsafe    []orb.Point // positions where the safety area left the footprint
}

// TrajectoryPlot draws the final footprint, the true obstacles, the driven
// path, every obstacle estimate, the last safety area and the unsafe
// points.
func (r *TrajectoryRecorder) TrajectoryPlot(scene Scene) (*plot.Plot, error) {
	frames := r.Frames()

	p := plot.New()
	p.Title.Text = scene.Title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	if len(frames) > 0 {
		last := frames[len(frames)-1]
		for _, piece := range last.Footprint {
			poly, err := plotter.NewPolygon(lineXYs(piece[0]))
			if err != nil {
				return nil, fmt.Errorf("footprint: %w", err)
			}
			poly.Color = colorFootprint
			poly.LineStyle.Width = 0
			p.Add(poly)
		}
	}

	for i, obs := range scene.Obstacles {
		ring := geometry.Circle(orb.Point{obs.X, obs.Y}, obs.Radius, 48)
		poly, err := plotter.NewPolygon(lineXYs(ring))
		if err != nil {
			return nil, fmt.Errorf("obstacle %d: %w", i, err)
		}
		poly.Color = colorObstacle
		poly.LineStyle.Color = colorObstacle
		p.Add(poly)
		if i == 0 {
			p.Legend.Add("obstacle", poly)
		}
	}

	path := make(plotter.XYs, 0, len(frames)+1)
	path = append(path, plotter.XY{X: scene.Start.X, Y: scene.Start.Y})
	var estimates plotter.XYs
	for _, f := range frames {
		path = append(path, plotter.XY{X: f.State.X, Y: f.State.Y})
		if f.Estimate != nil {
			estimates = append(estimates, plotter.XY{X: f.Estimate.X, Y: f.Estimate.Y})
		}
	}

	line, err := plotter.NewLine(path)
	if err != nil {
		return nil, fmt.Errorf("trajectory: %w", err)
	}
	line.Color = colorPath
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("trajectory", line)

	if len(frames) > 0 {
		sa := frames[len(frames)-1].SafetyArea
		if len(sa.Path) > 1 {
			saLine, err := plotter.NewLine(lineXYs(sa.Path))
			if err != nil {
				return nil, fmt.Errorf("safety area: %w", err)
			}
			saLine.Color = colorSafetyArea
			saLine.Width = vg.Points(3)
			p.Add(saLine)
			p.Legend.Add("braking path", saLine)
		}
	}

	if len(estimates) > 0 {
		sc, err := plotter.NewScatter(estimates)
		if err != nil {
			return nil, fmt.Errorf("estimates: %w", err)
		}
		sc.GlyphStyle.Color = colorEstimate
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add("estimate", sc)
	}

	if len(scene.Unsafe) > 0 {
		sc, err := plotter.NewScatter(lineXYs(scene.Unsafe))
		if err != nil {
			return nil, fmt.Errorf("unsafe points: %w", err)
		}
		sc.GlyphStyle.Color = colorUnsafe
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(sc)
		p.Legend.Add("uncovered", sc)
	}

	p.Legend.Top = true
	return p, nil
}

// TimeSeriesPlot draws speed and safety loss against simulated time.
func (r *TrajectoryRecorder) TimeSeriesPlot(title string) (*plot.Plot, error) {
	frames := r.Frames()
	speed := make(plotter.XYs, len(frames))
	loss := make(plotter.XYs, len(frames))
	for i, f := range frames {
		speed[i] = plotter.XY{X: f.Time, Y: f.State.V}
		loss[i] = plotter.XY{X: f.Time, Y: f.Loss}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Add(plotter.NewGrid())
	if len(frames) == 0 {
		return p, nil
	}

	vLine, err := plotter.NewLine(speed)
	if err != nil {
		return nil, fmt.Errorf("speed: %w", err)
	}
	vLine.Color = colorPath
	vLine.Width = vg.Points(1)

	lLine, err := plotter.NewLine(loss)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	lLine.Color = colorUnsafe
	lLine.Width = vg.Points(1)
	lLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(vLine, lLine)
	p.Legend.Add("speed (m/s)", vLine)
	p.Legend.Add("step loss", lLine)
	p.Legend.Top = true
	return p, nil
}

// SavePNG writes the trajectory and time-series plots side by side.
func (r *TrajectoryRecorder) SavePNG(path string, scene Scene) error {
	traj, err := r.TrajectoryPlot(scene)
	if err != nil {
		return err
	}
	ts, err := r.TimeSeriesPlot("Speed and safety loss")
	if err != nil {
		return err
	}

	const w, h = 14 * vg.Inch, 6 * vg.Inch
	img := vgimg.New(w, h)
	tiles := draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter * 4}
	canvases := plot.Align([][]*plot.Plot{{traj, ts}}, tiles, draw.New(img))
	traj.Draw(canvases[0][0])
	ts.Draw(canvases[0][1])

	if err := savePNG(img, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func lineXYs(pts []orb.Point) plotter.XYs {
	out := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		out[i] = plotter.XY{X: pt[0], Y: pt[1]}
	}
	return out
}

func savePNG(c *vgimg.Canvas, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
