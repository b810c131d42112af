// Package sim runs one labelled simulation: a single vehicle starting at
// (1, 3) tracking a goal 10 m ahead with one unknown circular obstacle placed
// on its path. The outcome record is the row written to the dataset.
package sim

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
	"github.com/banshee-data/cbf.sweep/internal/geometry"
	"github.com/banshee-data/cbf.sweep/internal/tracking"
)

// Defaults for the per-run inputs.
const (
	DefaultDeadlockThreshold = tracking.DefaultDeadlockThreshold
	DefaultMaxSimTime        = 5.0
)

// ErrInvalidParams is returned for inputs outside their documented domain.
var ErrInvalidParams = errors.New("sim: invalid run parameters")

// Header is the dataset column order. Downstream consumers rely on it.
var Header = []string{
	"distance", "velocity", "theta", "gamma1", "gamma2",
	"collision_free", "safety_loss", "deadlock_time", "sim_time",
}

// Params are the inputs of a single run.
type Params struct {
	Distance          float64 // obstacle centre ahead of the start (m), > 0
	Velocity          float64 // initial speed (m/s), >= 0
	Theta             float64 // initial heading offset (rad)
	Gamma1            float64 // barrier gain, in (0, 1)
	Gamma2            float64 // barrier gain, in (0, 1)
	DeadlockThreshold float64 // 0 selects DefaultDeadlockThreshold
	MaxSimTime        float64 // 0 selects DefaultMaxSimTime
}

// Validate checks the input domain.
func (p Params) Validate() error {
	switch {
	case !(p.Distance > 0):
		return fmt.Errorf("%w: distance must be > 0, got %v", ErrInvalidParams, p.Distance)
	case !(p.Velocity >= 0):
		return fmt.Errorf("%w: velocity must be >= 0, got %v", ErrInvalidParams, p.Velocity)
	case math.IsNaN(p.Theta) || math.IsInf(p.Theta, 0):
		return fmt.Errorf("%w: theta must be finite, got %v", ErrInvalidParams, p.Theta)
	case !(p.Gamma1 > 0 && p.Gamma1 < 1):
		return fmt.Errorf("%w: gamma1 must be in (0, 1), got %v", ErrInvalidParams, p.Gamma1)
	case !(p.Gamma2 > 0 && p.Gamma2 < 1):
		return fmt.Errorf("%w: gamma2 must be in (0, 1), got %v", ErrInvalidParams, p.Gamma2)
	case p.DeadlockThreshold < 0:
		return fmt.Errorf("%w: deadlock threshold must be >= 0, got %v", ErrInvalidParams, p.DeadlockThreshold)
	case p.MaxSimTime < 0:
		return fmt.Errorf("%w: max sim time must be >= 0, got %v", ErrInvalidParams, p.MaxSimTime)
	}
	return nil
}

func (p Params) withDefaults() Params {
	if p.DeadlockThreshold == 0 {
		p.DeadlockThreshold = DefaultDeadlockThreshold
	}
	if p.MaxSimTime == 0 {
		p.MaxSimTime = DefaultMaxSimTime
	}
	return p
}

// Outcome is the labelled result of one run. It is immutable once returned.
type Outcome struct {
	Distance      float64
	Velocity      float64
	Theta         float64
	Gamma1        float64
	Gamma2        float64
	CollisionFree bool
	SafetyLoss    float64
	DeadlockTime  float64
	SimTime       float64
}

// Record formats the outcome in Header order.
func (o Outcome) Record() []string {
	return []string{
		formatFloat(o.Distance),
		formatFloat(o.Velocity),
		formatFloat(o.Theta),
		formatFloat(o.Gamma1),
		formatFloat(o.Gamma2),
		strconv.FormatBool(o.CollisionFree),
		formatFloat(o.SafetyLoss),
		formatFloat(o.DeadlockTime),
		formatFloat(o.SimTime),
	}
}

// FailureOutcome is the worst-case label for a run that could not finish.
func FailureOutcome(p Params) Outcome {
	return Outcome{
		Distance: p.Distance,
		Velocity: p.Velocity,
		Theta:    p.Theta,
		Gamma1:   p.Gamma1,
		Gamma2:   p.Gamma2,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Scenario fixes the mission geometry shared by every run.
type Scenario struct {
	StartX         float64
	StartY         float64
	GoalX          float64
	GoalY          float64
	ObstacleRadius float64
	HeadingBias    float64 // added to theta so the start is never exactly axis-aligned
}

// DefaultScenario returns the dataset mission.
func DefaultScenario() Scenario {
	return Scenario{
		StartX:         1,
		StartY:         3,
		GoalX:          11,
		GoalY:          3,
		ObstacleRadius: 0.1,
		HeadingBias:    0.01,
	}
}

// Start returns the initial vehicle state for p.
func (s Scenario) Start(p Params) dynamics.State {
	return dynamics.State{X: s.StartX, Y: s.StartY, Heading: p.Theta + s.HeadingBias, V: p.Velocity}
}

// Waypoints returns the mission: the start pose followed by the goal.
func (s Scenario) Waypoints(p Params) []tracking.Waypoint {
	start := s.Start(p)
	return []tracking.Waypoint{
		{X: start.X, Y: start.Y, Heading: start.Heading, V: start.V},
		{X: s.GoalX, Y: s.GoalY},
	}
}

// Obstacles places the single obstacle p.Distance ahead of the start.
func (s Scenario) Obstacles(p Params) []dynamics.Obstacle {
	return []dynamics.Obstacle{{X: s.StartX + p.Distance, Y: s.StartY, Radius: s.ObstacleRadius}}
}

// Settings are the fixed model parameters applied to every run.
type Settings struct {
	Vehicle  dynamics.Params
	Sensor   geometry.SensorParams
	Nominal  tracking.NominalConfig
	Scenario Scenario
}

// DefaultSettings returns the production settings.
func DefaultSettings() Settings {
	return Settings{
		Vehicle:  dynamics.DefaultParams(),
		Sensor:   geometry.DefaultSensorParams(),
		Nominal:  tracking.DefaultNominalConfig(),
		Scenario: DefaultScenario(),
	}
}

// Result carries the outcome together with run diagnostics that are not
// part of the dataset row.
type Result struct {
	Outcome
	Status          tracking.Status
	Steps           int
	InfeasibleSteps int
	UncoveredSteps  int
	UnsafePoints    []orb.Point // positions where the safety area left the footprint
	MinClearance    float64
	Final           dynamics.State
}

// Run executes one simulation. obs may be nil.
//
// The step budget is round(MaxSimTime/dt). A collision ends the run early
// and the colliding step is not counted. If the vehicle parks at the goal
// before the budget is spent, the remaining ticks are accounted as parked
// time so collision-free runs always report the full horizon.
func Run(settings Settings, p Params, obs tracking.Observer) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	p = p.withDefaults()
	sc := settings.Scenario
	dt := settings.Vehicle.Dt
	if !(dt > 0) {
		return Result{}, fmt.Errorf("%w: dt must be > 0, got %v", ErrInvalidParams, dt)
	}
	maxSteps := int(math.Round(p.MaxSimTime / dt))

	cfg := tracking.Config{
		Vehicle:           settings.Vehicle,
		Sensor:            settings.Sensor,
		Nominal:           settings.Nominal,
		Gamma1:            p.Gamma1,
		Gamma2:            p.Gamma2,
		DeadlockThreshold: p.DeadlockThreshold,
		MaxSteps:          maxSteps,
	}
	ctrl, err := tracking.NewController(cfg, sc.Waypoints(p), sc.Obstacles(p))
	if err != nil {
		return Result{}, fmt.Errorf("creating controller: %w", err)
	}
	if maxSteps > 0 {
		ctrl.SetObserver(obs)
		ctrl.Run()
	}

	m := ctrl.Metrics()
	res := Result{
		Outcome: Outcome{
			Distance:      p.Distance,
			Velocity:      p.Velocity,
			Theta:         p.Theta,
			Gamma1:        p.Gamma1,
			Gamma2:        p.Gamma2,
			CollisionFree: ctrl.Status() != tracking.StatusCollided,
			SafetyLoss:    m.SafetyLoss,
			DeadlockTime:  m.DeadlockTime,
			SimTime:       m.SimTime,
		},
		Status:          ctrl.Status(),
		Steps:           m.Steps,
		InfeasibleSteps: m.InfeasibleSteps,
		UncoveredSteps:  m.UncoveredSteps,
		UnsafePoints:    ctrl.UnsafePoints(),
		MinClearance:    m.MinClearance,
		Final:           ctrl.State(),
	}

	if res.CollisionFree && m.Steps < maxSteps {
		// Parked at the goal: the rest of the horizon is spent standing still.
		res.DeadlockTime = float64(m.DeadlockSteps+maxSteps-m.Steps) * dt
		res.SimTime = float64(maxSteps) * dt
	}
	return res, nil
}
