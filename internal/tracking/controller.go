// Package tracking runs the per-step safety-aware control loop for a single
// vehicle: sense, update the footprint and safety area, detect the obstacle,
// compute the nominal command, filter it, integrate, then check for
// collision and accumulate metrics.
//
// A Controller is owned by exactly one run. Its geometry is held as values
// and replaced each step, never shared.
package tracking

import (
	"errors"
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/cbf.sweep/internal/cbf"
	"github.com/banshee-data/cbf.sweep/internal/dynamics"
	"github.com/banshee-data/cbf.sweep/internal/geometry"
)

// Status is the controller lifecycle state.
type Status string

const (
	StatusRunning   Status = "RUNNING"   // Stepping normally
	StatusCollided  Status = "COLLIDED"  // Body touched a true obstacle (terminal)
	StatusCompleted Status = "COMPLETED" // Step budget exhausted or mission finished (terminal)
)

// Terminal reports whether no further steps will be taken.
func (s Status) Terminal() bool {
	return s == StatusCollided || s == StatusCompleted
}

// DefaultDeadlockThreshold is the speed below which the vehicle counts as stuck.
const DefaultDeadlockThreshold = 0.1

// ErrNoWaypoints is returned by NewController for an empty mission.
var ErrNoWaypoints = errors.New("tracking: mission has no waypoints")

// Config holds everything a run needs besides the mission itself.
type Config struct {
	Vehicle           dynamics.Params
	Sensor            geometry.SensorParams
	Nominal           NominalConfig
	Gamma1            float64
	Gamma2            float64
	DeadlockThreshold float64 // |v| below this accumulates deadlock time (m/s)
	MaxSteps          int     // step budget; 0 means unbounded
}

// DefaultConfig returns the production configuration for the given gains
// with a 5 s horizon.
func DefaultConfig(gamma1, gamma2 float64) Config {
	vehicle := dynamics.DefaultParams()
	return Config{
		Vehicle:           vehicle,
		Sensor:            geometry.DefaultSensorParams(),
		Nominal:           DefaultNominalConfig(),
		Gamma1:            gamma1,
		Gamma2:            gamma2,
		DeadlockThreshold: DefaultDeadlockThreshold,
		MaxSteps:          int(math.Round(5.0 / vehicle.Dt)),
	}
}

// Metrics are the per-run accumulators.
type Metrics struct {
	Steps           int     // completed (non-colliding) steps
	SimTime         float64 // Steps·dt
	SafetyLoss      float64 // running max of the per-step violation
	DeadlockSteps   int
	DeadlockTime    float64 // DeadlockSteps·dt
	InfeasibleSteps int     // steps where the filter fell back to stop
	UncoveredSteps  int     // steps where the safety area left the footprint
	MinClearance    float64 // smallest body-to-obstacle clearance seen
}

// StepResult describes one tick. When Status is COLLIDED, State is the
// state at contact and the metrics were not advanced.
type StepResult struct {
	Step      int
	Status    Status
	State     dynamics.State
	Detection *geometry.Detection // nil when nothing was visible
	Filter    cbf.Result
	Loss      float64 // clamped violation for this step
	Clearance float64 // against the true obstacles after integrating
	Uncovered bool    // safety area not inside the footprint
}

// Frame is the per-step snapshot handed to an Observer for rendering.
type Frame struct {
	Step       int
	Time       float64
	State      dynamics.State
	FOV        orb.Polygon
	Footprint  orb.MultiPolygon
	SafetyArea geometry.SafetyArea
	Estimate   *dynamics.Obstacle
	Control    dynamics.Control
	Loss       float64
	Status     Status
}

// Observer receives frames. Implementations must not retain the controller
// or expect to influence it; the loop never waits on anything they return.
type Observer interface {
	Observe(Frame)
}

// Controller is the run-scoped state machine.
type Controller struct {
	config    Config
	model     *dynamics.Unicycle
	filter    *cbf.Filter
	nominal   *Nominal
	waypoints []Waypoint
	obstacles []dynamics.Obstacle
	observer  Observer

	state     dynamics.State
	status    Status
	waypoint  int
	footprint geometry.Footprint
	safety    geometry.SafetyArea
	unsafe    []orb.Point
	control   dynamics.Control
	metrics   Metrics
}

// NewController creates a controller starting at the pose and speed of the
// first waypoint, tracking the remaining ones. The footprint is seeded with
// the initial sensing disk.
func NewController(config Config, waypoints []Waypoint, obstacles []dynamics.Obstacle) (*Controller, error) {
	if len(waypoints) == 0 {
		return nil, ErrNoWaypoints
	}
	model := dynamics.NewUnicycle(config.Vehicle)
	start := waypoints[0]
	c := &Controller{
		config:    config,
		model:     model,
		filter:    cbf.New(model, config.Gamma1, config.Gamma2),
		nominal:   NewNominal(model, config.Nominal),
		waypoints: append([]Waypoint(nil), waypoints...),
		obstacles: append([]dynamics.Obstacle(nil), obstacles...),
		state: dynamics.State{
			X:       start.X,
			Y:       start.Y,
			Heading: dynamics.WrapAngle(start.Heading),
			V:       start.V,
		},
		status:    StatusRunning,
		footprint: geometry.NewFootprint(orb.Point{start.X, start.Y}, config.Sensor),
	}
	if len(waypoints) > 1 {
		c.waypoint = 1
	}
	c.metrics.MinClearance = c.clearance(c.state)
	return c, nil
}

// SetObserver installs an observer for per-step frames. nil disables it.
func (c *Controller) SetObserver(o Observer) {
	c.observer = o
}

// State returns the current vehicle state.
func (c *Controller) State() dynamics.State { return c.state }

// Status returns the lifecycle state.
func (c *Controller) Status() Status { return c.status }

// Metrics returns a copy of the accumulated metrics.
func (c *Controller) Metrics() Metrics { return c.metrics }

// Footprint returns the sensed region so far.
func (c *Controller) Footprint() geometry.Footprint { return c.footprint }

// SafetyArea returns the braking envelope computed on the last step.
func (c *Controller) SafetyArea() geometry.SafetyArea { return c.safety }

// UnsafePoints returns the positions at which the safety area left the
// sensed footprint.
func (c *Controller) UnsafePoints() []orb.Point {
	return append([]orb.Point(nil), c.unsafe...)
}

// WaypointIndex returns the index of the active waypoint.
func (c *Controller) WaypointIndex() int { return c.waypoint }

// Step advances the loop by one tick. Calling Step in a terminal state
// returns the current status without changing anything.
func (c *Controller) Step() StepResult {
	if c.status.Terminal() {
		return StepResult{Step: c.metrics.Steps, Status: c.status, State: c.state}
	}
	s := c.state
	res := StepResult{Step: c.metrics.Steps + 1}

	// Sense.
	fov := geometry.FOVTriangle(s, c.config.Sensor)
	c.footprint = c.footprint.With(fov)
	c.safety = geometry.ComputeSafetyArea(s, c.control.Omega, c.config.Vehicle)
	if !c.footprint.ContainsArea(c.safety) {
		res.Uncovered = true
		c.unsafe = append(c.unsafe, orb.Point{s.X, s.Y})
	}
	var estimate *dynamics.Obstacle
	if det, ok := geometry.DetectObstacle(c.footprint, s, c.obstacles, c.config.Sensor); ok {
		res.Detection = &det
		estimate = &det.Estimate
	}

	// Act.
	c.advanceWaypoint(s)
	final := c.waypoint == len(c.waypoints)-1
	nominal := c.nominal.Command(s, c.waypoints[c.waypoint], final)
	res.Filter = c.filter.Apply(s, nominal, estimate)
	c.control = res.Filter.Control
	next := c.model.Step(s, c.control)

	res.Clearance = c.clearance(next)
	c.metrics.MinClearance = math.Min(c.metrics.MinClearance, res.Clearance)
	c.state = next
	res.State = next

	if res.Clearance <= 0 {
		c.status = StatusCollided
		res.Status = c.status
		c.emit(res, fov, estimate)
		return res
	}

	// Account.
	dt := c.config.Vehicle.Dt
	res.Loss = res.Filter.Violation()
	c.metrics.Steps++
	c.metrics.SimTime = float64(c.metrics.Steps) * dt
	c.metrics.SafetyLoss = math.Max(c.metrics.SafetyLoss, res.Loss)
	if math.Abs(next.V) < c.config.DeadlockThreshold {
		c.metrics.DeadlockSteps++
		c.metrics.DeadlockTime = float64(c.metrics.DeadlockSteps) * dt
	}
	if res.Filter.Infeasible {
		c.metrics.InfeasibleSteps++
	}
	if res.Uncovered {
		c.metrics.UncoveredSteps++
	}

	switch {
	case c.config.MaxSteps > 0 && c.metrics.Steps >= c.config.MaxSteps:
		c.status = StatusCompleted
	case final && c.nominal.Reached(next, c.waypoints[c.waypoint]) &&
		math.Abs(next.V) < c.config.DeadlockThreshold:
		c.status = StatusCompleted
	}
	res.Status = c.status
	c.emit(res, fov, estimate)
	return res
}

// Run steps until a terminal state and returns the final metrics.
func (c *Controller) Run() Metrics {
	for !c.status.Terminal() {
		c.Step()
		if c.config.MaxSteps <= 0 && c.metrics.Steps > 1_000_000 {
			// Unbounded configs still need an exit.
			c.status = StatusCompleted
		}
	}
	return c.metrics
}

// advanceWaypoint moves to the next waypoint once the active one (other
// than the last) has been reached.
func (c *Controller) advanceWaypoint(s dynamics.State) {
	for c.waypoint < len(c.waypoints)-1 && c.nominal.Reached(s, c.waypoints[c.waypoint]) {
		c.waypoint++
	}
}

// clearance returns the smallest clearance against the true obstacles,
// +Inf when there are none.
func (c *Controller) clearance(s dynamics.State) float64 {
	minC := math.Inf(1)
	for _, obs := range c.obstacles {
		minC = math.Min(minC, c.model.Clearance(s, obs))
	}
	return minC
}

func (c *Controller) emit(res StepResult, fov orb.Polygon, estimate *dynamics.Obstacle) {
	if c.observer == nil {
		return
	}
	c.observer.Observe(Frame{
		Step:       res.Step,
		Time:       float64(res.Step) * c.config.Vehicle.Dt,
		State:      res.State,
		FOV:        fov,
		Footprint:  c.footprint.Pieces(),
		SafetyArea: c.safety,
		Estimate:   estimate,
		Control:    res.Filter.Control,
		Loss:       res.Loss,
		Status:     res.Status,
	})
}
