// Package dynamics owns the vehicle model used by the safety-aware
// controller: a second-order (acceleration and turn-rate controlled) unicycle
// integrated with a fixed timestep.
//
// Key types: State, Control, Obstacle, Unicycle.
//
// The model is stateless. Every method is a pure function of its arguments
// and the physical parameters held in Params.
package dynamics

import "math"

// State is the vehicle state (x, y, heading, longitudinal velocity).
type State struct {
	X       float64 // metres
	Y       float64 // metres
	Heading float64 // radians, (-π, π]
	V       float64 // m/s
}

// Control is a single command (longitudinal acceleration, angular velocity).
type Control struct {
	Accel float64 // m/s²
	Omega float64 // rad/s
}

// Obstacle is a static circular obstacle (centre and radius in metres).
type Obstacle struct {
	X      float64
	Y      float64
	Radius float64
}

// Params holds the fixed physical parameters of the vehicle.
type Params struct {
	Dt              float64 // integration step (s)
	RobotRadius     float64 // body radius including padding (m)
	MaxDecel        float64 // braking deceleration used for the safety area (m/s²)
	MaxAngularDecel float64 // turn-rate decay used for the safety area (rad/s²)
	AccelLimit      float64 // |a| bound enforced by the safety filter (m/s²)
	OmegaLimit      float64 // |ω| bound enforced by the safety filter (rad/s)
	SpeedLimit      float64 // cap on the nominal desired speed (m/s)
}

// DefaultParams returns the production vehicle parameters.
func DefaultParams() Params {
	return Params{
		Dt:              0.05,
		RobotRadius:     0.25,
		MaxDecel:        0.5,
		MaxAngularDecel: 0.5,
		AccelLimit:      0.5,
		OmegaLimit:      0.5,
		SpeedLimit:      1.0,
	}
}

// Unicycle implements the control-affine model
//
//	x_{k+1} = x_k + dt·(f(x_k) + g(x_k)·u_k)
//
// with f = (v cos θ, v sin θ, 0, 0) and g mapping u = (a, ω) onto (θ̇, v̇).
type Unicycle struct {
	Params Params
}

// NewUnicycle creates a model with the given parameters.
func NewUnicycle(p Params) *Unicycle {
	return &Unicycle{Params: p}
}

// F returns the drift term f(x).
func (m *Unicycle) F(s State) [4]float64 {
	return [4]float64{
		s.V * math.Cos(s.Heading),
		s.V * math.Sin(s.Heading),
		0,
		0,
	}
}

// G returns the control-influence term g(x) as a 4x2 row-major matrix.
// Column 0 is acceleration, column 1 is angular velocity.
func (m *Unicycle) G(State) [4][2]float64 {
	return [4][2]float64{
		{0, 0},
		{0, 0},
		{0, 1},
		{1, 0},
	}
}

// Step integrates one fixed timestep and returns the next state.
// The heading of the result is wrapped to (-π, π].
func (m *Unicycle) Step(s State, u Control) State {
	f := m.F(s)
	g := m.G(s)
	dt := m.Params.Dt

	var dx [4]float64
	for i := range dx {
		dx[i] = f[i] + g[i][0]*u.Accel + g[i][1]*u.Omega
	}
	return State{
		X:       s.X + dt*dx[0],
		Y:       s.Y + dt*dx[1],
		Heading: WrapAngle(s.Heading + dt*dx[2]),
		V:       s.V + dt*dx[3],
	}
}

// Stop returns the emergency command: zero acceleration and zero turn rate.
func (m *Unicycle) Stop() Control {
	return Control{}
}

// Clip bounds a command to the actuator limits.
func (m *Unicycle) Clip(u Control) Control {
	return Control{
		Accel: clamp(u.Accel, -m.Params.AccelLimit, m.Params.AccelLimit),
		Omega: clamp(u.Omega, -m.Params.OmegaLimit, m.Params.OmegaLimit),
	}
}

// WrapAngle maps an angle to (-π, π].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
