package tracking

import (
	"math"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
)

// Waypoint is a mission target (position, heading and speed).
type Waypoint struct {
	X       float64
	Y       float64
	Heading float64
	V       float64
}

// NominalConfig holds the gains of the obstacle-unaware tracking law.
type NominalConfig struct {
	KOmega         float64 // turn-rate gain on heading error
	KV             float64 // desired-speed gain on distance
	KA             float64 // acceleration gain on speed error
	MinDistance    float64 // below this distance the heading error is ignored (m)
	ReachTolerance float64 // distance at which a waypoint counts as reached (m)
}

// DefaultNominalConfig returns the default tracking gains.
func DefaultNominalConfig() NominalConfig {
	return NominalConfig{
		KOmega:         2.0,
		KV:             1.0,
		KA:             1.0,
		MinDistance:    0.05,
		ReachTolerance: 0.2,
	}
}

// Nominal is the proportional tracking law. It ignores obstacles entirely;
// the safety filter is responsible for avoidance.
type Nominal struct {
	model  *dynamics.Unicycle
	config NominalConfig
}

// NewNominal creates a tracking law for the model.
func NewNominal(model *dynamics.Unicycle, config NominalConfig) *Nominal {
	return &Nominal{model: model, config: config}
}

// Reached reports whether the state is within the reach tolerance of w.
func (n *Nominal) Reached(s dynamics.State, w Waypoint) bool {
	return math.Hypot(w.X-s.X, w.Y-s.Y) < n.config.ReachTolerance
}

// Command returns the reference control driving s towards w. When final is
// set and the waypoint has been reached, it brakes to a stop with zero turn
// rate. The result is clipped to the actuator limits.
func (n *Nominal) Command(s dynamics.State, w Waypoint, final bool) dynamics.Control {
	if final && n.Reached(s, w) {
		return n.model.Clip(dynamics.Control{Accel: -n.config.KA * s.V})
	}

	dx, dy := w.X-s.X, w.Y-s.Y
	dist := math.Hypot(dx, dy)
	if dist < n.config.MinDistance {
		// Heading to a point this close is numerically meaningless.
		return n.model.Clip(dynamics.Control{Accel: n.config.KA * (w.V - s.V)})
	}

	errHeading := dynamics.WrapAngle(math.Atan2(dy, dx) - s.Heading)
	omega := n.config.KOmega * errHeading

	vDes := 0.0
	if math.Abs(errHeading) <= math.Pi/2 {
		vDes = math.Min(n.config.KV*dist*math.Cos(errHeading), n.model.Params.SpeedLimit)
	}
	accel := n.config.KA * (vDes - s.V)

	return n.model.Clip(dynamics.Control{Accel: accel, Omega: omega})
}
