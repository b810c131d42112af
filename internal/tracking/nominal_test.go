package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
)

func newTestNominal() *Nominal {
	return NewNominal(dynamics.NewUnicycle(dynamics.DefaultParams()), DefaultNominalConfig())
}

func TestNominalCommand(t *testing.T) {
	t.Parallel()
	n := newTestNominal()
	goal := Waypoint{X: 11, Y: 3}

	testCases := []struct {
		name      string
		s         dynamics.State
		final     bool
		wantAccel float64
		wantOmega float64
	}{
		{"aligned_from_rest", dynamics.State{X: 1, Y: 3}, true, 0.5, 0},
		{"aligned_at_speed_limit", dynamics.State{X: 1, Y: 3, V: 1}, true, 0, 0},
		{"turn_left_saturates", dynamics.State{X: 1, Y: 3, Heading: -0.5, V: 1}, true, 0, 0.5},
		{"goal_behind_stops_forward_motion", dynamics.State{X: 12, Y: 3, V: 0.3}, false, -0.3, 0.5},
		{"final_reached_brakes", dynamics.State{X: 10.9, Y: 3, Heading: 1, V: 0.4}, true, -0.4, 0},
		{"final_reached_clips_braking", dynamics.State{X: 10.9, Y: 3, V: 0.9}, true, -0.5, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u := n.Command(tc.s, goal, tc.final)
			assert.InDelta(t, tc.wantAccel, u.Accel, 1e-9, "accel")
			assert.InDelta(t, tc.wantOmega, u.Omega, 1e-9, "omega")
		})
	}
}

func TestNominalNearWaypoint(t *testing.T) {
	t.Parallel()
	n := newTestNominal()
	// Not final: closer than MinDistance only matches the waypoint speed.
	u := n.Command(dynamics.State{X: 5, Y: 5, Heading: 2, V: 0.2}, Waypoint{X: 5.01, Y: 5, V: 0.4}, false)
	assert.InDelta(t, 0.2, u.Accel, 1e-12)
	assert.Equal(t, 0.0, u.Omega)
}

func TestNominalReached(t *testing.T) {
	t.Parallel()
	n := newTestNominal()
	w := Waypoint{X: 1, Y: 1}
	assert.True(t, n.Reached(dynamics.State{X: 1.1, Y: 1.1}, w))
	assert.False(t, n.Reached(dynamics.State{X: 1.2, Y: 1.2}, w))
}
