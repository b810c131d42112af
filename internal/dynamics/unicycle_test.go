package dynamics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAngle(t *testing.T) {
	testCases := []struct {
		name     string
		in       float64
		expected float64
	}{
		{"zero", 0, 0},
		{"pi_stays_pi", math.Pi, math.Pi},
		{"minus_pi_maps_to_pi", -math.Pi, math.Pi},
		{"just_past_pi", math.Pi + 0.1, -math.Pi + 0.1},
		{"full_turn", 2 * math.Pi, 0},
		{"negative_small", -0.5, -0.5},
		{"many_turns", 7*math.Pi + 0.25, -math.Pi + 0.25},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, WrapAngle(tc.in), 1e-9)
		})
	}
}

func TestUnicycleStep(t *testing.T) {
	m := NewUnicycle(DefaultParams())

	t.Run("integrates position along heading", func(t *testing.T) {
		next := m.Step(State{X: 1, Y: 3, Heading: 0, V: 1}, Control{})
		assert.InDelta(t, 1.05, next.X, 1e-12)
		assert.InDelta(t, 3.0, next.Y, 1e-12)
		assert.InDelta(t, 1.0, next.V, 1e-12)
	})

	t.Run("acceleration and turn rate integrate into v and heading", func(t *testing.T) {
		next := m.Step(State{Heading: math.Pi / 2}, Control{Accel: 0.4, Omega: -0.2})
		assert.InDelta(t, 0.02, next.V, 1e-12)
		assert.InDelta(t, math.Pi/2-0.01, next.Heading, 1e-12)
		assert.InDelta(t, 0.0, next.X, 1e-12)
	})

	t.Run("heading stays wrapped", func(t *testing.T) {
		next := m.Step(State{Heading: math.Pi - 0.001}, Control{Omega: 0.5})
		assert.Less(t, next.Heading, 0.0)
		assert.Greater(t, next.Heading, -math.Pi)
	})
}

func TestUnicycleStopAndClip(t *testing.T) {
	m := NewUnicycle(DefaultParams())
	assert.Equal(t, Control{}, m.Stop())

	clipped := m.Clip(Control{Accel: 3, Omega: -3})
	assert.Equal(t, Control{Accel: 0.5, Omega: -0.5}, clipped)
}

func TestFGDecomposition(t *testing.T) {
	// Step must equal x + dt·(f + g·u) computed by hand from F and G.
	m := NewUnicycle(DefaultParams())
	s := State{X: 0.3, Y: -1.2, Heading: 0.7, V: 0.8}
	u := Control{Accel: -0.3, Omega: 0.25}

	f := m.F(s)
	g := m.G(s)
	next := m.Step(s, u)
	dt := m.Params.Dt

	assert.InDelta(t, s.X+dt*(f[0]+g[0][0]*u.Accel+g[0][1]*u.Omega), next.X, 1e-12)
	assert.InDelta(t, s.Y+dt*(f[1]+g[1][0]*u.Accel+g[1][1]*u.Omega), next.Y, 1e-12)
	assert.InDelta(t, s.Heading+dt*u.Omega, next.Heading, 1e-12)
	assert.InDelta(t, s.V+dt*u.Accel, next.V, 1e-12)
}
