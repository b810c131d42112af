package dynamics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// numericHDDot estimates ḧ by a central second difference of h along the
// continuous-time trajectory (second-order Taylor expansion of the position).
func numericHDDot(m *Unicycle, s State, u Control, obs Obstacle) float64 {
	const eps = 1e-5
	h := func(st State) float64 {
		return math.Hypot(st.X-obs.X, st.Y-obs.Y) - (m.Params.RobotRadius + obs.Radius)
	}
	adv := func(st State, dt float64) State {
		c, sn := math.Cos(st.Heading), math.Sin(st.Heading)
		return State{
			X:       st.X + dt*st.V*c + 0.5*dt*dt*(u.Accel*c-st.V*u.Omega*sn),
			Y:       st.Y + dt*st.V*sn + 0.5*dt*dt*(u.Accel*sn+st.V*u.Omega*c),
			Heading: st.Heading + dt*u.Omega,
			V:       st.V + dt*u.Accel,
		}
	}
	plus := adv(s, eps)
	minus := adv(s, -eps)
	return (h(plus) - 2*h(s) + h(minus)) / (eps * eps)
}

func TestBarrierConstraintMatchesNumericDerivative(t *testing.T) {
	m := NewUnicycle(DefaultParams())
	obs := Obstacle{X: 2.0, Y: 3.2, Radius: 0.1}

	testCases := []struct {
		name string
		s    State
		u    Control
	}{
		{"head_on", State{X: 1, Y: 3, Heading: 0.05, V: 0.8}, Control{Accel: -0.2, Omega: 0.1}},
		{"oblique", State{X: 0.5, Y: 2.0, Heading: 0.9, V: 0.5}, Control{Accel: 0.3, Omega: -0.4}},
		{"stationary", State{X: 1, Y: 3, Heading: 0, V: 0}, Control{Accel: 0.5, Omega: 0.5}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g1, g2 := 0.4, 0.7
			c := m.BarrierConstraint(tc.s, obs, g1, g2)

			// Residual = ḧ + (γ1+γ2)ḣ + γ1γ2h
			hddot := numericHDDot(m, tc.s, tc.u, obs)
			want := hddot + (g1+g2)*c.HDot + g1*g2*c.H
			assert.InDelta(t, want, c.Residual(tc.u), 1e-3)
		})
	}
}

func TestBarrierConstraintTerms(t *testing.T) {
	m := NewUnicycle(DefaultParams())
	obs := Obstacle{X: 3, Y: 0, Radius: 0.1}

	c := m.BarrierConstraint(State{X: 0, Y: 0, Heading: 0, V: 1}, obs, 0.5, 0.5)
	assert.InDelta(t, 3-0.35, c.H, 1e-12)
	// Driving straight at the obstacle closes the gap at full speed.
	assert.InDelta(t, -1.0, c.HDot, 1e-12)
	// Braking is the only lever when aimed dead centre.
	assert.InDelta(t, -1.0, c.A[0], 1e-12)
	assert.InDelta(t, 0.0, c.A[1], 1e-12)
}

func TestClearance(t *testing.T) {
	m := NewUnicycle(DefaultParams())
	obs := Obstacle{X: 1.3, Y: 3, Radius: 0.1}
	assert.InDelta(t, -0.05, m.Clearance(State{X: 1, Y: 3}, obs), 1e-12)
	assert.InDelta(t, 0.65, m.Clearance(State{X: 0.3, Y: 3}, obs), 1e-12)
}
