package cbf

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
)

func newTestFilter(g1, g2 float64) *Filter {
	return New(dynamics.NewUnicycle(dynamics.DefaultParams()), g1, g2)
}

func TestApplyPassThrough(t *testing.T) {
	t.Parallel()
	f := newTestFilter(0.5, 0.5)
	nominal := dynamics.Control{Accel: 0.9, Omega: -0.7}

	res := f.Apply(dynamics.State{X: 1, Y: 3, V: 1}, nominal, nil)
	assert.Equal(t, nominal, res.Control)
	assert.False(t, res.Constrained)
	assert.False(t, res.Infeasible)
	assert.Equal(t, 0.0, res.Violation())
}

func TestApplyInactiveConstraint(t *testing.T) {
	t.Parallel()
	f := newTestFilter(0.5, 0.5)
	nominal := dynamics.Control{Accel: 0.2, Omega: 0.1}
	obs := &dynamics.Obstacle{X: 10, Y: 10, Radius: 0.1}

	res := f.Apply(dynamics.State{X: 1, Y: 3, V: 0.5}, nominal, obs)
	require.True(t, res.Constrained)
	assert.False(t, res.Infeasible)
	assert.InDelta(t, nominal.Accel, res.Control.Accel, 1e-12)
	assert.InDelta(t, nominal.Omega, res.Control.Omega, 1e-12)
	assert.GreaterOrEqual(t, res.Residual, 0.0)
}

func TestApplyHeadOn(t *testing.T) {
	t.Parallel()
	s := dynamics.State{X: 0, Y: 0, Heading: 0, V: 1}
	obs := &dynamics.Obstacle{X: 1, Y: 0, Radius: 0.1}
	nominal := dynamics.Control{Accel: 0.3, Omega: 0.2}

	testCases := []struct {
		name           string
		gamma          float64
		wantInfeasible bool
		wantAccel      float64
	}{
		// B = (γ1+γ2) − γ1γ2·0.65 and the row is −a ≥ B.
		{"small_gains_brake", 0.1, false, -(0.2 - 0.01*0.65)},
		{"large_gains_stop", 0.5, true, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := newTestFilter(tc.gamma, tc.gamma).Apply(s, nominal, obs)
			assert.Equal(t, tc.wantInfeasible, res.Infeasible)
			assert.InDelta(t, tc.wantAccel, res.Control.Accel, 1e-9)
			if tc.wantInfeasible {
				assert.Equal(t, dynamics.Control{}, res.Control)
				assert.Greater(t, res.Violation(), 0.0)
			} else {
				assert.InDelta(t, nominal.Omega, res.Control.Omega, 1e-9)
				assert.InDelta(t, 0.0, res.Violation(), 1e-9)
			}
		})
	}
}

func TestSolveDegenerateRow(t *testing.T) {
	t.Parallel()
	f := newTestFilter(0.5, 0.5)

	// A zero row that is trivially satisfied leaves only the box.
	u, err := f.Solve(dynamics.Control{Accel: 2, Omega: -3}, dynamics.BarrierConstraint{B: -1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, u.Accel, 1e-12)
	assert.InDelta(t, -0.5, u.Omega, 1e-12)

	// A zero row that cannot be satisfied is infeasible.
	_, err = f.Solve(dynamics.Control{}, dynamics.BarrierConstraint{B: 1})
	assert.True(t, errors.Is(err, ErrInfeasible))
}

func TestSolveIsOptimal(t *testing.T) {
	t.Parallel()
	f := newTestFilter(0.5, 0.5)
	rng := rand.New(rand.NewSource(7))
	const n = 200

	for k := 0; k < 25; k++ {
		nominal := dynamics.Control{Accel: rng.Float64()*2 - 1, Omega: rng.Float64()*2 - 1}
		c := dynamics.BarrierConstraint{
			A: [2]float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1},
			B: rng.Float64() - 0.5,
		}
		u, err := f.Solve(nominal, c)

		// Brute force over the actuator box.
		bestGrid := math.Inf(1)
		for i := 0; i <= n; i++ {
			for j := 0; j <= n; j++ {
				a := -0.5 + float64(i)/n
				w := -0.5 + float64(j)/n
				if c.A[0]*a+c.A[1]*w < c.B {
					continue
				}
				bestGrid = math.Min(bestGrid, sq(a-nominal.Accel)+sq(w-nominal.Omega))
			}
		}

		if err != nil {
			assert.True(t, math.IsInf(bestGrid, 1), "case %d: solver infeasible but grid found a point", k)
			continue
		}
		assert.GreaterOrEqual(t, c.Residual(u), -1e-9, "case %d", k)
		assert.LessOrEqual(t, math.Abs(u.Accel), 0.5+1e-9)
		assert.LessOrEqual(t, math.Abs(u.Omega), 0.5+1e-9)
		cost := sq(u.Accel-nominal.Accel) + sq(u.Omega-nominal.Omega)
		assert.LessOrEqual(t, cost, bestGrid+1e-9, "case %d", k)
	}
}
