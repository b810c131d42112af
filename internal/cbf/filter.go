// Package cbf implements the safety filter: a small quadratic program that
// projects a nominal command onto the set of commands satisfying an
// exponential control barrier function constraint and the actuator box.
//
//	minimise   ‖u − u_nom‖²
//	subject to A·u ≥ B            (barrier row, from dynamics.BarrierConstraint)
//	           |a| ≤ a_max, |ω| ≤ ω_max
//
// The problem has two variables and five inequality rows, so it is solved
// exactly by enumerating active sets of at most two rows.
package cbf

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
)

// ErrInfeasible is returned by Solve when no command satisfies every row.
var ErrInfeasible = errors.New("cbf: safety filter infeasible")

// feasTol is the slack allowed on each row when checking a candidate.
const feasTol = 1e-9

// row is one inequality g·u ≥ h.
type row struct {
	g [2]float64
	h float64
}

// Filter is the CBF-QP safety filter for one pair of barrier gains.
// It holds no per-step state and is safe for concurrent use.
type Filter struct {
	model  *dynamics.Unicycle
	gamma1 float64
	gamma2 float64
}

// New creates a filter for the model with the given barrier gains.
func New(model *dynamics.Unicycle, gamma1, gamma2 float64) *Filter {
	return &Filter{model: model, gamma1: gamma1, gamma2: gamma2}
}

// Result is the outcome of filtering one command.
type Result struct {
	Control dynamics.Control // command to apply
	Nominal dynamics.Control // command that was filtered

	// Constrained is false when no obstacle was supplied and the nominal
	// command was passed through.
	Constrained bool
	Constraint  dynamics.BarrierConstraint

	// Residual is A·u − B at the applied command (0 when unconstrained).
	Residual float64

	// Infeasible is set when the QP had no solution and Control is the
	// stop command.
	Infeasible bool
}

// Violation returns the clamped constraint violation max(0, −residual).
func (r Result) Violation() float64 {
	return math.Max(0, -r.Residual)
}

// Apply filters the nominal command at state s. With obs == nil the nominal
// command is returned unmodified. When the QP is infeasible the stop command
// is returned and the result is flagged; a stale command is never reused.
func (f *Filter) Apply(s dynamics.State, nominal dynamics.Control, obs *dynamics.Obstacle) Result {
	res := Result{Control: nominal, Nominal: nominal}
	if obs == nil {
		return res
	}

	c := f.model.BarrierConstraint(s, *obs, f.gamma1, f.gamma2)
	res.Constrained = true
	res.Constraint = c

	u, err := f.Solve(nominal, c)
	if err != nil {
		res.Infeasible = true
		u = f.model.Stop()
	}
	res.Control = u
	res.Residual = c.Residual(u)
	return res
}

// Solve returns the command closest to nominal that satisfies the barrier
// row and the actuator limits, or ErrInfeasible.
func (f *Filter) Solve(nominal dynamics.Control, c dynamics.BarrierConstraint) (dynamics.Control, error) {
	aMax, wMax := f.model.Params.AccelLimit, f.model.Params.OmegaLimit
	rows := []row{
		{g: c.A, h: c.B},
		{g: [2]float64{1, 0}, h: -aMax},
		{g: [2]float64{-1, 0}, h: -aMax},
		{g: [2]float64{0, 1}, h: -wMax},
		{g: [2]float64{0, -1}, h: -wMax},
	}
	u0 := [2]float64{nominal.Accel, nominal.Omega}

	best := [2]float64{}
	bestCost := math.Inf(1)
	try := func(active ...int) {
		u, ok := projectOnto(u0, rows, active)
		if !ok || !feasible(u, rows) {
			return
		}
		cost := sq(u[0]-u0[0]) + sq(u[1]-u0[1])
		if cost < bestCost {
			best, bestCost = u, cost
		}
	}

	try()
	for i := range rows {
		try(i)
	}
	for i := range rows {
		for j := i + 1; j < len(rows); j++ {
			try(i, j)
		}
	}

	if math.IsInf(bestCost, 1) {
		return dynamics.Control{}, ErrInfeasible
	}
	return dynamics.Control{Accel: best[0], Omega: best[1]}, nil
}

// projectOnto solves the equality-constrained projection of u0 onto the
// rows in active through the KKT system
//
//	[ I   −Gᵀ ] [u]   [u0]
//	[ G    0  ] [λ] = [h ]
//
// It reports false when the system is singular (parallel or zero rows).
func projectOnto(u0 [2]float64, rows []row, active []int) ([2]float64, bool) {
	if len(active) == 0 {
		return u0, true
	}
	n := 2 + len(active)
	k := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	k.Set(0, 0, 1)
	k.Set(1, 1, 1)
	rhs.SetVec(0, u0[0])
	rhs.SetVec(1, u0[1])
	for i, idx := range active {
		r := rows[idx]
		if r.g[0] == 0 && r.g[1] == 0 {
			return [2]float64{}, false
		}
		for j := 0; j < 2; j++ {
			k.Set(j, 2+i, -r.g[j])
			k.Set(2+i, j, r.g[j])
		}
		rhs.SetVec(2+i, r.h)
	}

	var x mat.VecDense
	if err := x.SolveVec(k, rhs); err != nil {
		return [2]float64{}, false
	}
	return [2]float64{x.AtVec(0), x.AtVec(1)}, true
}

func feasible(u [2]float64, rows []row) bool {
	for _, r := range rows {
		if r.g[0]*u[0]+r.g[1]*u[1]-r.h < -feasTol {
			return false
		}
	}
	return true
}

func sq(x float64) float64 { return x * x }
