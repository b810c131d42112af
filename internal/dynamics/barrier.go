package dynamics

import "math"

// BarrierConstraint is one linear CBF row A·u ≥ B at the current state,
// together with the barrier terms it was built from.
type BarrierConstraint struct {
	A [2]float64 // coefficients on (a, ω)
	B float64    // lower bound

	H    float64 // h = ‖p − c‖ − (r_robot + r_obs)
	HDot float64 // ḣ along the drift
}

// Residual returns A·u − B. Non-negative residuals satisfy the constraint.
func (c BarrierConstraint) Residual(u Control) float64 {
	return c.A[0]*u.Accel + c.A[1]*u.Omega - c.B
}

// BarrierConstraint builds the exponential CBF constraint
//
//	ḧ + (γ1+γ2)·ḣ + γ1·γ2·h ≥ 0
//
// for the obstacle at the given state. Control enters at the second
// derivative, so ḧ = Lf²h + LgLfh·u and the constraint becomes
// LgLfh·u ≥ −Lf²h − (γ1+γ2)·ḣ − γ1·γ2·h.
//
// With d = p − c, ρ = ‖d‖, e = (cos θ, sin θ) and n = (−sin θ, cos θ):
//
//	ḣ     = v·(d·e)/ρ
//	Lf²h  = v²·(ρ² − (d·e)²)/ρ³
//	LgLfh = ((d·e)/ρ, v·(d·n)/ρ)
func (m *Unicycle) BarrierConstraint(s State, obs Obstacle, gamma1, gamma2 float64) BarrierConstraint {
	f := m.F(s)
	g := m.G(s)

	dx := s.X - obs.X
	dy := s.Y - obs.Y
	rho := math.Hypot(dx, dy)
	if rho < 1e-9 {
		// Centre coincides with the robot; any direction is as good as another.
		rho = 1e-9
		dx = rho
	}
	h := rho - (m.Params.RobotRadius + obs.Radius)

	// Gradient of h with respect to the state: (dx/ρ, dy/ρ, 0, 0).
	gradH := [4]float64{dx / rho, dy / rho, 0, 0}
	hDot := dot4(gradH, f)

	// Gradient of Lf h = v·(d·e)/ρ with respect to the state.
	cosT, sinT := math.Cos(s.Heading), math.Sin(s.Heading)
	de := dx*cosT + dy*sinT
	dn := -dx*sinT + dy*cosT
	rho3 := rho * rho * rho
	gradLfh := [4]float64{
		s.V * (cosT/rho - de*dx/rho3),
		s.V * (sinT/rho - de*dy/rho3),
		s.V * dn / rho,
		de / rho,
	}

	lf2h := dot4(gradLfh, f)
	var lglfh [2]float64
	for j := 0; j < 2; j++ {
		for i := 0; i < 4; i++ {
			lglfh[j] += gradLfh[i] * g[i][j]
		}
	}

	return BarrierConstraint{
		A:    lglfh,
		B:    -lf2h - (gamma1+gamma2)*hDot - gamma1*gamma2*h,
		H:    h,
		HDot: hDot,
	}
}

// Clearance returns the signed distance between the robot body and the
// obstacle boundary. Non-positive values mean contact.
func (m *Unicycle) Clearance(s State, obs Obstacle) float64 {
	return math.Hypot(s.X-obs.X, s.Y-obs.Y) - (m.Params.RobotRadius + obs.Radius)
}

func dot4(a, b [4]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
}
