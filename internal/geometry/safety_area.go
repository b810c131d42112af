package geometry

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
)

// sampleRingPoints is the number of boundary samples taken around each
// path point when testing the buffered path for containment.
const sampleRingPoints = 12

// containsTolerance absorbs rounding for points sampled on the buffer edge.
const containsTolerance = 1e-9

// SafetyArea is the region the vehicle may sweep while braking to a stop:
// the braking path buffered by the body radius.
type SafetyArea struct {
	Path   orb.LineString
	Radius float64
}

// ComputeSafetyArea integrates the braking path from the current state at
// turn rate omega under maximum deceleration until the speed reaches zero.
//
// The turn rate decays linearly by the maximum angular deceleration and is
// clamped to exactly zero once it would change sign. With omega == 0 the
// path is the straight braking segment of length v²/(2·a_max).
func ComputeSafetyArea(s dynamics.State, omega float64, p dynamics.Params) SafetyArea {
	start := orb.Point{s.X, s.Y}
	speed := math.Abs(s.V)
	dir := 1.0
	if s.V < 0 {
		dir = -1
	}

	if p.MaxDecel <= 0 || speed == 0 {
		return SafetyArea{Path: orb.LineString{start}, Radius: p.RobotRadius}
	}

	if omega == 0 {
		d := dir * speed * speed / (2 * p.MaxDecel)
		end := orb.Point{s.X + d*math.Cos(s.Heading), s.Y + d*math.Sin(s.Heading)}
		return SafetyArea{Path: orb.LineString{start, end}, Radius: p.RobotRadius}
	}

	tStop := speed / p.MaxDecel
	sign := math.Copysign(1, omega)
	theta := s.Heading
	path := orb.LineString{start}
	for t := 0.0; t <= tStop; t += p.Dt {
		vCur := math.Max(speed-p.MaxDecel*t, 0)
		if vCur == 0 {
			break
		}
		wCur := omega - sign*p.MaxAngularDecel*t
		if math.Copysign(1, wCur) != sign {
			wCur = 0
		}
		theta += wCur * p.Dt
		last := path[len(path)-1]
		path = append(path, orb.Point{
			last[0] + dir*vCur*math.Cos(theta)*p.Dt,
			last[1] + dir*vCur*math.Sin(theta)*p.Dt,
		})
	}
	return SafetyArea{Path: path, Radius: p.RobotRadius}
}

// Bound returns the bounding box of the buffered path.
func (a SafetyArea) Bound() orb.Bound {
	if len(a.Path) == 0 {
		return orb.Bound{}
	}
	return a.Path.Bound().Pad(a.Radius)
}

// Samples returns points on and inside the buffered path: every path point
// (densified so consecutive points are at most one radius apart) and a ring
// of points at the buffer radius around each of them.
func (a SafetyArea) Samples() []orb.Point {
	centers := a.densePath()
	out := make([]orb.Point, 0, len(centers)*(sampleRingPoints+1))
	for _, c := range centers {
		out = append(out, c)
		if a.Radius <= 0 {
			continue
		}
		for k := 0; k < sampleRingPoints; k++ {
			ang := 2 * math.Pi * float64(k) / sampleRingPoints
			out = append(out, orb.Point{c[0] + a.Radius*math.Cos(ang), c[1] + a.Radius*math.Sin(ang)})
		}
	}
	return out
}

// Contains reports whether pt is within the buffer radius of the path.
func (a SafetyArea) Contains(pt orb.Point) bool {
	if len(a.Path) == 1 {
		return math.Hypot(pt[0]-a.Path[0][0], pt[1]-a.Path[0][1]) <= a.Radius+containsTolerance
	}
	for i := 1; i < len(a.Path); i++ {
		if segmentDistance(pt, a.Path[i-1], a.Path[i]) <= a.Radius+containsTolerance {
			return true
		}
	}
	return false
}

func (a SafetyArea) densePath() []orb.Point {
	if len(a.Path) < 2 || a.Radius <= 0 {
		return a.Path
	}
	out := []orb.Point{a.Path[0]}
	for i := 1; i < len(a.Path); i++ {
		p0, p1 := a.Path[i-1], a.Path[i]
		n := int(math.Ceil(math.Hypot(p1[0]-p0[0], p1[1]-p0[1]) / a.Radius))
		for k := 1; k <= n; k++ {
			t := float64(k) / float64(n)
			out = append(out, orb.Point{p0[0] + t*(p1[0]-p0[0]), p0[1] + t*(p1[1]-p0[1])})
		}
	}
	return out
}

// segmentDistance returns the distance from pt to the segment a-b.
func segmentDistance(pt, a, b orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(pt[0]-a[0], pt[1]-a[1])
	}
	t := ((pt[0]-a[0])*dx + (pt[1]-a[1])*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(pt[0]-(a[0]+t*dx), pt[1]-(a[1]+t*dy))
}
