package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
)

// facingTolerance absorbs rounding when a point sits exactly where the
// robot's line of sight grazes the obstacle.
const facingTolerance = 1e-9

// Detection is the per-step obstacle estimate built from the visible part
// of one true obstacle.
type Detection struct {
	Estimate dynamics.Obstacle // centre and radius of the estimate
	Points   []orb.Point       // front-facing boundary points the estimate was built from
	Source   int               // index of the true obstacle in the input slice
}

// DetectObstacle estimates the closest visible obstacle from the sensed
// footprint. Obstacles are scanned by increasing distance from the robot and
// the first one with any front-facing boundary point wins. The second
// return value is false when nothing is visible.
//
// Algorithm:
//  1. Shrink the obstacle disk by the margin.
//  2. Collect boundary points of footprint ∩ disk that lie on the circle:
//     circle vertices inside the footprint and footprint edge crossings.
//  3. Keep front-facing points (the segment from the robot does not pass
//     through the disk before reaching the point).
//  4. Take the angular extremes relative to the heading; the estimate is
//     their midpoint with half their separation as radius.
func DetectObstacle(fp Footprint, s dynamics.State, obstacles []dynamics.Obstacle, p SensorParams) (Detection, bool) {
	if len(obstacles) == 0 || fp.Len() == 0 {
		return Detection{}, false
	}
	robot := orb.Point{s.X, s.Y}

	order := make([]int, len(obstacles))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		oa, ob := obstacles[order[a]], obstacles[order[b]]
		return math.Hypot(oa.X-s.X, oa.Y-s.Y) < math.Hypot(ob.X-s.X, ob.Y-s.Y)
	})

	for _, idx := range order {
		obs := obstacles[idx]
		r := obs.Radius - p.ObstacleMargin
		if r <= 0 {
			continue
		}
		center := orb.Point{obs.X, obs.Y}

		var visible []orb.Point
		for _, q := range boundaryPoints(fp, center, r, p.CircleSegments) {
			if frontFacing(robot, q, center, r) {
				visible = append(visible, q)
			}
		}
		if len(visible) == 0 {
			continue
		}

		lo, hi := extremePoints(robot, s.Heading, visible)
		return Detection{
			Estimate: dynamics.Obstacle{
				X:      (lo[0] + hi[0]) / 2,
				Y:      (lo[1] + hi[1]) / 2,
				Radius: math.Hypot(hi[0]-lo[0], hi[1]-lo[1]) / 2,
			},
			Points: visible,
			Source: idx,
		}, true
	}
	return Detection{}, false
}

// boundaryPoints returns the points of ∂(footprint ∩ disk) that lie on the
// circle: discretised circle vertices inside the footprint, plus the points
// where footprint piece edges cross the circle.
func boundaryPoints(fp Footprint, center orb.Point, r float64, segments int) []orb.Point {
	diskBound := orb.Bound{
		Min: orb.Point{center[0] - r, center[1] - r},
		Max: orb.Point{center[0] + r, center[1] + r},
	}
	var pts []orb.Point

	ring := Circle(center, r, segments)
	for _, q := range ring[:len(ring)-1] {
		if fp.Contains(q) {
			pts = append(pts, q)
		}
	}

	for i, piece := range fp.pieces {
		if !fp.bounds[i].Intersects(diskBound) {
			continue
		}
		for _, rg := range piece {
			for k := 1; k < len(rg); k++ {
				pts = append(pts, segmentCircle(rg[k-1], rg[k], center, r)...)
			}
		}
	}
	return pts
}

// segmentCircle returns the intersections of segment a-b with the circle.
func segmentCircle(a, b, c orb.Point, r float64) []orb.Point {
	dx, dy := b[0]-a[0], b[1]-a[1]
	fx, fy := a[0]-c[0], a[1]-c[1]
	qa := dx*dx + dy*dy
	if qa == 0 {
		return nil
	}
	qb := 2 * (fx*dx + fy*dy)
	qc := fx*fx + fy*fy - r*r
	disc := qb*qb - 4*qa*qc
	if disc < 0 {
		return nil
	}
	sq := math.Sqrt(disc)
	var out []orb.Point
	for _, t := range [2]float64{(-qb - sq) / (2 * qa), (-qb + sq) / (2 * qa)} {
		if t >= 0 && t <= 1 {
			out = append(out, orb.Point{a[0] + t*dx, a[1] + t*dy})
		}
		if disc == 0 {
			break
		}
	}
	return out
}

// frontFacing reports whether the segment robot→q, with q on the circle,
// reaches q without crossing the disk interior. At a front-facing point the
// segment is entering the disk (moving towards the centre) or grazing it.
func frontFacing(robot, q, center orb.Point, r float64) bool {
	if math.Hypot(robot[0]-center[0], robot[1]-center[1]) < r {
		return true
	}
	vx, vy := q[0]-robot[0], q[1]-robot[1]
	cx, cy := center[0]-q[0], center[1]-q[1]
	return vx*cx+vy*cy >= -facingTolerance
}

// extremePoints returns the points with the smallest and largest signed
// angle from the heading, measured from the robot and wrapped to (-π, π].
// Ties keep the first point seen. lo is the right-most point as seen from
// the robot, hi the left-most.
func extremePoints(robot orb.Point, heading float64, pts []orb.Point) (lo, hi orb.Point) {
	minA, maxA := math.Inf(1), math.Inf(-1)
	for _, q := range pts {
		a := dynamics.WrapAngle(math.Atan2(q[1]-robot[1], q[0]-robot[0]) - heading)
		if a < minA {
			minA, lo = a, q
		}
		if a > maxA {
			maxA, hi = a, q
		}
	}
	return lo, hi
}
