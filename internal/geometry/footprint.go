package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Footprint is the union of every region sensed so far in a run. It is kept
// as a list of convex pieces (the seed disk and the FOV triangles) whose
// union is the sensed region; the union is never materialised.
type Footprint struct {
	pieces orb.MultiPolygon
	bounds []orb.Bound
}

// NewFootprint seeds a footprint with a disk around the start position.
func NewFootprint(center orb.Point, p SensorParams) Footprint {
	var fp Footprint
	if p.InitialRadius <= 0 {
		return fp
	}
	disk := orb.Polygon{Circle(center, p.InitialRadius, p.CircleSegments)}
	return fp.with(disk)
}

// With returns the footprint extended by a convex polygon. The receiver is
// not modified. A piece already covered by an existing piece is dropped, so
// repeated calls with the same pose leave the footprint unchanged.
func (f Footprint) With(piece orb.Polygon) Footprint {
	if len(piece) == 0 || len(piece[0]) == 0 {
		return f
	}
	for i := range f.pieces {
		if f.pieceCovers(i, piece[0]) {
			return f
		}
	}
	return f.with(piece)
}

func (f Footprint) with(piece orb.Polygon) Footprint {
	// Full slice expressions force a copy so older values stay valid.
	n := len(f.pieces)
	return Footprint{
		pieces: append(f.pieces[:n:n], piece),
		bounds: append(f.bounds[:n:n], piece.Bound()),
	}
}

// pieceCovers reports whether piece i contains every vertex of ring. Pieces
// are convex, so this is containment of the whole ring.
func (f Footprint) pieceCovers(i int, ring orb.Ring) bool {
	for _, pt := range ring {
		if !f.bounds[i].Contains(pt) || !planar.PolygonContains(f.pieces[i], pt) {
			return false
		}
	}
	return true
}

// Pieces returns the convex pieces making up the footprint.
func (f Footprint) Pieces() orb.MultiPolygon {
	return f.pieces
}

// Len returns the number of pieces.
func (f Footprint) Len() int {
	return len(f.pieces)
}

// Bound returns the bounding box of the footprint.
func (f Footprint) Bound() orb.Bound {
	if len(f.pieces) == 0 {
		return orb.Bound{}
	}
	return f.pieces.Bound()
}

// Contains reports whether the point lies in the sensed region. Newer
// pieces are checked first since queries cluster around the current pose.
func (f Footprint) Contains(pt orb.Point) bool {
	for i := len(f.pieces) - 1; i >= 0; i-- {
		if f.bounds[i].Contains(pt) && planar.PolygonContains(f.pieces[i], pt) {
			return true
		}
	}
	return false
}

// ContainsArea reports whether the whole safety area lies in the footprint.
func (f Footprint) ContainsArea(sa SafetyArea) bool {
	for _, pt := range sa.Samples() {
		if !f.Contains(pt) {
			return false
		}
	}
	return true
}

// Area estimates the area of the union by counting lattice points of the
// given spacing. The lattice is anchored at the origin, so the estimate is
// non-decreasing as pieces are added.
func (f Footprint) Area(spacing float64) float64 {
	if len(f.pieces) == 0 || spacing <= 0 {
		return 0
	}
	b := f.Bound()
	i0 := int(math.Floor(b.Min[0] / spacing))
	i1 := int(math.Ceil(b.Max[0] / spacing))
	j0 := int(math.Floor(b.Min[1] / spacing))
	j1 := int(math.Ceil(b.Max[1] / spacing))

	count := 0
	for i := i0; i <= i1; i++ {
		for j := j0; j <= j1; j++ {
			if f.Contains(orb.Point{float64(i) * spacing, float64(j) * spacing}) {
				count++
			}
		}
	}
	return float64(count) * spacing * spacing
}
