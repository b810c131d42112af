// Package geometry owns the sensing geometry of a single run: the
// field-of-view triangle, the cumulative sensing footprint, the braking
// safety area and obstacle boundary estimation from partial observations.
//
// Key types: SensorParams, Footprint, SafetyArea, Detection.
//
// All functions are pure. Footprint.With returns a new footprint and never
// mutates the receiver, so a run can hold its geometry as plain values.
package geometry

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
)

// SensorParams holds the fixed sensing parameters.
type SensorParams struct {
	HalfAngle      float64 // FOV half-angle (rad)
	Range          float64 // FOV range (m)
	InitialRadius  float64 // radius of the footprint seeded around the start pose (m)
	ObstacleMargin float64 // shrink applied to obstacle disks before intersecting (m)
	CircleSegments int     // vertices used to discretise circles
}

// DefaultSensorParams returns the production sensing parameters
// (70° field of view, 3 m range).
func DefaultSensorParams() SensorParams {
	return SensorParams{
		HalfAngle:      35 * math.Pi / 180,
		Range:          3.0,
		InitialRadius:  1.0,
		ObstacleMargin: 0.05,
		CircleSegments: 64,
	}
}

// FOVPoints returns the two boundary-ray endpoints of the field of view.
// Left is counter-clockwise from the heading.
func FOVPoints(s dynamics.State, p SensorParams) (left, right orb.Point) {
	aL := s.Heading + p.HalfAngle
	aR := s.Heading - p.HalfAngle
	left = orb.Point{s.X + p.Range*math.Cos(aL), s.Y + p.Range*math.Sin(aL)}
	right = orb.Point{s.X + p.Range*math.Cos(aR), s.Y + p.Range*math.Sin(aR)}
	return left, right
}

// FOVTriangle returns the isosceles field-of-view triangle with its apex
// at the robot position, as a closed counter-clockwise polygon.
func FOVTriangle(s dynamics.State, p SensorParams) orb.Polygon {
	left, right := FOVPoints(s, p)
	apex := orb.Point{s.X, s.Y}
	return orb.Polygon{orb.Ring{apex, right, left, apex}}
}

// Circle returns a closed ring approximating a circle with n vertices.
// Vertices lie exactly on the circle.
func Circle(c orb.Point, r float64, n int) orb.Ring {
	if n < 3 {
		n = 3
	}
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{c[0] + r*math.Cos(a), c[1] + r*math.Sin(a)})
	}
	return append(ring, ring[0])
}
