package geometry

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
)

// sensedAt returns the footprint after one FOV update at s.
func sensedAt(s dynamics.State, p SensorParams) Footprint {
	return NewFootprint(orb.Point{s.X, s.Y}, p).With(FOVTriangle(s, p))
}

func TestDetectObstacleAhead(t *testing.T) {
	t.Parallel()
	p := DefaultSensorParams()
	s := dynamics.State{X: 1, Y: 3}
	obs := []dynamics.Obstacle{{X: 2.5, Y: 3, Radius: 0.3}}

	det, ok := DetectObstacle(sensedAt(s, p), s, obs, p)
	require.True(t, ok)
	assert.Equal(t, 0, det.Source)
	require.NotEmpty(t, det.Points)

	// Only the near side is visible, so the estimate sits in front of the
	// true centre and is no larger than the shrunk disk.
	assert.Less(t, det.Estimate.X, 2.5)
	assert.InDelta(t, 3.0, det.Estimate.Y, 1e-6)
	assert.Greater(t, det.Estimate.Radius, 0.0)
	assert.LessOrEqual(t, det.Estimate.Radius, 0.25+1e-9)

	for _, q := range det.Points {
		assert.InDelta(t, 0.25, math.Hypot(q[0]-2.5, q[1]-3), 1e-9)
		assert.LessOrEqual(t, q[0], 2.5+1e-9, "back-side point %v", q)
	}
}

func TestDetectObstacleDeterministic(t *testing.T) {
	t.Parallel()
	p := DefaultSensorParams()
	s := dynamics.State{X: 1, Y: 3, Heading: 0.2, V: 0.5}
	fp := sensedAt(s, p)
	obs := []dynamics.Obstacle{{X: 2.2, Y: 3.3, Radius: 0.4}}

	first, ok := DetectObstacle(fp, s, obs, p)
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		again, ok := DetectObstacle(fp, s, obs, p)
		require.True(t, ok)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("detection changed between calls (-first +again):\n%s", diff)
		}
	}
}

func TestDetectObstacleNotSensed(t *testing.T) {
	t.Parallel()
	p := DefaultSensorParams()
	s := dynamics.State{X: 1, Y: 3}

	testCases := []struct {
		name string
		obs  []dynamics.Obstacle
	}{
		{"none", nil},
		{"out_of_range", []dynamics.Obstacle{{X: 8, Y: 3, Radius: 0.3}}},
		{"behind_outside_seed", []dynamics.Obstacle{{X: -1, Y: 3, Radius: 0.3}}},
		{"smaller_than_margin", []dynamics.Obstacle{{X: 2, Y: 3, Radius: 0.04}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := DetectObstacle(sensedAt(s, p), s, tc.obs, p)
			assert.False(t, ok)
		})
	}

	_, ok := DetectObstacle(Footprint{}, s, []dynamics.Obstacle{{X: 2, Y: 3, Radius: 0.3}}, p)
	assert.False(t, ok, "empty footprint")
}

func TestDetectObstacleClosestVisibleWins(t *testing.T) {
	t.Parallel()
	p := DefaultSensorParams()
	s := dynamics.State{X: 1, Y: 3}
	fp := sensedAt(s, p)

	testCases := []struct {
		name       string
		obs        []dynamics.Obstacle
		wantSource int
	}{
		{
			name:       "nearer_listed_second",
			obs:        []dynamics.Obstacle{{X: 3.0, Y: 3, Radius: 0.3}, {X: 2.0, Y: 3, Radius: 0.3}},
			wantSource: 1,
		},
		{
			// The nearer obstacle is off to the side and has never been sensed.
			name:       "nearest_unsensed",
			obs:        []dynamics.Obstacle{{X: 1, Y: 5, Radius: 0.3}, {X: 3.5, Y: 3, Radius: 0.3}},
			wantSource: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			det, ok := DetectObstacle(fp, s, tc.obs, p)
			require.True(t, ok)
			assert.Equal(t, tc.wantSource, det.Source)
		})
	}
}

func TestDetectObstacleRobotInsideDisk(t *testing.T) {
	t.Parallel()
	p := DefaultSensorParams()
	s := dynamics.State{X: 1, Y: 3}
	obs := []dynamics.Obstacle{{X: 1.1, Y: 3, Radius: 0.5}}

	det, ok := DetectObstacle(sensedAt(s, p), s, obs, p)
	require.True(t, ok)
	// Every vertex of the shrunk disk lies in the seed footprint.
	assert.GreaterOrEqual(t, len(det.Points), p.CircleSegments)
}

func TestFrontFacing(t *testing.T) {
	t.Parallel()
	robot, c := orb.Point{0, 0}, orb.Point{2, 0}

	testCases := []struct {
		name string
		q    orb.Point
		want bool
	}{
		{"near_side", orb.Point{1.5, 0}, true},
		{"far_side", orb.Point{2.5, 0}, false},
		{"upper_near", orb.Point{2 - 0.5*math.Cos(math.Pi/4), 0.5 * math.Sin(math.Pi/4)}, true},
		{"upper_far", orb.Point{2 + 0.5*math.Cos(math.Pi/4), 0.5 * math.Sin(math.Pi/4)}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, frontFacing(robot, tc.q, c, 0.5))
		})
	}
}

func TestSegmentCircle(t *testing.T) {
	t.Parallel()
	c := orb.Point{2, 0}

	pts := segmentCircle(orb.Point{0, 0}, orb.Point{4, 0}, c, 1)
	require.Len(t, pts, 2)
	assert.InDelta(t, 1.0, pts[0][0], 1e-12)
	assert.InDelta(t, 3.0, pts[1][0], 1e-12)

	assert.Len(t, segmentCircle(orb.Point{0, 0}, orb.Point{2, 0}, c, 1), 1)
	assert.Empty(t, segmentCircle(orb.Point{0, 2}, orb.Point{4, 2}, c, 1))
	assert.Empty(t, segmentCircle(orb.Point{1, 1}, orb.Point{1, 1}, c, 1))
}

func TestExtremePoints(t *testing.T) {
	t.Parallel()
	pts := []orb.Point{{1, 0}, {1, 1}, {1, -1}, {1, 0.5}}
	lo, hi := extremePoints(orb.Point{0, 0}, 0, pts)
	assert.Equal(t, orb.Point{1, -1}, lo)
	assert.Equal(t, orb.Point{1, 1}, hi)
}
