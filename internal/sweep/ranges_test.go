package sweep

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cbf.sweep/internal/sim"
)

func TestParseRangeSpec(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RangeSpec
		wantErr bool
	}{
		{"valid", "0.3:3:5", RangeSpec{Min: 0.3, Max: 3, Count: 5}, false},
		{"spaces", " 0 : 1 : 2 ", RangeSpec{Min: 0, Max: 1, Count: 2}, false},
		{"single value", "0.5:0.5:1", RangeSpec{Min: 0.5, Max: 0.5, Count: 1}, false},
		{"too few parts", "0:1", RangeSpec{}, true},
		{"bad min", "a:1:2", RangeSpec{}, true},
		{"bad max", "0:b:2", RangeSpec{}, true},
		{"bad count", "0:1:c", RangeSpec{}, true},
		{"zero count", "0:1:0", RangeSpec{}, true},
		{"inverted", "2:1:3", RangeSpec{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRangeSpec(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinspace(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-12)

	got := Linspace(0, 1, 5)
	if diff := cmp.Diff([]float64{0, 0.25, 0.5, 0.75, 1}, got, approx); diff != "" {
		t.Errorf("Linspace(0, 1, 5) mismatch (-want +got):\n%s", diff)
	}

	// Endpoints are exact.
	g := Linspace(0.005, 0.99, 7)
	require.Len(t, g, 7)
	assert.Equal(t, 0.005, g[0])
	assert.Equal(t, 0.99, g[6])

	assert.Equal(t, []float64{0.3}, Linspace(0.3, 3, 1))
	assert.Nil(t, Linspace(0, 1, 0))
	assert.Nil(t, Linspace(1, 0, 3))
	assert.Nil(t, Linspace(0, 1, maxValues+1))
}

func TestParseParamList(t *testing.T) {
	v, err := ParseParamList("0.1, 0.2,,0.4")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.4}, v)

	v, err = ParseParamList("0:2:3")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, v)

	v, err = ParseParamList("")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = ParseParamList("0.1,x")
	assert.Error(t, err)

	_, err = ParseParamList("0:1:20000")
	assert.Error(t, err)
}

func TestDefaultGrid(t *testing.T) {
	g := DefaultGrid(5)
	require.NoError(t, g.Validate())
	assert.Equal(t, 3125, g.Size())
	assert.Equal(t, 0.3, g.Distance[0])
	assert.Equal(t, 3.0, g.Distance[4])
	assert.Equal(t, 0.01, g.Velocity[0])
	assert.InDelta(t, math.Pi/2, g.Theta[4], 1e-15)
	assert.Equal(t, 0.005, g.Gamma1[0])
	assert.Equal(t, 0.99, g.Gamma2[4])
}

func TestParseGrid(t *testing.T) {
	base := DefaultGrid(2)

	g, err := ParseGrid(base, "1,2,3", "", "", "0.5", "0.1:0.9:3")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, g.Distance)
	assert.Equal(t, base.Velocity, g.Velocity)
	assert.Equal(t, []float64{0.5}, g.Gamma1)
	assert.Len(t, g.Gamma2, 3)
	assert.Equal(t, 3*2*2*1*3, g.Size())

	_, err = ParseGrid(base, "", "fast", "", "", "")
	assert.ErrorContains(t, err, "velocity")

	_, err = ParseGrid(Grid{}, "1", "1", "1", "0.5", "")
	assert.ErrorContains(t, err, "gamma2")
}

func TestGridValidateLimit(t *testing.T) {
	big := Linspace(0, 1, 100)
	g := Grid{Distance: big, Velocity: big, Theta: big, Gamma1: big, Gamma2: big}
	assert.ErrorContains(t, g.Validate(), "safe limit")
}

func TestGridAtOrdering(t *testing.T) {
	g := Grid{
		Distance: []float64{1, 2},
		Velocity: []float64{0.1},
		Theta:    []float64{0, 0.5, 1},
		Gamma1:   []float64{0.2},
		Gamma2:   []float64{0.3, 0.6},
	}

	var want []sim.Params
	for _, d := range g.Distance {
		for _, v := range g.Velocity {
			for _, th := range g.Theta {
				for _, g1 := range g.Gamma1 {
					for _, g2 := range g.Gamma2 {
						want = append(want, sim.Params{Distance: d, Velocity: v, Theta: th, Gamma1: g1, Gamma2: g2})
					}
				}
			}
		}
	}

	require.Equal(t, len(want), g.Size())
	got := make([]sim.Params, g.Size())
	for i := range got {
		got[i] = g.At(i)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("At() order mismatch (-want +got):\n%s", diff)
	}
}
