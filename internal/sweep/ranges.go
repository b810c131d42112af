// Package sweep runs the Monte-Carlo parameter sweep: it enumerates the
// cartesian product of five 1-D grids (distance, velocity, theta, gamma1,
// gamma2), runs one isolated simulation per grid point on a bounded worker
// pool, and flushes results in fixed-size batches.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/cbf.sweep/internal/sim"
)

// maxValues caps the length of a single generated dimension.
const maxValues = 10000

// maxCombos caps the size of the full grid.
const maxCombos = 100_000_000

// RangeSpec is an inclusive, evenly spaced range of Count values.
type RangeSpec struct {
	Min   float64
	Max   float64
	Count int
}

// ParseRangeSpec parses a "min:max:count" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:count", s)
	}

	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}

	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid count value %q: %w", parts[2], err)
	}

	if count <= 0 {
		return RangeSpec{}, fmt.Errorf("count must be positive, got %d", count)
	}
	if min > max {
		return RangeSpec{}, fmt.Errorf("min %v is greater than max %v", min, max)
	}

	return RangeSpec{Min: min, Max: max, Count: count}, nil
}

// Linspace returns count evenly spaced values from min to max inclusive.
// A count of one yields just min. Returns nil for invalid input.
func Linspace(min, max float64, count int) []float64 {
	if count <= 0 || count > maxValues || min > max {
		return nil
	}
	if count == 1 {
		return []float64{min}
	}
	return floats.Span(make([]float64, count), min, max)
}

// ParseParamList parses either a "min:max:count" range or a comma-separated
// list of values.
func ParseParamList(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}

	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		v := Linspace(spec.Min, spec.Max, spec.Count)
		if v == nil {
			return nil, fmt.Errorf("range %q exceeds %d values", s, maxValues)
		}
		return v, nil
	}

	return ParseCSVFloat64s(s)
}

// Grid holds the five sweep dimensions. The cartesian product is never
// materialised; configurations are addressed by index.
type Grid struct {
	Distance []float64 `json:"distance"`
	Velocity []float64 `json:"velocity"`
	Theta    []float64 `json:"theta"`
	Gamma1   []float64 `json:"gamma1"`
	Gamma2   []float64 `json:"gamma2"`
}

// DefaultGrid returns the dataset grid with samples values per dimension.
func DefaultGrid(samples int) Grid {
	return Grid{
		Distance: Linspace(0.3, 3.0, samples),
		Velocity: Linspace(0.01, 1.0, samples),
		Theta:    Linspace(0.001, math.Pi/2, samples),
		Gamma1:   Linspace(0.005, 0.99, samples),
		Gamma2:   Linspace(0.005, 0.99, samples),
	}
}

// ParseGrid builds a grid from one spec per dimension. Empty specs fall back
// to the corresponding dimension of base.
func ParseGrid(base Grid, distance, velocity, theta, gamma1, gamma2 string) (Grid, error) {
	g := base
	dims := []struct {
		name string
		spec string
		dst  *[]float64
	}{
		{"distance", distance, &g.Distance},
		{"velocity", velocity, &g.Velocity},
		{"theta", theta, &g.Theta},
		{"gamma1", gamma1, &g.Gamma1},
		{"gamma2", gamma2, &g.Gamma2},
	}
	for _, d := range dims {
		if d.spec == "" {
			continue
		}
		v, err := ParseParamList(d.spec)
		if err != nil {
			return Grid{}, fmt.Errorf("parsing %s (%q): %w", d.name, d.spec, err)
		}
		*d.dst = v
	}
	return g, g.Validate()
}

func (g Grid) dims() [5][]float64 {
	return [5][]float64{g.Distance, g.Velocity, g.Theta, g.Gamma1, g.Gamma2}
}

// Validate checks that every dimension is non-empty and that the product
// stays within the combination limit.
func (g Grid) Validate() error {
	names := [5]string{"distance", "velocity", "theta", "gamma1", "gamma2"}
	total := int64(1)
	for i, d := range g.dims() {
		if len(d) == 0 {
			return fmt.Errorf("grid dimension %s is empty", names[i])
		}
		total *= int64(len(d))
		if total > maxCombos {
			return fmt.Errorf("parameter combinations would exceed safe limit of %d", maxCombos)
		}
	}
	return nil
}

// Size returns the number of configurations in the grid.
func (g Grid) Size() int {
	n := 1
	for _, d := range g.dims() {
		n *= len(d)
	}
	return n
}

// At returns configuration i. The last dimension (gamma2) varies fastest,
// matching a nested loop over distance, velocity, theta, gamma1, gamma2.
func (g Grid) At(i int) sim.Params {
	dims := g.dims()
	var idx [5]int
	for d := len(dims) - 1; d >= 0; d-- {
		n := len(dims[d])
		idx[d] = i % n
		i /= n
	}
	return sim.Params{
		Distance: g.Distance[idx[0]],
		Velocity: g.Velocity[idx[1]],
		Theta:    g.Theta[idx[2]],
		Gamma1:   g.Gamma1[idx[3]],
		Gamma2:   g.Gamma2[idx[4]],
	}
}

// ParseCSVFloat64s parses a comma-separated list of float64 values.
// Blank entries are skipped. Returns nil, nil for empty input.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) > maxValues {
		return nil, fmt.Errorf("list has %d values, limit is %d", len(out), maxValues)
	}
	return out, nil
}
