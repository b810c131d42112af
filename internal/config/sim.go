// Package config loads the simulation tuning file. Every field is optional;
// the Get* accessors fall back to built-in defaults so partial files are
// safe. The canonical values live in DefaultConfigPath.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	"github.com/banshee-data/cbf.sweep/internal/dynamics"
	"github.com/banshee-data/cbf.sweep/internal/fsutil"
	"github.com/banshee-data/cbf.sweep/internal/geometry"
	"github.com/banshee-data/cbf.sweep/internal/sim"
	"github.com/banshee-data/cbf.sweep/internal/tracking"
)

// DefaultConfigPath is the path to the canonical simulation defaults file.
const DefaultConfigPath = "config/sim.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SimConfig is the root of the tuning file.
type SimConfig struct {
	// Vehicle
	Dt              *float64 `json:"dt,omitempty"`
	RobotRadius     *float64 `json:"robot_radius,omitempty"`
	MaxDecel        *float64 `json:"max_decel,omitempty"`
	MaxAngularDecel *float64 `json:"max_angular_decel,omitempty"`
	AccelLimit      *float64 `json:"accel_limit,omitempty"`
	OmegaLimit      *float64 `json:"omega_limit,omitempty"`
	SpeedLimit      *float64 `json:"speed_limit,omitempty"`

	// Sensor
	FOVDegrees     *float64 `json:"fov_degrees,omitempty"` // full opening angle
	SensorRange    *float64 `json:"sensor_range,omitempty"`
	InitialRadius  *float64 `json:"initial_radius,omitempty"`
	ObstacleMargin *float64 `json:"obstacle_margin,omitempty"`
	CircleSegments *int     `json:"circle_segments,omitempty"`

	// Nominal controller
	KOmega         *float64 `json:"k_omega,omitempty"`
	KV             *float64 `json:"k_v,omitempty"`
	KA             *float64 `json:"k_a,omitempty"`
	ReachTolerance *float64 `json:"reach_tolerance,omitempty"`

	// Scenario
	StartX         *float64 `json:"start_x,omitempty"`
	StartY         *float64 `json:"start_y,omitempty"`
	GoalX          *float64 `json:"goal_x,omitempty"`
	GoalY          *float64 `json:"goal_y,omitempty"`
	ObstacleRadius *float64 `json:"obstacle_radius,omitempty"`

	// Run
	DeadlockThreshold *float64 `json:"deadlock_threshold,omitempty"`
	MaxSimTime        *float64 `json:"max_sim_time,omitempty"`

	// Sweep
	Samples   *int `json:"samples,omitempty"`
	Workers   *int `json:"workers,omitempty"` // 0 means one per CPU
	BatchSize *int `json:"batch_size,omitempty"`
}

// EmptySimConfig returns a SimConfig with every field unset.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// LoadSimConfig loads a SimConfig from a JSON file on disk.
func LoadSimConfig(path string) (*SimConfig, error) {
	return LoadSimConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadSimConfigFS loads a SimConfig through fsys. The file must have a
// .json extension and be at most 1MB.
func LoadSimConfigFS(fsys fsutil.FileSystem, path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySimConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories so it works from any package directory. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *SimConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/*/ subpackages
	}
	for _, path := range candidates {
		if cfg, err := LoadSimConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *SimConfig) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"dt", c.Dt},
		{"max_decel", c.MaxDecel},
		{"max_angular_decel", c.MaxAngularDecel},
		{"accel_limit", c.AccelLimit},
		{"omega_limit", c.OmegaLimit},
		{"speed_limit", c.SpeedLimit},
		{"sensor_range", c.SensorRange},
		{"obstacle_radius", c.ObstacleRadius},
		{"deadlock_threshold", c.DeadlockThreshold},
		{"max_sim_time", c.MaxSimTime},
	}
	for _, p := range positive {
		if p.v != nil && !(*p.v > 0) {
			return fmt.Errorf("%s must be positive, got %v", p.name, *p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"robot_radius", c.RobotRadius},
		{"initial_radius", c.InitialRadius},
		{"obstacle_margin", c.ObstacleMargin},
		{"k_omega", c.KOmega},
		{"k_v", c.KV},
		{"k_a", c.KA},
		{"reach_tolerance", c.ReachTolerance},
	}
	for _, p := range nonNegative {
		if p.v != nil && !(*p.v >= 0) {
			return fmt.Errorf("%s must be non-negative, got %v", p.name, *p.v)
		}
	}

	if c.FOVDegrees != nil && (*c.FOVDegrees <= 0 || *c.FOVDegrees >= 180) {
		return fmt.Errorf("fov_degrees must be in (0, 180), got %v", *c.FOVDegrees)
	}
	if c.CircleSegments != nil && *c.CircleSegments < 3 {
		return fmt.Errorf("circle_segments must be at least 3, got %d", *c.CircleSegments)
	}
	if c.Samples != nil && *c.Samples <= 0 {
		return fmt.Errorf("samples must be positive, got %d", *c.Samples)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.BatchSize != nil && *c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", *c.BatchSize)
	}
	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetVehicle returns the vehicle parameters with defaults applied.
func (c *SimConfig) GetVehicle() dynamics.Params {
	d := dynamics.DefaultParams()
	return dynamics.Params{
		Dt:              getFloat(c.Dt, d.Dt),
		RobotRadius:     getFloat(c.RobotRadius, d.RobotRadius),
		MaxDecel:        getFloat(c.MaxDecel, d.MaxDecel),
		MaxAngularDecel: getFloat(c.MaxAngularDecel, d.MaxAngularDecel),
		AccelLimit:      getFloat(c.AccelLimit, d.AccelLimit),
		OmegaLimit:      getFloat(c.OmegaLimit, d.OmegaLimit),
		SpeedLimit:      getFloat(c.SpeedLimit, d.SpeedLimit),
	}
}

// GetSensor returns the sensor parameters with defaults applied.
func (c *SimConfig) GetSensor() geometry.SensorParams {
	d := geometry.DefaultSensorParams()
	half := d.HalfAngle
	if c.FOVDegrees != nil {
		half = *c.FOVDegrees / 2 * math.Pi / 180
	}
	return geometry.SensorParams{
		HalfAngle:      half,
		Range:          getFloat(c.SensorRange, d.Range),
		InitialRadius:  getFloat(c.InitialRadius, d.InitialRadius),
		ObstacleMargin: getFloat(c.ObstacleMargin, d.ObstacleMargin),
		CircleSegments: getInt(c.CircleSegments, d.CircleSegments),
	}
}

// GetNominal returns the nominal controller gains with defaults applied.
func (c *SimConfig) GetNominal() tracking.NominalConfig {
	n := tracking.DefaultNominalConfig()
	n.KOmega = getFloat(c.KOmega, n.KOmega)
	n.KV = getFloat(c.KV, n.KV)
	n.KA = getFloat(c.KA, n.KA)
	n.ReachTolerance = getFloat(c.ReachTolerance, n.ReachTolerance)
	return n
}

// GetScenario returns the mission layout with defaults applied.
func (c *SimConfig) GetScenario() sim.Scenario {
	s := sim.DefaultScenario()
	s.StartX = getFloat(c.StartX, s.StartX)
	s.StartY = getFloat(c.StartY, s.StartY)
	s.GoalX = getFloat(c.GoalX, s.GoalX)
	s.GoalY = getFloat(c.GoalY, s.GoalY)
	s.ObstacleRadius = getFloat(c.ObstacleRadius, s.ObstacleRadius)
	return s
}

// Settings assembles the per-run model settings.
func (c *SimConfig) Settings() sim.Settings {
	return sim.Settings{
		Vehicle:  c.GetVehicle(),
		Sensor:   c.GetSensor(),
		Nominal:  c.GetNominal(),
		Scenario: c.GetScenario(),
	}
}

// GetDeadlockThreshold returns the deadlock speed threshold or the default.
func (c *SimConfig) GetDeadlockThreshold() float64 {
	return getFloat(c.DeadlockThreshold, sim.DefaultDeadlockThreshold)
}

// GetMaxSimTime returns the simulated horizon or the default.
func (c *SimConfig) GetMaxSimTime() float64 {
	return getFloat(c.MaxSimTime, sim.DefaultMaxSimTime)
}

// GetSamples returns the per-dimension sample count of the default grid.
func (c *SimConfig) GetSamples() int {
	return getInt(c.Samples, 5)
}

// GetWorkers returns the worker count; 0 selects one per CPU.
func (c *SimConfig) GetWorkers() int {
	return getInt(c.Workers, 0)
}

// GetBatchSize returns the number of rows per flushed batch.
func (c *SimConfig) GetBatchSize() int {
	return getInt(c.BatchSize, 1000)
}
