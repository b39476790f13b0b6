// Package config provides configuration loading and management for rbyrct.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"rbyrct/pkg/geometry"
	"rbyrct/pkg/recon"
	"rbyrct/pkg/volume"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Reconstruction parameters
	Recon struct {
		// Method selects the update rule, "MART" or "SART"
		Method string `yaml:"method"`

		// Relaxation damps each update step, in (0, 1]
		Relaxation float64 `yaml:"relaxation"`

		// MaxIterations caps the number of full passes over all views
		MaxIterations int `yaml:"maxIterations"`

		// Tolerance is the residual-improvement threshold for convergence
		Tolerance float64 `yaml:"tolerance"`

		// StallWindow is how many consecutive stalled iterations stop the run
		StallWindow int `yaml:"stallWindow"`

		// DivergenceFactor flags runs whose residual grows past this multiple
		// of the initial residual
		DivergenceFactor float64 `yaml:"divergenceFactor"`

		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// PrecomputeWeights caches every ray's traversal weights up front
		PrecomputeWeights bool `yaml:"precomputeWeights"`
	} `yaml:"recon"`

	// Acquisition geometry parameters
	Geometry struct {
		// Beam selects the acquisition type, "parallel" or "fan"
		Beam string `yaml:"beam"`

		// Views is the number of equally spaced view angles over 180 degrees
		// (parallel) or 360 degrees (fan)
		Views int `yaml:"views"`

		// DetectorChannels is the number of in-plane detector elements
		DetectorChannels int `yaml:"detectorChannels"`

		// DetectorPitch is the detector element spacing in world units
		DetectorPitch float64 `yaml:"detectorPitch"`

		// SourceAxisDistance and SourceDetectorDistance position the fan-beam
		// source and detector; ignored for parallel beam
		SourceAxisDistance     float64 `yaml:"sourceAxisDistance"`
		SourceDetectorDistance float64 `yaml:"sourceDetectorDistance"`

		// GridSize is the reconstruction grid edge length in voxels
		GridSize int `yaml:"gridSize"`

		// VoxelSize is the voxel edge length in world units
		VoxelSize float64 `yaml:"voxelSize"`
	} `yaml:"geometry"`

	// Synthetic phantom parameters
	Phantom struct {
		// Shape selects the ground-truth object, "disk" or "box"
		Shape string `yaml:"shape"`

		// Size is the fractional extent of the object within the grid
		Size float64 `yaml:"size"`

		// Value is the attenuation value inside the object
		Value float64 `yaml:"value"`

		// NoiseSigma is the measurement noise standard deviation at unit dose
		NoiseSigma float64 `yaml:"noiseSigma"`

		// DoseFactor scales the simulated dose; noise shrinks as its square root
		DoseFactor float64 `yaml:"doseFactor"`

		// Seed makes noisy simulations repeatable
		Seed uint64 `yaml:"seed"`
	} `yaml:"phantom"`

	// Output parameters
	Output struct {
		// SaveSlices determines whether to save per-slice PNG images
		SaveSlices bool `yaml:"saveSlices"`

		// SliceDir is the directory for slice images
		SliceDir string `yaml:"sliceDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default reconstruction parameters
	cfg.Recon.Method = "MART"
	cfg.Recon.Relaxation = 0.5
	cfg.Recon.MaxIterations = 50
	cfg.Recon.Tolerance = 1e-4
	cfg.Recon.StallWindow = 3
	cfg.Recon.DivergenceFactor = 10
	cfg.Recon.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Recon.PrecomputeWeights = false

	// Set default geometry parameters
	cfg.Geometry.Beam = "parallel"
	cfg.Geometry.Views = 60
	cfg.Geometry.DetectorChannels = 128
	cfg.Geometry.DetectorPitch = 1.0
	cfg.Geometry.SourceAxisDistance = 256
	cfg.Geometry.SourceDetectorDistance = 512
	cfg.Geometry.GridSize = 64
	cfg.Geometry.VoxelSize = 1.0

	// Set default phantom parameters
	cfg.Phantom.Shape = "disk"
	cfg.Phantom.Size = 0.6
	cfg.Phantom.Value = 1.0
	cfg.Phantom.NoiseSigma = 0
	cfg.Phantom.DoseFactor = 1.0
	cfg.Phantom.Seed = 1

	// Set default output parameters
	cfg.Output.SaveSlices = false
	cfg.Output.SliceDir = "slices"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// ReconConfig maps the file values onto reconstruction parameters. Fields the
// file does not cover (prior, reference, progress) stay at their zero values
// for the caller to fill in.
func (c *Config) ReconConfig() (recon.Config, error) {
	method, err := recon.ParseMethod(c.Recon.Method)
	if err != nil {
		return recon.Config{}, err
	}

	rc := recon.DefaultConfig()
	rc.Method = method
	rc.Relaxation = c.Recon.Relaxation
	rc.MaxIterations = c.Recon.MaxIterations
	rc.Tolerance = c.Recon.Tolerance
	rc.StallWindow = c.Recon.StallWindow
	rc.DivergenceFactor = c.Recon.DivergenceFactor
	rc.Workers = c.Recon.NumCores
	rc.PrecomputeWeights = c.Recon.PrecomputeWeights
	return rc, nil
}

// BuildGeometry constructs the acquisition geometry described by the file.
// View angles are spread evenly over a half rotation for parallel beam and a
// full rotation for fan beam.
func (c *Config) BuildGeometry() (geometry.Geometry, error) {
	g := c.Geometry
	if g.Views < 1 {
		return nil, &geometry.InvalidGeometryError{Field: "views", Reason: "must be at least 1"}
	}

	switch g.Beam {
	case "parallel":
		angles := spreadAngles(g.Views, math.Pi)
		return geometry.NewParallelBeam(angles, g.DetectorChannels, g.DetectorPitch)
	case "fan":
		angles := spreadAngles(g.Views, 2*math.Pi)
		return geometry.NewFanBeam(angles, g.DetectorChannels, g.DetectorPitch,
			g.SourceAxisDistance, g.SourceDetectorDistance)
	default:
		return nil, &geometry.InvalidGeometryError{Field: "beam", Reason: fmt.Sprintf("unknown beam type %q", g.Beam)}
	}
}

// BuildGrid constructs the square reconstruction grid described by the file,
// centered on the rotation axis.
func (c *Config) BuildGrid() (volume.Grid, error) {
	n := c.Geometry.GridSize
	s := c.Geometry.VoxelSize
	return volume.CenteredGrid(n, n, 1, [3]float64{s, s, s})
}

func spreadAngles(views int, arc float64) []float64 {
	angles := make([]float64, views)
	for i := range angles {
		angles[i] = arc * float64(i) / float64(views)
	}
	return angles
}
