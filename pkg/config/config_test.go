package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbyrct/pkg/geometry"
	"rbyrct/pkg/recon"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "MART", cfg.Recon.Method)
	assert.Equal(t, 0.5, cfg.Recon.Relaxation)
	assert.Equal(t, 50, cfg.Recon.MaxIterations)
	assert.Equal(t, "parallel", cfg.Geometry.Beam)
	assert.Equal(t, 64, cfg.Geometry.GridSize)
	assert.Equal(t, "disk", cfg.Phantom.Shape)
	assert.Positive(t, cfg.Recon.NumCores)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yaml := `
recon:
  method: SART
  relaxation: 0.3
geometry:
  beam: fan
  views: 12
  gridSize: 16
phantom:
  shape: box
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "SART", cfg.Recon.Method)
	assert.Equal(t, 0.3, cfg.Recon.Relaxation)
	assert.Equal(t, "fan", cfg.Geometry.Beam)
	assert.Equal(t, 12, cfg.Geometry.Views)
	assert.Equal(t, 16, cfg.Geometry.GridSize)
	assert.Equal(t, "box", cfg.Phantom.Shape)

	// Untouched fields keep their defaults.
	assert.Equal(t, 50, cfg.Recon.MaxIterations)
	assert.Equal(t, 1.0, cfg.Geometry.VoxelSize)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recon: [not a map"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cfg.yaml")

	cfg := DefaultConfig()
	cfg.Recon.Method = "SART"
	cfg.Geometry.Views = 90
	cfg.Output.SaveSlices = true

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), loaded)
}

func TestReconConfigMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Recon.Method = "SART"
	cfg.Recon.Relaxation = 0.7
	cfg.Recon.MaxIterations = 25
	cfg.Recon.NumCores = 3
	cfg.Recon.PrecomputeWeights = true

	rc, err := cfg.ReconConfig()
	require.NoError(t, err)

	assert.Equal(t, recon.SART, rc.Method)
	assert.Equal(t, 0.7, rc.Relaxation)
	assert.Equal(t, 25, rc.MaxIterations)
	assert.Equal(t, 3, rc.Workers)
	assert.True(t, rc.PrecomputeWeights)

	cfg.Recon.Method = "bogus"
	_, err = cfg.ReconConfig()
	assert.Error(t, err)
}

func TestBuildGeometryParallel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geometry.Views = 4

	geom, err := cfg.BuildGeometry()
	require.NoError(t, err)

	pb, ok := geom.(*geometry.ParallelBeam)
	require.True(t, ok)
	require.Len(t, pb.Angles, 4)
	assert.Equal(t, 0.0, pb.Angles[0])
	assert.Equal(t, cfg.Geometry.DetectorChannels, pb.DetectorChannels)
}

func TestBuildGeometryFan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geometry.Beam = "fan"
	cfg.Geometry.Views = 8

	geom, err := cfg.BuildGeometry()
	require.NoError(t, err)

	cb, ok := geom.(*geometry.ConeBeam)
	require.True(t, ok)
	assert.Len(t, cb.Angles, 8)
	assert.Equal(t, cfg.Geometry.SourceAxisDistance, cb.SourceAxisDistance)
}

func TestBuildGeometryErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geometry.Beam = "spiral"
	_, err := cfg.BuildGeometry()
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Geometry.Views = 0
	_, err = cfg.BuildGeometry()
	assert.Error(t, err)
}

func TestBuildGrid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Geometry.GridSize = 8
	cfg.Geometry.VoxelSize = 0.5

	grid, err := cfg.BuildGrid()
	require.NoError(t, err)
	assert.Equal(t, 8, grid.Nx)
	assert.Equal(t, 8, grid.Ny)
	assert.Equal(t, 1, grid.Nz)
	assert.Equal(t, [3]float64{0.5, 0.5, 0.5}, grid.Spacing)

	lo, hi := grid.Bounds()
	assert.InDelta(t, -hi[0], lo[0], 1e-15)
}
