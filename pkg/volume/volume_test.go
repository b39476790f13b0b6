package volume

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbyrct/pkg/geometry"
)

func TestNewGridValidation(t *testing.T) {
	_, err := NewGrid(0, 4, 1, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.Error(t, err)
	var ge *geometry.InvalidGeometryError
	assert.ErrorAs(t, err, &ge)

	_, err = NewGrid(4, 4, 1, [3]float64{1, 0, 1}, [3]float64{0, 0, 0})
	require.Error(t, err)

	_, err = NewGrid(4, 4, 1, [3]float64{1, 1, 1}, [3]float64{0, math.NaN(), 0})
	require.Error(t, err)

	g, err := NewGrid(4, 3, 2, [3]float64{1, 2, 3}, [3]float64{-1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, 24, g.Len())
}

func TestCenteredGrid(t *testing.T) {
	g, err := CenteredGrid(4, 4, 1, [3]float64{1, 1, 1})
	require.NoError(t, err)

	// Voxel centers straddle the world origin symmetrically.
	assert.Equal(t, [3]float64{-1.5, -1.5, 0}, g.Origin)
	lo, hi := g.Bounds()
	assert.Equal(t, [3]float64{-2, -2, -0.5}, lo)
	assert.Equal(t, [3]float64{2, 2, 0.5}, hi)
}

func TestFlatCoordsRoundTrip(t *testing.T) {
	g, err := NewGrid(3, 4, 5, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	for flat := 0; flat < g.Len(); flat++ {
		x, y, z := g.Coords(flat)
		assert.Equal(t, flat, g.Flat(x, y, z))
	}

	// x is the fastest axis.
	assert.Equal(t, 1, g.Flat(1, 0, 0))
	assert.Equal(t, 3, g.Flat(0, 1, 0))
	assert.Equal(t, 12, g.Flat(0, 0, 1))
}

func TestFlatPanicsOutOfRange(t *testing.T) {
	g, err := NewGrid(2, 2, 1, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)
	assert.Panics(t, func() { g.Flat(2, 0, 0) })
	assert.Panics(t, func() { g.Coords(4) })
}

func TestWorldVoxelTransforms(t *testing.T) {
	g, err := NewGrid(4, 4, 2, [3]float64{0.5, 2, 1}, [3]float64{-1, 3, 0})
	require.NoError(t, err)

	// Voxel centers map to integer coordinates.
	c := g.WorldToVoxel(g.Origin)
	assert.Equal(t, [3]float64{0, 0, 0}, c)

	p := [3]float64{-0.5, 5, 1}
	c = g.WorldToVoxel(p)
	assert.InDelta(t, 1, c[0], 1e-15)
	assert.InDelta(t, 1, c[1], 1e-15)
	assert.InDelta(t, 1, c[2], 1e-15)

	// Exact inverse.
	back := g.VoxelToWorld(c)
	for a := 0; a < 3; a++ {
		assert.InDelta(t, p[a], back[a], 1e-12)
	}
}

func TestNewFromData(t *testing.T) {
	g, err := NewGrid(2, 2, 1, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	_, err = NewFromData(g, make([]float64, 3))
	require.Error(t, err)

	v, err := NewFromData(g, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4.0, v.At(1, 1, 0))
}

func TestCloneIsIndependent(t *testing.T) {
	g, err := NewGrid(2, 2, 1, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	v := New(g, 1)
	c := v.Clone()
	c.SetFlat(0, 5)
	assert.Equal(t, 1.0, v.AtFlat(0))
	assert.Equal(t, 5.0, c.AtFlat(0))
}

func TestCopyFromGridMismatchPanics(t *testing.T) {
	g1, err := NewGrid(2, 2, 1, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)
	g2, err := NewGrid(2, 2, 2, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	assert.Panics(t, func() { New(g1, 0).CopyFrom(New(g2, 0)) })
}

func TestClampNonNegative(t *testing.T) {
	g, err := NewGrid(2, 2, 1, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	v, err := NewFromData(g, []float64{-1, 0, 2, -0.5})
	require.NoError(t, err)
	v.ClampNonNegative()
	assert.Equal(t, []float64{0, 0, 2, 0}, v.Data)
}

func TestHasNonFinite(t *testing.T) {
	g, err := NewGrid(2, 1, 1, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	v := New(g, 1)
	assert.False(t, v.HasNonFinite())
	v.SetFlat(1, math.Inf(1))
	assert.True(t, v.HasNonFinite())
	v.SetFlat(1, math.NaN())
	assert.True(t, v.HasNonFinite())
}

func TestMinMax(t *testing.T) {
	g, err := NewGrid(2, 2, 1, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	require.NoError(t, err)

	v, err := NewFromData(g, []float64{3, -1, 7, 0})
	require.NoError(t, err)
	min, max := v.MinMax()
	assert.Equal(t, -1.0, min)
	assert.Equal(t, 7.0, max)
}
