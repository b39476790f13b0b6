package projector

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"rbyrct/pkg/geometry"
	"rbyrct/pkg/volume"
)

func testGrid(t *testing.T) volume.Grid {
	t.Helper()
	g, err := volume.CenteredGrid(4, 4, 1, [3]float64{1, 1, 1})
	require.NoError(t, err)
	return g
}

func testProjector(t *testing.T, geom geometry.Geometry) *Projector {
	t.Helper()
	p, err := New(geom, testGrid(t))
	require.NoError(t, err)
	return p
}

func singleViewGeom(t *testing.T) geometry.Geometry {
	t.Helper()
	g, err := geometry.NewParallelBeam([]float64{0}, 4, 1)
	require.NoError(t, err)
	return g
}

func TestTraverseAxisAlignedRay(t *testing.T) {
	p := testProjector(t, singleViewGeom(t))

	ray := geometry.NewRay([3]float64{-10, 0.25, 0}, [3]float64{1, 0, 0})
	contribs := p.Trace(ray, nil)

	// Crosses the full row: one unit-length segment per voxel.
	require.Len(t, contribs, 4)
	total := 0.0
	for i, c := range contribs {
		assert.InDelta(t, 1.0, c.Weight, 1e-12)
		x, y, z := p.grid.Coords(c.Voxel)
		assert.Equal(t, i, x)
		assert.Equal(t, 2, y)
		assert.Equal(t, 0, z)
		total += c.Weight
	}
	assert.InDelta(t, 4.0, total, 1e-12)
}

func TestTraverseBoundaryAttribution(t *testing.T) {
	p := testProjector(t, singleViewGeom(t))

	// A ray exactly on the y=0 voxel boundary belongs to the upper row
	// (floor of the entry coordinate).
	ray := geometry.NewRay([3]float64{-10, 0, 0}, [3]float64{1, 0, 0})
	contribs := p.Trace(ray, nil)
	require.Len(t, contribs, 4)
	for _, c := range contribs {
		_, y, _ := p.grid.Coords(c.Voxel)
		assert.Equal(t, 2, y)
	}
}

func TestTraverseDiagonalCornerTies(t *testing.T) {
	p := testProjector(t, singleViewGeom(t))

	inv := 1 / math.Sqrt2
	ray := geometry.NewRay([3]float64{-10, -10, 0}, [3]float64{inv, inv, 0})
	contribs := p.Trace(ray, nil)

	// The main diagonal crosses voxel corners; each tie advances both axes
	// at once, visiting exactly the diagonal voxels.
	require.Len(t, contribs, 4)
	total := 0.0
	for i, c := range contribs {
		x, y, _ := p.grid.Coords(c.Voxel)
		assert.Equal(t, i, x)
		assert.Equal(t, i, y)
		assert.InDelta(t, math.Sqrt2, c.Weight, 1e-12)
		total += c.Weight
	}
	assert.InDelta(t, 4*math.Sqrt2, total, 1e-12)
}

func TestTraverseMissReturnsEmpty(t *testing.T) {
	p := testProjector(t, singleViewGeom(t))

	ray := geometry.NewRay([3]float64{-10, 10, 0}, [3]float64{1, 0, 0})
	assert.Empty(t, p.Trace(ray, nil))

	// Degenerate zero-direction ray.
	assert.Empty(t, p.Trace(geometry.Ray{Origin: [3]float64{0, 0, 0}}, nil))
}

func TestTraverseZeroAxisBoundary(t *testing.T) {
	p := testProjector(t, singleViewGeom(t))

	// The lower bound is inside, the upper bound is outside.
	onLo := geometry.NewRay([3]float64{-10, -2, 0}, [3]float64{1, 0, 0})
	contribs := p.Trace(onLo, nil)
	require.Len(t, contribs, 4)
	for _, c := range contribs {
		_, y, _ := p.grid.Coords(c.Voxel)
		assert.Equal(t, 0, y)
	}

	onHi := geometry.NewRay([3]float64{-10, 2, 0}, [3]float64{1, 0, 0})
	assert.Empty(t, p.Trace(onHi, nil))
}

func TestForwardRayUniformVolume(t *testing.T) {
	p := testProjector(t, singleViewGeom(t))
	vol := volume.New(p.Grid(), 1)

	ray := geometry.NewRay([3]float64{-10, 0.25, 0}, [3]float64{1, 0, 0})
	assert.InDelta(t, 4.0, p.ForwardRay(vol, ray), 1e-12)

	miss := geometry.NewRay([3]float64{-10, 10, 0}, [3]float64{1, 0, 0})
	assert.Zero(t, p.ForwardRay(vol, miss))
}

func TestBackProjectRayIsAdjointOfForward(t *testing.T) {
	p := testProjector(t, singleViewGeom(t))
	ray := geometry.NewRay([3]float64{-10, 0.6, 0}, [3]float64{0.8, 0.6, 0})

	vol := volume.New(p.Grid(), 0)
	for i := range vol.Data {
		vol.Data[i] = float64(i%5) + 0.5
	}

	const y = 1.7
	accum := make([]float64, p.Grid().Len())
	p.BackProjectRay(ray, y, accum)

	// <Ax, y> == <x, A'y> over the single-ray operator.
	lhs := p.ForwardRay(vol, ray) * y
	rhs := 0.0
	for i, a := range accum {
		rhs += a * vol.Data[i]
	}
	assert.InDelta(t, lhs, rhs, 1e-12)
}

func multiViewProjector(t *testing.T) *Projector {
	t.Helper()
	geom, err := geometry.NewParallelBeam([]float64{0.3, 1.1, 2.0, 2.6}, 6, 0.7)
	require.NoError(t, err)
	return testProjector(t, geom)
}

func TestSystemMatrixMatchesOperator(t *testing.T) {
	p := multiViewProjector(t)
	a := SystemMatrix(p)

	rays, cols := a.Dims()
	assert.Equal(t, p.RayCount(), rays)
	assert.Equal(t, p.Grid().Len(), cols)

	buf := make([]Contribution, 0, p.MaxContributions())
	for r := 0; r < rays; r++ {
		buf = p.Contributions(r, buf[:0])
		sum := 0.0
		for _, c := range buf {
			assert.Equal(t, c.Weight, a.At(r, c.Voxel))
			sum += c.Weight
		}
		assert.InDelta(t, sum, mat.Sum(a.RowView(r)), 1e-12)
	}
}

func TestOperatorAdjointness(t *testing.T) {
	p := multiViewProjector(t)
	n := p.Grid().Len()
	rays := p.RayCount()

	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i%7)*0.3 + 0.1
	}
	y := make([]float64, rays)
	for r := range y {
		y[r] = float64(r%5) - 2
	}

	// <Ax, y> via forward projection.
	vol, err := volume.NewFromData(p.Grid(), x)
	require.NoError(t, err)
	lhs := 0.0
	for r := 0; r < rays; r++ {
		lhs += p.ForwardRay(vol, p.RayAt(r)) * y[r]
	}

	// <x, A'y> via backprojection through the identical weights.
	accum := make([]float64, n)
	for r := 0; r < rays; r++ {
		p.BackProjectRay(p.RayAt(r), y[r], accum)
	}
	rhs := 0.0
	for i := range accum {
		rhs += accum[i] * x[i]
	}

	assert.InDelta(t, lhs, rhs, 1e-10)
}

func TestForwardViewMatchesPerRay(t *testing.T) {
	p := multiViewProjector(t)
	vol := volume.New(p.Grid(), 0)
	for i := range vol.Data {
		vol.Data[i] = float64(i) * 0.1
	}

	view := p.ForwardView(vol, 2, nil)
	require.Len(t, view, p.RaysPerView())
	for det, got := range view {
		ray := p.RayAt(2*p.RaysPerView() + det)
		assert.InDelta(t, p.ForwardRay(vol, ray), got, 1e-12)
	}
}

func TestContributionCountBounded(t *testing.T) {
	geom, err := geometry.NewFanBeam([]float64{0, 0.7, 1.9, 3.1, 4.4}, 9, 0.5, 20, 40)
	require.NoError(t, err)
	p := testProjector(t, geom)

	buf := make([]Contribution, 0, p.MaxContributions())
	for r := 0; r < p.RayCount(); r++ {
		buf = p.Contributions(r, buf[:0])
		assert.LessOrEqual(t, len(buf), p.MaxContributions())
		for _, c := range buf {
			assert.GreaterOrEqual(t, c.Weight, 0.0)
			assert.Less(t, c.Voxel, p.Grid().Len())
		}
	}
}

func TestCacheMatchesProjector(t *testing.T) {
	p := multiViewProjector(t)
	cache, err := NewCache(context.Background(), p, 3)
	require.NoError(t, err)

	assert.True(t, cache.Grid().Equal(p.Grid()))
	assert.LessOrEqual(t, cache.MaxContributions(), p.MaxContributions())

	buf := make([]Contribution, 0, p.MaxContributions())
	for r := 0; r < p.RayCount(); r++ {
		buf = p.Contributions(r, buf[:0])
		cached := cache.Contributions(r, nil)
		if len(buf) == 0 {
			assert.Empty(t, cached)
			continue
		}
		require.Equal(t, len(buf), len(cached), "ray %d", r)
		for i := range buf {
			assert.Equal(t, buf[i].Voxel, cached[i].Voxel)
			assert.InDelta(t, buf[i].Weight, cached[i].Weight, 0)
		}
	}
}
