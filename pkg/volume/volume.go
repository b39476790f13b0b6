// Package volume implements the discretized reconstruction domain: a uniform
// voxel grid with physical spacing and origin, and the dense buffer of voxel
// values mutated by the reconstruction engine.
package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"rbyrct/pkg/geometry"
)

// Grid describes a voxel lattice. Nx/Ny/Nz are voxel counts per axis (a 2D
// slice is a grid with Nz == 1), Spacing is the physical voxel size per axis,
// and Origin is the world-space position of the CENTER of voxel (0,0,0).
// Voxel (i,j,k) therefore spans Origin + ((i,j,k)-0.5)*Spacing to
// Origin + ((i,j,k)+0.5)*Spacing; there is no rounding ambiguity in the
// transforms below.
type Grid struct {
	Nx, Ny, Nz int
	Spacing    [3]float64
	Origin     [3]float64
}

// NewGrid validates and returns a grid. Counts must be at least 1 and spacing
// strictly positive on every axis.
func NewGrid(nx, ny, nz int, spacing, origin [3]float64) (Grid, error) {
	g := Grid{Nx: nx, Ny: ny, Nz: nz, Spacing: spacing, Origin: origin}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

// Validate checks the lattice parameters, returning
// *geometry.InvalidGeometryError on the first offending field.
func (g Grid) Validate() error {
	if g.Nx < 1 || g.Ny < 1 || g.Nz < 1 {
		return &geometry.InvalidGeometryError{Field: "grid shape", Reason: "all axes must have at least one voxel"}
	}
	for a := 0; a < 3; a++ {
		if !(g.Spacing[a] > 0) {
			return &geometry.InvalidGeometryError{Field: "grid spacing", Reason: fmt.Sprintf("axis %d must be positive", a)}
		}
		if math.IsInf(g.Spacing[a], 0) || math.IsNaN(g.Origin[a]) || math.IsInf(g.Origin[a], 0) {
			return &geometry.InvalidGeometryError{Field: "grid", Reason: fmt.Sprintf("axis %d has a non-finite parameter", a)}
		}
	}
	return nil
}

// CenteredGrid is a convenience for a grid whose volume is centered on the
// world origin, the usual setup for rotational acquisition.
func CenteredGrid(nx, ny, nz int, spacing [3]float64) (Grid, error) {
	origin := [3]float64{
		-spacing[0] * float64(nx-1) / 2,
		-spacing[1] * float64(ny-1) / 2,
		-spacing[2] * float64(nz-1) / 2,
	}
	return NewGrid(nx, ny, nz, spacing, origin)
}

// Len returns the total voxel count.
func (g Grid) Len() int { return g.Nx * g.Ny * g.Nz }

// Shape returns the per-axis voxel counts.
func (g Grid) Shape() (nx, ny, nz int) { return g.Nx, g.Ny, g.Nz }

// Dim returns the count along one axis (0=x, 1=y, 2=z).
func (g Grid) Dim(axis int) int {
	switch axis {
	case 0:
		return g.Nx
	case 1:
		return g.Ny
	default:
		return g.Nz
	}
}

// Flat converts a multi-index to the row-major flat index (x fastest).
func (g Grid) Flat(x, y, z int) int {
	if x < 0 || x >= g.Nx || y < 0 || y >= g.Ny || z < 0 || z >= g.Nz {
		panic(fmt.Sprintf("volume: index (%d,%d,%d) out of range for %dx%dx%d grid", x, y, z, g.Nx, g.Ny, g.Nz))
	}
	return (z*g.Ny+y)*g.Nx + x
}

// Coords converts a flat index back to a multi-index.
func (g Grid) Coords(flat int) (x, y, z int) {
	if flat < 0 || flat >= g.Len() {
		panic(fmt.Sprintf("volume: flat index %d out of range for %d voxels", flat, g.Len()))
	}
	x = flat % g.Nx
	y = (flat / g.Nx) % g.Ny
	z = flat / (g.Nx * g.Ny)
	return x, y, z
}

// WorldToVoxel maps a world point to continuous voxel coordinates. Voxel
// centers map to integer coordinates; the outer boundary of the grid maps to
// -0.5 and Dim-0.5.
func (g Grid) WorldToVoxel(p [3]float64) [3]float64 {
	return [3]float64{
		(p[0] - g.Origin[0]) / g.Spacing[0],
		(p[1] - g.Origin[1]) / g.Spacing[1],
		(p[2] - g.Origin[2]) / g.Spacing[2],
	}
}

// VoxelToWorld maps continuous voxel coordinates to a world point. It is the
// exact inverse of WorldToVoxel.
func (g Grid) VoxelToWorld(c [3]float64) [3]float64 {
	return [3]float64{
		g.Origin[0] + c[0]*g.Spacing[0],
		g.Origin[1] + c[1]*g.Spacing[1],
		g.Origin[2] + c[2]*g.Spacing[2],
	}
}

// Bounds returns the outer world-space bounding box of the grid: lo is the
// lower corner of voxel (0,0,0), hi the upper corner of the last voxel.
func (g Grid) Bounds() (lo, hi [3]float64) {
	for a := 0; a < 3; a++ {
		lo[a] = g.Origin[a] - 0.5*g.Spacing[a]
		hi[a] = lo[a] + float64(g.Dim(a))*g.Spacing[a]
	}
	return lo, hi
}

// Equal reports whether two grids describe the same lattice.
func (g Grid) Equal(o Grid) bool {
	return g.Nx == o.Nx && g.Ny == o.Ny && g.Nz == o.Nz &&
		g.Spacing == o.Spacing && g.Origin == o.Origin
}

// Volume is a dense scalar field over a Grid, stored row-major (x fastest).
// It has a single owner: the reconstruction run mutates it in place and no
// internal locking is provided.
type Volume struct {
	Grid Grid
	Data []float64
}

// New allocates a volume filled with a uniform value (the usual MART seed is
// all ones).
func New(g Grid, fill float64) *Volume {
	v := &Volume{Grid: g, Data: make([]float64, g.Len())}
	if fill != 0 {
		for i := range v.Data {
			v.Data[i] = fill
		}
	}
	return v
}

// NewFromData wraps an existing buffer, which must match the grid size.
func NewFromData(g Grid, data []float64) (*Volume, error) {
	if len(data) != g.Len() {
		return nil, &geometry.InvalidGeometryError{
			Field:  "volume data",
			Reason: fmt.Sprintf("length %d does not match %d-voxel grid", len(data), g.Len()),
		}
	}
	return &Volume{Grid: g, Data: data}, nil
}

// At returns the value at a multi-index, panicking when out of range.
func (v *Volume) At(x, y, z int) float64 { return v.Data[v.Grid.Flat(x, y, z)] }

// Set writes the value at a multi-index, panicking when out of range.
func (v *Volume) Set(x, y, z int, val float64) { v.Data[v.Grid.Flat(x, y, z)] = val }

// AtFlat returns the value at a flat index.
func (v *Volume) AtFlat(i int) float64 { return v.Data[i] }

// SetFlat writes the value at a flat index.
func (v *Volume) SetFlat(i int, val float64) { v.Data[i] = val }

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return &Volume{Grid: v.Grid, Data: data}
}

// CopyFrom overwrites this volume's values with those of src, which must
// share the same grid.
func (v *Volume) CopyFrom(src *Volume) {
	if !v.Grid.Equal(src.Grid) {
		panic("volume: CopyFrom across different grids")
	}
	copy(v.Data, src.Data)
}

// ClampNonNegative floors every voxel at zero. Negative attenuation is
// physically invalid, so the engine calls this after every update.
func (v *Volume) ClampNonNegative() {
	for i, x := range v.Data {
		if x < 0 {
			v.Data[i] = 0
		}
	}
}

// HasNonFinite reports whether any voxel is NaN or infinite.
func (v *Volume) HasNonFinite() bool {
	for _, x := range v.Data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}

// MinMax returns the smallest and largest voxel values.
func (v *Volume) MinMax() (min, max float64) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	return floats.Min(v.Data), floats.Max(v.Data)
}
