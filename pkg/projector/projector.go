// Package projector implements the forward and adjoint projection operator
// linking a voxel grid to ray measurements. For every ray it computes the
// ordered (voxel, intersection length) pairs via grid traversal; forward
// projection sums weight*voxel along the path, backprojection scatters a
// per-ray value back through the identical weights. The two directions are
// exact transposes by construction, which the iterative method's convergence
// relies on.
package projector

import (
	"rbyrct/pkg/geometry"
	"rbyrct/pkg/volume"
)

// Operator is the capability the reconstruction engine needs: contribution
// sets addressable by global ray index. It is implemented by Projector
// (on-the-fly traversal) and Cache (precomputed weights).
type Operator interface {
	Grid() volume.Grid
	Geometry() geometry.Geometry

	// Contributions returns the ray's contribution set, appending into buf
	// when traversal is performed on the fly. The returned slice is only
	// valid until the next call with the same buf.
	Contributions(ray int, buf []Contribution) []Contribution

	// MaxContributions bounds the size of any single contribution set, for
	// scratch buffer sizing.
	MaxContributions() int
}

// Projector binds a validated geometry to a grid and traces rays on demand.
// It is stateless after construction and safe for concurrent use; callers
// provide their own contribution buffers.
type Projector struct {
	geom        geometry.Geometry
	grid        volume.Grid
	raysPerView int
}

// New validates the geometry and returns a projector for the grid.
func New(geom geometry.Geometry, grid volume.Grid) (*Projector, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	return &Projector{
		geom:        geom,
		grid:        grid,
		raysPerView: geometry.RaysPerView(geom),
	}, nil
}

// Grid implements Operator.
func (p *Projector) Grid() volume.Grid { return p.grid }

// Geometry implements Operator.
func (p *Projector) Geometry() geometry.Geometry { return p.geom }

// RayCount returns the total number of rays across all views.
func (p *Projector) RayCount() int { return p.geom.ViewCount() * p.raysPerView }

// RaysPerView returns the number of detector elements per view.
func (p *Projector) RaysPerView() int { return p.raysPerView }

// RayAt maps a global ray index to its geometric ray.
func (p *Projector) RayAt(ray int) geometry.Ray {
	return p.geom.RayFor(ray/p.raysPerView, ray%p.raysPerView)
}

// MaxContributions implements Operator.
func (p *Projector) MaxContributions() int {
	return p.grid.Nx + p.grid.Ny + p.grid.Nz + 3
}

// Trace computes the contribution set for an arbitrary ray, appending into
// buf (pass buf[:0] to reuse an allocation). The set is empty when the ray
// misses the grid; that is a valid result, not an error.
func (p *Projector) Trace(ray geometry.Ray, buf []Contribution) []Contribution {
	return p.traverse(ray, buf)
}

// Contributions implements Operator.
func (p *Projector) Contributions(ray int, buf []Contribution) []Contribution {
	return p.traverse(p.RayAt(ray), buf)
}

// ForwardRay simulates the measurement for one ray: the weighted sum of the
// voxels it crosses. A ray that misses the grid contributes zero.
func (p *Projector) ForwardRay(vol *volume.Volume, ray geometry.Ray) float64 {
	buf := make([]Contribution, 0, p.MaxContributions())
	return DotContributions(p.Trace(ray, buf), vol.Data)
}

// BackProjectRay scatters value through the ray's weights into accum, the
// adjoint of ForwardRay over the same weight set. accum must have one entry
// per voxel.
func (p *Projector) BackProjectRay(ray geometry.Ray, value float64, accum []float64) {
	buf := make([]Contribution, 0, p.MaxContributions())
	for _, c := range p.Trace(ray, buf) {
		accum[c.Voxel] += c.Weight * value
	}
}

// ForwardView simulates one full projection image. out must have one entry
// per detector element (channels*rows) or be nil, in which case it is
// allocated.
func (p *Projector) ForwardView(vol *volume.Volume, view int, out []float64) []float64 {
	if out == nil {
		out = make([]float64, p.raysPerView)
	}
	buf := make([]Contribution, 0, p.MaxContributions())
	for det := 0; det < p.raysPerView; det++ {
		buf = p.Trace(p.geom.RayFor(view, det), buf[:0])
		out[det] = DotContributions(buf, vol.Data)
	}
	return out
}

// DotContributions evaluates a contribution set against a voxel buffer.
func DotContributions(contribs []Contribution, data []float64) float64 {
	sum := 0.0
	for _, c := range contribs {
		sum += c.Weight * data[c.Voxel]
	}
	return sum
}
