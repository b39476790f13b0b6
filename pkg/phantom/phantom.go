// Package phantom generates synthetic test objects and simulated measurement
// data for validating reconstructions against a known ground truth.
package phantom

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"rbyrct/pkg/geometry"
	"rbyrct/pkg/projector"
	"rbyrct/pkg/recon"
	"rbyrct/pkg/volume"
)

// Box returns a volume that is value inside the centered axis-aligned box of
// the given fractional half-extents (0..0.5 of the grid per axis) and zero
// outside.
func Box(g volume.Grid, halfFrac [3]float64, value float64) *volume.Volume {
	v := volume.New(g, 0)
	cx := float64(g.Nx-1) / 2
	cy := float64(g.Ny-1) / 2
	cz := float64(g.Nz-1) / 2
	hx := halfFrac[0] * float64(g.Nx)
	hy := halfFrac[1] * float64(g.Ny)
	hz := halfFrac[2] * float64(g.Nz)
	if g.Nz == 1 {
		hz = 0.5
	}
	for z := 0; z < g.Nz; z++ {
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				if math.Abs(float64(x)-cx) <= hx &&
					math.Abs(float64(y)-cy) <= hy &&
					math.Abs(float64(z)-cz) <= hz {
					v.Set(x, y, z, value)
				}
			}
		}
	}
	return v
}

// Disk returns a volume that is value inside the centered cylinder (a disk on
// 2D grids) of the given fractional radius and zero outside. The cylinder
// axis is z, matching the rotation axis of the acquisition.
func Disk(g volume.Grid, radiusFrac, value float64) *volume.Volume {
	v := volume.New(g, 0)
	cx := float64(g.Nx-1) / 2
	cy := float64(g.Ny-1) / 2
	r := radiusFrac * float64(min(g.Nx, g.Ny)) / 2
	for z := 0; z < g.Nz; z++ {
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				dx := float64(x) - cx
				dy := float64(y) - cy
				if dx*dx+dy*dy <= r*r {
					v.Set(x, y, z, value)
				}
			}
		}
	}
	return v
}

// Simulate forward-projects a ground-truth volume through the geometry,
// producing the noiseless measurement set a reconstruction can be run
// against.
func Simulate(geom geometry.Geometry, truth *volume.Volume) (recon.ProjectionSet, error) {
	p, err := projector.New(geom, truth.Grid)
	if err != nil {
		return nil, err
	}
	meas := make(recon.ProjectionSet, geom.ViewCount())
	for view := range meas {
		meas[view] = p.ForwardView(truth, view, nil)
	}
	return meas, nil
}

// AddNoise perturbs measurements in place with Gaussian noise whose standard
// deviation is sigma/sqrt(doseFactor), so higher simulated dose means less
// noise. Perturbed values are floored at zero. The seed makes runs
// repeatable.
func AddNoise(meas recon.ProjectionSet, sigma, doseFactor float64, seed uint64) {
	if sigma <= 0 || doseFactor <= 0 {
		return
	}
	dist := distuv.Normal{
		Mu:    0,
		Sigma: sigma / math.Sqrt(doseFactor),
		Src:   rand.NewSource(seed),
	}
	for _, view := range meas {
		for i := range view {
			view[i] += dist.Rand()
			if view[i] < 0 {
				view[i] = 0
			}
		}
	}
}
