package projector

import (
	"math"

	"rbyrct/pkg/geometry"
)

// Contribution is one (voxel, intersection length) pair of a ray's path
// through the grid. Weights are world-unit lengths and never negative.
type Contribution struct {
	Voxel  int
	Weight float64
}

// traverse walks a ray through the grid with a Siddon-style parametric
// march (Amanatides & Woo stepping) and appends one Contribution per voxel
// crossed to out. It returns out, which may be empty when the ray misses the
// grid entirely.
//
// Robustness rules, fixed for reproducibility:
//   - Direction components that are exactly zero never step their axis; the
//     slab test alone decides whether the ray is inside that axis' extent.
//     A ray lying exactly on the outer boundary of a zero-direction axis is
//     treated as outside.
//   - A crossing exactly on a voxel boundary is attributed to the voxel on
//     the side of travel: the entry index is the floor of the entry point
//     and boundary-coincident segments have zero length and are dropped.
//   - Ray.Dir must be unit length (geometry constructors guarantee this),
//     so parameter deltas are physical intersection lengths.
func (p *Projector) traverse(ray geometry.Ray, out []Contribution) []Contribution {
	lo, hi := p.grid.Bounds()
	o, d := ray.Origin, ray.Dir

	// Clip the line against the grid's bounding box.
	tMin := math.Inf(-1)
	tMax := math.Inf(1)
	for a := 0; a < 3; a++ {
		if d[a] == 0 {
			if o[a] < lo[a] || o[a] >= hi[a] {
				return out
			}
			continue
		}
		t1 := (lo[a] - o[a]) / d[a]
		t2 := (hi[a] - o[a]) / d[a]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tMax {
			tMax = t2
		}
	}
	if tMin >= tMax || math.IsInf(tMin, 0) || math.IsInf(tMax, 0) {
		return out
	}

	dims := [3]int{p.grid.Nx, p.grid.Ny, p.grid.Nz}

	// Entry voxel, clamped against the box in case the entry point rounds
	// a hair outside.
	var idx [3]int
	var step [3]int
	var tNextCross, tDelta [3]float64
	for a := 0; a < 3; a++ {
		pa := o[a] + tMin*d[a]
		i := int(math.Floor((pa - lo[a]) / p.grid.Spacing[a]))
		if i < 0 {
			i = 0
		}
		if i >= dims[a] {
			i = dims[a] - 1
		}
		idx[a] = i

		switch {
		case d[a] > 0:
			step[a] = 1
			tDelta[a] = p.grid.Spacing[a] / d[a]
			tNextCross[a] = (lo[a] + float64(i+1)*p.grid.Spacing[a] - o[a]) / d[a]
		case d[a] < 0:
			step[a] = -1
			tDelta[a] = -p.grid.Spacing[a] / d[a]
			tNextCross[a] = (lo[a] + float64(i)*p.grid.Spacing[a] - o[a]) / d[a]
		default:
			step[a] = 0
			tDelta[a] = math.Inf(1)
			tNextCross[a] = math.Inf(1)
		}
	}

	t := tMin
	// A ray can cross at most Nx+Ny+Nz voxel boundaries inside the box;
	// the cap guards against pathological float cycling.
	for n := 0; n < dims[0]+dims[1]+dims[2]+3; n++ {
		tNext := tNextCross[0]
		if tNextCross[1] < tNext {
			tNext = tNextCross[1]
		}
		if tNextCross[2] < tNext {
			tNext = tNextCross[2]
		}

		segEnd := tNext
		if tMax < segEnd {
			segEnd = tMax
		}
		if w := segEnd - t; w > 0 {
			out = append(out, Contribution{
				Voxel:  (idx[2]*dims[1]+idx[1])*dims[0] + idx[0],
				Weight: w,
			})
		}
		if segEnd >= tMax {
			break
		}

		// Advance every axis crossing at tNext; ties happen at voxel
		// corners and must move both axes at once.
		exited := false
		for a := 0; a < 3; a++ {
			if tNextCross[a] == tNext {
				idx[a] += step[a]
				tNextCross[a] += tDelta[a]
				if idx[a] < 0 || idx[a] >= dims[a] {
					exited = true
				}
			}
		}
		if exited {
			break
		}
		t = segEnd
	}
	return out
}
