package projector

import "gonum.org/v1/gonum/mat"

// SystemMatrix materializes the full projection operator as a dense matrix A
// with one row per ray and one column per voxel, so that A·x is the forward
// projection of volume x. Row i corresponds to global ray index i (view-major,
// detector row-major within a view).
//
// This is only practical for small problems: the matrix holds rays×voxels
// float64s. It exists for adjointness verification, offline analysis, and
// interoperability with system-matrix based pipelines; the engine itself works
// matrix-free.
func SystemMatrix(p *Projector) *mat.Dense {
	rays := p.RayCount()
	a := mat.NewDense(rays, p.grid.Len(), nil)

	buf := make([]Contribution, 0, p.MaxContributions())
	for r := 0; r < rays; r++ {
		buf = p.Contributions(r, buf[:0])
		for _, c := range buf {
			a.Set(r, c.Voxel, c.Weight)
		}
	}
	return a
}
