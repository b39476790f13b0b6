package recon

import (
	"fmt"

	"rbyrct/pkg/geometry"
)

// ProjectionSet holds the measured intensities, one flat row-major
// (rows × channels) slice per view, matching the order of the geometry's
// angles. Values are physical attenuation measurements and expected
// non-negative.
type ProjectionSet [][]float64

// ShapeMismatchError reports a projection set that disagrees with the
// geometry's declared shape. View is -1 when the view count itself is wrong,
// otherwise the first offending view index.
type ShapeMismatchError struct {
	View      int
	Got, Want int
}

func (e *ShapeMismatchError) Error() string {
	if e.View < 0 {
		return fmt.Sprintf("projection set has %d views, geometry declares %d", e.Got, e.Want)
	}
	return fmt.Sprintf("projection view %d has %d samples, geometry declares %d per view", e.View, e.Got, e.Want)
}

// Validate checks the set against a geometry. It runs before any iteration;
// a set that validates never fails shape checks mid-run.
func (ps ProjectionSet) Validate(geom geometry.Geometry) error {
	if len(ps) != geom.ViewCount() {
		return &ShapeMismatchError{View: -1, Got: len(ps), Want: geom.ViewCount()}
	}
	want := geometry.RaysPerView(geom)
	for v, view := range ps {
		if len(view) != want {
			return &ShapeMismatchError{View: v, Got: len(view), Want: want}
		}
	}
	return nil
}

// RayCount returns the total number of measurements.
func (ps ProjectionSet) RayCount() int {
	n := 0
	for _, v := range ps {
		n += len(v)
	}
	return n
}
