// Package geometry describes CT acquisition geometries and produces the rays
// along which attenuation is measured. Two beam variants are provided:
// parallel-beam (ParallelBeam) and divergent fan/cone-beam (ConeBeam). Both
// satisfy the Geometry interface consumed by the projection operator, keeping
// the hot ray-generation path a flat interface dispatch rather than a type
// hierarchy.
//
// Conventions: the rotation axis is the world z-axis, view angles are in
// radians measured from the +x axis, and detector channels sweep the in-plane
// direction while detector rows sweep z. A 2D (single slice) setup is simply
// a geometry with one detector row.
package geometry

import (
	"fmt"
	"math"
)

// Ray is a parametrized line through the reconstruction volume. Points on the
// ray are Origin + t*Dir with t in world units; Dir is always unit length, so
// parameter deltas are physical lengths. The ray is treated as a full line:
// Origin is a point on it, not a hard start.
type Ray struct {
	Origin [3]float64
	Dir    [3]float64
}

// NewRay builds a ray with a normalized direction. A zero direction yields a
// degenerate ray that intersects nothing.
func NewRay(origin, dir [3]float64) Ray {
	n := math.Sqrt(dir[0]*dir[0] + dir[1]*dir[1] + dir[2]*dir[2])
	if n > 0 {
		dir[0] /= n
		dir[1] /= n
		dir[2] /= n
	}
	return Ray{Origin: origin, Dir: dir}
}

// InvalidGeometryError reports a malformed acquisition or grid configuration.
// It is returned at construction time; a geometry that validates never fails
// during iteration.
type InvalidGeometryError struct {
	Field  string
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry: %s %s", e.Field, e.Reason)
}

// Geometry is the capability shared by all beam variants.
type Geometry interface {
	// RayFor returns the ray for one detector element of one view. The
	// detector index is flattened row-major: det = row*channels + channel.
	RayFor(view, det int) Ray

	// ViewCount is the number of acquisition angles.
	ViewCount() int

	// DetectorShape returns the detector layout: in-plane channel count and
	// axial row count. Rays per view = channels*rows.
	DetectorShape() (channels, rows int)

	// Validate checks the configuration, returning *InvalidGeometryError on
	// the first offending field.
	Validate() error
}

// RaysPerView returns the number of detector elements per view of g.
func RaysPerView(g Geometry) int {
	c, r := g.DetectorShape()
	return c * r
}

// TotalRays returns the number of rays across all views of g.
func TotalRays(g Geometry) int {
	return g.ViewCount() * RaysPerView(g)
}

// ParallelBeam is a parallel-beam acquisition: for each view all rays share
// one direction and are offset across the detector. With DetectorRows > 1 it
// describes a stacked 3D parallel geometry.
type ParallelBeam struct {
	// Angles are the view angles in radians, one per projection image.
	Angles []float64

	// DetectorChannels and DetectorPitch define the in-plane detector line:
	// channel count and center-to-center spacing in world units.
	DetectorChannels int
	DetectorPitch    float64

	// DetectorRows and RowPitch stack detector lines along z. Rows must be
	// at least 1; RowPitch is ignored when Rows == 1 but must still be
	// positive.
	DetectorRows int
	RowPitch     float64
}

// NewParallelBeam returns a validated 2D parallel-beam geometry with a single
// detector row.
func NewParallelBeam(angles []float64, channels int, pitch float64) (*ParallelBeam, error) {
	g := &ParallelBeam{
		Angles:           angles,
		DetectorChannels: channels,
		DetectorPitch:    pitch,
		DetectorRows:     1,
		RowPitch:         pitch,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate implements Geometry.
func (g *ParallelBeam) Validate() error {
	if len(g.Angles) == 0 {
		return &InvalidGeometryError{Field: "angles", Reason: "must contain at least one view"}
	}
	for i, a := range g.Angles {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return &InvalidGeometryError{Field: "angles", Reason: fmt.Sprintf("view %d is not finite", i)}
		}
	}
	if g.DetectorChannels < 1 {
		return &InvalidGeometryError{Field: "detector channels", Reason: "must be at least 1"}
	}
	if g.DetectorPitch <= 0 {
		return &InvalidGeometryError{Field: "detector pitch", Reason: "must be positive"}
	}
	if g.DetectorRows < 1 {
		return &InvalidGeometryError{Field: "detector rows", Reason: "must be at least 1"}
	}
	if g.RowPitch <= 0 {
		return &InvalidGeometryError{Field: "row pitch", Reason: "must be positive"}
	}
	return nil
}

// ViewCount implements Geometry.
func (g *ParallelBeam) ViewCount() int { return len(g.Angles) }

// DetectorShape implements Geometry.
func (g *ParallelBeam) DetectorShape() (int, int) { return g.DetectorChannels, g.DetectorRows }

// RayFor implements Geometry. The ray direction for view angle theta is
// (cos theta, sin theta, 0); detector offsets are centered so channel
// (channels-1)/2 passes through the rotation axis.
func (g *ParallelBeam) RayFor(view, det int) Ray {
	theta := g.Angles[view]
	sin, cos := math.Sincos(theta)

	ch := det % g.DetectorChannels
	row := det / g.DetectorChannels

	s := (float64(ch) - float64(g.DetectorChannels-1)/2) * g.DetectorPitch
	z := (float64(row) - float64(g.DetectorRows-1)/2) * g.RowPitch

	// Detector axis u is perpendicular to the ray direction, in plane.
	origin := [3]float64{-s * sin, s * cos, z}
	return Ray{Origin: origin, Dir: [3]float64{cos, sin, 0}}
}

// ConeBeam is a divergent-beam acquisition: a point source rotating at
// SourceAxisDistance from the rotation axis, with a flat detector at
// SourceDetectorDistance from the source. With DetectorRows == 1 this is a
// fan-beam geometry; more rows make it cone-beam.
type ConeBeam struct {
	Angles []float64

	DetectorChannels int
	DetectorPitch    float64
	DetectorRows     int
	RowPitch         float64

	// SourceAxisDistance is the source-to-rotation-axis distance;
	// SourceDetectorDistance is source-to-detector. Both in world units,
	// with SourceDetectorDistance > SourceAxisDistance so the volume sits
	// between source and detector.
	SourceAxisDistance     float64
	SourceDetectorDistance float64
}

// NewFanBeam returns a validated single-row divergent geometry.
func NewFanBeam(angles []float64, channels int, pitch, sad, sdd float64) (*ConeBeam, error) {
	g := &ConeBeam{
		Angles:                 angles,
		DetectorChannels:       channels,
		DetectorPitch:          pitch,
		DetectorRows:           1,
		RowPitch:               pitch,
		SourceAxisDistance:     sad,
		SourceDetectorDistance: sdd,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate implements Geometry.
func (g *ConeBeam) Validate() error {
	if len(g.Angles) == 0 {
		return &InvalidGeometryError{Field: "angles", Reason: "must contain at least one view"}
	}
	for i, a := range g.Angles {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return &InvalidGeometryError{Field: "angles", Reason: fmt.Sprintf("view %d is not finite", i)}
		}
	}
	if g.DetectorChannels < 1 {
		return &InvalidGeometryError{Field: "detector channels", Reason: "must be at least 1"}
	}
	if g.DetectorPitch <= 0 {
		return &InvalidGeometryError{Field: "detector pitch", Reason: "must be positive"}
	}
	if g.DetectorRows < 1 {
		return &InvalidGeometryError{Field: "detector rows", Reason: "must be at least 1"}
	}
	if g.RowPitch <= 0 {
		return &InvalidGeometryError{Field: "row pitch", Reason: "must be positive"}
	}
	if g.SourceAxisDistance <= 0 {
		return &InvalidGeometryError{Field: "source-axis distance", Reason: "must be positive"}
	}
	if g.SourceDetectorDistance <= 0 {
		return &InvalidGeometryError{Field: "source-detector distance", Reason: "must be positive"}
	}
	if g.SourceDetectorDistance <= g.SourceAxisDistance {
		return &InvalidGeometryError{Field: "source-detector distance", Reason: "must exceed source-axis distance"}
	}
	return nil
}

// ViewCount implements Geometry.
func (g *ConeBeam) ViewCount() int { return len(g.Angles) }

// DetectorShape implements Geometry.
func (g *ConeBeam) DetectorShape() (int, int) { return g.DetectorChannels, g.DetectorRows }

// RayFor implements Geometry. The source for view angle theta sits at
// SAD*(cos theta, sin theta, 0); the detector plane is on the far side of the
// axis, centered on the source-axis line.
func (g *ConeBeam) RayFor(view, det int) Ray {
	theta := g.Angles[view]
	sin, cos := math.Sincos(theta)

	ch := det % g.DetectorChannels
	row := det / g.DetectorChannels

	s := (float64(ch) - float64(g.DetectorChannels-1)/2) * g.DetectorPitch
	z := (float64(row) - float64(g.DetectorRows-1)/2) * g.RowPitch

	src := [3]float64{g.SourceAxisDistance * cos, g.SourceAxisDistance * sin, 0}

	// Detector center is SDD from the source along -source direction;
	// u sweeps channels perpendicular to that line, rows sweep z.
	dc := g.SourceDetectorDistance - g.SourceAxisDistance
	elem := [3]float64{
		-dc*cos - s*sin,
		-dc*sin + s*cos,
		z,
	}

	return NewRay(src, [3]float64{elem[0] - src[0], elem[1] - src[1], elem[2] - src[2]})
}
