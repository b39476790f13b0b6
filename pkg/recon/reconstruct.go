package recon

import (
	"context"

	"rbyrct/pkg/geometry"
	"rbyrct/pkg/metrics"
	"rbyrct/pkg/volume"
)

// Result is the outcome of a reconstruction run.
type Result struct {
	// Volume is the final estimate: the converged volume, the best-effort
	// volume at the iteration cap, or the preserved pre-divergence volume.
	Volume *volume.Volume

	// State is the terminal state that ended the run.
	State State

	// Iterations is the number of completed passes.
	Iterations int

	// History holds one metrics record per completed pass.
	History []metrics.Record
}

// Reconstruct is the one-shot entry point: it builds an engine and runs it to
// a terminal state.
//
// Errors: configuration and shape problems (*geometry.InvalidGeometryError,
// *ShapeMismatchError, *InvalidConfigError) return a nil Result before any
// iteration. Numerical divergence returns a *DivergenceError together with a
// non-nil Result whose Volume is the last valid pre-divergence state.
// Hitting the iteration cap is not an error; check Result.State to tell
// Converged from MaxIterationsReached.
func Reconstruct(ctx context.Context, geom geometry.Geometry, grid volume.Grid, meas ProjectionSet, cfg Config) (*Result, error) {
	e, err := NewEngine(ctx, geom, grid, meas, cfg)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}
