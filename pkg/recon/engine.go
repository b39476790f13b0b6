// Package recon implements the iterative MART/SART reconstruction engine:
// repeated forward-project / compare / backproject / update cycles over a
// voxel volume until a stopping rule fires. The engine is an explicit state
// machine, moving from Initialized through Iterating to one of Converged,
// MaxIterationsReached, or Diverged, driven one full pass at a time through
// Step, or to completion through Run/Reconstruct.
package recon

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"rbyrct/internal/parallel"
	"rbyrct/pkg/geometry"
	"rbyrct/pkg/metrics"
	"rbyrct/pkg/projector"
	"rbyrct/pkg/volume"
)

// Engine owns one reconstruction run: the mutable volume, the accumulation
// buffers, and the iteration state. It is not safe for concurrent use; the
// parallelism lives inside each pass, where rays fan out over workers with
// per-worker accumulators that the engine merges in fixed worker order.
// Results are therefore reproducible for a given worker count; across
// different worker counts, floating-point summation order may differ in the
// last bits, which is the accepted tolerance.
type Engine struct {
	cfg  Config
	op   projector.Operator
	meas ProjectionSet

	vol  *volume.Volume
	prev *volume.Volume
	ref  *volume.Volume

	rayCount    int
	raysPerView int
	workers     int

	num, den    []float64
	workerNum   [][]float64
	workerDen   [][]float64
	workerSumSq []float64
	workerBufs  [][]projector.Contribution

	iter       int
	state      State
	guard      *guard
	history    []metrics.Record
	divergence *DivergenceError
}

// NewEngine validates everything up front (geometry, projection shape,
// config ranges) and seeds the volume. The context only matters when
// PrecomputeWeights is set, where it bounds the up-front ray tracing.
func NewEngine(ctx context.Context, geom geometry.Geometry, grid volume.Grid, meas ProjectionSet, cfg Config) (*Engine, error) {
	proj, err := projector.New(geom, grid)
	if err != nil {
		return nil, err
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if err := meas.Validate(geom); err != nil {
		return nil, err
	}
	if err := cfg.validate(grid); err != nil {
		return nil, err
	}

	var op projector.Operator = proj
	if cfg.PrecomputeWeights {
		cache, err := projector.NewCache(ctx, proj, cfg.Workers)
		if err != nil {
			return nil, err
		}
		op = cache
	}

	var vol *volume.Volume
	if cfg.InitialVolume != nil {
		vol = cfg.InitialVolume.Clone()
		vol.ClampNonNegative()
	} else {
		vol = volume.New(grid, 1)
	}

	n := grid.Len()
	rayCount := proj.RayCount()
	workers := parallel.WorkerCount(cfg.Workers, rayCount)

	e := &Engine{
		cfg:         cfg,
		op:          op,
		meas:        meas,
		vol:         vol,
		prev:        vol.Clone(),
		ref:         cfg.Reference,
		rayCount:    rayCount,
		raysPerView: proj.RaysPerView(),
		workers:     workers,
		num:         make([]float64, n),
		den:         make([]float64, n),
		workerNum:   make([][]float64, workers),
		workerDen:   make([][]float64, workers),
		workerSumSq: make([]float64, workers),
		workerBufs:  make([][]projector.Contribution, workers),
		state:       StateInitialized,
		guard:       newGuard(cfg),
		history:     make([]metrics.Record, 0, cfg.MaxIterations),
	}
	for w := 0; w < workers; w++ {
		e.workerNum[w] = make([]float64, n)
		e.workerDen[w] = make([]float64, n)
		e.workerBufs[w] = make([]projector.Contribution, 0, op.MaxContributions())
	}
	return e, nil
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State { return e.state }

// Iterations returns the number of completed passes.
func (e *Engine) Iterations() int { return e.iter }

// Volume returns the engine's current estimate. It is the engine's working
// buffer; read it between steps or after termination, but do not mutate it
// while the engine may still iterate.
func (e *Engine) Volume() *volume.Volume { return e.vol }

// History returns a copy of the per-iteration metric records accumulated so
// far, bounded by the iteration cap.
func (e *Engine) History() []metrics.Record {
	out := make([]metrics.Record, len(e.history))
	copy(out, e.history)
	return out
}

// Err returns the divergence error when the engine is in StateDiverged.
func (e *Engine) Err() *DivergenceError { return e.divergence }

// Step runs one full pass over all views: forward-project, accumulate the
// per-ray corrections through the adjoint, apply the normalized update, and
// evaluate the stopping rules. It returns the resulting state. Calling Step
// on a terminal engine is a no-op. Cancellation is cooperative: the context
// is checked between passes and between worker chunks, never inside the ray
// loop.
func (e *Engine) Step(ctx context.Context) (State, error) {
	if e.state.Terminal() {
		return e.state, nil
	}
	if err := ctx.Err(); err != nil {
		return e.state, err
	}
	e.state = StateIterating

	residual, err := e.accumulate(ctx)
	if err != nil {
		return e.state, err
	}

	it := e.iter + 1

	// Snapshot, then update. The snapshot is what survives if this
	// update turns out to be the one that corrupts the volume.
	e.prev.CopyFrom(e.vol)
	e.applyUpdate()

	v := e.guard.observe(residual)
	if v != verdictDiverged && e.vol.HasNonFinite() {
		v = verdictDiverged
	}

	switch v {
	case verdictDiverged:
		e.vol.CopyFrom(e.prev)
		e.state = StateDiverged
		e.divergence = &DivergenceError{Iteration: it, Residual: residual}
	case verdictConverged:
		e.state = StateConverged
	default:
		if it >= e.cfg.MaxIterations {
			e.state = StateMaxIterationsReached
		}
	}

	e.iter = it
	e.history = append(e.history, e.record(it, residual))
	if e.cfg.Progress != nil {
		e.cfg.Progress(it, e.cfg.MaxIterations, residual)
	}
	return e.state, nil
}

// Run steps the engine to a terminal state. The returned Result is non-nil
// whenever construction succeeded; on divergence it carries the preserved
// volume and the error is a *DivergenceError. MaxIterationsReached is not an
// error: callers distinguish outcomes through Result.State.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	for !e.state.Terminal() {
		if _, err := e.Step(ctx); err != nil {
			return nil, err
		}
	}
	res := e.result()
	if e.divergence != nil {
		return res, e.divergence
	}
	return res, nil
}

// accumulate fans the rays out over the workers. Each worker forward-projects
// its rays against the read-only volume, computes the per-ray correction
// (ratio for MART, path-normalized residual for SART), and scatters it
// through the ray's own weights into private accumulators; the coordinator
// then merges them in worker order. Returns the RMS residual over all rays,
// measured against the pre-update volume.
func (e *Engine) accumulate(ctx context.Context) (float64, error) {
	for w := 0; w < e.workers; w++ {
		zero(e.workerNum[w])
		zero(e.workerDen[w])
		e.workerSumSq[w] = 0
	}

	mart := e.cfg.Method == MART
	eps := e.cfg.Epsilon
	data := e.vol.Data

	err := parallel.Ranges(ctx, e.workers, e.rayCount, func(w, start, end int) error {
		num := e.workerNum[w]
		den := e.workerDen[w]
		buf := e.workerBufs[w]
		sumSq := 0.0

		for r := start; r < end; r++ {
			buf = e.op.Contributions(r, buf[:0])
			sim := projector.DotContributions(buf, data)
			m := e.meas[r/e.raysPerView][r%e.raysPerView]
			resid := m - sim
			sumSq += resid * resid

			// A ray that misses the grid still counts toward the
			// residual but has nothing to scatter.
			if len(buf) == 0 {
				continue
			}

			var corr float64
			if mart {
				s := sim
				if s < eps {
					s = eps
				}
				corr = m / s
			} else {
				// SART divides the residual by the ray's own weight
				// sum before scattering, so the step size does not
				// scale with path length.
				wsum := 0.0
				for _, c := range buf {
					wsum += c.Weight
				}
				corr = resid / wsum
			}
			for _, c := range buf {
				num[c.Voxel] += c.Weight * corr
				den[c.Voxel] += c.Weight
			}
		}

		e.workerBufs[w] = buf
		e.workerSumSq[w] = sumSq
		return nil
	})
	if err != nil {
		return 0, err
	}

	zero(e.num)
	zero(e.den)
	sumSq := 0.0
	for w := 0; w < e.workers; w++ {
		floats.Add(e.num, e.workerNum[w])
		floats.Add(e.den, e.workerDen[w])
		sumSq += e.workerSumSq[w]
	}
	return metrics.ResidualRMS(sumSq, e.rayCount), nil
}

// applyUpdate folds the merged accumulators into the volume. The correction
// for each voxel is normalized by the total ray weight that touched it, so
// heavily-traversed voxels are not over-corrected; voxels no ray touched are
// left alone. Values are clamped to [0, +Inf) immediately, per voxel.
func (e *Engine) applyUpdate() {
	lambda := e.cfg.Relaxation
	data := e.vol.Data

	if e.cfg.Method == MART {
		for i := range data {
			if e.den[i] == 0 {
				continue
			}
			factor := e.num[i] / e.den[i]
			if factor < 0 {
				factor = 0
			}
			v := data[i] * math.Pow(factor, lambda)
			if v < 0 {
				v = 0
			}
			data[i] = v
		}
		return
	}

	for i := range data {
		if e.den[i] == 0 {
			continue
		}
		v := data[i] + lambda*e.num[i]/e.den[i]
		if v < 0 {
			v = 0
		}
		data[i] = v
	}
}

func (e *Engine) record(iteration int, residual float64) metrics.Record {
	rec := metrics.Record{
		Iteration: iteration,
		Residual:  residual,
		SSIM:      math.NaN(),
		PSNR:      math.NaN(),
	}
	if e.ref != nil {
		rec.SSIM = metrics.SSIM(e.vol.Data, e.ref.Data)
		rec.PSNR = metrics.PSNR(e.vol.Data, e.ref.Data)
	}
	return rec
}

func (e *Engine) result() *Result {
	return &Result{
		Volume:     e.vol,
		State:      e.state,
		Iterations: e.iter,
		History:    e.History(),
	}
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
