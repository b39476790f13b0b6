package recon

import "math"

// verdict is the stopping decision after observing one iteration's residual.
type verdict int

const (
	verdictContinue verdict = iota
	verdictConverged
	verdictDiverged
)

// guard tracks the residual sequence and decides state transitions. It is
// separated from the numeric kernels so the transition rules are testable on
// synthetic residual sequences alone.
//
// Rules:
//   - a non-finite residual diverges immediately;
//   - a residual at or below tolerance converges immediately;
//   - a residual above divergenceFactor × the initial residual for window
//     consecutive iterations diverges;
//   - an improvement (previous − current) of at most tolerance for window
//     consecutive iterations converges (stalled).
type guard struct {
	tolerance        float64
	divergenceFactor float64
	window           int

	seen     bool
	initial  float64
	prev     float64
	stallRun int
	growRun  int
}

func newGuard(cfg Config) *guard {
	return &guard{
		tolerance:        cfg.Tolerance,
		divergenceFactor: cfg.DivergenceFactor,
		window:           cfg.StallWindow,
	}
}

func (g *guard) observe(residual float64) verdict {
	if math.IsNaN(residual) || math.IsInf(residual, 0) {
		return verdictDiverged
	}
	if residual <= g.tolerance {
		return verdictConverged
	}

	if !g.seen {
		g.seen = true
		g.initial = residual
		g.prev = residual
		return verdictContinue
	}

	if g.initial > 0 && residual > g.divergenceFactor*g.initial {
		g.growRun++
	} else {
		g.growRun = 0
	}
	if g.growRun >= g.window {
		return verdictDiverged
	}

	if g.prev-residual <= g.tolerance {
		g.stallRun++
	} else {
		g.stallRun = 0
	}
	g.prev = residual
	if g.stallRun >= g.window {
		return verdictConverged
	}
	return verdictContinue
}
