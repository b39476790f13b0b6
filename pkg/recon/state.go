package recon

import "fmt"

// State is the engine's position in its lifecycle. Terminal states are
// final: a terminal engine never iterates again, and callers wanting another
// attempt (a different relaxation, a different seed) build a new engine.
type State int

const (
	// StateInitialized: volume seeded, no pass run yet.
	StateInitialized State = iota

	// StateIterating: at least one pass run, no stopping rule met.
	StateIterating

	// StateConverged: residual improvement stayed within tolerance for the
	// configured window, or the residual itself reached tolerance.
	StateConverged

	// StateMaxIterationsReached: the iteration cap was hit first. This is a
	// normal outcome; the volume is valid, if possibly under-converged.
	StateMaxIterationsReached

	// StateDiverged: a numerical guard tripped. The engine's volume is the
	// last valid state from before the triggering update.
	StateDiverged
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateConverged || s == StateMaxIterationsReached || s == StateDiverged
}

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "Initialized"
	case StateIterating:
		return "Iterating"
	case StateConverged:
		return "Converged"
	case StateMaxIterationsReached:
		return "MaxIterationsReached"
	case StateDiverged:
		return "Diverged"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DivergenceError reports a run terminated by a numerical guard: NaN/Inf in
// the volume or a runaway residual. The engine preserves the last valid
// volume alongside it.
type DivergenceError struct {
	Iteration int
	Residual  float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("reconstruction diverged at iteration %d (rms residual %g)", e.Iteration, e.Residual)
}
