package recon

import (
	"fmt"

	"rbyrct/pkg/volume"
)

// Method selects the algebraic update rule.
type Method int

const (
	// MART applies a multiplicative update: each voxel is scaled by the
	// weight-averaged measured/simulated ratio of the rays crossing it,
	// raised to the relaxation exponent.
	MART Method = iota

	// SART applies an additive update: each voxel is shifted by the
	// relaxation-scaled, weight-normalized residual of the rays crossing it,
	// with each ray's residual first divided by that ray's total weight.
	SART
)

func (m Method) String() string {
	switch m {
	case MART:
		return "MART"
	case SART:
		return "SART"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a config-file method name to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "MART", "mart":
		return MART, nil
	case "SART", "sart":
		return SART, nil
	default:
		return 0, &InvalidConfigError{Field: "method", Reason: fmt.Sprintf("unknown method %q", s)}
	}
}

// Config holds the reconstruction parameters.
//
// Both methods here update once per full pass over all views (the
// simultaneous variant): corrections from every ray are accumulated and
// normalized by the total weight touching each voxel before a single apply.
// This is what makes ray processing order-independent and therefore safely
// parallel; the per-ray sequential MART variant would converge in fewer
// passes but serializes the inner loop.
type Config struct {
	// Method is the update rule, MART or SART.
	Method Method

	// Relaxation damps the update step, in (0, 1]. MART raises the ratio to
	// this exponent; SART scales the residual by it.
	Relaxation float64

	// MaxIterations caps the number of full passes; reaching it is a normal
	// terminal state, not an error.
	MaxIterations int

	// Tolerance is the residual-improvement threshold for convergence: an
	// iteration whose RMS residual improves by no more than this counts as
	// stalled, and a residual at or below it converges immediately.
	Tolerance float64

	// StallWindow is how many consecutive stalled (or residual-grown)
	// iterations trigger the Converged (or Diverged) transition.
	StallWindow int

	// DivergenceFactor flags divergence when the RMS residual exceeds this
	// multiple of the initial residual, sustained for StallWindow
	// iterations. Must be greater than 1.
	DivergenceFactor float64

	// Epsilon is the positive floor applied to simulated ray values before
	// the MART division, preventing zero/Inf ratio propagation.
	Epsilon float64

	// InitialVolume optionally seeds the reconstruction with a prior. When
	// nil the volume starts uniformly at 1, the usual multiplicative seed.
	// The engine works on a copy; the prior is not mutated.
	InitialVolume *volume.Volume

	// Reference optionally supplies a ground-truth volume; when set, SSIM
	// and PSNR against it are recorded each iteration (offline evaluation).
	Reference *volume.Volume

	// Workers bounds the ray-parallel fan-out; 0 means all CPUs.
	Workers int

	// PrecomputeWeights traces every ray once up front and caches the
	// weight sets, trading memory for per-iteration traversal cost.
	PrecomputeWeights bool

	// Progress, when set, is called after every iteration with the
	// iteration number, the cap, and the iteration's RMS residual.
	Progress ProgressFunc
}

// ProgressFunc reports per-iteration progress to the host.
type ProgressFunc func(iteration, maxIterations int, residual float64)

// DefaultConfig returns the baseline parameters: MART with moderate
// relaxation and guards sized for small experiment runs.
func DefaultConfig() Config {
	return Config{
		Method:           MART,
		Relaxation:       0.5,
		MaxIterations:    50,
		Tolerance:        1e-4,
		StallWindow:      3,
		DivergenceFactor: 10,
		Epsilon:          1e-12,
	}
}

// InvalidConfigError reports an out-of-range reconstruction parameter.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid recon config: %s %s", e.Field, e.Reason)
}

func (c *Config) validate(grid volume.Grid) error {
	if c.Method != MART && c.Method != SART {
		return &InvalidConfigError{Field: "method", Reason: "must be MART or SART"}
	}
	if !(c.Relaxation > 0 && c.Relaxation <= 1) {
		return &InvalidConfigError{Field: "relaxation", Reason: "must be in (0, 1]"}
	}
	if c.MaxIterations < 1 {
		return &InvalidConfigError{Field: "max iterations", Reason: "must be at least 1"}
	}
	if !(c.Tolerance >= 0) {
		return &InvalidConfigError{Field: "tolerance", Reason: "must be non-negative"}
	}
	if c.StallWindow < 1 {
		return &InvalidConfigError{Field: "stall window", Reason: "must be at least 1"}
	}
	if !(c.DivergenceFactor > 1) {
		return &InvalidConfigError{Field: "divergence factor", Reason: "must be greater than 1"}
	}
	if !(c.Epsilon > 0) {
		return &InvalidConfigError{Field: "epsilon", Reason: "must be positive"}
	}
	if c.Workers < 0 {
		return &InvalidConfigError{Field: "workers", Reason: "must be non-negative"}
	}
	if c.InitialVolume != nil && !c.InitialVolume.Grid.Equal(grid) {
		return &InvalidConfigError{Field: "initial volume", Reason: "grid does not match the reconstruction grid"}
	}
	if c.Reference != nil && !c.Reference.Grid.Equal(grid) {
		return &InvalidConfigError{Field: "reference volume", Reason: "grid does not match the reconstruction grid"}
	}
	return nil
}
