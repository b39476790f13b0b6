// Package metrics computes per-iteration reconstruction diagnostics: the
// residual norm that drives stopping decisions, and reference-based quality
// scores (SSIM, PSNR) for offline evaluation when a ground-truth volume is
// available. All functions are pure; nothing here mutates engine state.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Record is one iteration's diagnostics. SSIM and PSNR are NaN when no
// reference volume was supplied.
type Record struct {
	Iteration int
	Residual  float64
	SSIM      float64
	PSNR      float64
}

// ResidualRMS converts an accumulated sum of squared per-ray residuals into
// the root-mean-square residual over n rays.
func ResidualRMS(sumSquares float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Sqrt(sumSquares / float64(n))
}

// SSIM computes the global structural similarity index between a volume and a
// reference, using the standard k1=0.01, k2=0.03 constants with the dynamic
// range taken from the reference. Identical inputs score 1.
func SSIM(x, ref []float64) float64 {
	const k1, k2 = 0.01, 0.03

	if len(x) != len(ref) || len(x) == 0 {
		return 0
	}

	l := dynamicRange(ref)
	c1 := (k1 * l) * (k1 * l)
	c2 := (k2 * l) * (k2 * l)

	muX := stat.Mean(x, nil)
	muY := stat.Mean(ref, nil)
	sigmaX := stat.Variance(x, nil)
	sigmaY := stat.Variance(ref, nil)
	sigmaXY := stat.Covariance(x, ref, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den == 0 {
		return 0
	}
	return num / den
}

// PSNR computes the peak signal-to-noise ratio in dB between a volume and a
// reference, with the peak taken as the reference's dynamic range. Identical
// inputs yield +Inf.
func PSNR(x, ref []float64) float64 {
	if len(x) != len(ref) || len(x) == 0 {
		return 0
	}

	mse := 0.0
	for i := range x {
		d := x[i] - ref[i]
		mse += d * d
	}
	mse /= float64(len(x))
	if mse == 0 {
		return math.Inf(1)
	}

	l := dynamicRange(ref)
	return 10 * math.Log10(l*l/mse)
}

// RMSE computes the root-mean-square error between two equal-length buffers.
func RMSE(x, ref []float64) float64 {
	if len(x) != len(ref) || len(x) == 0 {
		return 0
	}
	sum := 0.0
	for i := range x {
		d := x[i] - ref[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(x)))
}

// dynamicRange returns max-min of the reference, falling back to 1 for a
// constant reference so the SSIM/PSNR constants stay meaningful.
func dynamicRange(ref []float64) float64 {
	l := floats.Max(ref) - floats.Min(ref)
	if l <= 0 {
		return 1
	}
	return l
}
