// Package estimator implements the stratified-sum estimate and its 95%
// confidence interval.
package estimator

import "math"

// confidenceZ is the z-score for a 95% confidence interval.
const confidenceZ = 1.96

// StratumReduction is one stratum's reduce-side observations for the
// round: the per-reducer values and variances already averaged into
// mean_v(s)/mean_var(s), plus how many samples of s were drawn.
type StratumReduction struct {
	MeanValue    float64
	MeanVariance float64
	SampledCount int
}

// Result is the round's point estimate and its 95% CI half-width:
// the true sum lies within Estimate +- Error with 95% confidence.
type Result struct {
	Estimate float64
	Error    float64
	Variance float64
}

// Estimate computes the stratified-sum estimator:
//
//	estimate = Sum_s mean_v(s)
//	variance = Sum_s mean_var(s) / sampledCount(s)
//	error    = 1.96 * sqrt(variance)
//
// A stratum with SampledCount <= 0 contributes its mean value to the
// sum but is excluded from the variance term (division by zero would
// otherwise make the whole round's CI undefined).
func Estimate(strata map[string]StratumReduction) Result {
	var sum, variance float64
	for _, s := range strata {
		sum += s.MeanValue
		if s.SampledCount > 0 {
			variance += s.MeanVariance / float64(s.SampledCount)
		}
	}
	return Result{
		Estimate: sum,
		Variance: variance,
		Error:    confidenceZ * math.Sqrt(variance),
	}
}
