package psych

import "math"

// GPCMPMF returns the category probabilities of the Generalized Partial
// Credit Model for an item with difficulty b and category thresholds tau.
// With m thresholds there are m+1 categories, k = 0..m.
//
// P(k) is proportional to exp(sum_{j<=k} (theta - b - tau_{j-1})), with the
// empty sum for k=0.
func GPCMPMF(theta, b float64, tau []float64) []float64 {
	n := len(tau) + 1
	pmf := make([]float64, n)

	// Cumulative log-numerators, shifted by the max for stability.
	logNum := make([]float64, n)
	acc := 0.0
	maxLog := 0.0
	for k := 1; k < n; k++ {
		acc += theta - b - tau[k-1]
		logNum[k] = acc
		if acc > maxLog {
			maxLog = acc
		}
	}

	var denom float64
	for k := 0; k < n; k++ {
		pmf[k] = math.Exp(logNum[k] - maxLog)
		denom += pmf[k]
	}
	if denom <= epsilon {
		denom = epsilon
	}
	for k := 0; k < n; k++ {
		pmf[k] /= denom
	}
	return pmf
}

// PolytomousInfo returns the GPCM item information at theta:
// sum_k p_k * (k - E[k])^2.
func PolytomousInfo(theta, b float64, tau []float64) float64 {
	if len(tau) == 0 {
		return Info(theta, b)
	}
	pmf := GPCMPMF(theta, b, tau)
	var expected float64
	for k, p := range pmf {
		expected += float64(k) * p
	}
	var info float64
	for k, p := range pmf {
		d := float64(k) - expected
		info += p * d * d
	}
	return info
}
