// Package psych implements the psychometric primitives of the adaptive
// engine: 1-PL Rasch probability, Fisher information, EAP ability updates,
// mastery probability and the Elo bridge. All functions are pure and
// deterministic; numeric edge cases clamp instead of erroring.
package psych

import "math"

// epsilon replaces divisors at or below this bound.
const epsilon = 1e-6

// quadraturePoints is the number of EAP quadrature nodes.
const quadraturePoints = 41

// quadratureSpan is the half-width of the node grid in prior SDs.
const quadratureSpan = 4.0

// PCorrect returns the 1-PL probability of a correct response at ability
// theta for an item of difficulty b.
func PCorrect(theta, b float64) float64 {
	return 1.0 / (1.0 + math.Exp(-(theta - b)))
}

// Info returns the dichotomous Fisher information p*(1-p) at theta for an
// item of difficulty b.
func Info(theta, b float64) float64 {
	p := PCorrect(theta, b)
	return p * (1 - p)
}

// Response is a scored response with k successes out of m trials. A plain
// dichotomous attempt is {K:0|1, M:1}.
type Response struct {
	K int
	M int
}

// EAPInput parameterizes an EAP ability update.
type EAPInput struct {
	PriorMu    float64
	PriorSigma float64
	Response   Response
	B          float64
}

// EAPResult is the posterior summary of an EAP update.
type EAPResult struct {
	ThetaHat float64
	SE       float64
}

// EAPUpdate runs an expected-a-posteriori update over 41 equally spaced
// quadrature nodes theta_i = priorMu + priorSigma*x_i, x_i in [-4, 4]. Each
// node is weighted by the normal prior density at x_i times the
// binomial-style likelihood p^k * (1-p)^(m-k); the posterior must contract
// under repeated observations, which a flat node weight does not guarantee.
func EAPUpdate(in EAPInput) EAPResult {
	sigma := in.PriorSigma
	if sigma <= epsilon {
		sigma = epsilon
	}
	m := in.Response.M
	if m < 1 {
		m = 1
	}
	k := in.Response.K
	if k < 0 {
		k = 0
	}
	if k > m {
		k = m
	}

	var sumW, sumWT float64
	nodes := [quadraturePoints]float64{}
	weights := [quadraturePoints]float64{}
	for i := 0; i < quadraturePoints; i++ {
		x := -quadratureSpan + 2*quadratureSpan*float64(i)/float64(quadraturePoints-1)
		theta := in.PriorMu + sigma*x
		p := PCorrect(theta, in.B)
		like := math.Pow(p, float64(k)) * math.Pow(1-p, float64(m-k))
		w := math.Exp(-0.5*x*x) * like
		nodes[i] = theta
		weights[i] = w
		sumW += w
		sumWT += w * theta
	}
	if sumW <= epsilon {
		sumW = epsilon
	}
	mean := sumWT / sumW

	var sumVar float64
	for i := 0; i < quadraturePoints; i++ {
		d := nodes[i] - mean
		sumVar += weights[i] * d * d
	}
	variance := sumVar / sumW
	if variance < 1e-12 {
		variance = 1e-12
	}
	return EAPResult{ThetaHat: mean, SE: math.Sqrt(variance)}
}

// EloToTheta maps an Elo rating onto the 1-PL theta scale for cold start.
func EloToTheta(rating float64) float64 {
	return (rating - 1500.0) / 400.0
}

// MasteryProbability returns P(theta > thetaCut) under a normal posterior
// with mean theta and SD se. The result is clamped to [0, 1].
func MasteryProbability(theta, se, thetaCut float64) float64 {
	if se <= epsilon {
		se = epsilon
	}
	p := NormalCDF((theta - thetaCut) / se)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// NormalCDF evaluates the standard normal CDF using the Abramowitz-Stegun
// 26.2.17 polynomial approximation (absolute error < 7.5e-8).
func NormalCDF(z float64) float64 {
	if z < 0 {
		return 1 - NormalCDF(-z)
	}
	k := 1.0 / (1.0 + 0.2316419*z)
	poly := k * (0.319381530 + k*(-0.356563782+k*(1.781477937+k*(-1.821255978+k*1.330274429))))
	return 1 - math.Exp(-z*z/2)/math.Sqrt(2*math.Pi)*poly
}

// DifficultyToBeta maps the authored difficulty tier onto the beta scale.
// Unknown tiers fall back to medium.
func DifficultyToBeta(difficulty string) float64 {
	switch difficulty {
	case "easy":
		return -0.7
	case "hard":
		return 0.7
	default: // medium
		return 0
	}
}
