package psych

import (
	"math"
	"testing"
)

func TestGPCMPMFSumsToOne(t *testing.T) {
	for _, tau := range [][]float64{{0}, {-0.5, 0.5}, {-1, 0, 1}} {
		pmf := GPCMPMF(0.2, 0, tau)
		if len(pmf) != len(tau)+1 {
			t.Fatalf("want %d categories, got %d", len(tau)+1, len(pmf))
		}
		var sum float64
		for _, p := range pmf {
			if p < 0 {
				t.Errorf("negative probability %v", p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("pmf sums to %v", sum)
		}
	}
}

func TestGPCMReducesToRasch(t *testing.T) {
	// A single threshold at zero is the dichotomous model.
	theta, b := 0.4, -0.2
	pmf := GPCMPMF(theta, b, []float64{0})
	if math.Abs(pmf[1]-PCorrect(theta, b)) > 1e-9 {
		t.Errorf("P(k=1) = %v, want %v", pmf[1], PCorrect(theta, b))
	}
}

func TestPolytomousInfo(t *testing.T) {
	// No thresholds falls back to the dichotomous case.
	if got, want := PolytomousInfo(0.3, 0, nil), Info(0.3, 0); math.Abs(got-want) > 1e-12 {
		t.Errorf("fallback info = %v, want %v", got, want)
	}
	// Variance of the score is positive for a real polytomous item.
	if got := PolytomousInfo(0, 0, []float64{-0.5, 0.5}); got <= 0 {
		t.Errorf("polytomous info should be positive, got %v", got)
	}
}
