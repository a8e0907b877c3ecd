// Package scheduler picks the next learning objective to drill via Thompson
// sampling over Normal(mu, sigma^2) arms, scaled by urgency and blueprint
// rails.
package scheduler

import (
	"sort"

	"github.com/yinkev/studyin/internal/logging"
	"github.com/yinkev/studyin/internal/rng"
)

// cooldownEligibleHours is the minimum time since the last attempt on an LO
// before it re-enters the rotation.
const cooldownEligibleHours = 96

// Arm is one learning objective in the cross-topic rotation.
type Arm struct {
	LoID                string  `json:"loId"`
	Mu                  float64 `json:"mu"`
	Sigma               float64 `json:"sigma"`
	Urgency             float64 `json:"urgency"`
	BlueprintMultiplier float64 `json:"blueprintMultiplier"`
	Eligible            bool    `json:"eligible"`
	CooldownHours       float64 `json:"cooldownHours"`
}

// Pick is the sampled winner.
type Pick struct {
	LoID   string  `json:"loId"`
	Score  float64 `json:"score"`
	Sample float64 `json:"sample"`
}

// Urgency grows once an LO has been idle for more than three days.
func Urgency(daysSinceLast float64) float64 {
	over := daysSinceLast - 3
	if over < 0 {
		over = 0
	}
	return 1 + over/7
}

// BlueprintMultiplier dampens over-served LOs and boosts under-served ones
// relative to their target share. A zero target yields no steering.
func BlueprintMultiplier(target, current float64) float64 {
	if target == 0 {
		return 1
	}
	if current > target {
		m := 1 - 2*(current-target)
		if m < 0.2 {
			m = 0.2
		}
		return m
	}
	m := 1 + 3*(target-current)
	if m > 1.5 {
		m = 1.5
	}
	return m
}

// Eligible reports whether an LO has cleared its cooldown.
func Eligible(cooldownHours float64) bool {
	return cooldownHours >= cooldownEligibleHours
}

// MuFromSE is the delta-SE-headroom proxy for an arm's mean reward.
func MuFromSE(se float64) float64 {
	mu := se - 0.2
	if mu < 0.01 {
		mu = 0.01
	}
	return mu
}

// SigmaFromSE widens an arm's posterior with its ability uncertainty.
func SigmaFromSE(se float64) float64 {
	return 0.3 + se*0.2
}

// Sample restricts to eligible arms (falling back to the full list when none
// are eligible), draws one Thompson sample per arm from a shared xorshift32
// stream and returns the argmax. Returns nil for an empty arm list.
func Sample(arms []Arm, seed uint32) *Pick {
	if len(arms) == 0 {
		return nil
	}

	pool := make([]Arm, 0, len(arms))
	for _, a := range arms {
		if a.Eligible {
			pool = append(pool, a)
		}
	}
	if len(pool) == 0 {
		pool = append(pool, arms...)
	}

	// Arm order must not depend on caller map iteration.
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].LoID < pool[j].LoID })

	gen := rng.NewXorshift32(seed)
	var best *Pick
	for _, a := range pool {
		x := a.Mu + a.Sigma*gen.Normal()
		score := x * a.Urgency * a.BlueprintMultiplier
		if best == nil || score > best.Score {
			best = &Pick{LoID: a.LoID, Score: score, Sample: x}
		}
	}
	if best != nil {
		logging.Scheduler("scheduled LO %s (score=%.4f, sample=%.4f, pool=%d)", best.LoID, best.Score, best.Sample, len(pool))
	}
	return best
}
