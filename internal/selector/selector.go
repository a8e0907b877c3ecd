// Package selector implements the in-session item selector: a Generalized
// Partial Credit utility ranking with a randomesque top-K pick, moderated by
// blueprint, exposure and fatigue multipliers.
package selector

import (
	"sort"

	"github.com/yinkev/studyin/internal/logging"
	"github.com/yinkev/studyin/internal/psych"
	"github.com/yinkev/studyin/internal/rng"
)

// topK is the size of the randomesque pool.
const topK = 5

// Exposure summarizes a learner's recent history with a candidate item.
type Exposure struct {
	Last24h       int     `json:"last24h"`
	Last7d        int     `json:"last7d"`
	HoursSinceLast float64 `json:"hoursSinceLast"`
	MeanScore     float64 `json:"meanScore"`
	SE            float64 `json:"se"`
}

// CandidateItem is one selectable item with its selection signals.
type CandidateItem struct {
	ID                  string    `json:"id"`
	LoIDs               []string  `json:"loIds"`
	Beta                float64   `json:"beta"`
	Thresholds          []float64 `json:"thresholds,omitempty"`
	MedianTimeSeconds   float64   `json:"medianTimeSeconds"`
	BlueprintMultiplier float64   `json:"blueprintMultiplier"`
	Exposure            Exposure  `json:"exposure"`
	FatigueScalar       float64   `json:"fatigueScalar"`
}

// ExposurePolicy maps a candidate's exposure history to a multiplier.
// A zero multiplier drops the candidate entirely.
type ExposurePolicy func(e Exposure) float64

// IdentityExposure is the default policy: no exposure control.
func IdentityExposure(Exposure) float64 { return 1 }

// CapExposure applies daily/weekly caps and a familiarity clamp: items the
// learner already scores highly on with a tight SE are suppressed.
func CapExposure(e Exposure) float64 {
	if e.Last24h >= 1 || e.Last7d >= 2 {
		return 0
	}
	if e.MeanScore > 0.9 && e.SE < 0.15 {
		return 0.25
	}
	return 1
}

// Signals carries the per-pick diagnostics the rationale string is built from.
type Signals struct {
	Utility             float64 `json:"utility"`
	Info                float64 `json:"info"`
	BlueprintMultiplier float64 `json:"blueprintMultiplier"`
	ExposureMultiplier  float64 `json:"exposureMultiplier"`
	FatigueScalar       float64 `json:"fatigueScalar"`
	MedianTimeSeconds   float64 `json:"medianTimeSeconds"`
}

// ScoredCandidate is one eligible candidate with its computed utility.
type ScoredCandidate struct {
	ItemID  string  `json:"itemId"`
	Utility float64 `json:"utility"`
	Info    float64 `json:"info"`
}

// Result describes the chosen item and the eligible pool it was drawn from.
type Result struct {
	ItemID  string            `json:"itemId"`
	LoIDs   []string          `json:"loIds"`
	Signals Signals           `json:"signals"`
	Pool    []ScoredCandidate `json:"pool"`
}

// Select ranks candidates by utility and picks one from the top K using an
// xorshift32 generator seeded by the request seed. Returns nil when no
// candidate is eligible.
func Select(thetaHat float64, candidates []CandidateItem, seed uint32, policy ExposurePolicy) *Result {
	if len(candidates) == 0 {
		return nil
	}
	if policy == nil {
		policy = IdentityExposure
	}

	type scored struct {
		c        CandidateItem
		exposure float64
		info     float64
		utility  float64
	}
	eligible := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		em := policy(c.Exposure)
		if em == 0 {
			continue
		}
		info := psych.PolytomousInfo(thetaHat, c.Beta, c.Thresholds)
		denom := c.MedianTimeSeconds
		if denom < 1 {
			denom = 1
		}
		utility := info / denom * c.BlueprintMultiplier * em * c.FatigueScalar
		eligible = append(eligible, scored{c: c, exposure: em, info: info, utility: utility})
	}
	if len(eligible) == 0 {
		return nil
	}

	// Stable order: utility descending, id ascending on ties.
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].utility != eligible[j].utility {
			return eligible[i].utility > eligible[j].utility
		}
		return eligible[i].c.ID < eligible[j].c.ID
	})

	k := topK
	if len(eligible) < k {
		k = len(eligible)
	}
	pick := eligible[int(rng.NewXorshift32(seed).Next()%uint32(k))]

	pool := make([]ScoredCandidate, len(eligible))
	for i, s := range eligible {
		pool[i] = ScoredCandidate{ItemID: s.c.ID, Utility: s.utility, Info: s.info}
	}

	logging.SelectorDebug("picked %s from pool of %d (k=%d, utility=%.4f)", pick.c.ID, len(eligible), k, pick.utility)

	return &Result{
		ItemID: pick.c.ID,
		LoIDs:  pick.c.LoIDs,
		Signals: Signals{
			Utility:             pick.utility,
			Info:                pick.info,
			BlueprintMultiplier: pick.c.BlueprintMultiplier,
			ExposureMultiplier:  pick.exposure,
			FatigueScalar:       pick.c.FatigueScalar,
			MedianTimeSeconds:   pick.c.MedianTimeSeconds,
		},
		Pool: pool,
	}
}
