// Package engine orchestrates the psychometric primitives into the
// personalization operations: next-item suggestion, ability updates, stop
// rules, cross-topic scheduling and the session retention budget.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/yinkev/studyin/internal/learner"
	"github.com/yinkev/studyin/internal/logging"
	"github.com/yinkev/studyin/internal/psych"
	"github.com/yinkev/studyin/internal/retention"
	"github.com/yinkev/studyin/internal/scheduler"
	"github.com/yinkev/studyin/internal/selector"
)

const (
	// minItemsBeforeStop gates every stop rule.
	minItemsBeforeStop = 12

	// seThreshold stops a drill once the ability estimate is tight enough.
	seThreshold = 0.2

	// plateauWindow / plateauDelta detect a flat SE trajectory.
	plateauWindow = 5
	plateauDelta  = 0.02

	// probeWindow / masteryCut define the probe-mastery stop rule.
	probeWindow = 0.3
	masteryCut  = 0.85
)

// Engine is the stateless personalization engine. It carries only its
// identity and an optional fixed seed for test replay; all learner state
// lives in the store.
type Engine struct {
	Name    string
	Version string

	// seed, when set, overrides the per-request seed.
	seed    uint32
	hasSeed bool

	// exposure is the selector's exposure policy (identity by default).
	exposure selector.ExposurePolicy
}

// New returns an engine with the default (identity) exposure policy.
func New(name, version string) *Engine {
	return &Engine{Name: name, Version: version, exposure: selector.IdentityExposure}
}

// WithSeed returns a copy that replays every stochastic pick with seed.
func (e *Engine) WithSeed(seed uint32) *Engine {
	c := *e
	c.seed = seed
	c.hasSeed = true
	return &c
}

// WithExposurePolicy returns a copy using the given exposure policy.
func (e *Engine) WithExposurePolicy(p selector.ExposurePolicy) *Engine {
	c := *e
	c.exposure = p
	return &c
}

func (e *Engine) effectiveSeed(seed uint32) uint32 {
	if e.hasSeed {
		return e.seed
	}
	return seed
}

// Suggestion is the outcome of SuggestNext.
type Suggestion struct {
	Selection *selector.Result `json:"selection"`
	Rationale string           `json:"rationale"`
}

// globalAbility averages ability across the learner's LO states.
// Defaults to (0, 0.8) for a cold-start learner.
func globalAbility(state *learner.State) (thetaHat, se float64) {
	if state == nil || len(state.Los) == 0 {
		return 0, learner.DefaultPriorSigma
	}
	var sumT, sumS float64
	for _, lo := range state.Los {
		sumT += lo.ThetaHat
		sumS += lo.SE
	}
	n := float64(len(state.Los))
	return sumT / n, sumS / n
}

// SuggestNext picks the next item for the learner from candidates and builds
// the "why this next" rationale. Selection is nil when nothing is eligible.
func (e *Engine) SuggestNext(state *learner.State, candidates []selector.CandidateItem, seed uint32) Suggestion {
	thetaHat, se := globalAbility(state)
	sel := selector.Select(thetaHat, candidates, e.effectiveSeed(seed), e.exposure)
	if sel == nil {
		return Suggestion{}
	}
	mastery := psych.MasteryProbability(thetaHat, se, 0)
	rationale := fmt.Sprintf(
		"Info %.2f · Blueprint×%.2f · Exposure×%.2f · Fatigue×%.2f · Median %.2fs · θ̂=%.2f · SE=%.2f · Mastery=%.2f",
		sel.Signals.Info,
		sel.Signals.BlueprintMultiplier,
		sel.Signals.ExposureMultiplier,
		sel.Signals.FatigueScalar,
		sel.Signals.MedianTimeSeconds,
		thetaHat, se, mastery,
	)
	logging.EngineDebug("suggest next for %s: %s (%s)", state.LearnerID, sel.ItemID, rationale)
	return Suggestion{Selection: sel, Rationale: rationale}
}

// UpdateSignals summarizes the posterior after an update, for the primary
// (first) LO of the attempt.
type UpdateSignals struct {
	ThetaHat           float64 `json:"thetaHat"`
	SE                 float64 `json:"se"`
	MasteryProbability float64 `json:"masteryProbability"`
}

// Update applies one scored attempt to every LO the item covers and to the
// item's exposure record. The state is mutated in place and returned.
func (e *Engine) Update(state *learner.State, loIDs []string, itemID, difficulty string, correct bool, ts int64) (*learner.State, UpdateSignals) {
	beta := psych.DifficultyToBeta(difficulty)
	k := 0
	if correct {
		k = 1
	}

	var signals UpdateSignals
	for i, loID := range loIDs {
		lo := state.Lo(loID)

		// Documents patched in with an ability estimate but no explicit prior
		// resume from that estimate, not from the cold-start prior.
		priorMu := lo.PriorMu
		if priorMu == 0 {
			priorMu = lo.ThetaHat
		}
		priorSigma := lo.PriorSigma
		if priorSigma == 0 {
			priorSigma = learner.DefaultPriorSigma
		}

		res := psych.EAPUpdate(psych.EAPInput{
			PriorMu:    priorMu,
			PriorSigma: priorSigma,
			Response:   psych.Response{K: k, M: 1},
			B:          beta,
		})

		lo.ThetaHat = res.ThetaHat
		lo.SE = res.SE
		lo.ItemsAttempted++
		lo.RecentSes = learner.PushWindow(lo.RecentSes, res.SE, learner.RecentSesWindow)
		probe := beta
		lo.LastProbeDifficulty = &probe
		lo.PriorMu = res.ThetaHat
		lo.PriorSigma = math.Max(0.25, res.SE)

		mastery := psych.MasteryProbability(res.ThetaHat, res.SE, 0)
		if !lo.MasteryConfirmed && math.Abs(res.ThetaHat-beta) <= probeWindow && mastery >= masteryCut {
			lo.MasteryConfirmed = true
			logging.Engine("mastery confirmed for %s on %s (θ̂=%.2f, SE=%.2f)", state.LearnerID, loID, res.ThetaHat, res.SE)
		}

		if i == 0 {
			signals = UpdateSignals{ThetaHat: res.ThetaHat, SE: res.SE, MasteryProbability: mastery}
		}
	}

	item := state.Item(itemID)
	item.Attempts++
	if correct {
		item.Correct++
	}
	item.LastAttemptTs = ts
	item.RecentAttempts = learner.PushWindowInt64(item.RecentAttempts, ts, learner.RecentAttemptsWindow)

	state.UpdatedAt = time.UnixMilli(ts).UTC().Format(time.RFC3339)
	return state, signals
}

// StopDecision reports whether to stop drilling an LO and which rules fired.
type StopDecision struct {
	ShouldStop bool     `json:"shouldStop"`
	Triggers   []string `json:"triggers"`
}

// ShouldStop aggregates the stop rules for one LO. No rule fires before the
// learner has attempted 12 items on the LO.
func (e *Engine) ShouldStop(state *learner.State, loID string) StopDecision {
	lo, ok := state.Los[loID]
	if !ok || lo.ItemsAttempted < minItemsBeforeStop {
		return StopDecision{}
	}

	var triggers []string
	if lo.SE <= seThreshold {
		triggers = append(triggers, "se_threshold")
	}
	if lo.MasteryConfirmed {
		triggers = append(triggers, "mastery_confirmed")
	}
	if n := len(lo.RecentSes); n >= plateauWindow {
		window := lo.RecentSes[n-plateauWindow:]
		var sum float64
		for i := 1; i < len(window); i++ {
			sum += math.Abs(window[i] - window[i-1])
		}
		if sum/float64(len(window)-1) < plateauDelta {
			triggers = append(triggers, "se_plateau")
		}
	}
	if lo.LastProbeDifficulty != nil {
		mastery := psych.MasteryProbability(lo.ThetaHat, lo.SE, 0)
		if math.Abs(lo.ThetaHat-*lo.LastProbeDifficulty) <= probeWindow && mastery >= masteryCut {
			triggers = append(triggers, "probe_mastery_window")
		}
	}
	return StopDecision{ShouldStop: len(triggers) > 0, Triggers: triggers}
}

// ScheduleNextLo runs the cross-topic Thompson rotation.
func (e *Engine) ScheduleNextLo(arms []scheduler.Arm, seed uint32) *scheduler.Pick {
	return scheduler.Sample(arms, e.effectiveSeed(seed))
}

// RetentionBudget is the per-session retention allocation.
type RetentionBudget struct {
	Minutes  int     `json:"minutes"`
	Fraction float64 `json:"fraction"`
}

// ComputeRetentionBudget allocates session minutes to the retention lane.
func (e *Engine) ComputeRetentionBudget(maxDaysOverdue, sessionMinutes float64) RetentionBudget {
	fraction := retention.BudgetFraction(maxDaysOverdue)
	return RetentionBudget{
		Minutes:  int(math.Floor(sessionMinutes * fraction)),
		Fraction: fraction,
	}
}
