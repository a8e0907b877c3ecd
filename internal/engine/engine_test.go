package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yinkev/studyin/internal/learner"
	"github.com/yinkev/studyin/internal/scheduler"
	"github.com/yinkev/studyin/internal/selector"
)

func newTestEngine() *Engine {
	return New("studyin", "1.1.0")
}

func TestUpdateMaintainsInvariants(t *testing.T) {
	eng := newTestEngine()
	state := learner.NewState("alice")

	n := 15
	for i := 0; i < n; i++ {
		state, _ = eng.Update(state, []string{"lo1"}, "item-1", "medium", true, int64(1000+i))
	}

	lo := state.Los["lo1"]
	require.NotNil(t, lo)
	assert.Equal(t, n, lo.ItemsAttempted)
	assert.Len(t, lo.RecentSes, learner.RecentSesWindow)
	assert.Equal(t, lo.ThetaHat, lo.PriorMu, "priorMu must track thetaHat")
	assert.GreaterOrEqual(t, lo.PriorSigma, 0.25, "priorSigma floored at 0.25")
	require.NotNil(t, lo.LastProbeDifficulty)
	assert.Equal(t, 0.0, *lo.LastProbeDifficulty)

	item := state.Items["item-1"]
	require.NotNil(t, item)
	assert.Equal(t, n, item.Attempts)
	assert.Equal(t, n, item.Correct)
	assert.Equal(t, int64(1000+n-1), item.LastAttemptTs)
}

func TestUpdateConfirmsMasteryEventually(t *testing.T) {
	// Alternating correct/incorrect on hard items keeps the ability estimate
	// oscillating around the hard probe difficulty while the SE tightens, so
	// the probe window eventually closes with high mastery probability.
	eng := newTestEngine()
	state := learner.NewState("bob")
	for i := 0; i < 20; i++ {
		state, _ = eng.Update(state, []string{"lo1"}, "item-1", "hard", i%2 == 0, int64(i))
	}
	assert.True(t, state.Los["lo1"].MasteryConfirmed,
		"alternating hard attempts should confirm mastery, θ̂=%v SE=%v",
		state.Los["lo1"].ThetaHat, state.Los["lo1"].SE)
}

func TestUpdateMultiLo(t *testing.T) {
	eng := newTestEngine()
	state := learner.NewState("carol")
	state, signals := eng.Update(state, []string{"lo1", "lo2"}, "item-9", "easy", false, 5000)

	assert.Len(t, state.Los, 2)
	assert.Equal(t, 1, state.Los["lo1"].ItemsAttempted)
	assert.Equal(t, 1, state.Los["lo2"].ItemsAttempted)
	// Signals describe the primary (first) LO.
	assert.Equal(t, state.Los["lo1"].ThetaHat, signals.ThetaHat)
	assert.Less(t, signals.ThetaHat, 0.0, "missed easy item should lower theta")
}

func TestUpdateResumesFromPatchedEstimate(t *testing.T) {
	// A document written through the state API may carry thetaHat without an
	// explicit prior; the update resumes from the estimate rather than the
	// cold-start prior at zero.
	eng := newTestEngine()
	state := learner.NewState("judy")
	state.Los["lo1"] = &learner.LoState{ThetaHat: 1.2, SE: 0.5, ItemsAttempted: 3}

	_, signals := eng.Update(state, []string{"lo1"}, "item-1", "medium", true, 9000)
	assert.Greater(t, signals.ThetaHat, 1.2,
		"a correct answer moves the posterior up from the carried estimate")
}

func TestSingleLearnerDrillScenario(t *testing.T) {
	// 12 correct attempts alternating easy/medium from a cold start.
	eng := newTestEngine()
	state := learner.NewState("dave")
	difficulties := []string{"easy", "medium"}
	for i := 0; i < 12; i++ {
		state, _ = eng.Update(state, []string{"lo1"}, "item-1", difficulties[i%2], true, int64(i*60_000))
	}

	lo := state.Los["lo1"]
	require.Equal(t, 12, lo.ItemsAttempted)
	assert.Greater(t, lo.ThetaHat, 0.0)
	assert.Less(t, lo.SE, learner.DefaultPriorSigma, "SE must tighten from the cold-start prior")

	// A single dichotomous response per update only carries so much
	// information, so the drill ends on a flattened SE trajectory.
	decision := eng.ShouldStop(state, "lo1")
	require.True(t, decision.ShouldStop, "drill should stop, triggers=%v", decision.Triggers)
	assert.Contains(t, decision.Triggers, "se_plateau")
}

func TestShouldStopBeforeMinimumItems(t *testing.T) {
	eng := newTestEngine()
	state := learner.NewState("erin")
	for i := 0; i < 11; i++ {
		state, _ = eng.Update(state, []string{"lo1"}, "item-1", "medium", true, int64(i))
	}
	decision := eng.ShouldStop(state, "lo1")
	assert.False(t, decision.ShouldStop, "11 attempts must never stop, triggers=%v", decision.Triggers)
}

func TestShouldStopUnknownLo(t *testing.T) {
	eng := newTestEngine()
	decision := eng.ShouldStop(learner.NewState("frank"), "lo-missing")
	assert.False(t, decision.ShouldStop)
	assert.Empty(t, decision.Triggers)
}

func TestShouldStopPlateau(t *testing.T) {
	eng := newTestEngine()
	state := learner.NewState("gina")
	lo := state.Lo("lo1")
	lo.ItemsAttempted = 12
	lo.SE = 0.5 // above the SE threshold so only the plateau can fire
	lo.RecentSes = []float64{0.501, 0.502, 0.5, 0.503, 0.501}

	decision := eng.ShouldStop(state, "lo1")
	require.True(t, decision.ShouldStop)
	assert.Contains(t, decision.Triggers, "se_plateau")
	assert.NotContains(t, decision.Triggers, "se_threshold")
}

func TestSuggestNextColdStart(t *testing.T) {
	eng := newTestEngine()
	cands := []selector.CandidateItem{
		{ID: "A", LoIDs: []string{"lo1"}, Beta: 0, MedianTimeSeconds: 60, BlueprintMultiplier: 1, FatigueScalar: 1},
		{ID: "B", LoIDs: []string{"lo1"}, Beta: 0.5, MedianTimeSeconds: 60, BlueprintMultiplier: 1, FatigueScalar: 1},
	}
	got := eng.SuggestNext(learner.NewState("henry"), cands, 1)
	require.NotNil(t, got.Selection)
	assert.Contains(t, got.Rationale, "Info ")
	assert.Contains(t, got.Rationale, "Blueprint×")
	assert.Contains(t, got.Rationale, "θ̂=0.00", "cold start averages to zero theta")
	assert.Contains(t, got.Rationale, "SE=0.80")
	// One value per signal, all on one line.
	assert.Equal(t, 7, strings.Count(got.Rationale, "·"))
}

func TestSuggestNextNoCandidates(t *testing.T) {
	eng := newTestEngine()
	got := eng.SuggestNext(learner.NewState("iris"), nil, 1)
	assert.Nil(t, got.Selection)
	assert.Empty(t, got.Rationale)
}

func TestWithSeedReplays(t *testing.T) {
	eng := newTestEngine().WithSeed(99)
	cands := []selector.CandidateItem{
		{ID: "A", LoIDs: []string{"lo1"}, Beta: 0, MedianTimeSeconds: 60, BlueprintMultiplier: 1, FatigueScalar: 1},
		{ID: "B", LoIDs: []string{"lo1"}, Beta: 0.2, MedianTimeSeconds: 60, BlueprintMultiplier: 1, FatigueScalar: 1},
		{ID: "C", LoIDs: []string{"lo1"}, Beta: -0.2, MedianTimeSeconds: 60, BlueprintMultiplier: 1, FatigueScalar: 1},
	}
	state := learner.NewState("kate")
	first := eng.SuggestNext(state, cands, 1)
	second := eng.SuggestNext(state, cands, 2) // request seed ignored
	require.NotNil(t, first.Selection)
	assert.Equal(t, first.Selection.ItemID, second.Selection.ItemID)
}

func TestScheduleNextLo(t *testing.T) {
	eng := newTestEngine()
	arms := []scheduler.Arm{
		{LoID: "lo1", Mu: 0.4, Sigma: 0.3, Urgency: 1, BlueprintMultiplier: 1, Eligible: true},
		{LoID: "lo2", Mu: 0.1, Sigma: 0.3, Urgency: 1, BlueprintMultiplier: 1, Eligible: true},
	}
	pick := eng.ScheduleNextLo(arms, 11)
	require.NotNil(t, pick)
	again := eng.ScheduleNextLo(arms, 11)
	assert.Equal(t, pick.LoID, again.LoID)
}

func TestComputeRetentionBudget(t *testing.T) {
	eng := newTestEngine()

	deep := eng.ComputeRetentionBudget(10, 45)
	assert.Equal(t, 0.6, deep.Fraction)
	assert.Equal(t, 27, deep.Minutes)

	shallow := eng.ComputeRetentionBudget(2, 45)
	assert.Equal(t, 0.4, shallow.Fraction)
	assert.Equal(t, 18, shallow.Minutes)
}
