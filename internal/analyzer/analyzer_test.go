package analyzer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yinkev/studyin/internal/telemetry"
)

const nowMs = int64(1_700_000_000_000)

func attempt(user, session, item, choice string, correct bool, durationMs int64, los ...string) telemetry.AttemptEvent {
	if len(los) == 0 {
		los = []string{"lo1"}
	}
	return telemetry.AttemptEvent{
		SchemaVersion: telemetry.SchemaVersion,
		SessionID:     session,
		UserID:        user,
		ItemID:        item,
		LoIDs:         los,
		TsStart:       nowMs - durationMs,
		TsSubmit:      nowMs,
		DurationMs:    durationMs,
		Mode:          "learn",
		Choice:        choice,
		Correct:       correct,
	}
}

func TestAnalyzeEmptyLog(t *testing.T) {
	snap := Analyze(nil, nowMs)

	assert.Equal(t, SnapshotSchemaVersion, snap.SchemaVersion)
	assert.False(t, snap.HasEvents)
	assert.Zero(t, snap.Totals.Attempts)
	assert.Zero(t, snap.Totals.Learners)
	assert.Empty(t, snap.TtmPerLo)
	assert.Empty(t, snap.ElgPerMin)
	assert.Empty(t, snap.ConfusionEdges)
	assert.Empty(t, snap.NfdSummary)
	assert.Nil(t, snap.Reliability.Kr20)
	assert.NotNil(t, snap.TtmPerLo, "arrays serialize as [], not null")
	assert.NotNil(t, snap.Reliability.ItemPointBiserial)
}

func TestSpeedAccuracyQuadrants(t *testing.T) {
	attempts := []telemetry.AttemptEvent{
		attempt("u1", "s1", "i1", "A", true, 10_000),
		attempt("u1", "s1", "i2", "B", false, 20_000),
		attempt("u1", "s1", "i3", "A", true, 60_000),
		attempt("u1", "s1", "i4", "C", false, 90_000),
		attempt("u1", "s1", "i5", "A", true, 44_999),
	}
	snap := Analyze(attempts, nowMs)
	assert.Equal(t, SpeedAccuracy{FastRight: 2, FastWrong: 1, SlowRight: 1, SlowWrong: 1}, snap.SpeedAccuracy)
}

func TestTtmPerLo(t *testing.T) {
	attempts := []telemetry.AttemptEvent{
		attempt("u1", "s1", "i1", "A", true, 30_000),
		attempt("u1", "s1", "i1", "A", true, 30_000),
		attempt("u1", "s1", "i1", "B", false, 30_000),
	}
	// Age the log: the last touch was four days ago.
	for i := range attempts {
		attempts[i].TsSubmit = nowMs - 4*24*60*60*1000
	}
	snap := Analyze(attempts, nowMs)

	require.Len(t, snap.TtmPerLo, 1)
	lo := snap.TtmPerLo[0]
	assert.Equal(t, "lo1", lo.LoID)
	assert.Equal(t, 3, lo.Attempts)
	assert.InDelta(t, 2.0/3.0, lo.Accuracy, 1e-9)
	assert.InDelta(t, 30.0, lo.AvgDurationSec, 1e-9)
	assert.InDelta(t, 0.82-2.0/3.0, lo.Deficit, 1e-9)
	assert.Equal(t, 2, lo.AttemptsNeeded, "deficit 0.153 needs ceil(0.153/0.12) = 2 attempts")
	assert.InDelta(t, 1.0, lo.ProjectedMinutesToMastery, 1e-9)
	assert.True(t, lo.Overdue)
}

func TestElgPerMinTopThree(t *testing.T) {
	var attempts []telemetry.AttemptEvent
	// lo-weak is far from mastery, lo-strong is already there.
	for i := 0; i < 10; i++ {
		attempts = append(attempts, attempt("u1", "s1", "i-weak", "B", i < 2, 60_000, "lo-weak"))
		attempts = append(attempts, attempt("u1", "s1", "i-strong", "A", true, 60_000, "lo-strong"))
		attempts = append(attempts, attempt("u1", "s1", "i-slow", "B", i < 2, 120_000, "lo-weak"))
		attempts = append(attempts, attempt("u1", "s1", "i-mixed", "B", i < 2, 60_000, "lo-weak", "lo-strong"))
	}
	snap := Analyze(attempts, nowMs)

	require.Len(t, snap.ElgPerMin, 3, "only the top three candidates are kept")
	// i-weak and i-mixed share the same gain and minutes; ties break on id.
	assert.Equal(t, "i-mixed", snap.ElgPerMin[0].ItemID)
	assert.Equal(t, "i-weak", snap.ElgPerMin[1].ItemID)
	assert.Equal(t, "i-slow", snap.ElgPerMin[2].ItemID, "twice the minutes halves the score")
	assert.Greater(t, snap.ElgPerMin[0].Score, snap.ElgPerMin[2].Score)
}

func TestConfusionEdges(t *testing.T) {
	attempts := []telemetry.AttemptEvent{
		attempt("u1", "s1", "i1", "C", false, 10_000),
		attempt("u1", "s1", "i1", "C", false, 10_000),
		attempt("u1", "s1", "i1", "D", false, 10_000),
		attempt("u1", "s1", "i1", "A", true, 10_000),
	}
	snap := Analyze(attempts, nowMs)

	require.Len(t, snap.ConfusionEdges, 2, "correct attempts contribute no edges")
	assert.Equal(t, ConfusionEdge{LoID: "lo1", ItemID: "i1", Choice: "C", Count: 2}, snap.ConfusionEdges[0])
	assert.Equal(t, ConfusionEdge{LoID: "lo1", ItemID: "i1", Choice: "D", Count: 1}, snap.ConfusionEdges[1])
}

func TestNonFunctionalDistractors(t *testing.T) {
	var attempts []telemetry.AttemptEvent
	addPicks := func(choice string, n int) {
		for i := 0; i < n; i++ {
			attempts = append(attempts, attempt("u1", "s1", "i1", choice, choice == "A", 10_000))
		}
	}
	// 40 attempts: E never picked, D at exactly the 5% pick-rate boundary.
	addPicks("A", 30)
	addPicks("B", 4)
	addPicks("C", 4)
	addPicks("D", 2)
	snap := Analyze(attempts, nowMs)

	require.Len(t, snap.NfdSummary, 1)
	flag := snap.NfdSummary[0]
	assert.Equal(t, "E", flag.Choice)
	assert.Equal(t, 40, flag.Attempts)
	assert.Zero(t, flag.PickRate)
	assert.Less(t, flag.WilsonUpper, 0.10)
}

func TestNfdNeedsTwentyAttempts(t *testing.T) {
	var attempts []telemetry.AttemptEvent
	for i := 0; i < 19; i++ {
		attempts = append(attempts, attempt("u1", "s1", "i1", "A", true, 10_000))
	}
	snap := Analyze(attempts, nowMs)
	assert.Empty(t, snap.NfdSummary)
}

func TestReliabilityGate(t *testing.T) {
	// A single session has no total-score variance, and one learner never
	// yields discrimination.
	attempts := []telemetry.AttemptEvent{
		attempt("u1", "s1", "i1", "A", true, 10_000),
		attempt("u1", "s1", "i2", "B", false, 10_000),
	}
	snap := Analyze(attempts, nowMs)
	assert.Nil(t, snap.Reliability.Kr20)
	assert.Empty(t, snap.Reliability.ItemPointBiserial)
}

func TestReliabilitySingleLearnerKr20(t *testing.T) {
	// KR-20 only needs multi-item sessions, so one learner across two
	// sessions gets a coefficient; the point-biserial still needs a second
	// learner.
	attempts := []telemetry.AttemptEvent{
		attempt("u1", "s1", "i1", "A", true, 10_000),
		attempt("u1", "s1", "i2", "A", true, 10_000),
		attempt("u1", "s2", "i1", "B", false, 10_000),
		attempt("u1", "s2", "i2", "B", false, 10_000),
	}
	snap := Analyze(attempts, nowMs)

	// Session totals [2,0]: sample variance 2, Σpq = 0.5, k = 2:
	// kr20 = 2·(1 − 0.5/2) = 1.5.
	require.NotNil(t, snap.Reliability.Kr20)
	assert.InDelta(t, 1.5, *snap.Reliability.Kr20, 1e-9)
	assert.Empty(t, snap.Reliability.ItemPointBiserial)
}

func TestReliabilityKr20(t *testing.T) {
	attempts := []telemetry.AttemptEvent{
		attempt("u1", "s1", "i1", "A", true, 10_000),
		attempt("u1", "s1", "i2", "A", true, 10_000),
		attempt("u1", "s2", "i1", "B", false, 10_000),
		attempt("u1", "s2", "i2", "B", false, 10_000),
		attempt("u2", "s3", "i1", "A", true, 10_000),
		attempt("u2", "s3", "i2", "B", false, 10_000),
		attempt("u2", "s4", "i1", "B", false, 10_000),
		attempt("u2", "s4", "i2", "A", true, 10_000),
	}
	snap := Analyze(attempts, nowMs)

	// Session totals [2,0,1,1]: sample variance 2/3, Σpq = 0.5, k = 2:
	// kr20 = 2·(1 − 0.5/(2/3)) = 0.5.
	require.NotNil(t, snap.Reliability.Kr20)
	assert.InDelta(t, 0.5, *snap.Reliability.Kr20, 1e-9)

	require.Len(t, snap.Reliability.ItemPointBiserial, 2)
	assert.Equal(t, "i1", snap.Reliability.ItemPointBiserial[0].ItemID)
	assert.Equal(t, 4, snap.Reliability.ItemPointBiserial[0].N)
	assert.InDelta(t, 0.0, snap.Reliability.ItemPointBiserial[0].R, 1e-9,
		"i1 and the rest score are uncorrelated in this design")
}

func TestRunWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.ndjson")
	outPath := filepath.Join(dir, "analytics", "latest.json")

	sink := telemetry.NewFileSink(eventsPath, true)
	require.NoError(t, sink.Attempt(context.Background(), attempt("u1", "s1", "i1", "A", true, 10_000)))

	snap, err := Run(eventsPath, outPath)
	require.NoError(t, err)
	assert.True(t, snap.HasEvents)
	assert.Equal(t, 1, snap.Totals.Attempts)

	loaded, err := ReadSnapshot(outPath)
	require.NoError(t, err)
	assert.Equal(t, snap.Totals, loaded.Totals)
	assert.Equal(t, SnapshotSchemaVersion, loaded.SchemaVersion)
}
