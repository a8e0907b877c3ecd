package analyzer

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/yinkev/studyin/internal/logging"
	"github.com/yinkev/studyin/internal/telemetry"
)

const (
	// speedThresholdMs splits fast from slow attempts.
	speedThresholdMs = 45_000

	// masteryTarget / gainPerAttempt drive the TTM projection.
	masteryTarget  = 0.82
	gainPerAttempt = 0.12

	// overdueAfterMs marks an LO overdue when untouched this long.
	overdueAfterMs = 3 * 24 * 60 * 60 * 1000

	// elgTopN bounds the ELG/min recommendation list.
	elgTopN = 3

	// nfdMinAttempts gates distractor analysis; below this the pick rates
	// are too noisy to flag anything.
	nfdMinAttempts = 20
	nfdPickRateMax = 0.05
	nfdWilsonMax   = 0.10
	wilsonZ        = 1.96

	epsilon = 1e-6
)

// Analyze rolls the attempt log into a snapshot. Pure: same attempts and
// nowMs always produce the same document (modulo generated_at formatting of
// nowMs itself).
func Analyze(attempts []telemetry.AttemptEvent, nowMs int64) *Snapshot {
	timer := logging.StartTimer(logging.CategoryAnalyzer, "Analyze")
	defer timer.Stop()

	snap := &Snapshot{
		SchemaVersion:  SnapshotSchemaVersion,
		GeneratedAt:    nowISO(nowMs),
		HasEvents:      len(attempts) > 0,
		TtmPerLo:       []LoTtm{},
		ElgPerMin:      []ElgCandidate{},
		ConfusionEdges: []ConfusionEdge{},
		NfdSummary:     []NfdFlag{},
		Reliability:    Reliability{ItemPointBiserial: []ItemPointBiserial{}},
	}
	if len(attempts) == 0 {
		return snap
	}

	learners := make(map[string]int)
	for _, a := range attempts {
		learners[a.UserID]++
	}
	snap.Totals = Totals{Attempts: len(attempts), Learners: len(learners)}

	snap.SpeedAccuracy = speedAccuracy(attempts)
	ttm, deficits := ttmPerLo(attempts, nowMs)
	snap.TtmPerLo = ttm
	snap.ElgPerMin = elgPerMin(attempts, deficits)
	snap.ConfusionEdges = confusionEdges(attempts)
	snap.NfdSummary = nonFunctionalDistractors(attempts)
	snap.Reliability = reliability(attempts, learners)
	return snap
}

// Run reads the attempt NDJSON, analyzes it and writes the snapshot.
func Run(eventsPath, outPath string) (*Snapshot, error) {
	attempts, skipped, err := telemetry.ReadAttempts(eventsPath)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logging.Analyzer("analyze: %d malformed lines skipped", skipped)
	}
	snap := Analyze(attempts, time.Now().UnixMilli())
	if err := snap.Write(outPath); err != nil {
		return nil, err
	}
	logging.Analyzer("snapshot written to %s (%d attempts, %d learners)",
		outPath, snap.Totals.Attempts, snap.Totals.Learners)
	return snap, nil
}

func speedAccuracy(attempts []telemetry.AttemptEvent) SpeedAccuracy {
	var sa SpeedAccuracy
	for _, a := range attempts {
		fast := a.DurationMs < speedThresholdMs
		switch {
		case fast && a.Correct:
			sa.FastRight++
		case fast:
			sa.FastWrong++
		case a.Correct:
			sa.SlowRight++
		default:
			sa.SlowWrong++
		}
	}
	return sa
}

// ttmPerLo also returns the deficit map reused by the ELG ranking.
func ttmPerLo(attempts []telemetry.AttemptEvent, nowMs int64) ([]LoTtm, map[string]float64) {
	type loAgg struct {
		attempts   int
		correct    int
		durationMs int64
		lastTs     int64
	}
	aggs := make(map[string]*loAgg)
	for _, a := range attempts {
		for _, lo := range a.LoIDs {
			agg, ok := aggs[lo]
			if !ok {
				agg = &loAgg{}
				aggs[lo] = agg
			}
			agg.attempts++
			if a.Correct {
				agg.correct++
			}
			agg.durationMs += a.DurationMs
			if a.TsSubmit > agg.lastTs {
				agg.lastTs = a.TsSubmit
			}
		}
	}

	deficits := make(map[string]float64, len(aggs))
	out := make([]LoTtm, 0, len(aggs))
	for lo, agg := range aggs {
		accuracy := float64(agg.correct) / float64(agg.attempts)
		avgSec := float64(agg.durationMs) / float64(agg.attempts) / 1000.0
		deficit := math.Max(0, masteryTarget-accuracy)
		needed := int(math.Ceil(deficit / gainPerAttempt))
		deficits[lo] = deficit
		out = append(out, LoTtm{
			LoID:                      lo,
			Attempts:                  agg.attempts,
			Accuracy:                  accuracy,
			AvgDurationSec:            avgSec,
			Deficit:                   deficit,
			AttemptsNeeded:            needed,
			ProjectedMinutesToMastery: round2(float64(needed) * avgSec / 60.0),
			Overdue:                   nowMs-agg.lastTs > overdueAfterMs,
			LastAttemptTs:             agg.lastTs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoID < out[j].LoID })
	return out, deficits
}

func elgPerMin(attempts []telemetry.AttemptEvent, deficits map[string]float64) []ElgCandidate {
	type itemAgg struct {
		loIDs      []string
		attempts   int
		durationMs int64
	}
	aggs := make(map[string]*itemAgg)
	for _, a := range attempts {
		agg, ok := aggs[a.ItemID]
		if !ok {
			agg = &itemAgg{loIDs: a.LoIDs}
			aggs[a.ItemID] = agg
		}
		agg.attempts++
		agg.durationMs += a.DurationMs
	}

	candidates := make([]ElgCandidate, 0, len(aggs))
	for itemID, agg := range aggs {
		// An item's projected gain is the steepest remaining deficit among
		// the LOs it covers.
		var gain float64
		for _, lo := range agg.loIDs {
			if d := deficits[lo]; d > gain {
				gain = d
			}
		}
		avgMin := float64(agg.durationMs) / float64(agg.attempts) / 60_000.0
		if avgMin < epsilon {
			avgMin = epsilon
		}
		candidates = append(candidates, ElgCandidate{
			ItemID:        itemID,
			LoIDs:         agg.loIDs,
			ProjectedGain: gain,
			AvgMinutes:    avgMin,
			Score:         gain / avgMin,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ItemID < candidates[j].ItemID
	})
	if len(candidates) > elgTopN {
		candidates = candidates[:elgTopN]
	}
	return candidates
}

func confusionEdges(attempts []telemetry.AttemptEvent) []ConfusionEdge {
	type key struct{ lo, item, choice string }
	counts := make(map[key]int)
	for _, a := range attempts {
		if a.Correct {
			continue
		}
		for _, lo := range a.LoIDs {
			counts[key{lo, a.ItemID, a.Choice}]++
		}
	}
	edges := make([]ConfusionEdge, 0, len(counts))
	for k, n := range counts {
		edges = append(edges, ConfusionEdge{LoID: k.lo, ItemID: k.item, Choice: k.choice, Count: n})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Count != edges[j].Count {
			return edges[i].Count > edges[j].Count
		}
		if edges[i].LoID != edges[j].LoID {
			return edges[i].LoID < edges[j].LoID
		}
		if edges[i].ItemID != edges[j].ItemID {
			return edges[i].ItemID < edges[j].ItemID
		}
		return edges[i].Choice < edges[j].Choice
	})
	return edges
}

func nonFunctionalDistractors(attempts []telemetry.AttemptEvent) []NfdFlag {
	type itemAgg struct {
		attempts int
		picks    map[string]int
	}
	aggs := make(map[string]*itemAgg)
	for _, a := range attempts {
		agg, ok := aggs[a.ItemID]
		if !ok {
			agg = &itemAgg{picks: make(map[string]int)}
			aggs[a.ItemID] = agg
		}
		agg.attempts++
		agg.picks[a.Choice]++
	}

	var flags []NfdFlag
	for itemID, agg := range aggs {
		if agg.attempts < nfdMinAttempts {
			continue
		}
		for _, choice := range []string{"A", "B", "C", "D", "E"} {
			count := agg.picks[choice]
			pickRate := float64(count) / float64(agg.attempts)
			upper := wilsonUpper(count, agg.attempts, wilsonZ)
			if pickRate < nfdPickRateMax && upper < nfdWilsonMax {
				flags = append(flags, NfdFlag{
					ItemID:      itemID,
					Choice:      choice,
					Attempts:    agg.attempts,
					PickRate:    pickRate,
					WilsonUpper: upper,
				})
			}
		}
	}
	sort.Slice(flags, func(i, j int) bool {
		if flags[i].ItemID != flags[j].ItemID {
			return flags[i].ItemID < flags[j].ItemID
		}
		return flags[i].Choice < flags[j].Choice
	})
	if flags == nil {
		flags = []NfdFlag{}
	}
	return flags
}

// wilsonUpper is the upper bound of the Wilson score interval for count
// successes in n trials.
func wilsonUpper(count, n int, z float64) float64 {
	if n == 0 {
		return 1
	}
	p := float64(count) / float64(n)
	nf := float64(n)
	denom := 1 + z*z/nf
	center := p + z*z/(2*nf)
	margin := z * math.Sqrt(p*(1-p)/nf+z*z/(4*nf*nf))
	return (center + margin) / denom
}

// reliability computes KR-20 across sessions with at least two items and the
// per-item point-biserial against the rest-of-session score. KR-20 needs only
// multi-item sessions; the discrimination loop additionally requires at least
// two learners with at least two attempts each.
func reliability(attempts []telemetry.AttemptEvent, learners map[string]int) Reliability {
	rel := Reliability{ItemPointBiserial: []ItemPointBiserial{}}

	// First response per (session, item); repeats within a session do not
	// re-score the item.
	type sessionScore struct {
		items map[string]float64
	}
	sessions := make(map[string]*sessionScore)
	var sessionIDs []string
	for _, a := range attempts {
		s, ok := sessions[a.SessionID]
		if !ok {
			s = &sessionScore{items: make(map[string]float64)}
			sessions[a.SessionID] = s
			sessionIDs = append(sessionIDs, a.SessionID)
		}
		if _, seen := s.items[a.ItemID]; !seen {
			if a.Correct {
				s.items[a.ItemID] = 1
			} else {
				s.items[a.ItemID] = 0
			}
		}
	}
	sort.Strings(sessionIDs)

	// Only sessions with >= 2 items carry reliability signal.
	var scored []string
	itemSet := make(map[string]bool)
	for _, id := range sessionIDs {
		if len(sessions[id].items) >= 2 {
			scored = append(scored, id)
			for item := range sessions[id].items {
				itemSet[item] = true
			}
		}
	}
	if len(scored) == 0 || len(itemSet) < 2 {
		return rel
	}

	totals := make([]float64, len(scored))
	for i, id := range scored {
		for _, v := range sessions[id].items {
			totals[i] += v
		}
	}
	variance := stat.Variance(totals, nil)

	if variance > 0 {
		var sumPQ float64
		for item := range itemSet {
			var n, correct float64
			for _, id := range scored {
				if v, ok := sessions[id].items[item]; ok {
					n++
					correct += v
				}
			}
			p := correct / n
			sumPQ += p * (1 - p)
		}
		k := float64(len(itemSet))
		kr20 := (k / (k - 1)) * (1 - sumPQ/variance)
		rel.Kr20 = &kr20
	}

	// Cross-learner discrimination carries no signal for a single learner.
	qualified := 0
	for _, n := range learners {
		if n >= 2 {
			qualified++
		}
	}
	if qualified < 2 {
		return rel
	}

	items := make([]string, 0, len(itemSet))
	for item := range itemSet {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		var xs, ys []float64
		for _, id := range scored {
			v, ok := sessions[id].items[item]
			if !ok {
				continue
			}
			var rest float64
			for other, score := range sessions[id].items {
				if other != item {
					rest += score
				}
			}
			xs = append(xs, v)
			ys = append(ys, rest)
		}
		if len(xs) < 2 {
			continue
		}
		if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
			continue
		}
		rel.ItemPointBiserial = append(rel.ItemPointBiserial, ItemPointBiserial{
			ItemID: item,
			R:      stat.Correlation(xs, ys, nil),
			N:      len(xs),
		})
	}
	return rel
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
