package blueprint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yinkev/studyin/internal/logging"
	"github.com/yinkev/studyin/internal/rng"
)

// FormItem is the builder's view of a bank item.
type FormItem struct {
	ID    string   `json:"id"`
	LoIDs []string `json:"loIds"`
}

// ExamForm is a fully assembled form.
type ExamForm struct {
	BlueprintID string         `json:"blueprintId"`
	Length      int            `json:"length"`
	Seed        int64          `json:"seed"`
	Targets     map[string]int `json:"targets"`
	ItemIDs     []string       `json:"itemIds"`
}

// LoDeficit names one LO the bank cannot satisfy.
type LoDeficit struct {
	LoID string `json:"loId"`
	Need int    `json:"need"`
	Have int    `json:"have"`
}

// DeficitError reports an infeasible blueprint.
type DeficitError struct {
	BlueprintID string      `json:"blueprintId"`
	Deficits    []LoDeficit `json:"deficits"`
}

func (e *DeficitError) Error() string {
	parts := make([]string, len(e.Deficits))
	for i, d := range e.Deficits {
		parts[i] = fmt.Sprintf("%s: need %d, have %d", d.LoID, d.Need, d.Have)
	}
	return fmt.Sprintf("blueprint %s infeasible: %s", e.BlueprintID, strings.Join(parts, "; "))
}

// coverageCounts returns how many bank items cover each LO.
func coverageCounts(items []FormItem) map[string]int {
	counts := make(map[string]int)
	for _, it := range items {
		for _, lo := range it.LoIDs {
			counts[lo]++
		}
	}
	return counts
}

// IsFeasible reports whether the bank can meet every LO target.
func IsFeasible(bp *Blueprint, items []FormItem, formLength int) bool {
	return feasibilityDeficits(bp, items, formLength) == nil
}

func feasibilityDeficits(bp *Blueprint, items []FormItem, formLength int) []LoDeficit {
	targets := DeriveLoTargets(bp, formLength)
	counts := coverageCounts(items)

	los := make([]string, 0, len(targets))
	for lo := range targets {
		los = append(los, lo)
	}
	sort.Strings(los)

	var deficits []LoDeficit
	for _, lo := range los {
		if counts[lo] < targets[lo] {
			deficits = append(deficits, LoDeficit{LoID: lo, Need: targets[lo], Have: counts[lo]})
		}
	}
	if len(items) < formLength {
		deficits = append(deficits, LoDeficit{LoID: "*", Need: formLength, Have: len(items)})
	}
	return deficits
}

// BuildFormGreedy assembles a form of formLength distinct items. Each round
// it fills the LO with the highest remaining deficit, picking uniformly at
// random (seeded Lehmer LCG) among unchosen items covering that LO; when no
// deficited LO has a candidate left, it draws from the remaining pool.
// Returns *DeficitError when the blueprint is infeasible.
func BuildFormGreedy(bp *Blueprint, items []FormItem, formLength int, seed int64) (*ExamForm, error) {
	timer := logging.StartTimer(logging.CategoryBlueprint, "BuildFormGreedy")
	defer timer.Stop()

	if deficits := feasibilityDeficits(bp, items, formLength); deficits != nil {
		logging.Blueprint("form build rejected: %d deficit LOs for blueprint %s", len(deficits), bp.ID)
		return nil, &DeficitError{BlueprintID: bp.ID, Deficits: deficits}
	}

	targets := DeriveLoTargets(bp, formLength)
	gen := rng.NewLCG(seed)

	// Sorted pool so the LCG walk is reproducible across map orders.
	pool := make([]FormItem, len(items))
	copy(pool, items)
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })

	chosen := make([]string, 0, formLength)
	chosenSet := make(map[string]bool, formLength)
	loCounts := make(map[string]int, len(targets))

	los := make([]string, 0, len(targets))
	for lo := range targets {
		los = append(los, lo)
	}
	sort.Strings(los)

	pickFrom := func(cands []FormItem) FormItem {
		return cands[gen.Intn(len(cands))]
	}

	for len(chosen) < formLength {
		// Highest deficit LO with at least one unchosen candidate.
		bestLo := ""
		bestDeficit := 0
		var bestCands []FormItem
		for _, lo := range los {
			deficit := targets[lo] - loCounts[lo]
			if deficit <= bestDeficit || deficit <= 0 {
				continue
			}
			var cands []FormItem
			for _, it := range pool {
				if chosenSet[it.ID] {
					continue
				}
				for _, l := range it.LoIDs {
					if l == lo {
						cands = append(cands, it)
						break
					}
				}
			}
			if len(cands) > 0 {
				bestLo, bestDeficit, bestCands = lo, deficit, cands
			}
		}

		var pick FormItem
		if bestLo != "" {
			pick = pickFrom(bestCands)
		} else {
			var rest []FormItem
			for _, it := range pool {
				if !chosenSet[it.ID] {
					rest = append(rest, it)
				}
			}
			if len(rest) == 0 {
				// Feasibility held, so this only happens on duplicate ids.
				return nil, fmt.Errorf("item pool exhausted at %d/%d items", len(chosen), formLength)
			}
			pick = pickFrom(rest)
		}

		chosen = append(chosen, pick.ID)
		chosenSet[pick.ID] = true
		for _, lo := range pick.LoIDs {
			loCounts[lo]++
		}
	}

	logging.Blueprint("built form for blueprint %s: %d items, seed %d", bp.ID, len(chosen), seed)
	return &ExamForm{
		BlueprintID: bp.ID,
		Length:      formLength,
		Seed:        seed,
		Targets:     targets,
		ItemIDs:     chosen,
	}, nil
}
