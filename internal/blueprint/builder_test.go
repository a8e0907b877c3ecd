package blueprint

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testBlueprint() *Blueprint {
	return &Blueprint{
		SchemaVersion: "1.0.0",
		ID:            "bp-anatomy",
		Weights:       map[string]float64{"lo1": 0.5, "lo2": 0.25, "lo3": 0.25},
	}
}

func bankWith(perLo map[string]int) []FormItem {
	var items []FormItem
	for lo, n := range perLo {
		for i := 0; i < n; i++ {
			items = append(items, FormItem{ID: fmt.Sprintf("%s-item-%02d", lo, i), LoIDs: []string{lo}})
		}
	}
	return items
}

func TestDeriveLoTargets(t *testing.T) {
	got := DeriveLoTargets(testBlueprint(), 8)
	want := map[string]int{"lo1": 4, "lo2": 2, "lo3": 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestDeriveLoTargetsSumInvariant(t *testing.T) {
	bps := []*Blueprint{
		testBlueprint(),
		{ID: "uneven", Weights: map[string]float64{"a": 1, "b": 1, "c": 1}},
		{ID: "unnormalized", Weights: map[string]float64{"a": 3, "b": 5, "c": 9}},
		{ID: "zero", Weights: map[string]float64{"a": 0, "b": 0}},
	}
	for _, bp := range bps {
		for _, length := range []int{1, 5, 8, 17, 100} {
			targets := DeriveLoTargets(bp, length)
			sum := 0
			for _, n := range targets {
				sum += n
			}
			if sum != length {
				t.Errorf("%s/L=%d: targets sum to %d", bp.ID, length, sum)
			}
		}
	}
}

func TestDeriveLoTargetsTiesDeterministic(t *testing.T) {
	bp := &Blueprint{ID: "ties", Weights: map[string]float64{"a": 1, "b": 1, "c": 1, "d": 1}}
	first := DeriveLoTargets(bp, 6)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, DeriveLoTargets(bp, 6)); diff != "" {
			t.Fatalf("tie distribution unstable:\n%s", diff)
		}
	}
}

func TestIsFeasible(t *testing.T) {
	bp := testBlueprint()
	if !IsFeasible(bp, bankWith(map[string]int{"lo1": 10, "lo2": 10, "lo3": 10}), 8) {
		t.Error("ample bank should be feasible")
	}
	if IsFeasible(bp, bankWith(map[string]int{"lo1": 2, "lo2": 10, "lo3": 10}), 8) {
		t.Error("lo1 short of its target should be infeasible")
	}
}

func TestBuildFormGreedyFeasible(t *testing.T) {
	bp := testBlueprint()
	items := bankWith(map[string]int{"lo1": 10, "lo2": 10, "lo3": 10})

	form, err := BuildFormGreedy(bp, items, 8, 1)
	if err != nil {
		t.Fatalf("BuildFormGreedy: %v", err)
	}
	if len(form.ItemIDs) != 8 {
		t.Fatalf("form length = %d, want 8", len(form.ItemIDs))
	}

	seen := make(map[string]bool)
	loCounts := make(map[string]int)
	byID := make(map[string]FormItem)
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, id := range form.ItemIDs {
		if seen[id] {
			t.Fatalf("duplicate item %s in form", id)
		}
		seen[id] = true
		for _, lo := range byID[id].LoIDs {
			loCounts[lo]++
		}
	}
	for lo, target := range form.Targets {
		if loCounts[lo] < target {
			t.Errorf("LO %s: %d items < target %d", lo, loCounts[lo], target)
		}
	}
}

func TestBuildFormGreedyStableUnderSeed(t *testing.T) {
	bp := testBlueprint()
	items := bankWith(map[string]int{"lo1": 10, "lo2": 10, "lo3": 10})

	first, err := BuildFormGreedy(bp, items, 8, 1)
	if err != nil {
		t.Fatalf("BuildFormGreedy: %v", err)
	}
	again, err := BuildFormGreedy(bp, items, 8, 1)
	if err != nil {
		t.Fatalf("BuildFormGreedy: %v", err)
	}
	if diff := cmp.Diff(first.ItemIDs, again.ItemIDs); diff != "" {
		t.Errorf("same seed produced different forms:\n%s", diff)
	}
}

func TestBuildFormGreedyInfeasible(t *testing.T) {
	bp := testBlueprint()
	items := bankWith(map[string]int{"lo1": 2, "lo2": 10, "lo3": 10})

	_, err := BuildFormGreedy(bp, items, 8, 1)
	var deficit *DeficitError
	if !errors.As(err, &deficit) {
		t.Fatalf("want DeficitError, got %v", err)
	}
	if len(deficit.Deficits) != 1 {
		t.Fatalf("deficits = %+v, want exactly lo1", deficit.Deficits)
	}
	d := deficit.Deficits[0]
	if d.LoID != "lo1" || d.Need != 4 || d.Have != 2 {
		t.Errorf("deficit = %+v, want lo1: need 4, have 2", d)
	}
}

func TestBuildFormGreedyMultiLoItems(t *testing.T) {
	// Items covering two LOs count toward both targets.
	bp := &Blueprint{ID: "multi", Weights: map[string]float64{"a": 0.5, "b": 0.5}}
	items := []FormItem{
		{ID: "i1", LoIDs: []string{"a", "b"}},
		{ID: "i2", LoIDs: []string{"a"}},
		{ID: "i3", LoIDs: []string{"b"}},
		{ID: "i4", LoIDs: []string{"a"}},
	}
	form, err := BuildFormGreedy(bp, items, 4, 3)
	if err != nil {
		t.Fatalf("BuildFormGreedy: %v", err)
	}
	if len(form.ItemIDs) != 4 {
		t.Errorf("form length = %d, want 4", len(form.ItemIDs))
	}
}
