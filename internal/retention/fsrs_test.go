package retention

import (
	"math"
	"testing"
)

func TestUpdateHalfLife(t *testing.T) {
	tests := []struct {
		name     string
		hl       float64
		expected float64
		correct  bool
		wantGain float64
	}{
		{"Surprising success doubles fast", 24, 0, true, 0.8},
		{"Expected success grows slowly", 24, 1, true, 0.2},
		{"Expected failure light penalty", 24, 0, false, -0.15},
		{"Surprising failure heavy penalty", 24, 1, false, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UpdateHalfLife(tt.hl, tt.expected, tt.correct)
			want := tt.hl * math.Exp(tt.wantGain)
			if math.Abs(got-want) > 1e-9 {
				t.Errorf("UpdateHalfLife = %v, want %v", got, want)
			}
		})
	}
}

func TestUpdateHalfLifeFloor(t *testing.T) {
	got := UpdateHalfLife(1.0/60.0, 1, false)
	if got < 1.0/60.0 {
		t.Errorf("half-life fell below one minute: %v", got)
	}
}

func TestScheduleNextReview(t *testing.T) {
	now := int64(1_700_000_000_000)
	if got := ScheduleNextReview(24, now); got != now+24*3_600_000 {
		t.Errorf("24h card scheduled at %d", got)
	}
	// Degenerate half-life still moves forward by at least 1 ms.
	if got := ScheduleNextReview(0, now); got <= now {
		t.Errorf("zero half-life must still schedule in the future, got %d", got)
	}
}

func TestBudgetFraction(t *testing.T) {
	if got := BudgetFraction(8); got != 0.6 {
		t.Errorf("deep overdue fraction = %v, want 0.6", got)
	}
	if got := BudgetFraction(7); got != 0.4 {
		t.Errorf("boundary fraction = %v, want 0.4", got)
	}
	if got := BudgetFraction(0); got != 0.4 {
		t.Errorf("fresh fraction = %v, want 0.4", got)
	}
}

func TestBuildQueueOrdering(t *testing.T) {
	now := int64(10 * 86_400_000)
	cards := []Card{
		{ItemID: "future", NextReviewMs: now + 86_400_000},
		{ItemID: "overdue-2d", NextReviewMs: now - 2*86_400_000},
		{ItemID: "overdue-5d", NextReviewMs: now - 5*86_400_000},
	}
	queue := BuildQueue(cards, now, 120, nil)
	if len(queue) != 3 {
		t.Fatalf("queue length = %d, want 3", len(queue))
	}
	want := []string{"overdue-5d", "overdue-2d", "future"}
	for i, w := range want {
		if queue[i].Card.ItemID != w {
			t.Fatalf("queue order = %v, want %v at %d", queue[i].Card.ItemID, w, i)
		}
	}
}

func TestBuildQueueBudget(t *testing.T) {
	now := int64(1_000_000)
	cards := []Card{
		{ItemID: "a", LoIDs: []string{"lo1"}, NextReviewMs: 0},
		{ItemID: "b", LoIDs: []string{"lo1"}, NextReviewMs: 1},
		{ItemID: "c", LoIDs: []string{"lo1"}, NextReviewMs: 2},
	}
	// Each card estimates (90+6)/60 = 1.6 minutes. A 4-minute budget fits two
	// cards; the third would push the total to 4.8 and is cut.
	queue := BuildQueue(cards, now, 4, nil)
	if len(queue) != 2 {
		t.Fatalf("queue length = %d, want 2 within 4 minutes", len(queue))
	}
}

func TestBuildQueueKeepsAtLeastOne(t *testing.T) {
	now := int64(1_000_000)
	cards := []Card{{ItemID: "big", LoIDs: []string{"a", "b", "c"}, NextReviewMs: 0}}
	queue := BuildQueue(cards, now, 0.1, nil)
	if len(queue) != 1 {
		t.Fatalf("at least one card must survive, got %d", len(queue))
	}
}

func TestBuildQueueCustomEstimator(t *testing.T) {
	now := int64(1_000_000)
	cards := []Card{
		{ItemID: "cheap", NextReviewMs: 0},
		{ItemID: "dear", NextReviewMs: 1},
	}
	est := func(itemID string, _ int) float64 {
		if itemID == "dear" {
			return 50
		}
		return 1
	}
	queue := BuildQueue(cards, now, 5, est)
	if len(queue) != 1 || queue[0].Card.ItemID != "cheap" {
		t.Fatalf("estimator not honored: %+v", queue)
	}
}

func TestBuildQueueEmpty(t *testing.T) {
	if got := BuildQueue(nil, 0, 10, nil); got != nil {
		t.Errorf("empty cards should return nil, got %v", got)
	}
}
