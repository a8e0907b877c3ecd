// Package retention implements the FSRS-style retention lane: exponential
// half-life updates, next-review scheduling and the session retention budget.
package retention

import (
	"math"
	"sort"

	"github.com/yinkev/studyin/internal/logging"
)

const (
	// minHalfLifeHours is one minute.
	minHalfLifeHours = 1.0 / 60.0

	msPerHour = 3_600_000.0
	msPerDay  = 86_400_000.0
)

// Card is a per-learner, per-item retention record.
type Card struct {
	ItemID        string   `json:"itemId"`
	LoIDs         []string `json:"loIds"`
	HalfLifeHours float64  `json:"halfLifeHours"`
	NextReviewMs  int64    `json:"nextReviewMs"`
	LastReviewMs  int64    `json:"lastReviewMs"`
	Lapses        int      `json:"lapses"`
}

// UpdateHalfLife grows the half-life on a correct review (more for surprising
// successes) and shrinks it on a lapse (more for surprising failures).
// expected is the predicted recall probability at review time.
func UpdateHalfLife(halfLifeHours, expected float64, correct bool) float64 {
	var gain float64
	if correct {
		gain = 0.2 + 0.6*(1-expected)
	} else {
		gain = -0.5 * (0.3 + 0.7*expected)
	}
	next := halfLifeHours * math.Exp(gain)
	if next < minHalfLifeHours {
		next = minHalfLifeHours
	}
	return next
}

// ScheduleNextReview returns the next review timestamp for a card.
func ScheduleNextReview(halfLifeHours float64, nowMs int64) int64 {
	intervalMs := halfLifeHours * msPerHour
	if intervalMs < 1 {
		intervalMs = 1
	}
	return nowMs + int64(intervalMs)
}

// BudgetFraction returns the share of a session to spend on retention,
// given the most overdue card in days.
func BudgetFraction(maxDaysOverdue float64) float64 {
	if maxDaysOverdue > 7 {
		return 0.6
	}
	return 0.4
}

// OverdueDays returns how many days past due a card is at now (0 if not due).
func OverdueDays(c Card, nowMs int64) float64 {
	if c.NextReviewMs >= nowMs {
		return 0
	}
	return float64(nowMs-c.NextReviewMs) / msPerDay
}

// MinuteEstimator maps an item id to an estimated review duration in
// minutes. The analyzer's elg_per_min table backs the real estimator.
type MinuteEstimator func(itemID string, loCount int) float64

// DefaultMinutes is the fallback estimate when no analytics are available.
func DefaultMinutes(_ string, loCount int) float64 {
	return (90 + 6*float64(loCount)) / 60
}

// QueueEntry is one scheduled review with its cost estimate.
type QueueEntry struct {
	Card             Card    `json:"card"`
	OverdueDays      float64 `json:"overdueDays"`
	EstimatedMinutes float64 `json:"estimatedMinutes"`
}

// BuildQueue orders cards (overdue first, then by nextReviewMs, ties broken
// by larger overdue) and fills the minute budget. At least one card is kept
// whenever any card exists, even if its estimate alone exceeds the budget.
func BuildQueue(cards []Card, nowMs int64, budgetMinutes float64, estimate MinuteEstimator) []QueueEntry {
	if len(cards) == 0 {
		return nil
	}
	if estimate == nil {
		estimate = DefaultMinutes
	}

	sorted := make([]Card, len(cards))
	copy(sorted, cards)
	sort.SliceStable(sorted, func(i, j int) bool {
		oi, oj := OverdueDays(sorted[i], nowMs) > 0, OverdueDays(sorted[j], nowMs) > 0
		if oi != oj {
			return oi
		}
		if sorted[i].NextReviewMs != sorted[j].NextReviewMs {
			return sorted[i].NextReviewMs < sorted[j].NextReviewMs
		}
		return OverdueDays(sorted[i], nowMs) > OverdueDays(sorted[j], nowMs)
	})

	var queue []QueueEntry
	var spent float64
	for _, c := range sorted {
		minutes := estimate(c.ItemID, len(c.LoIDs))
		if len(queue) > 0 && spent+minutes > budgetMinutes {
			break
		}
		queue = append(queue, QueueEntry{
			Card:             c,
			OverdueDays:      OverdueDays(c, nowMs),
			EstimatedMinutes: minutes,
		})
		spent += minutes
		if spent > budgetMinutes {
			break
		}
	}
	logging.Retention("retention queue: %d of %d cards within %.1f min budget", len(queue), len(cards), budgetMinutes)
	return queue
}
