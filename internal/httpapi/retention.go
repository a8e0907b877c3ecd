package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yinkev/studyin/internal/analyzer"
	"github.com/yinkev/studyin/internal/retention"
)

const defaultSessionMinutes = 30

func (s *Server) handleRetentionQueue(c *gin.Context) {
	learnerID := c.Query("learnerId")
	if learnerID == "" {
		abortError(c, http.StatusBadRequest, "learnerId is required", nil)
		return
	}
	minutes := float64(defaultSessionMinutes)
	if v := c.Query("minutes"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			abortError(c, http.StatusBadRequest, "minutes must be a positive number", nil)
			return
		}
		minutes = parsed
	}

	state, err := s.rt.Store.Load(c.Request.Context(), learnerID)
	if err != nil {
		writeErr(c, err)
		return
	}

	nowMs := time.Now().UnixMilli()
	cards := make([]retention.Card, 0, len(state.Retention))
	var maxOverdue float64
	for _, card := range state.Retention {
		cards = append(cards, *card)
		if d := retention.OverdueDays(*card, nowMs); d > maxOverdue {
			maxOverdue = d
		}
	}

	budget := s.rt.Engine.ComputeRetentionBudget(maxOverdue, minutes)
	queue := retention.BuildQueue(cards, nowMs, float64(budget.Minutes), s.minuteEstimator())
	if queue == nil {
		queue = []retention.QueueEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"budget": budget, "queue": queue})
}

// minuteEstimator backs review-cost estimates with the latest analytics
// snapshot, falling back to the static heuristic when no snapshot exists or
// an item never appeared in it.
func (s *Server) minuteEstimator() retention.MinuteEstimator {
	snap, err := analyzer.ReadSnapshot(s.cfg.AnalyticsOutPath)
	if err != nil {
		return retention.DefaultMinutes
	}
	minutes := make(map[string]float64, len(snap.ElgPerMin))
	for _, cand := range snap.ElgPerMin {
		minutes[cand.ItemID] = cand.AvgMinutes
	}
	return func(itemID string, loCount int) float64 {
		if m, ok := minutes[itemID]; ok && m > 0 {
			return m
		}
		return retention.DefaultMinutes(itemID, loCount)
	}
}
