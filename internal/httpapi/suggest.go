package httpapi

import (
	"errors"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yinkev/studyin/internal/blueprint"
	"github.com/yinkev/studyin/internal/content"
	"github.com/yinkev/studyin/internal/learner"
	"github.com/yinkev/studyin/internal/logging"
	"github.com/yinkev/studyin/internal/psych"
	"github.com/yinkev/studyin/internal/scheduler"
	"github.com/yinkev/studyin/internal/selector"
)

// defaultMedianSeconds stands in for items authored without timing data.
const defaultMedianSeconds = 60

type suggestRequest struct {
	LearnerID string `json:"learnerId"`
	Seed      uint32 `json:"seed"`
}

func (s *Server) handleSuggest(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "malformed JSON", nil)
		return
	}
	if req.LearnerID == "" {
		abortError(c, http.StatusBadRequest, "learnerId is required", nil)
		return
	}

	state, err := s.rt.Store.Load(c.Request.Context(), req.LearnerID)
	if err != nil {
		writeErr(c, err)
		return
	}

	// A broken blueprint degrades the suggestion to unsteered coverage.
	bp, err := s.loadBlueprint()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Blueprint("blueprint unavailable for suggestion, coverage steering off: %v", err)
	}
	candidates := buildCandidates(s.catalog.Bank(), bp, state, time.Now().UnixMilli())
	suggestion := s.rt.Engine.SuggestNext(state, candidates, req.Seed)
	c.JSON(http.StatusOK, suggestion)
}

// buildCandidates projects the published bank through the learner's exposure
// history and the blueprint's coverage pressure.
func buildCandidates(bank *content.Bank, bp *blueprint.Blueprint, state *learner.State, nowMs int64) []selector.CandidateItem {
	var weightTotal float64
	if bp != nil {
		for _, w := range bp.Weights {
			weightTotal += w
		}
	}
	var attemptTotal int
	for _, lo := range state.Los {
		attemptTotal += lo.ItemsAttempted
	}

	items := bank.Published()
	candidates := make([]selector.CandidateItem, 0, len(items))
	for _, it := range items {
		median := it.MedianTimeSeconds
		if median <= 0 {
			median = defaultMedianSeconds
		}

		// An item relieves whichever of its LOs is furthest behind target.
		multiplier := 1.0
		if bp != nil && weightTotal > 0 {
			multiplier = 0
			for _, lo := range it.Los {
				target := bp.Weights[lo] / weightTotal
				var current float64
				if attemptTotal > 0 {
					if st, ok := state.Los[lo]; ok {
						current = float64(st.ItemsAttempted) / float64(attemptTotal)
					}
				}
				if m := scheduler.BlueprintMultiplier(target, current); m > multiplier {
					multiplier = m
				}
			}
		}

		candidates = append(candidates, selector.CandidateItem{
			ID:                  it.ID,
			LoIDs:               it.Los,
			Beta:                psych.DifficultyToBeta(it.Difficulty),
			Thresholds:          it.Thresholds,
			MedianTimeSeconds:   median,
			BlueprintMultiplier: multiplier,
			Exposure:            exposureFor(state, it.ID, nowMs),
			FatigueScalar:       1,
		})
	}
	return candidates
}

func exposureFor(state *learner.State, itemID string, nowMs int64) selector.Exposure {
	st, ok := state.Items[itemID]
	if !ok || st.Attempts == 0 {
		return selector.Exposure{HoursSinceLast: math.Inf(1), SE: 1}
	}

	var last24h, last7d int
	for _, ts := range st.RecentAttempts {
		age := nowMs - ts
		if age <= 24*3_600_000 {
			last24h++
		}
		if age <= 7*24*3_600_000 {
			last7d++
		}
	}
	mean := float64(st.Correct) / float64(st.Attempts)
	return selector.Exposure{
		Last24h:        last24h,
		Last7d:         last7d,
		HoursSinceLast: float64(nowMs-st.LastAttemptTs) / 3_600_000,
		MeanScore:      mean,
		SE:             math.Sqrt(mean * (1 - mean) / float64(st.Attempts)),
	}
}
