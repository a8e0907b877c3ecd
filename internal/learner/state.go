// Package learner defines the durable per-learner state document and the
// store contract that persists it. One document per learner: ability state
// per LO, exposure counts per item, and the retention card table.
package learner

import (
	"regexp"

	"github.com/yinkev/studyin/internal/retention"
)

const (
	// RecentSesWindow bounds the rolling SE history per LO.
	RecentSesWindow = 10

	// RecentAttemptsWindow bounds the rolling attempt-timestamp history per item.
	RecentAttemptsWindow = 20

	// Floors applied on load and after every update.
	minSE         = 0.0001
	minPriorSigma = 0.25

	// Defaults for a cold-start LO.
	DefaultPriorMu    = 0.0
	DefaultPriorSigma = 0.8
)

// LoState is a learner's ability state on one learning objective.
type LoState struct {
	ThetaHat            float64   `json:"thetaHat"`
	SE                  float64   `json:"se"`
	ItemsAttempted      int       `json:"itemsAttempted"`
	RecentSes           []float64 `json:"recentSes"`
	LastProbeDifficulty *float64  `json:"lastProbeDifficulty,omitempty"`
	MasteryConfirmed    bool      `json:"masteryConfirmed"`
	PriorMu             float64   `json:"priorMu"`
	PriorSigma          float64   `json:"priorSigma"`
}

// NewLoState returns a cold-start LO state.
func NewLoState() *LoState {
	return &LoState{
		SE:         DefaultPriorSigma,
		PriorMu:    DefaultPriorMu,
		PriorSigma: DefaultPriorSigma,
	}
}

// ItemState is a learner's exposure history with one item.
type ItemState struct {
	Attempts       int     `json:"attempts"`
	Correct        int     `json:"correct"`
	LastAttemptTs  int64   `json:"lastAttemptTs"`
	RecentAttempts []int64 `json:"recentAttempts"`
}

// State is the whole per-learner document.
type State struct {
	LearnerID string                     `json:"learnerId"`
	UpdatedAt string                     `json:"updatedAt"`
	Los       map[string]*LoState        `json:"los"`
	Items     map[string]*ItemState      `json:"items"`
	Retention map[string]*retention.Card `json:"retention"`
}

// NewState returns a default-initialized state for a learner.
func NewState(learnerID string) *State {
	return &State{
		LearnerID: learnerID,
		Los:       make(map[string]*LoState),
		Items:     make(map[string]*ItemState),
		Retention: make(map[string]*retention.Card),
	}
}

// Lo returns the LO state, creating it lazily.
func (s *State) Lo(loID string) *LoState {
	if s.Los == nil {
		s.Los = make(map[string]*LoState)
	}
	st, ok := s.Los[loID]
	if !ok {
		st = NewLoState()
		s.Los[loID] = st
	}
	return st
}

// Item returns the item state, creating it lazily.
func (s *State) Item(itemID string) *ItemState {
	if s.Items == nil {
		s.Items = make(map[string]*ItemState)
	}
	st, ok := s.Items[itemID]
	if !ok {
		st = &ItemState{}
		s.Items[itemID] = st
	}
	return st
}

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// SanitizeID maps a learner id onto a filesystem-safe token.
func SanitizeID(learnerID string) string {
	return unsafeIDChars.ReplaceAllString(learnerID, "_")
}

// Sanitize coerces a loaded document into its invariants: the learner id is
// forced to the requested id, numeric fields are bounded, rolling windows are
// truncated and missing maps are filled in. Unknown fields are already
// dropped by the typed decode.
func Sanitize(s *State, learnerID string) *State {
	if s == nil {
		return NewState(learnerID)
	}
	s.LearnerID = learnerID
	if s.Los == nil {
		s.Los = make(map[string]*LoState)
	}
	if s.Items == nil {
		s.Items = make(map[string]*ItemState)
	}
	if s.Retention == nil {
		s.Retention = make(map[string]*retention.Card)
	}

	for lo, st := range s.Los {
		if st == nil {
			s.Los[lo] = NewLoState()
			continue
		}
		if st.SE < minSE {
			st.SE = minSE
		}
		if st.PriorSigma == 0 {
			st.PriorSigma = DefaultPriorSigma
		} else if st.PriorSigma < minPriorSigma {
			st.PriorSigma = minPriorSigma
		}
		if st.ItemsAttempted < 0 {
			st.ItemsAttempted = 0
		}
		if len(st.RecentSes) > RecentSesWindow {
			st.RecentSes = st.RecentSes[len(st.RecentSes)-RecentSesWindow:]
		}
	}

	for id, st := range s.Items {
		if st == nil {
			s.Items[id] = &ItemState{}
			continue
		}
		if st.Attempts < 0 {
			st.Attempts = 0
		}
		if st.Correct < 0 {
			st.Correct = 0
		}
		if st.Correct > st.Attempts {
			st.Correct = st.Attempts
		}
		if len(st.RecentAttempts) > RecentAttemptsWindow {
			st.RecentAttempts = st.RecentAttempts[len(st.RecentAttempts)-RecentAttemptsWindow:]
		}
	}

	for id, c := range s.Retention {
		if c == nil {
			delete(s.Retention, id)
			continue
		}
		c.ItemID = id
		if c.HalfLifeHours < 1.0/60.0 {
			c.HalfLifeHours = 1.0 / 60.0
		}
		if c.Lapses < 0 {
			c.Lapses = 0
		}
	}
	return s
}

// PushWindow appends v to a rolling float window of the given size.
func PushWindow(window []float64, v float64, size int) []float64 {
	window = append(window, v)
	if len(window) > size {
		window = window[len(window)-size:]
	}
	return window
}

// PushWindowInt64 appends v to a rolling timestamp window of the given size.
func PushWindowInt64(window []int64, v int64, size int) []int64 {
	window = append(window, v)
	if len(window) > size {
		window = window[len(window)-size:]
	}
	return window
}
