// Package analyzer is the offline analytics job: it rolls the attempt log
// into time-to-mastery projections, ELG/min recommendations, confusion
// edges, speed-accuracy quadrants, reliability statistics and
// non-functional-distractor flags, and writes the schema-versioned snapshot
// the live surface serves.
package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SnapshotSchemaVersion stamps every analytics snapshot.
const SnapshotSchemaVersion = "1.1.0"

// Snapshot is the analyzer's output document. Immutable once written.
type Snapshot struct {
	SchemaVersion  string          `json:"schema_version"`
	GeneratedAt    string          `json:"generated_at"`
	HasEvents      bool            `json:"has_events"`
	Totals         Totals          `json:"totals"`
	TtmPerLo       []LoTtm         `json:"ttm_per_lo"`
	ElgPerMin      []ElgCandidate  `json:"elg_per_min"`
	ConfusionEdges []ConfusionEdge `json:"confusion_edges"`
	SpeedAccuracy  SpeedAccuracy   `json:"speed_accuracy"`
	NfdSummary     []NfdFlag       `json:"nfd_summary"`
	Reliability    Reliability     `json:"reliability"`
}

// Totals counts the analyzed corpus.
type Totals struct {
	Attempts int `json:"attempts"`
	Learners int `json:"learners"`
}

// LoTtm is the per-LO time-to-mastery projection.
type LoTtm struct {
	LoID                      string  `json:"lo_id"`
	Attempts                  int     `json:"attempts"`
	Accuracy                  float64 `json:"accuracy"`
	AvgDurationSec            float64 `json:"avg_duration_sec"`
	Deficit                   float64 `json:"deficit"`
	AttemptsNeeded            int     `json:"attempts_needed"`
	ProjectedMinutesToMastery float64 `json:"projected_minutes_to_mastery"`
	Overdue                   bool    `json:"overdue"`
	LastAttemptTs             int64   `json:"last_attempt_ts"`
}

// ElgCandidate is one "expected learning gain per minute" recommendation.
type ElgCandidate struct {
	ItemID        string   `json:"item_id"`
	LoIDs         []string `json:"lo_ids"`
	ProjectedGain float64  `json:"projected_gain"`
	AvgMinutes    float64  `json:"avg_minutes"`
	Score         float64  `json:"score"`
}

// ConfusionEdge counts a specific wrong choice on an item within an LO.
type ConfusionEdge struct {
	LoID   string `json:"lo_id"`
	ItemID string `json:"item_id"`
	Choice string `json:"choice"`
	Count  int    `json:"count"`
}

// SpeedAccuracy buckets attempts by the 45-second threshold.
type SpeedAccuracy struct {
	FastWrong int `json:"fast_wrong"`
	SlowWrong int `json:"slow_wrong"`
	FastRight int `json:"fast_right"`
	SlowRight int `json:"slow_right"`
}

// NfdFlag marks a non-functional distractor.
type NfdFlag struct {
	ItemID      string  `json:"item_id"`
	Choice      string  `json:"choice"`
	Attempts    int     `json:"attempts"`
	PickRate    float64 `json:"pick_rate"`
	WilsonUpper float64 `json:"wilson_upper"`
}

// Reliability carries KR-20 and the per-item point-biserial correlations.
// Kr20 is null when the gate is unmet or score variance is zero.
type Reliability struct {
	Kr20              *float64            `json:"kr20"`
	ItemPointBiserial []ItemPointBiserial `json:"item_point_biserial"`
}

// ItemPointBiserial is one item's correlation with the rest-of-session
// score.
type ItemPointBiserial struct {
	ItemID string  `json:"item_id"`
	R      float64 `json:"r"`
	N      int     `json:"n"`
}

// Write persists the snapshot via write-then-rename, creating directories as
// needed.
func (s *Snapshot) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create analytics directory: %w", err)
	}
	doc, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a previously written snapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return &s, nil
}

func nowISO(nowMs int64) string {
	return time.UnixMilli(nowMs).UTC().Format(time.RFC3339)
}
