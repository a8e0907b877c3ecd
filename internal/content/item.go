// Package content loads the authored study material: assessment items from
// the bank directories and the learning-objective list. The bank is
// read-only at runtime and swapped atomically on reload.
package content

import "fmt"

// ChoiceKeys are the five answer slots every item must fill, in order.
var ChoiceKeys = []string{"A", "B", "C", "D", "E"}

// PublishedRubricFloor is the minimum rubric score a published item needs.
const PublishedRubricFloor = 2.7

// Evidence anchors an item to its source material.
type Evidence struct {
	File     string    `json:"file"`
	Page     int       `json:"page"`
	Bbox     []float64 `json:"bbox,omitempty"`
	CropPath string    `json:"crop_path,omitempty"`
	Citation string    `json:"citation,omitempty"`
}

// Item is one assessment unit as authored in a *.item.json file.
type Item struct {
	ID                   string            `json:"id"`
	Stem                 string            `json:"stem"`
	Choices              map[string]string `json:"choices"`
	Key                  string            `json:"key"`
	RationaleCorrect     string            `json:"rationale_correct"`
	RationaleDistractors map[string]string `json:"rationale_distractors"`
	Los                  []string          `json:"los"`
	Difficulty           string            `json:"difficulty"`
	Bloom                string            `json:"bloom"`
	Evidence             Evidence          `json:"evidence"`
	Status               string            `json:"status"`
	RubricScore          float64           `json:"rubric_score"`
	ContentHash          string            `json:"content_hash,omitempty"`

	// Optional authoring-time extras consumed by the selector.
	MedianTimeSeconds float64   `json:"median_time_seconds,omitempty"`
	Thresholds        []float64 `json:"thresholds,omitempty"`
}

// Issue is a single validation finding on an item.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string { return fmt.Sprintf("%s: %s", i.Field, i.Message) }

var validDifficulties = map[string]bool{"easy": true, "medium": true, "hard": true}

var validBlooms = map[string]bool{
	"remember": true, "understand": true, "apply": true, "analyze": true, "evaluate": true,
}

var validStatuses = map[string]bool{"draft": true, "review": true, "published": true}

// Validate checks the item invariants. An empty slice means the item is
// well-formed.
func (it *Item) Validate() []Issue {
	var issues []Issue
	if it.ID == "" {
		issues = append(issues, Issue{"id", "required"})
	}
	if it.Stem == "" {
		issues = append(issues, Issue{"stem", "required"})
	}
	for _, key := range ChoiceKeys {
		if it.Choices[key] == "" {
			issues = append(issues, Issue{"choices." + key, "required"})
		}
	}
	if _, ok := it.Choices[it.Key]; !ok || it.Key == "" {
		issues = append(issues, Issue{"key", "must name one of the choices"})
	}
	if it.RationaleCorrect == "" {
		issues = append(issues, Issue{"rationale_correct", "required"})
	}
	for _, key := range ChoiceKeys {
		if key == it.Key {
			continue
		}
		if it.RationaleDistractors[key] == "" {
			issues = append(issues, Issue{"rationale_distractors." + key, "required"})
		}
	}
	if len(it.Los) == 0 {
		issues = append(issues, Issue{"los", "must be non-empty"})
	}
	if !validDifficulties[it.Difficulty] {
		issues = append(issues, Issue{"difficulty", "must be easy, medium or hard"})
	}
	if !validBlooms[it.Bloom] {
		issues = append(issues, Issue{"bloom", "must be remember, understand, apply, analyze or evaluate"})
	}
	if !validStatuses[it.Status] {
		issues = append(issues, Issue{"status", "must be draft, review or published"})
	}
	if it.RubricScore < 0 || it.RubricScore > 3 {
		issues = append(issues, Issue{"rubric_score", "must be in [0, 3]"})
	}
	if it.Status == "published" && it.RubricScore < PublishedRubricFloor {
		issues = append(issues, Issue{"rubric_score", fmt.Sprintf("published items need >= %.1f", PublishedRubricFloor)})
	}
	return issues
}

// LearningObjective is an atomic assessable concept. Read-only at runtime.
type LearningObjective struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Parent string `json:"parent,omitempty"`
}
