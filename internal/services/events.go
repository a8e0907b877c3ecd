// Package services wires the event bus to the engine: the state service
// turns accepted attempts into learner-state updates, the lesson service
// persists authored lesson artifacts, and Runtime is the single place the
// HTTP layer gets its collaborators from.
package services

import "github.com/yinkev/studyin/internal/learner"

// EventSchemaVersion stamps every bus event envelope.
const EventSchemaVersion = "1.0.0"

// Bus event types.
const (
	EventAnswerSubmitted     = "ANSWER_SUBMITTED"
	EventStateUpdated        = "STATE_UPDATED"
	EventSaveLessonRequested = "SAVE_LESSON_REQUESTED"
	EventLessonCreated       = "LESSON_CREATED"
)

// AnswerSubmitted is published by the ingest pipeline for every accepted
// attempt.
type AnswerSubmitted struct {
	SchemaVersion string   `json:"schema_version"`
	LearnerID     string   `json:"learnerId"`
	ItemID        string   `json:"itemId"`
	LoIDs         []string `json:"loIds"`
	Difficulty    string   `json:"difficulty"`
	Correct       bool     `json:"correct"`
	Ts            int64    `json:"ts"`
}

func (AnswerSubmitted) Type() string { return EventAnswerSubmitted }

// StateUpdated is published after the state service has persisted the
// post-attempt learner state.
type StateUpdated struct {
	SchemaVersion string         `json:"schema_version"`
	LearnerID     string         `json:"learnerId"`
	State         *learner.State `json:"state"`
	Reason        string         `json:"reason"`
	Ts            int64          `json:"ts"`
}

func (StateUpdated) Type() string { return EventStateUpdated }

// Lesson is an authored lesson artifact.
type Lesson struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	LoIDs []string `json:"loIds"`
	Body  string   `json:"body"`
}

// SaveLessonRequested asks the lesson service to validate and persist a
// lesson.
type SaveLessonRequested struct {
	SchemaVersion string `json:"schema_version"`
	Lesson        Lesson `json:"lesson"`
	RequestID     string `json:"requestId"`
}

func (SaveLessonRequested) Type() string { return EventSaveLessonRequested }

// LessonCreated is published once a lesson artifact has been written.
type LessonCreated struct {
	SchemaVersion string `json:"schema_version"`
	Lesson        Lesson `json:"lesson"`
	JobID         string `json:"jobId"`
	Ts            int64  `json:"ts"`
}

func (LessonCreated) Type() string { return EventLessonCreated }
