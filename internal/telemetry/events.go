// Package telemetry implements the ingest side of the attempt pipeline:
// schema-versioned event types, validation, the per-client rate limiter and
// the persistence sinks (NDJSON log, SQLite mirror, Supabase mirror).
package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaVersion is the event envelope version the pipeline accepts. Incoming
// events must match exactly.
const SchemaVersion = "1.0.0"

// Sentinel errors mapped to HTTP statuses at the boundary.
var (
	ErrUnauthorized    = errors.New("telemetry: missing or invalid ingest token")
	ErrPayloadTooLarge = errors.New("telemetry: payload exceeds size limit")
	ErrRateLimited     = errors.New("telemetry: rate limit exceeded")
	ErrSchemaVersion   = errors.New("telemetry: schema_version mismatch")
)

// Issue is a single validation finding, addressed by field.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string { return fmt.Sprintf("%s: %s", i.Field, i.Message) }

// AttemptEvent is one scored item attempt as submitted by a client.
type AttemptEvent struct {
	SchemaVersion   string   `json:"schema_version"`
	AppVersion      string   `json:"app_version,omitempty"`
	SessionID       string   `json:"session_id"`
	UserID          string   `json:"user_id"`
	ItemID          string   `json:"item_id"`
	LoIDs           []string `json:"lo_ids"`
	TsStart         int64    `json:"ts_start"`
	TsSubmit        int64    `json:"ts_submit"`
	DurationMs      int64    `json:"duration_ms"`
	Mode            string   `json:"mode"`
	Choice          string   `json:"choice"`
	Correct         bool     `json:"correct"`
	Confidence      *int     `json:"confidence,omitempty"`
	OpenedEvidence  bool     `json:"opened_evidence"`
	Flagged         bool     `json:"flagged,omitempty"`
	RationaleOpened bool     `json:"rationale_opened,omitempty"`
	KeyboardOnly    bool     `json:"keyboard_only,omitempty"`
	DeviceClass     string   `json:"device_class,omitempty"`
	NetState        string   `json:"net_state,omitempty"`
	PausedMs        int64    `json:"paused_ms,omitempty"`
	HintUsed        bool     `json:"hint_used,omitempty"`
}

var validModes = map[string]bool{"learn": true, "exam": true, "drill": true, "spotter": true}

var validChoices = map[string]bool{"A": true, "B": true, "C": true, "D": true, "E": true}

// CheckSchemaVersion compares an incoming envelope version to the declared
// one. A mismatch is a hard reject, distinct from field-level issues.
func CheckSchemaVersion(v string) error {
	if v != SchemaVersion {
		return fmt.Errorf("%w: got %q, want %q", ErrSchemaVersion, v, SchemaVersion)
	}
	return nil
}

// Validate returns the field-level problems of the attempt. An empty slice
// means the event is acceptable.
func (e *AttemptEvent) Validate() []Issue {
	var issues []Issue
	if e.SessionID == "" {
		issues = append(issues, Issue{"session_id", "required"})
	}
	if e.UserID == "" {
		issues = append(issues, Issue{"user_id", "required"})
	}
	if e.ItemID == "" {
		issues = append(issues, Issue{"item_id", "required"})
	}
	if len(e.LoIDs) == 0 {
		issues = append(issues, Issue{"lo_ids", "must be non-empty"})
	}
	if e.TsSubmit < e.TsStart {
		issues = append(issues, Issue{"ts_submit", "must be >= ts_start"})
	}
	if e.DurationMs < 0 {
		issues = append(issues, Issue{"duration_ms", "must be >= 0"})
	}
	if !validModes[e.Mode] {
		issues = append(issues, Issue{"mode", "must be one of learn, exam, drill, spotter"})
	}
	if !validChoices[e.Choice] {
		issues = append(issues, Issue{"choice", "must be one of A..E"})
	}
	if e.Confidence != nil && (*e.Confidence < 1 || *e.Confidence > 3) {
		issues = append(issues, Issue{"confidence", "must be 1, 2 or 3"})
	}
	return issues
}

// SessionEvent marks the start or completion of a study session.
type SessionEvent struct {
	SchemaVersion string             `json:"schema_version"`
	SessionID     string             `json:"session_id"`
	UserID        string             `json:"user_id"`
	Mode          string             `json:"mode"`
	BlueprintID   string             `json:"blueprint_id,omitempty"`
	StartTs       int64              `json:"start_ts"`
	EndTs         *int64             `json:"end_ts,omitempty"`
	Completed     bool               `json:"completed,omitempty"`
	MasteryByLo   map[string]float64 `json:"mastery_by_lo,omitempty"`
}

// Validate returns the field-level problems of the session event.
func (e *SessionEvent) Validate() []Issue {
	var issues []Issue
	if e.SessionID == "" {
		issues = append(issues, Issue{"session_id", "required"})
	}
	if e.UserID == "" {
		issues = append(issues, Issue{"user_id", "required"})
	}
	if !validModes[e.Mode] {
		issues = append(issues, Issue{"mode", "must be one of learn, exam, drill, spotter"})
	}
	if e.StartTs <= 0 {
		issues = append(issues, Issue{"start_ts", "required"})
	}
	if e.EndTs != nil && *e.EndTs < e.StartTs {
		issues = append(issues, Issue{"end_ts", "must be >= start_ts"})
	}
	return issues
}

// Fingerprint derives the rate-limit client id from proxy headers: the first
// X-Forwarded-For hop, else X-Real-IP, else "unknown".
func Fingerprint(forwardedFor, realIP string) string {
	if hop, _, _ := strings.Cut(forwardedFor, ","); strings.TrimSpace(hop) != "" {
		return strings.TrimSpace(hop)
	}
	if strings.TrimSpace(realIP) != "" {
		return strings.TrimSpace(realIP)
	}
	return "unknown"
}
