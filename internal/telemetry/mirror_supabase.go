package telemetry

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"github.com/yinkev/studyin/internal/logging"
)

// SupabaseMirror inserts accepted events into hosted attempts/sessions
// tables over PostgREST. Enabled by USE_SUPABASE_INGEST.
type SupabaseMirror struct {
	client *supabase.Client
}

// NewSupabaseMirror builds a mirror against the project at url using the
// service-role key.
func NewSupabaseMirror(url, serviceRoleKey string) (*SupabaseMirror, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	logging.Ingest("Supabase mirror ready for %s", url)
	return &SupabaseMirror{client: client}, nil
}

// attemptRow is the projection stored in the hosted attempts table.
type attemptRow struct {
	SessionID  string   `json:"session_id"`
	UserID     string   `json:"user_id"`
	ItemID     string   `json:"item_id"`
	LoIDs      []string `json:"lo_ids"`
	TsSubmit   int64    `json:"ts_submit"`
	DurationMs int64    `json:"duration_ms"`
	Mode       string   `json:"mode"`
	Choice     string   `json:"choice"`
	Correct    bool     `json:"correct"`
}

// sessionRow is the projection stored in the hosted sessions table.
type sessionRow struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	Mode        string `json:"mode"`
	BlueprintID string `json:"blueprint_id,omitempty"`
	StartTs     int64  `json:"start_ts"`
	EndTs       *int64 `json:"end_ts,omitempty"`
	Completed   bool   `json:"completed"`
}

// Attempt implements Sink.
func (m *SupabaseMirror) Attempt(ctx context.Context, evt AttemptEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := attemptRow{
		SessionID:  evt.SessionID,
		UserID:     evt.UserID,
		ItemID:     evt.ItemID,
		LoIDs:      evt.LoIDs,
		TsSubmit:   evt.TsSubmit,
		DurationMs: evt.DurationMs,
		Mode:       evt.Mode,
		Choice:     evt.Choice,
		Correct:    evt.Correct,
	}
	if _, _, err := m.client.From("attempts").Insert(row, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to mirror attempt: %w", err)
	}
	return nil
}

// Snapshot pushes an analytics snapshot document to the hosted
// analytics_snapshots table. Callers treat failure as non-fatal; the local
// snapshot file stays authoritative.
func (m *SupabaseMirror) Snapshot(ctx context.Context, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := m.client.From("analytics_snapshots").Insert(doc, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to push analytics snapshot: %w", err)
	}
	return nil
}

// Session implements Sink.
func (m *SupabaseMirror) Session(ctx context.Context, evt SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := sessionRow{
		SessionID:   evt.SessionID,
		UserID:      evt.UserID,
		Mode:        evt.Mode,
		BlueprintID: evt.BlueprintID,
		StartTs:     evt.StartTs,
		EndTs:       evt.EndTs,
		Completed:   evt.Completed,
	}
	if _, _, err := m.client.From("sessions").Insert(row, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to mirror session: %w", err)
	}
	return nil
}
