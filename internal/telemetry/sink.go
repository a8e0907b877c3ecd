package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yinkev/studyin/internal/logging"
)

// maxLineBytes bounds a single NDJSON line when reading the log back.
const maxLineBytes = 1 << 20

// Sink persists validated telemetry events.
type Sink interface {
	Attempt(ctx context.Context, evt AttemptEvent) error
	Session(ctx context.Context, evt SessionEvent) error
}

// FileSink appends events to an NDJSON log, one JSON object per line. Every
// line is written in a single Write call so concurrent appends never
// interleave within a line. Writes are not fsynced; readers tolerate a torn
// final line.
type FileSink struct {
	mu      sync.Mutex
	path    string
	enabled bool
}

// NewFileSink builds a sink appending to path. With enabled=false every
// append is a silent no-op (the WRITE_TELEMETRY switch).
func NewFileSink(path string, enabled bool) *FileSink {
	return &FileSink{path: path, enabled: enabled}
}

// Attempt appends one attempt event.
func (s *FileSink) Attempt(ctx context.Context, evt AttemptEvent) error {
	return s.appendLine(ctx, evt)
}

// Session appends one session event.
func (s *FileSink) Session(ctx context.Context, evt SessionEvent) error {
	return s.appendLine(ctx, evt)
}

func (s *FileSink) appendLine(ctx context.Context, v any) error {
	if !s.enabled {
		logging.IngestDebug("telemetry writes disabled, dropping event")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create events directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open events log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ReadAttempts streams the NDJSON log and returns every parseable attempt
// line (identified by a non-empty item_id). Malformed lines — including a
// torn final line with no trailing newline — are counted and skipped. A
// missing file reads as an empty log.
func ReadAttempts(path string) (attempts []AttemptEvent, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open events log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt AttemptEvent
		if jsonErr := json.Unmarshal(line, &evt); jsonErr != nil {
			skipped++
			continue
		}
		if evt.ItemID == "" {
			// Session events share the log; they are not attempts.
			continue
		}
		attempts = append(attempts, evt)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, skipped, fmt.Errorf("failed to scan events log: %w", scanErr)
	}
	if skipped > 0 {
		logging.Ingest("skipped %d malformed lines in %s", skipped, path)
	}
	return attempts, skipped, nil
}
