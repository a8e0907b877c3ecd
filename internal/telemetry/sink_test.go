package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "events.ndjson")
	sink := NewFileSink(path, true)
	ctx := context.Background()

	first := validAttempt()
	second := validAttempt()
	second.ItemID = "item-2"
	second.Correct = false
	require.NoError(t, sink.Attempt(ctx, first))
	require.NoError(t, sink.Attempt(ctx, second))
	require.NoError(t, sink.Session(ctx, SessionEvent{
		SchemaVersion: SchemaVersion, SessionID: "s1", UserID: "u1", Mode: "learn", StartTs: 1,
	}))

	attempts, skipped, err := ReadAttempts(path)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, attempts, 2, "session lines are not attempts")
	assert.Equal(t, "item-1", attempts[0].ItemID)
	assert.Equal(t, "item-2", attempts[1].ItemID)
}

func TestFileSinkDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	sink := NewFileSink(path, false)
	require.NoError(t, sink.Attempt(context.Background(), validAttempt()))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "disabled sink must not create the log")
}

func TestReadAttemptsSkipsTornLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	sink := NewFileSink(path, true)
	require.NoError(t, sink.Attempt(context.Background(), validAttempt()))

	// Simulate a crash mid-append: a torn final line without a newline.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"schema_version":"1.0.0","item_id":"item-9","trunc`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	attempts, skipped, err := ReadAttempts(path)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
	assert.Equal(t, 1, skipped)
}

func TestReadAttemptsMissingFile(t *testing.T) {
	attempts, skipped, err := ReadAttempts(filepath.Join(t.TempDir(), "nope.ndjson"))
	require.NoError(t, err)
	assert.Empty(t, attempts)
	assert.Zero(t, skipped)
}

func TestSQLiteMirrorRoundTrip(t *testing.T) {
	mirror, err := NewSQLiteMirror(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	defer mirror.Close()

	ctx := context.Background()
	require.NoError(t, mirror.Attempt(ctx, validAttempt()))
	end := int64(9000)
	require.NoError(t, mirror.Session(ctx, SessionEvent{
		SchemaVersion: SchemaVersion, SessionID: "s1", UserID: "u1", Mode: "exam",
		StartTs: 1000, EndTs: &end, Completed: true,
	}))

	attempts, err := mirror.ReadMirroredAttempts(ctx)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "item-1", attempts[0].ItemID)
	assert.Equal(t, []string{"lo1"}, attempts[0].LoIDs)
}
