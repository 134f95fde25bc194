package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/exploopio/npm-audit/pkg/errors"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func decodeLines(t *testing.T, data []byte) []Event {
	t.Helper()
	var events []Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestLogger_BuffersUntilClose(t *testing.T) {
	out := &bufferCloser{}
	l := New(out, Config{RunID: "run-1"})
	fixed := time.Date(2025, 9, 8, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	require.NoError(t, l.Info(EventAuditStarted, "audit started", map[string]any{"project": "/app"}))
	require.NoError(t, l.Error(EventAuditFailed, "audit failed", errors.New("boom"), nil))
	assert.Zero(t, out.Len(), "nothing written before flush")

	require.NoError(t, l.Close())
	assert.True(t, out.closed)

	events := decodeLines(t, out.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, EventAuditStarted, events[0].Type)
	assert.Equal(t, SeverityInfo, events[0].Severity)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, "/app", events[0].Details["project"])
	assert.Equal(t, "boom", events[1].Error)
	assert.Equal(t, SeverityError, events[1].Severity)

	require.NoError(t, l.Info(EventMatchFound, "dropped", nil))
	require.NoError(t, l.Close())
	assert.Len(t, decodeLines(t, out.Bytes()), 2)
}

func TestLogger_FlushesWhenBufferFull(t *testing.T) {
	out := &bufferCloser{}
	l := New(out, Config{BufferSize: 2})
	l.SetRunID("r")

	require.NoError(t, l.Warn(EventMatchFound, "one", nil))
	assert.Zero(t, out.Len())
	require.NoError(t, l.Warn(EventMatchFound, "two", nil))

	events := decodeLines(t, out.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, "r", events[1].RunID)
}

func TestOpen_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")

	for i := 0; i < 2; i++ {
		l, err := Open(Config{Path: path})
		require.NoError(t, err)
		require.NoError(t, l.Info(EventReportWritten, "report written", nil))
		require.NoError(t, l.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, data), 2)

	_, err = Open(Config{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidInput, apperrors.GetKind(err))

	blocker := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	_, err = Open(Config{Path: filepath.Join(blocker, "events.jsonl")})
	require.Error(t, err)
	assert.True(t, apperrors.IsIOError(err))
}
