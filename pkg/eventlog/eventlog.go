// Package eventlog appends audit run events to a JSON-lines file.
//
// Each line is one Event. The file is opened for append so successive runs
// accumulate a trail that can be shipped to a log collector.
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/exploopio/npm-audit/pkg/errors"
)

// EventType represents the type of event.
type EventType string

const (
	EventAuditStarted      EventType = "audit_started"
	EventCompromisedLoaded EventType = "compromised_loaded"
	EventManifestLoaded    EventType = "manifest_loaded"
	EventMatchFound        EventType = "match_found"
	EventReportWritten     EventType = "report_written"
	EventAuditCompleted    EventType = "audit_completed"
	EventAuditFailed       EventType = "audit_failed"
)

// Severity represents event severity.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARN"
	SeverityError   Severity = "ERROR"
)

// Event is one line of the event log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Severity  Severity       `json:"severity"`
	RunID     string         `json:"run_id,omitempty"`
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Config configures the event log.
type Config struct {
	// Path is the JSON-lines file events are appended to.
	Path string

	// RunID is stamped on every event that does not carry one.
	RunID string

	// BufferSize is the number of events held before a flush. Default: 64
	BufferSize int
}

// Logger buffers events and writes them to an io.WriteCloser.
type Logger struct {
	mu     sync.Mutex
	out    io.WriteCloser
	runID  string
	size   int
	buffer []Event
	now    func() time.Time
	closed bool
}

// Open creates the parent directory of cfg.Path and opens it for append.
func Open(cfg Config) (*Logger, error) {
	if cfg.Path == "" {
		return nil, errors.E(errors.KindInvalidInput, "eventlog.Open", "event log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.E(errors.KindIO, "eventlog.Open", "create event log directory", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, errors.E(errors.KindIO, "eventlog.Open", "open event log", err)
	}
	return New(f, cfg), nil
}

// New wraps out. cfg.Path is ignored.
func New(out io.WriteCloser, cfg Config) *Logger {
	size := cfg.BufferSize
	if size <= 0 {
		size = 64
	}
	return &Logger{
		out:    out,
		runID:  cfg.RunID,
		size:   size,
		buffer: make([]Event, 0, size),
		now:    time.Now,
	}
}

// SetRunID changes the run ID stamped on later events.
func (l *Logger) SetRunID(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runID = id
}

// Log records an event. Events logged after Close are dropped.
func (l *Logger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}
	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= l.size {
		return l.flushLocked()
	}
	return nil
}

// Info logs an informational event.
func (l *Logger) Info(eventType EventType, message string, details map[string]any) error {
	return l.Log(Event{
		Type:     eventType,
		Severity: SeverityInfo,
		Message:  message,
		Details:  details,
	})
}

// Warn logs a warning event.
func (l *Logger) Warn(eventType EventType, message string, details map[string]any) error {
	return l.Log(Event{
		Type:     eventType,
		Severity: SeverityWarning,
		Message:  message,
		Details:  details,
	})
}

// Error logs an error event.
func (l *Logger) Error(eventType EventType, message string, err error, details map[string]any) error {
	event := Event{
		Type:     eventType,
		Severity: SeverityError,
		Message:  message,
		Details:  details,
	}
	if err != nil {
		event.Error = err.Error()
	}
	return l.Log(event)
}

// Flush writes buffered events.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *Logger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	events := l.buffer
	l.buffer = make([]Event, 0, l.size)

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", event.Type, err)
		}
		data = append(data, '\n')
		if _, err := l.out.Write(data); err != nil {
			return fmt.Errorf("write event log: %w", err)
		}
	}
	if f, ok := l.out.(*os.File); ok {
		_ = f.Sync()
	}
	return nil
}

// Close flushes remaining events and closes the underlying writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	flushErr := l.flushLocked()
	if err := l.out.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}
