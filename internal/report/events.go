package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventUpload EventType = "upload"
	EventRetry  EventType = "retry"
	EventFetch  EventType = "fetch"
	EventClean  EventType = "clean"
	EventSkip   EventType = "skip"
	EventError  EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in a run
type Event struct {
	Timestamp time.Time  `json:"ts"`
	RunID     string     `json:"run_id"`
	Level     EventLevel `json:"level"`
	Event     EventType  `json:"event"`
	File      string     `json:"file,omitempty"`
	Target    string     `json:"target,omitempty"`
	RemoteID  string     `json:"remote_id,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Duration  int64      `json:"duration_ms,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// EventLogger writes events to a JSONL file, one file per run
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level.
// Every event carries the same run id, so one run's lines correlate across
// the log and the attempt journal.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    uuid.NewString(),
		minLevel: minLevel,
	}, nil
}

// RunID returns the identifier for this run
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // logger not initialized, drop silently
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.RunID = l.runID

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogUpload logs one upload attempt against one target
func (l *EventLogger) LogUpload(file, target, remoteID string, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventUpload,
		File:     file,
		Target:   target,
		RemoteID: remoteID,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogRetry logs a retry attempt against a previously failed target
func (l *EventLogger) LogRetry(file, target, remoteID string, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelWarning
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventRetry,
		File:     file,
		Target:   target,
		RemoteID: remoteID,
		Error:    errMsg,
	})
}

// LogFetch logs a transcript fetch outcome
func (l *EventLogger) LogFetch(file, target string, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelWarning
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:  level,
		Event:  EventFetch,
		File:   file,
		Target: target,
		Error:  errMsg,
	})
}

// LogClean logs a local deletion
func (l *EventLogger) LogClean(file string, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level: level,
		Event: EventClean,
		File:  file,
		Error: errMsg,
	})
}

// LogSkip logs a file skipped with a reason
func (l *EventLogger) LogSkip(file, reason string) error {
	return l.Log(&Event{
		Level:  LevelDebug,
		Event:  EventSkip,
		File:   file,
		Reason: reason,
	})
}

// LogError logs a run-level error
func (l *EventLogger) LogError(file string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: EventError,
		File:  file,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
