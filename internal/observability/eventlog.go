package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event represents a single review audit event.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`  // e.g. "summary.approved", "batch.completed"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter specifies criteria for reading events.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	Level string
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// Event log backends.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// OpenEventLog opens the event log for backend inside dir, creating dir if
// needed. The JSONL log lives in events.jsonl, the SQLite log in events.db.
func OpenEventLog(backend, dir string) (EventLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	switch backend {
	case BackendJSONL, "":
		return NewJSONLEventLog(filepath.Join(dir, "events.jsonl"))
	case BackendSQLite:
		return NewSQLiteEventLog(filepath.Join(dir, "events.db"))
	default:
		return nil, fmt.Errorf("unknown event log backend %q", backend)
	}
}

// LevelFor returns the level recorded for an event type.
func LevelFor(eventType string) string {
	switch eventType {
	case "summary.generate_failed":
		return LevelError
	case "summary.rejected":
		return LevelWarn
	default:
		return LevelInfo
	}
}

// MessageFor returns a one-line human description of an event.
func MessageFor(eventType string, data map[string]any) string {
	switch eventType {
	case "thread.imported":
		return fmt.Sprintf("imported %v of %v threads", data["imported"], data["total"])
	case "summary.generated":
		return fmt.Sprintf("summary %v generated for thread %v", data["summary_id"], data["thread_id"])
	case "summary.generate_failed":
		return fmt.Sprintf("summarizing thread %v failed", data["thread_id"])
	case "summary.edited", "summary.approved", "summary.rejected", "summary.exported":
		return fmt.Sprintf("%s summary %v", eventType[len("summary."):], data["summary_id"])
	case "batch.completed":
		return fmt.Sprintf("batch %v: %v of %v succeeded", data["run_id"], data["succeeded"], data["total"])
	default:
		return eventType
	}
}

// jsonlEventLog implements EventLog using an append-only JSONL file.
type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog creates a new EventLog backed by a JSONL file at the given path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{
		path: path,
		file: f,
	}, nil
}

// Write appends a JSON-encoded event followed by a newline to the log file.
func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the log file line by line and returns the events matching
// filter. Malformed lines are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}

		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	return events, nil
}

// Close closes the underlying log file.
func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

// matchesEventFilter checks whether an event satisfies all filter criteria.
func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	return true
}
