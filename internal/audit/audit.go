// Package audit provides an append-only audit log for mutation commands.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp      time.Time `json:"ts"`
	Command        string    `json:"command"`
	RequestID      string    `json:"request_id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	TargetIDs      []string  `json:"target_ids,omitempty"`
	OK             bool      `json:"ok"`
}

// Logger handles writing to the audit log.
type Logger struct {
	path    string
	enabled bool
	mu      sync.Mutex
}

// New creates an audit logger writing to audit.log inside stateDir.
// If enabled is false, the logger is a no-op.
func New(stateDir string, enabled bool) *Logger {
	if !enabled {
		return &Logger{enabled: false}
	}
	return &Logger{
		path:    filepath.Join(stateDir, "audit.log"),
		enabled: true,
	}
}

// Record appends an event to the audit log. Callers treat failures as
// advisory: a broken audit log must never change a command's outcome.
func (l *Logger) Record(event Event) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(string(data) + "\n"); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	return nil
}

// Read reads all events from the audit log.
func (l *Logger) Read() ([]Event, error) {
	if !l.enabled {
		return nil, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	var events []Event
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // Skip malformed entries
		}
		events = append(events, event)
	}

	return events, nil
}

// ReadSince reads events recorded at or after the given time.
func (l *Logger) ReadSince(since time.Time) ([]Event, error) {
	all, err := l.Read()
	if err != nil {
		return nil, err
	}

	var filtered []Event
	for _, event := range all {
		if !event.Timestamp.Before(since) {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

// Enabled returns true if the audit logger is enabled.
func (l *Logger) Enabled() bool {
	return l.enabled
}
