// Package eventlog appends structured JSONL events to
// LOG_PATH/pathsteer_<run_id>.jsonl (spec.md §6, §7): every line
// {ts, run, event, data}.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends JSONL event records for one run.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	runID string
}

// Open opens (creating if needed) LOG_PATH/pathsteer_<runID>.jsonl for append.
func Open(logDir, runID string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(logDir, fmt.Sprintf("pathsteer_%s.jsonl", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{file: f, runID: runID}, nil
}

type record struct {
	TS    time.Time   `json:"ts"`
	Run   string      `json:"run"`
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Emit appends one event record. Errors are returned, not swallowed — the
// event log is the sole human-visible failure surface for actuation errors
// (spec.md §7).
func (l *Logger) Emit(event string, data interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := record{TS: time.Now(), Run: l.runID, Event: event, Data: data}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = l.file.Write(line)
	return err
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
