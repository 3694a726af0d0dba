// Package deadletter implements the Dead-Letter Sink (C9): a durable,
// append-only JSONL log of terminally-failed tasks, grounded on the
// line-delimited-JSON data directory convention of spec the and the
// teacher's best-effort-write idiom in infrastructure/fallback.Handler
// (a failed side write logs and moves on, it never fails the caller's
// primary operation).
package deadletter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/logging"
	"github.com/R3E-Network/assoc-pipeline/internal/telemetry"
)

// Entry is one durable dead-letter record.
type Entry struct {
	Task agents.AgentTask `json:"task"`
	ClassifiedError string `json:"classified_error"`
	ErrorKind string `json:"error_kind"`
	Attempts int `json:"attempts"`
	LastSeen string `json:"last_seen"`
}

// Sink appends Entry records to a single JSONL file, one job per file
// path, under a "dead_letter/*.jsonl" layout.
type Sink struct {
	mu sync.Mutex
	path string
	disabled bool
	logger *logging.Logger
	metrics *telemetry.Metrics
}

// New builds a Sink writing to path, creating parent directories as
// needed. path is typically "<data_root>/dead_letter/<job_id>.jsonl".
func New(path string, logger *logging.Logger, metrics *telemetry.Metrics) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Sink{path: path, logger: logger, metrics: metrics}, nil
}

// NewDisabled builds a Sink that accepts Append calls but never touches
// the filesystem, for `--dry-run` runs (the "no persisted mutations").
func NewDisabled(logger *logging.Logger, metrics *telemetry.Metrics) *Sink {
	return &Sink{disabled: true, logger: logger, metrics: metrics}
}

// Append writes entry as one JSON line. Per the "writes are
// best-effort": a failure is logged and swallowed, never propagated to
// the caller, so a DLQ outage cannot itself fail a phase.
func (s *Sink) Append(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		if s.metrics != nil {
			s.metrics.DeadLetterAppendsTotal.Inc()
		}
		return
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(map[string]interface{}{"path": s.path, "error": err.Error()}).
				Error("dead-letter sink: open failed")
		}
		return
	}
	defer f.Close()

	raw, err := json.Marshal(entry)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(map[string]interface{}{"error": err.Error()}).
				Error("dead-letter sink: marshal failed")
		}
		return
	}
	if _, err := f.Write(append(raw, '\n')); err != nil {
		if s.logger != nil {
			s.logger.WithFields(map[string]interface{}{"path": s.path, "error": err.Error()}).
				Error("dead-letter sink: write failed")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.DeadLetterAppendsTotal.Inc()
	}
}

// NewEntry builds an Entry for task, classified by kind, at the current
// attempt count.
func NewEntry(task agents.AgentTask, kind, message string, attempts int) Entry {
	return Entry{
		Task: task,
		ClassifiedError: message,
		ErrorKind: kind,
		Attempts: attempts,
		LastSeen: time.Now().UTC().Format(time.RFC3339),
	}
}
