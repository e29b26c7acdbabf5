package audit

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

type Entry struct {
	Timestamp string `json:"timestamp"`
	Project   string `json:"project,omitempty"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     any    `json:"error,omitempty"`
}

type Logger struct {
	enabled bool
	path    string
	logger  *slog.Logger
	mu      sync.Mutex
}

func New(enabled bool, path string, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{enabled: enabled, path: path, logger: logger}
}

// Write appends entry as one JSON line. Failures are logged, never returned.
func (l *Logger) Write(entry Entry) {
	if !l.enabled || l.path == "" {
		return
	}
	entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	raw, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("Failed to encode audit entry", "method", entry.Method, "error", err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.logger.Warn("Failed to open audit journal", "path", l.path, "error", err)
		return
	}
	defer f.Close()
	raw = append(raw, '\n')
	if _, err := f.Write(raw); err != nil {
		l.logger.Warn("Failed to write audit entry", "path", l.path, "error", err)
	}
}
