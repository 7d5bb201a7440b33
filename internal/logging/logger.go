// Package logging sets up the leveled operational logger and the optional
// JSONL trace of bargaining decisions.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug and enables per-turn matrix dumps.
const LevelTrace = slog.LevelDebug - 4

// DecisionsFile is the name of the decision trace inside its directory.
const DecisionsFile = "decisions.jsonl"

// ParseLevel maps "info", "debug", "trace", "warn" or "error" to a slog
// level, ignoring case. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s names a level ParseLevel knows. The empty
// string counts as the default.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "debug", "trace", "warn", "warning", "error":
		return true
	}
	return false
}

// NewLogger returns a text logger writing to w at the given level.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// DecisionLogger appends one JSON object per line for every challenge made
// and bargain adopted. It is safe for concurrent use, and a nil
// DecisionLogger discards everything.
type DecisionLogger struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewDecisionLogger opens dir/decisions.jsonl for append when level is debug
// or finer. At coarser levels it returns nil and creates nothing.
func NewDecisionLogger(dir, level string) (*DecisionLogger, error) {
	if ParseLevel(level) > slog.LevelDebug {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create decisions dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, DecisionsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	return &DecisionLogger{w: f, c: f}, nil
}

// NewDecisionWriter traces decisions to w, which the caller closes.
func NewDecisionWriter(w io.Writer) *DecisionLogger {
	return &DecisionLogger{w: w}
}

// Log writes entry with a "time" field added. entry itself is not modified.
func (dl *DecisionLogger) Log(entry map[string]any) {
	if dl == nil {
		return
	}
	out := make(map[string]any, len(entry)+1)
	for k, v := range entry {
		out[k] = v
	}
	out["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(out)
	if err != nil {
		slog.Debug("decision not logged", "error", err)
		return
	}
	data = append(data, '\n')

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.w != nil {
		_, _ = dl.w.Write(data)
	}
}

// Close releases the file opened by NewDecisionLogger.
func (dl *DecisionLogger) Close() error {
	if dl == nil {
		return nil
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	dl.w = nil
	if dl.c == nil {
		return nil
	}
	err := dl.c.Close()
	dl.c = nil
	return err
}
