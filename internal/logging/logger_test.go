package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"Trace", LevelTrace},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
	assert.True(t, ValidLevel(""))
	assert.True(t, ValidLevel("Trace"))
	assert.False(t, ValidLevel("loud"))
}

func TestNewLoggerFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("info", &buf)
	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	log = NewLogger("trace", &buf)
	log.Log(context.Background(), LevelTrace, "matrix")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestDecisionLoggerNilSafe(t *testing.T) {
	var dl *DecisionLogger
	assert.NotPanics(t, func() {
		dl.Log(map[string]any{"event": "x"})
		assert.NoError(t, dl.Close())
	})
}

func TestDecisionLoggerInfoCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	dl, err := NewDecisionLogger(filepath.Join(dir, "d"), "info")
	require.NoError(t, err)
	assert.Nil(t, dl)
	_, err = os.Stat(filepath.Join(dir, "d"))
	assert.True(t, os.IsNotExist(err))
}

func TestDecisionLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	dl, err := NewDecisionLogger(dir, "debug")
	require.NoError(t, err)
	require.NotNil(t, dl)

	entry := map[string]any{"event": "challenge", "init": 0, "rcvr": 2}
	dl.Log(entry)
	dl.Log(map[string]any{"event": "bargain_selected"})
	require.NoError(t, dl.Close())
	assert.NotContains(t, entry, "time")

	f, err := os.Open(filepath.Join(dir, DecisionsFile))
	require.NoError(t, err)
	defer f.Close()

	var events []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, "challenge", events[0]["event"])
	assert.Equal(t, float64(2), events[0]["rcvr"])
	assert.Contains(t, events[1], "time")
}

func TestDecisionWriter(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDecisionWriter(&buf)
	dl.Log(map[string]any{"event": "x"})
	assert.Contains(t, buf.String(), `"event":"x"`)
	require.NoError(t, dl.Close())
	dl.Log(map[string]any{"event": "y"})
	assert.NotContains(t, buf.String(), `"event":"y"`)
}
