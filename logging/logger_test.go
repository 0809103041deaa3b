package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = (*RunLogger)(nil)
	_ Logger = NoOpLogger{}
)

func TestRunLogger_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("engine").
		WithRun("run-1").
		WithCase("p1")

	l.Info("engine.turn", "turn", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "engine.turn", rec["msg"])
	assert.Equal(t, "engine", rec["component"])
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "p1", rec["case_id"])
	assert.EqualValues(t, 3, rec["turn"])
}

func TestRunLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})
	l.Info("hidden")
	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.LogModelCall("clinician", "gpt", 10, time.Millisecond, errors.New("rate limited"))
	assert.Contains(t, buf.String(), "model call failed")
	assert.Contains(t, buf.String(), "rate limited")
}

func TestRunLogger_CloneIsolation(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})
	_ = base.WithContext("k", "v")
	base.Info("plain")
	assert.NotContains(t, buf.String(), `"k"`)
}

func TestForCase(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf}).WithRun("run-1")

	ForCase(base, "20001").Info("engine.turn", "turn", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "20001", rec["case_id"])
	assert.Equal(t, "run-1", rec["run_id"])

	buf.Reset()
	ForCase(NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil))), "10001").Warn("engine.reprompt", "attempt", 2)

	rec = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "10001", rec["case_id"])
	assert.EqualValues(t, 2, rec["attempt"])

	assert.Equal(t, NoOpLogger{}, ForCase(nil, "x"))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": LogLevelDebug, "": LogLevelInfo, "WARNING": LogLevelWarn, "error": LogLevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestOpenRunLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	w, c, err := OpenRunLog(dir, &console)
	require.NoError(t, err)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
	assert.Equal(t, "hello\n", console.String())
}
