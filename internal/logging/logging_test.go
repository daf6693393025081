// ABOUTME: Tests for logger setup and the colorized slog handler
// ABOUTME: Verifies level filtering, attribute rendering, and json output

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/config"
)

func init() {
	// Keep escape codes out of assertions
	color.NoColor = true
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestSetup_TextFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(config.LoggingConfig{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "thread_id", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN shown")
	assert.Contains(t, out, "thread_id=abc")
}

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("decoded line", "component", "stream")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "decoded line", record["msg"])
	assert.Equal(t, "stream", record["component"])
}

func TestColorHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewColorHandler(&buf, slog.LevelDebug))

	logger.With("component", "session").WithGroup("req").Error("stream failed", "status", 502)

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "ERR stream failed")
	assert.Contains(t, line, "component=session")
	assert.Contains(t, line, "req.status=502")
}
