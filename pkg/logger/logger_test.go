package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("garbage"))
}

func TestStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	old := Get()
	t.Cleanup(func() { Set(old) })

	Set(slog.New(slog.NewJSONHandler(&buf, nil)))

	Infow("request handled", "status", 200, "route", "/api/v1/instance")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request handled", entry["msg"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, "/api/v1/instance", entry["route"])
}

func TestFormattedOutput(t *testing.T) {
	var buf bytes.Buffer
	old := Get()
	t.Cleanup(func() { Set(old) })

	Set(slog.New(slog.NewTextHandler(&buf, nil)))

	Warnf("refresh failed for %s", "did:plc:abc")
	assert.Contains(t, buf.String(), "refresh failed for did:plc:abc")
}
