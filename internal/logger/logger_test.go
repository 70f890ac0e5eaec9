package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line, err := buf.ReadString('\n')
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	return rec
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, LevelWarn)

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")

	rec := decodeLine(t, &buf)
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "warn", rec["level"])
	assert.Zero(t, buf.Len())
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, LevelInfo).With("codebase_id", "cb-1")

	log.Info("stage complete", "stage", "cloning")

	rec := decodeLine(t, &buf)
	assert.Equal(t, "cb-1", rec["codebase_id"])
	assert.Equal(t, "cloning", rec["stage"])
}

func TestSecretRedaction(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, LevelInfo)

	log.Info("configured", "api_key", "sk-abcdefghijklmnop", "host", "localhost")

	rec := decodeLine(t, &buf)
	key, _ := rec["api_key"].(string)
	assert.NotContains(t, key, "abcdefghijkl")
	assert.True(t, strings.Contains(key, "***"))
	assert.Equal(t, "localhost", rec["host"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}
