package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentKeyAppearsExactlyOnce(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, slog.LevelInfo).With("component", "cart")

	l.Info("ping")

	assert.Equal(t, 1, strings.Count(buf.String(), `"component"`))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cart", entry["component"])
	assert.Equal(t, "ping", entry["msg"])
}

func TestBuild_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, slog.LevelWarn)

	l.Info("dropped")
	assert.Empty(t, buf.String())

	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
