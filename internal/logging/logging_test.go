package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mengelbart/glpipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, JSONFormat, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, TextFormat, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)

	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
	l, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestConfigure(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Configure(JSONFormat, slog.LevelWarn, &buf)
	slog.Info("hidden")
	slog.Warn("shown", "key", "value")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "value", entry["key"])

	assert.Panics(t, func() { Configure("xml", slog.LevelInfo, &buf) })
}

func TestFrameLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fl := NewFrameLogger("source", logger)

	var forwarded int
	hook := fl.Hook()
	for range 2 {
		hook(glpipe.Frame{Texture: 7, Width: 4, Height: 2}, func(glpipe.Frame) { forwarded++ })
	}
	assert.Equal(t, 2, forwarded)
	assert.Equal(t, uint64(2), fl.Frames())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "source", entry["node"])
	frame, ok := entry["frame"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), frame["sequence-number"])
	assert.Equal(t, float64(7), frame["texture"])
}
