package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mengelbart/glpipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
source:
  kind: image
  path: /tmp/in.png
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultFPS, cfg.Source.FPS)
	assert.Equal(t, []string{"none"}, cfg.Effects)
	assert.Equal(t, []glpipe.EffectID{glpipe.EffectNone}, cfg.EffectIDs())
	assert.Equal(t, 1, cfg.Capture.Count)
	assert.Equal(t, "bmp", cfg.Capture.Format)
	assert.Equal(t, ".", cfg.Capture.Dir)
	assert.Nil(t, cfg.HTTP)
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(`
source:
  kind: gst
  pipeline: videotestsrc pattern=ball
  width: 320
  height: 240
  fps: 15
  frames: 100
effects: [grayscale, flip-horizontal]
outputs:
  - key: preview
    width: 160
    height: 120
    mirror: true
capture:
  count: 3
  interval: 500ms
  format: png
  dir: out
http:
  cert: cert.pem
  key: key.pem
log:
  format: json
  level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, "gst", cfg.Source.Kind)
	assert.Equal(t, 15, cfg.Source.FPS)
	assert.Equal(t, []glpipe.EffectID{glpipe.EffectGrayscale, glpipe.EffectFlipHorizontal}, cfg.EffectIDs())
	require.Len(t, cfg.Outputs, 1)
	assert.True(t, cfg.Outputs[0].Mirror)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.Interval)
	require.NotNil(t, cfg.HTTP)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown kind":   "source: {kind: camera}",
		"missing path":   "source: {kind: image}",
		"gst size":       "source: {kind: gst}",
		"unknown effect": "source: {kind: image, path: a.png}\neffects: [blur]",
		"output key":     "source: {kind: image, path: a.png}\noutputs: [{width: 4, height: 4}]",
		"duplicate key":  "source: {kind: image, path: a.png}\noutputs: [{key: a, width: 4, height: 4}, {key: a, width: 4, height: 4}]",
		"format":         "source: {kind: image, path: a.png}\ncapture: {format: gif}",
		"interval":       "source: {kind: image, path: a.png}\ncapture: {interval: -1s}",
		"tls":            "source: {kind: image, path: a.png}\nhttp: {cert: c.pem}",
		"yaml":           "source: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  kind: image
  path: ${GLPIPE_TEST_IMAGE}
effects: [sepia]
`), 0o644))
	t.Setenv("GLPIPE_TEST_IMAGE", "frame.png")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "frame.png"), cfg.Source.Path)
	assert.Equal(t, []string{"sepia"}, cfg.Effects)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
