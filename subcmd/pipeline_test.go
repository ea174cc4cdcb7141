package subcmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mengelbart/glpipe/config"
	"github.com/mengelbart/glpipe/flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func writePNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := range 8 {
		for x := range 16 {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestPipelineCapturesToDisk(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	writePNG(t, input, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	cfg, err := config.Parse([]byte(`
source:
  kind: image
  path: ` + input + `
  fps: 100
effects: [negative]
outputs:
  - {key: preview, width: 8, height: 4}
capture:
  count: 2
  dir: ` + filepath.Join(dir, "out") + `
`))
	require.NoError(t, err)

	p, err := newPipeline(cfg, true)
	require.NoError(t, err)
	defer p.Close()
	assert.Len(t, p.nodes(), 5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx, true))

	for _, name := range []string{"frame-0001.bmp", "frame-0002.bmp"} {
		f, err := os.Open(filepath.Join(dir, "out", name))
		require.NoError(t, err)
		img, err := bmp.Decode(f)
		require.NoError(t, f.Close())
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
		r, g, b, _ := img.At(3, 3).RGBA()
		assert.Equal(t, []uint32{55, 155, 205}, []uint32{r >> 8, g >> 8, b >> 8})
	}
}

func TestPipelineMissingImage(t *testing.T) {
	cfg, err := config.Parse([]byte("source: {kind: image, path: /does/not/exist.png}"))
	require.NoError(t, err)
	_, err = newPipeline(cfg, false)
	assert.Error(t, err)
}

func TestEncodeImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, encodeImage(&buf, "png", img))
	assert.NotZero(t, buf.Len())
	buf.Reset()
	require.NoError(t, encodeImage(&buf, "bmp", img))
	assert.Equal(t, "BM", buf.String()[:2])
	assert.Error(t, encodeImage(&buf, "gif", img))
}

func TestCaptureConfig(t *testing.T) {
	saved := []any{flags.Input, flags.Effects, flags.Count, flags.Format}
	t.Cleanup(func() {
		flags.Input = saved[0].(string)
		flags.Effects = saved[1].(string)
		flags.Count = saved[2].(uint)
		flags.Format = saved[3].(string)
	})

	flags.Input = "in.png"
	flags.Effects = "grayscale, sepia,,"
	flags.Count = 3
	flags.Format = "png"
	cfg, err := captureConfig()
	require.NoError(t, err)
	assert.Equal(t, "image", cfg.Source.Kind)
	assert.Equal(t, []string{"grayscale", "sepia"}, cfg.Effects)
	assert.Equal(t, 3, cfg.Capture.Count)

	flags.Input = ""
	cfg, err = captureConfig()
	require.NoError(t, err)
	assert.Equal(t, "gst", cfg.Source.Kind)

	flags.Count = 0
	_, err = captureConfig()
	assert.Error(t, err)

	flags.Count = 1
	flags.Effects = "blur"
	_, err = captureConfig()
	assert.Error(t, err)

	assert.Equal(t, []string{"none"}, splitList(" , "))
}
