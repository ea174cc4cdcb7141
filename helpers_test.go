package glpipe_test

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mengelbart/glpipe"
	"github.com/mengelbart/glpipe/softgl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout = 10 * time.Second
	tick        = 5 * time.Millisecond
)

func newContext(t *testing.T) (*glpipe.Context, *softgl.GPU) {
	t.Helper()
	gpu, err := softgl.New()
	require.NoError(t, err)
	ctx, err := glpipe.NewContext(gpu)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, ctx.Close())
	})
	return ctx, gpu
}

// testImage returns an opaque image in which every pixel is distinct.
func testImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

func mirrored(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetRGBA(b.Max.X-1-x, y, img.RGBAAt(x, y))
		}
	}
	return out
}

func assertSameImage(t *testing.T, want, got *image.RGBA) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, want.Bounds().Size(), got.Bounds().Size())
	assert.Equal(t, want.Pix, got.Pix)
}

// upload creates a standard texture on the render thread and returns the
// frame describing it.
func upload(t *testing.T, ctx *glpipe.Context, img image.Image) glpipe.Frame {
	t.Helper()
	var tex glpipe.TextureID
	require.NoError(t, ctx.Invoke(func() error {
		var err error
		tex, err = ctx.GPU().NewTexture(img)
		return err
	}))
	b := img.Bounds()
	return glpipe.Frame{
		GLES3:   true,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Texture: tex,
		Matrix:  glpipe.Identity(),
	}
}

// counter is a pass-through node counting the frames it sees.
type counter struct {
	*glpipe.HookPipeline
	n atomic.Int64
}

func newCounter(ctx *glpipe.Context) *counter {
	c := &counter{}
	c.HookPipeline = glpipe.NewHookPipeline(ctx, glpipe.Observe(func(glpipe.Frame) {
		c.n.Add(1)
	}))
	return c
}

func (c *counter) count() int {
	return int(c.n.Load())
}

// captures collects the results of a CapturePipeline.
type captures struct {
	mu     sync.Mutex
	images []*image.RGBA
	errs   []error
	got    chan struct{}
}

func newCaptures() *captures {
	return &captures{got: make(chan struct{}, 1024)}
}

func (c *captures) OnCapture(img *image.RGBA) {
	c.mu.Lock()
	c.images = append(c.images, img)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *captures) OnError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *captures) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}

func (c *captures) last() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.images) == 0 {
		return nil
	}
	return c.images[len(c.images)-1]
}

func (c *captures) errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs
}
