package glpipe

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// CaptureCallback receives captured images. Both methods run on the render
// thread.
type CaptureCallback interface {
	OnCapture(img *image.RGBA)
	OnError(err error)
}

// CaptureFuncs adapts functions to CaptureCallback. Nil fields are skipped.
type CaptureFuncs struct {
	Capture func(img *image.RGBA)
	Error   func(err error)
}

func (f CaptureFuncs) OnCapture(img *image.RGBA) {
	if f.Capture != nil {
		f.Capture(img)
	}
}

func (f CaptureFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// CapturePipeline reads frames back into images on request. Frames are
// always forwarded, armed or not.
type CapturePipeline struct {
	Proxy
	callback CaptureCallback

	mu      sync.Mutex
	pending int
	limiter *rate.Limiter
	batch   uuid.UUID
}

func NewCapturePipeline(ctx *Context, cb CaptureCallback) *CapturePipeline {
	if cb == nil {
		cb = CaptureFuncs{}
	}
	c := &CapturePipeline{callback: cb}
	c.init(ctx, c, "capture")
	return c
}

// Trigger arms exactly one capture.
func (c *CapturePipeline) Trigger() error {
	return c.TriggerN(1, 0)
}

// TriggerN arms n captures. Captures happen on arriving frames; interval
// paces them so that at most one frame per interval is captured. Requests
// made while a batch is outstanding are added to it.
func (c *CapturePipeline) TriggerN(n int, interval time.Duration) error {
	if n < 1 {
		return fmt.Errorf("invalid capture count: %d", n)
	}
	if interval < 0 {
		return fmt.Errorf("invalid capture interval: %v", interval)
	}
	if c.IsReleased() {
		return ErrReleased
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == 0 {
		c.batch = uuid.New()
	}
	c.pending += n
	c.limiter = nil
	if interval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	c.logger.Debug("capture armed", "batch", c.batch, "pending", c.pending, "interval", interval)
	return nil
}

// Pending returns the number of outstanding captures.
func (c *CapturePipeline) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Cancel drops all outstanding captures.
func (c *CapturePipeline) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = 0
}

func (c *CapturePipeline) OnFrameAvailable(f Frame) {
	if c.IsReleased() {
		return
	}
	if c.take() {
		c.capture(f)
	}
	c.forward(f)
}

// take reports whether f is to be captured.
func (c *CapturePipeline) take() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == 0 {
		return false
	}
	return c.limiter == nil || c.limiter.Allow()
}

func (c *CapturePipeline) capture(f Frame) {
	img, err := c.ctx.GPU().ReadPixels(f.Texture, f.OES, f.Matrix, f.Width, f.Height)

	c.mu.Lock()
	batch := c.batch
	if err != nil {
		c.pending = 0
	} else if c.pending > 0 {
		c.pending--
	}
	left := c.pending
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("capture failed", "batch", batch, "error", err)
		c.callback.OnError(fmt.Errorf("capture: %w", err))
		return
	}
	c.logger.Debug("captured frame", "batch", batch, "left", left)
	c.callback.OnCapture(img)
}
