package glpipe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// DefaultFrameRate is the rate at which an ImageSource repeats its image.
const DefaultFrameRate = 30

type ImageSourceOption func(*ImageSource) error

// FrameRate sets the number of frames per second an ImageSource emits.
func FrameRate(fps float64) ImageSourceOption {
	return func(s *ImageSource) error {
		if fps <= 0 {
			return fmt.Errorf("invalid frame rate: %v", fps)
		}
		s.fps = fps
		return nil
	}
}

// ImageSource is a head node that uploads a static image once and then
// repeatedly announces it downstream as a standard 2D texture.
type ImageSource struct {
	Proxy
	fps    float64
	width  int
	height int
	tex    TextureID

	cancel context.CancelFunc
	done   chan struct{}
	queued atomic.Bool
}

// NewImageSource uploads img and starts emitting frames.
func NewImageSource(ctx *Context, img image.Image, opts ...ImageSourceOption) (*ImageSource, error) {
	if img == nil {
		return nil, errors.New("missing source image")
	}
	s := &ImageSource{
		fps:  DefaultFrameRate,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.init(ctx, s, "image-source")
	if err := ctx.Invoke(func() error {
		return s.upload(img)
	}); err != nil {
		close(s.done)
		s.Release()
		return nil, fmt.Errorf("failed to upload source image: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(runCtx)
	return s, nil
}

func (s *ImageSource) upload(img image.Image) error {
	b := img.Bounds()
	gpu := s.ctx.GPU()
	if s.tex != NoTexture && b.Dx() == s.width && b.Dy() == s.height {
		return gpu.UpdateTexture(s.tex, img)
	}
	tex, err := gpu.NewTexture(img)
	if err != nil {
		return err
	}
	if s.tex != NoTexture {
		gpu.DeleteTexture(s.tex)
	}
	s.tex = tex
	s.width, s.height = b.Dx(), b.Dy()
	return nil
}

func (s *ImageSource) run(ctx context.Context) {
	defer close(s.done)
	limiter := rate.NewLimiter(rate.Limit(s.fps), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		// Skip the tick if the previous frame has not been delivered yet.
		if !s.queued.CompareAndSwap(false, true) {
			continue
		}
		if err := s.ctx.post(ctx, task{fn: s.deliver}); err != nil {
			s.queued.Store(false)
			if ctx.Err() == nil {
				s.logger.Warn("stopping image source", "error", err)
			}
			return
		}
	}
}

func (s *ImageSource) deliver() error {
	s.queued.Store(false)
	if s.IsReleased() {
		return nil
	}
	s.forward(Frame{
		GLES3:   s.ctx.GPU().IsGLES3(),
		OES:     false,
		Width:   s.width,
		Height:  s.height,
		Texture: s.tex,
		Matrix:  Identity(),
	})
	return nil
}

// SetImage replaces the source image.
func (s *ImageSource) SetImage(img image.Image) error {
	if img == nil {
		return errors.New("missing source image")
	}
	return s.ctx.Invoke(func() error {
		if s.IsReleased() {
			return ErrReleased
		}
		return s.upload(img)
	})
}

// Size returns the size of the current image, or zero once the Context is
// closed.
func (s *ImageSource) Size() (width, height int) {
	var w, h int
	if err := s.ctx.Invoke(func() error {
		w, h = s.width, s.height
		return nil
	}); err != nil {
		return 0, 0
	}
	return w, h
}

func (s *ImageSource) releaseResources() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	if s.tex != NoTexture {
		s.ctx.GPU().DeleteTexture(s.tex)
		s.tex = NoTexture
	}
}
