package glpipe

import (
	"context"
	"fmt"
	"sync"
)

// SurfaceState is the readiness of an asynchronously created surface.
type SurfaceState int

const (
	SurfacePending SurfaceState = iota
	SurfaceReady
	SurfaceFailed
	SurfaceClosed
)

func (s SurfaceState) String() string {
	switch s {
	case SurfacePending:
		return "pending"
	case SurfaceReady:
		return "ready"
	case SurfaceFailed:
		return "failed"
	case SurfaceClosed:
		return "closed"
	}
	return "unknown"
}

// SurfaceFuture publishes the input surface of a SurfaceSource once it
// exists.
type SurfaceFuture struct {
	mu      sync.Mutex
	state   SurfaceState
	surface Surface
	err     error
	changed chan struct{}
}

func newSurfaceFuture() *SurfaceFuture {
	return &SurfaceFuture{
		state:   SurfacePending,
		changed: make(chan struct{}),
	}
}

func (f *SurfaceFuture) set(state SurfaceState, s Surface) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == SurfaceClosed {
		return
	}
	f.state = state
	f.surface = s
	f.err = nil
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *SurfaceFuture) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == SurfaceClosed {
		return
	}
	f.state = SurfaceFailed
	f.surface = nil
	f.err = err
	close(f.changed)
	f.changed = make(chan struct{})
}

// Err returns the creation error while the state is SurfaceFailed.
func (f *SurfaceFuture) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// State returns the current state and, when ready, the surface.
func (f *SurfaceFuture) State() (SurfaceState, Surface) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.surface
}

// Wait blocks until the surface is ready or creating it failed. It also
// returns when the source is released or ctx is done.
func (f *SurfaceFuture) Wait(ctx context.Context) (Surface, error) {
	for {
		f.mu.Lock()
		state, surface, err, changed := f.state, f.surface, f.err, f.changed
		f.mu.Unlock()
		switch state {
		case SurfaceReady:
			return surface, nil
		case SurfaceFailed:
			return nil, err
		case SurfaceClosed:
			return nil, ErrReleased
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// SourceCallback is notified when the input surface of a SurfaceSource is
// created and when it is torn down.
type SourceCallback interface {
	OnCreate(s Surface)
	OnDestroy()
}

// SourceCallbackFuncs adapts functions to SourceCallback. Nil fields are
// skipped.
type SourceCallbackFuncs struct {
	Create  func(s Surface)
	Destroy func()
}

func (f SourceCallbackFuncs) OnCreate(s Surface) {
	if f.Create != nil {
		f.Create(s)
	}
}

func (f SourceCallbackFuncs) OnDestroy() {
	if f.Destroy != nil {
		f.Destroy()
	}
}

// SurfaceSource is a head node that exposes an input surface to an external
// producer. Every frame written to the surface is latched into an external
// texture and announced downstream.
type SurfaceSource struct {
	Proxy
	width    int
	height   int
	callback SourceCallback
	ready    *SurfaceFuture
	stream   StreamTexture
}

// NewSurfaceSource creates the source. The input surface is created
// asynchronously on the render thread; cb.OnCreate or Ready().Wait signal
// when producers can start writing. If creation fails, Ready().Wait returns
// the error.
func NewSurfaceSource(ctx *Context, width, height int, cb SourceCallback) (*SurfaceSource, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size: %dx%d", width, height)
	}
	if cb == nil {
		cb = SourceCallbackFuncs{}
	}
	s := &SurfaceSource{
		width:    width,
		height:   height,
		callback: cb,
		ready:    newSurfaceFuture(),
	}
	s.init(ctx, s, "surface-source")
	if err := ctx.Post(s.create); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

func (s *SurfaceSource) create() error {
	if s.IsReleased() {
		return nil
	}
	stream, err := s.ctx.GPU().NewStreamTexture(s.width, s.height)
	if err != nil {
		err = fmt.Errorf("failed to create stream texture: %w", err)
		s.ready.fail(err)
		return err
	}
	stream.SetOnFrameAvailable(s.onStreamFrame)
	s.stream = stream
	surface := stream.Surface()
	s.ready.set(SurfaceReady, surface)
	s.logger.Debug("input surface ready", "width", s.width, "height", s.height)
	s.callback.OnCreate(surface)
	return nil
}

// onStreamFrame runs on the producer's thread.
func (s *SurfaceSource) onStreamFrame() {
	if s.IsReleased() {
		return
	}
	if err := s.ctx.Post(s.deliver); err != nil {
		s.logger.Debug("dropping stream frame", "error", err)
	}
}

func (s *SurfaceSource) deliver() error {
	if s.IsReleased() || s.stream == nil {
		return nil
	}
	matrix, err := s.stream.UpdateTexImage()
	if err != nil {
		return fmt.Errorf("failed to latch stream frame: %w", err)
	}
	w, h := s.stream.Size()
	s.forward(Frame{
		GLES3:   s.ctx.GPU().IsGLES3(),
		OES:     true,
		Width:   w,
		Height:  h,
		Texture: s.stream.Texture(),
		Matrix:  matrix,
	})
	return nil
}

// Surface returns the input surface, or nil while it is not created yet.
func (s *SurfaceSource) Surface() Surface {
	_, surface := s.ready.State()
	return surface
}

// Ready returns the readiness future of the input surface.
func (s *SurfaceSource) Ready() *SurfaceFuture {
	return s.ready
}

// Resize tears the input surface down and creates a new one with the given
// size. Producers see OnDestroy followed by OnCreate.
func (s *SurfaceSource) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size: %dx%d", width, height)
	}
	return s.ctx.Invoke(func() error {
		if s.IsReleased() {
			return ErrReleased
		}
		if width == s.width && height == s.height {
			return nil
		}
		s.teardown()
		s.ready.set(SurfacePending, nil)
		s.width, s.height = width, height
		return s.create()
	})
}

func (s *SurfaceSource) teardown() {
	if s.stream == nil {
		return
	}
	s.callback.OnDestroy()
	s.stream.Release()
	s.stream = nil
}

func (s *SurfaceSource) releaseResources() {
	s.teardown()
	s.ready.set(SurfaceClosed, nil)
}
