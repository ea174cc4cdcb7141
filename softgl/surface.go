package softgl

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/mengelbart/glpipe"
)

// InputQueueSize is the number of frames an InputSurface buffers before
// WriteImage blocks.
const InputQueueSize = 3

// ErrSurfaceReleased is returned for writes to a released surface.
var ErrSurfaceReleased = errors.New("surface released")

// InputSurface is the producer side of a stream texture. Producers write
// images from any goroutine; the consuming SurfaceSource latches them in
// write order.
type InputSurface struct {
	width  int
	height int
	queue  chan *image.RGBA
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	onFrame func()
}

func newInputSurface(width, height int) *InputSurface {
	return &InputSurface{
		width:  width,
		height: height,
		queue:  make(chan *image.RGBA, InputQueueSize),
		closed: make(chan struct{}),
	}
}

var _ glpipe.Surface = (*InputSurface)(nil)

func (s *InputSurface) IsValid() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

func (s *InputSurface) Size() (width, height int) {
	return s.width, s.height
}

// WriteImage queues img as the next frame, scaled to the surface size. It
// blocks while the queue is full.
func (s *InputSurface) WriteImage(ctx context.Context, img image.Image) error {
	if !s.IsValid() {
		return ErrSurfaceReleased
	}
	// Streams are stored bottom row first, the way camera and decoder
	// buffers arrive. The latched matrix flips them back.
	frame := flipRows(toRGBA(img, s.width, s.height))
	select {
	case s.queue <- frame:
	case <-s.closed:
		return ErrSurfaceReleased
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	fn := s.onFrame
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (s *InputSurface) setOnFrame(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = fn
}

func (s *InputSurface) next() (*image.RGBA, bool) {
	select {
	case img := <-s.queue:
		return img, true
	default:
		return nil, false
	}
}

func (s *InputSurface) release() {
	s.once.Do(func() {
		close(s.closed)
	})
}

type streamTexture struct {
	gpu   *GPU
	tex   glpipe.TextureID
	input *InputSurface
}

func (s *streamTexture) Texture() glpipe.TextureID {
	return s.tex
}

func (s *streamTexture) Surface() glpipe.Surface {
	return s.input
}

func (s *streamTexture) Size() (int, int) {
	return s.input.Size()
}

func (s *streamTexture) SetOnFrameAvailable(fn func()) {
	s.input.setOnFrame(fn)
}

// UpdateTexImage latches the oldest unlatched frame. Without a new frame the
// previous content stays.
func (s *streamTexture) UpdateTexImage() (glpipe.Matrix, error) {
	if err := s.gpu.check(); err != nil {
		return glpipe.Matrix{}, err
	}
	if img, ok := s.input.next(); ok {
		if err := s.gpu.store(s.tex, img); err != nil {
			return glpipe.Matrix{}, err
		}
	}
	return glpipe.FlipVertical(), nil
}

func (s *streamTexture) Release() {
	s.input.setOnFrame(nil)
	s.input.release()
	s.gpu.DeleteTexture(s.tex)
}

// OutputSurface is an in-memory display surface. It keeps the last presented
// image and counts presentations.
type OutputSurface struct {
	width  int
	height int
	valid  atomic.Bool

	mu      sync.Mutex
	last    *image.RGBA
	frames  int
	changed chan struct{}
}

var _ glpipe.Surface = (*OutputSurface)(nil)

func NewOutputSurface(width, height int) *OutputSurface {
	s := &OutputSurface{
		width:   width,
		height:  height,
		changed: make(chan struct{}),
	}
	s.valid.Store(true)
	return s
}

func (s *OutputSurface) IsValid() bool {
	return s.valid.Load()
}

func (s *OutputSurface) Size() (width, height int) {
	return s.width, s.height
}

// Release destroys the surface. Connected targets stop drawing into it.
func (s *OutputSurface) Release() {
	s.valid.Store(false)
}

func (s *OutputSurface) present(img *image.RGBA) error {
	if !s.IsValid() {
		return ErrSurfaceReleased
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = img
	s.frames++
	close(s.changed)
	s.changed = make(chan struct{})
	return nil
}

// Frames returns the number of presented frames.
func (s *OutputSurface) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Last returns the last presented image or nil.
func (s *OutputSurface) Last() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// WaitFrames blocks until at least n frames were presented.
func (s *OutputSurface) WaitFrames(ctx context.Context, n int) error {
	for {
		s.mu.Lock()
		frames, changed := s.frames, s.changed
		s.mu.Unlock()
		if frames >= n {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
