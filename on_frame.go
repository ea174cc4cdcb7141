package glpipe

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
)

// FrameListener observes frames. OnFrame runs on the render thread and the
// frame's texture is valid only until it returns.
type FrameListener interface {
	OnFrame(f Frame)
}

// FrameListenerFunc adapts a function to FrameListener.
type FrameListenerFunc func(f Frame)

func (fn FrameListenerFunc) OnFrame(f Frame) {
	fn(f)
}

// OnFramePipeline hands every frame to a listener and, if one is attached,
// reads it back into an ImageReader. It applies no transform and forwards
// the frame unchanged.
type OnFramePipeline struct {
	Proxy
	listener FrameListener
	reader   atomic.Pointer[ImageReader]
}

// NewOnFramePipeline returns the node. l may be nil when only an
// ImageReader is used.
func NewOnFramePipeline(ctx *Context, l FrameListener) *OnFramePipeline {
	o := &OnFramePipeline{listener: l}
	o.init(ctx, o, "on-frame")
	return o
}

// SetImageReader attaches r, or detaches the current reader when r is nil.
func (o *OnFramePipeline) SetImageReader(r *ImageReader) {
	o.reader.Store(r)
}

func (o *OnFramePipeline) OnFrameAvailable(f Frame) {
	if o.IsReleased() {
		return
	}
	if o.listener != nil {
		o.listener.OnFrame(f)
	}
	if r := o.reader.Load(); r != nil && !r.closed.Load() {
		img, err := o.ctx.GPU().ReadPixels(f.Texture, f.OES, f.Matrix, f.Width, f.Height)
		if err != nil {
			o.logger.Error("failed to read frame", "error", err)
		} else {
			r.push(img)
		}
	}
	o.forward(f)
}

func (o *OnFramePipeline) releaseResources() {
	o.reader.Store(nil)
}

// ErrReaderClosed is returned by ImageReader.Next after Close.
var ErrReaderClosed = errors.New("image reader closed")

// ImageReader is a bounded queue of read back frames. When full, the oldest
// image is dropped.
type ImageReader struct {
	images  chan *image.RGBA
	dropped atomic.Uint64
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func NewImageReader(capacity int) *ImageReader {
	if capacity < 1 {
		capacity = 1
	}
	return &ImageReader{
		images: make(chan *image.RGBA, capacity),
		done:   make(chan struct{}),
	}
}

func (r *ImageReader) push(img *image.RGBA) {
	for {
		select {
		case r.images <- img:
			return
		default:
		}
		select {
		case <-r.images:
			r.dropped.Add(1)
		default:
		}
	}
}

// Next returns the oldest queued image, waiting for one if the queue is
// empty.
func (r *ImageReader) Next(ctx context.Context) (*image.RGBA, error) {
	select {
	case img := <-r.images:
		return img, nil
	default:
	}
	select {
	case img := <-r.images:
		return img, nil
	case <-r.done:
		return nil, ErrReaderClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryNext returns the oldest queued image or nil.
func (r *ImageReader) TryNext() *image.RGBA {
	select {
	case img := <-r.images:
		return img
	default:
		return nil
	}
}

// Dropped returns the number of images discarded because the queue was full.
func (r *ImageReader) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting images and wakes up waiting readers.
func (r *ImageReader) Close() {
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.done)
	})
}
