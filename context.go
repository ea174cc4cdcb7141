package glpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/mengelbart/glpipe/internal/goid"
)

type ContextOption func(*Context) error

// QueueSize sets the capacity of the render thread's task queue.
func QueueSize(n int) ContextOption {
	return func(c *Context) error {
		if n < 1 {
			return fmt.Errorf("invalid queue size: %d", n)
		}
		c.queueSize = n
		return nil
	}
}

// Logger sets the logger used by the context and all its nodes.
func Logger(l *slog.Logger) ContextOption {
	return func(c *Context) error {
		c.logger = l
		return nil
	}
}

type task struct {
	fn   func() error
	done chan error
}

// Context owns a GPU backend and the single render thread that executes all
// GPU work and all frame deliveries. Control-plane calls made from other
// goroutines are queued and run on the render thread in submission order.
type Context struct {
	gpu       GPU
	logger    *slog.Logger
	queueSize int
	links     *arena

	tasks chan task
	// deferred holds work posted by the render thread itself. Only the
	// render thread touches it.
	deferred []task

	closing   chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	owner     atomic.Uint64
}

// NewContext starts a render thread for gpu. The returned Context must be
// closed to stop the thread and release all nodes still alive.
func NewContext(gpu GPU, opts ...ContextOption) (*Context, error) {
	if gpu == nil {
		return nil, errors.New("missing GPU backend")
	}
	c := &Context{
		gpu:       gpu,
		logger:    slog.Default(),
		queueSize: 64,
		links:     newArena(),
		closing:   make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.tasks = make(chan task, c.queueSize)

	started := make(chan error, 1)
	go c.loop(started)
	if err := <-started; err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Context) loop(started chan<- error) {
	// GL contexts are bound to an OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.stopped)

	c.owner.Store(goid.Get())
	if err := c.gpu.MakeCurrent(); err != nil {
		c.closed.Store(true)
		started <- fmt.Errorf("failed to make GPU context current: %w", err)
		return
	}
	started <- nil
	c.logger.Debug("render thread started")

	for {
		select {
		case t := <-c.tasks:
			c.run(t)
			c.runDeferred()
		case <-c.closing:
			c.shutdown()
			return
		}
	}
}

func (c *Context) run(t task) {
	err := c.safeCall(t.fn)
	if t.done != nil {
		t.done <- err
		return
	}
	if err != nil {
		c.logger.Error("render task failed", "error", err)
	}
}

func (c *Context) runDeferred() {
	for len(c.deferred) > 0 {
		t := c.deferred[0]
		c.deferred[0] = task{}
		c.deferred = c.deferred[1:]
		c.run(t)
	}
	c.deferred = nil
}

func (c *Context) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic on render thread: %v", r)
		}
	}()
	return fn()
}

func (c *Context) shutdown() {
	// Fail everything still queued, then release remaining nodes.
	for _, t := range c.deferred {
		if t.done != nil {
			t.done <- ErrContextClosed
		}
	}
	c.deferred = nil
	for drained := false; !drained; {
		select {
		case t := <-c.tasks:
			if t.done != nil {
				t.done <- ErrContextClosed
			}
		default:
			drained = true
		}
	}
	for _, n := range c.links.live() {
		if err := c.safeCall(func() error {
			n.proxy().releaseOnRenderThread()
			return nil
		}); err != nil {
			c.logger.Error("failed to release node", "id", n.ID(), "error", err)
		}
	}
	c.gpu.Release()
	c.logger.Debug("render thread stopped")
}

// GPU returns the backend. Use it from the render thread only.
func (c *Context) GPU() GPU {
	return c.gpu
}

func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// IsValid reports whether the context accepts work and its backend is usable.
func (c *Context) IsValid() bool {
	return !c.closed.Load() && c.gpu.IsValid()
}

// OnRenderThread reports whether the caller runs on the render thread.
func (c *Context) OnRenderThread() bool {
	return c.owner.Load() == goid.Get()
}

// Post queues fn for asynchronous execution on the render thread. Errors
// returned by fn are logged. Called on the render thread, Post never blocks;
// fn runs once the current task has returned.
func (c *Context) Post(fn func() error) error {
	return c.post(context.Background(), task{fn: fn})
}

func (c *Context) post(ctx context.Context, t task) error {
	if c.closed.Load() {
		return ErrContextClosed
	}
	if c.OnRenderThread() {
		// The queue is only drained by this thread.
		c.deferred = append(c.deferred, t)
		return nil
	}
	select {
	case c.tasks <- t:
		// A send that completes after Close may land behind the final
		// drain and never run. Invoke notices through stopped.
		if t.done == nil && c.closed.Load() {
			return ErrContextClosed
		}
		return nil
	case <-c.closing:
		return ErrContextClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invoke runs fn on the render thread and waits for it to return. When
// called on the render thread, fn runs inline.
func (c *Context) Invoke(fn func() error) error {
	if c.OnRenderThread() {
		return c.safeCall(fn)
	}
	t := task{fn: fn, done: make(chan error, 1)}
	if err := c.post(context.Background(), t); err != nil {
		return err
	}
	select {
	case err := <-t.done:
		return err
	case <-c.stopped:
		// The loop may have answered right before stopping.
		select {
		case err := <-t.done:
			return err
		default:
			return ErrContextClosed
		}
	}
}

// Deliver runs n.OnFrameAvailable(f) on the render thread and waits for the
// whole synchronous chain to finish.
func (c *Context) Deliver(n Node, f Frame) error {
	if isNil(n) {
		return ErrNilNode
	}
	return c.Invoke(func() error {
		n.OnFrameAvailable(f)
		return nil
	})
}

// Close releases all nodes that are still alive on the render thread, frees
// the backend and stops the thread. Close is idempotent.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closing)
	})
	if c.OnRenderThread() {
		// The loop exits once the current task returns.
		return nil
	}
	<-c.stopped
	return nil
}
