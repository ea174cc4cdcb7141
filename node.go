package glpipe

import (
	"errors"
	"log/slog"
	"reflect"
	"sync/atomic"
)

// Node is one unit of a pipeline chain. All node kinds in this package embed
// Proxy, which implements the linking half of the interface.
type Node interface {
	// OnFrameAvailable processes one frame and forwards it downstream. It
	// runs on the render thread.
	OnFrameAvailable(f Frame)

	ID() NodeID
	Context() *Context

	// SetPipeline makes next the successor of this node. The previous
	// successor is detached together with its sub-chain. Passing nil only
	// detaches. next must not have a parent.
	SetPipeline(next Node) error

	// Pipeline returns the successor or nil.
	Pipeline() Node

	// Parent returns the predecessor or nil.
	Parent() Node

	// Remove unlinks the node and joins its parent with its successor.
	Remove() error

	// Release frees all resources of the node and removes it from the
	// chain. Release is idempotent.
	Release() error

	IsReleased() bool
	State() State

	proxy() *Proxy
}

// State is the lifecycle state of a node.
type State int

const (
	Created State = iota
	Attached
	Released
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Attached:
		return "attached"
	case Released:
		return "released"
	}
	return "unknown"
}

// resourceReleaser is implemented by nodes that own GPU resources. It is
// called once, on the render thread.
type resourceReleaser interface {
	releaseResources()
}

// Proxy is the pass-through node. Used on its own it forwards every frame
// unchanged, which makes it an attachment and observation point. All other
// node kinds embed it.
type Proxy struct {
	ctx      *Context
	self     Node
	id       NodeID
	kind     string
	logger   *slog.Logger
	released atomic.Bool
}

// NewProxy returns a pass-through node.
func NewProxy(ctx *Context) *Proxy {
	p := &Proxy{}
	p.init(ctx, p, "proxy")
	return p
}

func (p *Proxy) init(ctx *Context, self Node, kind string) {
	p.ctx = ctx
	p.self = self
	p.kind = kind
	p.id = ctx.links.register(self)
	p.logger = ctx.logger.With("node", kind, "id", p.id)
}

func (p *Proxy) proxy() *Proxy {
	return p
}

func (p *Proxy) ID() NodeID {
	return p.id
}

func (p *Proxy) Context() *Context {
	return p.ctx
}

func (p *Proxy) String() string {
	return p.kind
}

// OnFrameAvailable forwards f to the successor.
func (p *Proxy) OnFrameAvailable(f Frame) {
	if p.released.Load() {
		return
	}
	p.forward(f)
}

func (p *Proxy) forward(f Frame) {
	if next := p.Pipeline(); next != nil {
		next.OnFrameAvailable(f)
	}
}

func (p *Proxy) SetPipeline(next Node) error {
	nextID := NoNode
	if !isNil(next) {
		if next.Context() != p.ctx {
			return ErrForeignNode
		}
		nextID = next.ID()
	}
	return p.ctx.Invoke(func() error {
		if p.released.Load() {
			return ErrReleased
		}
		return p.ctx.links.setSuccessor(p.id, nextID)
	})
}

func (p *Proxy) Pipeline() Node {
	return p.ctx.links.successor(p.id)
}

func (p *Proxy) Parent() Node {
	return p.ctx.links.parent(p.id)
}

func (p *Proxy) Remove() error {
	return p.ctx.Invoke(func() error {
		if p.released.Load() {
			return ErrReleased
		}
		return p.ctx.links.remove(p.id)
	})
}

func (p *Proxy) Release() error {
	if p.released.Load() {
		return nil
	}
	err := p.ctx.Invoke(func() error {
		p.releaseOnRenderThread()
		return nil
	})
	if errors.Is(err, ErrContextClosed) {
		// Close already released every live node.
		return nil
	}
	return err
}

func (p *Proxy) releaseOnRenderThread() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	if r, ok := p.self.(resourceReleaser); ok {
		r.releaseResources()
	}
	p.ctx.links.release(p.id)
	p.logger.Debug("released")
}

func (p *Proxy) IsReleased() bool {
	return p.released.Load()
}

func (p *Proxy) State() State {
	if p.released.Load() {
		return Released
	}
	if p.ctx.links.attached(p.id) {
		return Attached
	}
	return Created
}

func isNil(n Node) bool {
	if n == nil {
		return true
	}
	v := reflect.ValueOf(n)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
