package glpipe

import (
	"errors"
	"slices"
	"sync"
)

type surfaceTarget struct {
	key     string
	surface Surface
	mirror  bool
	target  WindowTarget
}

type surfaceOp struct {
	add    bool
	all    bool
	key    string
	target *surfaceTarget
}

// SurfaceDistributePipeline draws every frame into a set of external output
// surfaces and then forwards it to its successor.
//
// AddSurface, RemoveSurface and RemoveAll only queue the change; the render
// thread applies queued changes before the next frame is drawn. Count and
// HasSurface report applied changes.
type SurfaceDistributePipeline struct {
	Proxy
	drawers drawerCache

	mu      sync.Mutex
	pending []surfaceOp
	// targets is replaced, never modified in place.
	targets []*surfaceTarget
}

func NewSurfaceDistributePipeline(ctx *Context) *SurfaceDistributePipeline {
	s := &SurfaceDistributePipeline{}
	s.init(ctx, s, "surface-distribute")
	return s
}

// AddSurface queues s as an output under key. mirror flips the image
// horizontally for this surface. Adding an existing key replaces its surface.
func (s *SurfaceDistributePipeline) AddSurface(key string, surface Surface, mirror bool) error {
	if surface == nil {
		return errors.New("missing surface")
	}
	return s.queue(surfaceOp{
		add: true,
		key: key,
		target: &surfaceTarget{
			key:     key,
			surface: surface,
			mirror:  mirror,
		},
	})
}

// RemoveSurface queues the removal of the surface registered under key.
func (s *SurfaceDistributePipeline) RemoveSurface(key string) error {
	return s.queue(surfaceOp{key: key})
}

// RemoveAll queues the removal of every surface.
func (s *SurfaceDistributePipeline) RemoveAll() error {
	return s.queue(surfaceOp{all: true})
}

func (s *SurfaceDistributePipeline) queue(op surfaceOp) error {
	if s.IsReleased() {
		return ErrReleased
	}
	s.mu.Lock()
	s.pending = append(s.pending, op)
	s.mu.Unlock()
	if s.ctx.OnRenderThread() {
		s.apply()
		return nil
	}
	// Apply even if no frame arrives.
	return s.ctx.Post(func() error {
		s.apply()
		return nil
	})
}

// apply runs on the render thread.
func (s *SurfaceDistributePipeline) apply() {
	s.mu.Lock()
	ops := s.pending
	s.pending = nil
	targets := slices.Clone(s.targets)
	s.mu.Unlock()
	if len(ops) == 0 || s.IsReleased() {
		return
	}

	gpu := s.ctx.GPU()
	for _, op := range ops {
		switch {
		case op.all:
			for _, t := range targets {
				t.target.Release()
			}
			targets = nil
		case op.add:
			wt, err := gpu.NewWindowTarget(op.target.surface)
			if err != nil {
				s.logger.Error("failed to connect to surface", "key", op.key, "error", err)
				continue
			}
			op.target.target = wt
			if i := indexOf(targets, op.key); i >= 0 {
				targets[i].target.Release()
				targets[i] = op.target
			} else {
				targets = append(targets, op.target)
			}
		default:
			if i := indexOf(targets, op.key); i >= 0 {
				targets[i].target.Release()
				targets = slices.Delete(targets, i, i+1)
			}
		}
	}

	s.mu.Lock()
	s.targets = targets
	s.mu.Unlock()
	s.logger.Debug("applied surface changes", "ops", len(ops), "count", len(targets))
}

func indexOf(targets []*surfaceTarget, key string) int {
	return slices.IndexFunc(targets, func(t *surfaceTarget) bool {
		return t.key == key
	})
}

func (s *SurfaceDistributePipeline) snapshot() []*surfaceTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targets
}

func (s *SurfaceDistributePipeline) OnFrameAvailable(f Frame) {
	if s.IsReleased() {
		return
	}
	s.apply()
	targets := s.snapshot()
	if len(targets) > 0 {
		d, err := s.drawers.get(s.ctx.GPU(), f.OES)
		if err != nil {
			s.logger.Error("failed to create drawer", "error", err)
		} else {
			for _, t := range targets {
				s.drawTo(d, t, f)
			}
		}
	}
	s.forward(f)
}

func (s *SurfaceDistributePipeline) drawTo(d Drawer, t *surfaceTarget, f Frame) {
	if !t.surface.IsValid() {
		return
	}
	if t.mirror {
		f.Matrix = f.Matrix.Multiply(FlipHorizontal())
	}
	if err := draw(t.target, d, f); err != nil {
		s.logger.Error("failed to draw to surface", "key", t.key, "error", err)
	}
}

// Count returns the number of output surfaces currently drawn to.
func (s *SurfaceDistributePipeline) Count() int {
	return len(s.snapshot())
}

// HasSurface reports whether a surface is registered under key.
func (s *SurfaceDistributePipeline) HasSurface(key string) bool {
	return indexOf(s.snapshot(), key) >= 0
}

// Keys returns the keys of all output surfaces in registration order.
func (s *SurfaceDistributePipeline) Keys() []string {
	targets := s.snapshot()
	keys := make([]string, len(targets))
	for i, t := range targets {
		keys[i] = t.key
	}
	return keys
}

func (s *SurfaceDistributePipeline) releaseResources() {
	s.mu.Lock()
	targets := s.targets
	s.targets = nil
	s.pending = nil
	s.mu.Unlock()
	for _, t := range targets {
		t.target.Release()
	}
	s.drawers.release()
}
