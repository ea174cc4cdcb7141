package glpipe

// DistributePipeline forwards every frame to a set of child nodes, in
// registration order, and then to its own successor. Children are fan-out
// targets, not successors: each keeps its own sub-chain.
type DistributePipeline struct {
	Proxy
}

func NewDistributePipeline(ctx *Context) *DistributePipeline {
	d := &DistributePipeline{}
	d.init(ctx, d, "distribute")
	return d
}

func (d *DistributePipeline) OnFrameAvailable(f Frame) {
	if d.IsReleased() {
		return
	}
	// children returns the current copy-on-write slice; mutations made while
	// this loop runs take effect on the next frame.
	for _, c := range d.ctx.links.children(d.id) {
		c.OnFrameAvailable(f)
	}
	d.forward(f)
}

// AddPipeline registers n as a fan-out target. n must not have a parent.
func (d *DistributePipeline) AddPipeline(n Node) error {
	if isNil(n) {
		return ErrNilNode
	}
	if n.Context() != d.ctx {
		return ErrForeignNode
	}
	return d.ctx.Invoke(func() error {
		if d.IsReleased() || n.IsReleased() {
			return ErrReleased
		}
		if err := d.ctx.links.addChild(d.id, n.ID()); err != nil {
			return err
		}
		d.logger.Debug("added target", "target", n.ID())
		return nil
	})
}

// RemovePipeline unregisters n. Its own successor chain stays intact.
func (d *DistributePipeline) RemovePipeline(n Node) error {
	if isNil(n) {
		return ErrNilNode
	}
	return d.ctx.Invoke(func() error {
		if d.IsReleased() {
			return ErrReleased
		}
		if err := d.ctx.links.removeChild(d.id, n.ID()); err != nil {
			return err
		}
		d.logger.Debug("removed target", "target", n.ID())
		return nil
	})
}

// Pipelines returns the registered targets in registration order.
func (d *DistributePipeline) Pipelines() []Node {
	return d.ctx.links.children(d.id)
}

// Count returns the number of registered targets.
func (d *DistributePipeline) Count() int {
	return len(d.ctx.links.children(d.id))
}
