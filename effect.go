package glpipe

import "fmt"

// EffectPipeline renders every frame through a selectable effect into an
// offscreen texture and forwards that texture.
type EffectPipeline struct {
	transformer
	effect    EffectID
	drawer    Drawer
	drawerOES bool
}

func NewEffectPipeline(ctx *Context, effect EffectID) *EffectPipeline {
	e := &EffectPipeline{effect: effect}
	e.init(ctx, e, "effect")
	return e
}

func (e *EffectPipeline) OnFrameAvailable(f Frame) {
	if e.IsReleased() {
		return
	}
	drawer, err := e.drawerFor(f.OES)
	if err != nil {
		e.logger.Error("failed to create effect", "effect", e.effect, "error", err)
		return
	}
	off, err := e.target(f.Width, f.Height)
	if err != nil {
		e.logger.Error("failed to allocate offscreen", "error", err)
		return
	}
	if err := draw(off, drawer, f); err != nil {
		e.logger.Error("failed to apply effect", "effect", e.effect, "error", err)
		return
	}
	e.emit(output(f, off))
}

func (e *EffectPipeline) drawerFor(oes bool) (Drawer, error) {
	if e.drawer != nil && e.drawerOES == oes {
		return e.drawer, nil
	}
	e.dropDrawer()
	drawer, err := e.ctx.GPU().NewEffect(e.effect, oes)
	if err != nil {
		return nil, err
	}
	e.drawer, e.drawerOES = drawer, oes
	return drawer, nil
}

func (e *EffectPipeline) dropDrawer() {
	if e.drawer != nil {
		e.drawer.Release()
		e.drawer = nil
	}
}

// SetEffect switches the effect. Changes run between two frames on the
// render thread, so the next delivered frame uses the new effect. If the
// backend cannot create the effect, the error is returned and the previous
// effect stays active.
func (e *EffectPipeline) SetEffect(id EffectID) error {
	return e.ctx.Invoke(func() error {
		if e.IsReleased() {
			return ErrReleased
		}
		if id == e.effect {
			return nil
		}
		drawer, err := e.ctx.GPU().NewEffect(id, e.drawerOES)
		if err != nil {
			return fmt.Errorf("failed to create effect %v: %w", id, err)
		}
		e.logger.Debug("switching effect", "from", e.effect, "to", id)
		e.dropDrawer()
		e.effect = id
		e.drawer = drawer
		return nil
	})
}

// Effect returns the active effect, or EffectNone once the Context is
// closed.
func (e *EffectPipeline) Effect() EffectID {
	var id EffectID
	if err := e.ctx.Invoke(func() error {
		id = e.effect
		return nil
	}); err != nil {
		return EffectNone
	}
	return id
}

func (e *EffectPipeline) releaseResources() {
	e.dropDrawer()
	e.releaseTargets()
}
