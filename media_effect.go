package glpipe

import "fmt"

// EffectFactory creates one step of a MediaEffectPipeline recipe. It runs on
// the render thread. The drawer it returns always samples standard 2D
// textures.
type EffectFactory func(gpu GPU) (Drawer, error)

// UseEffect returns a factory for a built-in effect.
func UseEffect(id EffectID) EffectFactory {
	return func(gpu GPU) (Drawer, error) {
		return gpu.NewEffect(id, false)
	}
}

// MediaEffectPipeline applies an ordered recipe of effects to every frame.
// The input is first normalized into an offscreen texture, then each effect
// renders from the previous result into the next target.
type MediaEffectPipeline struct {
	transformer
	copies    drawerCache
	spare     Offscreen
	factories []EffectFactory
	effects   []Drawer
}

func NewMediaEffectPipeline(ctx *Context, recipe ...EffectFactory) *MediaEffectPipeline {
	m := &MediaEffectPipeline{factories: recipe}
	m.init(ctx, m, "media-effect")
	return m
}

func (m *MediaEffectPipeline) OnFrameAvailable(f Frame) {
	if m.IsReleased() {
		return
	}
	out, err := m.render(f)
	if err != nil {
		m.logger.Error("failed to apply effects", "error", err)
		return
	}
	m.emit(out)
}

func (m *MediaEffectPipeline) render(f Frame) (Frame, error) {
	gpu := m.ctx.GPU()
	if err := m.instantiate(gpu); err != nil {
		return Frame{}, err
	}
	cp, err := m.copies.get(gpu, f.OES)
	if err != nil {
		return Frame{}, err
	}
	targets := [2]*Offscreen{&m.offscreen, &m.spare}
	dst, err := ensureOffscreen(gpu, targets[0], f.Width, f.Height)
	if err != nil {
		return Frame{}, err
	}
	if err := draw(dst, cp, f); err != nil {
		return Frame{}, err
	}
	cur := output(f, dst)
	for i, e := range m.effects {
		dst, err := ensureOffscreen(gpu, targets[(i+1)%2], f.Width, f.Height)
		if err != nil {
			return Frame{}, err
		}
		if err := draw(dst, e, cur); err != nil {
			return Frame{}, fmt.Errorf("effect %d: %w", i, err)
		}
		cur = output(f, dst)
	}
	return cur, nil
}

func (m *MediaEffectPipeline) instantiate(gpu GPU) error {
	if len(m.effects) == len(m.factories) {
		return nil
	}
	m.dropEffects()
	effects := make([]Drawer, 0, len(m.factories))
	for i, factory := range m.factories {
		d, err := factory(gpu)
		if err != nil {
			for _, e := range effects {
				e.Release()
			}
			return fmt.Errorf("effect %d: %w", i, err)
		}
		effects = append(effects, d)
	}
	m.effects = effects
	return nil
}

func (m *MediaEffectPipeline) dropEffects() {
	for _, e := range m.effects {
		e.Release()
	}
	m.effects = nil
}

// SetEffects replaces the recipe. The previous effects are released and the
// next frame runs through the new recipe.
func (m *MediaEffectPipeline) SetEffects(recipe ...EffectFactory) error {
	return m.ctx.Invoke(func() error {
		if m.IsReleased() {
			return ErrReleased
		}
		m.dropEffects()
		m.factories = recipe
		return nil
	})
}

// Len returns the number of effects in the recipe, or 0 once the Context
// is closed.
func (m *MediaEffectPipeline) Len() int {
	var n int
	if err := m.ctx.Invoke(func() error {
		n = len(m.factories)
		return nil
	}); err != nil {
		return 0
	}
	return n
}

func (m *MediaEffectPipeline) releaseResources() {
	m.dropEffects()
	m.copies.release()
	if m.spare != nil {
		m.spare.Release()
		m.spare = nil
	}
	m.releaseTargets()
}
