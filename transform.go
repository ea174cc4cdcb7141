package glpipe

import "fmt"

// drawerCache lazily creates one copy drawer per texture kind.
type drawerCache struct {
	drawers [2]Drawer
}

func (c *drawerCache) get(gpu GPU, oes bool) (Drawer, error) {
	i := 0
	if oes {
		i = 1
	}
	if c.drawers[i] == nil {
		d, err := gpu.NewDrawer(oes)
		if err != nil {
			return nil, err
		}
		c.drawers[i] = d
	}
	return c.drawers[i], nil
}

func (c *drawerCache) release() {
	for i, d := range c.drawers {
		if d != nil {
			d.Release()
			c.drawers[i] = nil
		}
	}
}

// draw renders src into dst inside one Begin/End pass.
func draw(dst RenderTarget, d Drawer, src Frame) error {
	if err := dst.Begin(); err != nil {
		return err
	}
	drawErr := d.Draw(dst, src)
	if err := dst.End(); err != nil && drawErr == nil {
		return err
	}
	return drawErr
}

// surfaceMirror copies frames into an optional external surface.
type surfaceMirror struct {
	target  WindowTarget
	drawers drawerCache
}

func (m *surfaceMirror) set(gpu GPU, s Surface) error {
	m.release()
	if s == nil {
		return nil
	}
	t, err := gpu.NewWindowTarget(s)
	if err != nil {
		return fmt.Errorf("failed to connect to surface: %w", err)
	}
	m.target = t
	return nil
}

func (m *surfaceMirror) surface() Surface {
	if m.target == nil {
		return nil
	}
	return m.target.Surface()
}

func (m *surfaceMirror) render(gpu GPU, f Frame) error {
	if m.target == nil {
		return nil
	}
	if s := m.target.Surface(); s != nil && !s.IsValid() {
		// The owner destroyed the surface; disconnect.
		m.release()
		return nil
	}
	d, err := m.drawers.get(gpu, f.OES)
	if err != nil {
		return err
	}
	return draw(m.target, d, f)
}

// release disconnects from the surface without destroying it.
func (m *surfaceMirror) release() {
	if m.target != nil {
		m.target.Release()
		m.target = nil
	}
	m.drawers.release()
}

// transformer is the common part of nodes that render every frame into an
// offscreen texture they own and forward that texture downstream.
type transformer struct {
	Proxy
	offscreen Offscreen
	mirror    surfaceMirror
}

func (t *transformer) target(width, height int) (Offscreen, error) {
	return ensureOffscreen(t.ctx.GPU(), &t.offscreen, width, height)
}

// ensureOffscreen allocates *off on first use and resizes it when the frame
// size changes.
func ensureOffscreen(gpu GPU, off *Offscreen, width, height int) (Offscreen, error) {
	if *off == nil {
		o, err := gpu.NewOffscreen(width, height)
		if err != nil {
			return nil, err
		}
		*off = o
		return o, nil
	}
	if w, h := (*off).Size(); w != width || h != height {
		if err := (*off).Resize(width, height); err != nil {
			return nil, err
		}
	}
	return *off, nil
}

// output returns the frame that describes the content of off.
func output(in Frame, off Offscreen) Frame {
	w, h := off.Size()
	return Frame{
		GLES3:   in.GLES3,
		OES:     false,
		Width:   w,
		Height:  h,
		Texture: off.Texture(),
		Matrix:  Identity(),
	}
}

// emit mirrors out into the surface, if any, and forwards it.
func (t *transformer) emit(out Frame) {
	if err := t.mirror.render(t.ctx.GPU(), out); err != nil {
		t.logger.Error("failed to mirror frame", "error", err)
	}
	t.forward(out)
}

// SetSurface mirrors every output frame into s in addition to forwarding it.
// A nil surface disables mirroring.
func (t *transformer) SetSurface(s Surface) error {
	return t.ctx.Invoke(func() error {
		if t.IsReleased() {
			return ErrReleased
		}
		return t.mirror.set(t.ctx.GPU(), s)
	})
}

// Surface returns the mirror surface. It returns nil when mirroring is off
// or the Context is closed.
func (t *transformer) Surface() Surface {
	var s Surface
	if err := t.ctx.Invoke(func() error {
		s = t.mirror.surface()
		return nil
	}); err != nil {
		return nil
	}
	return s
}

func (t *transformer) releaseTargets() {
	t.mirror.release()
	if t.offscreen != nil {
		t.offscreen.Release()
		t.offscreen = nil
	}
}
