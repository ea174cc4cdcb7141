package glpipe

// SurfaceRendererPipeline renders frames into an external surface. It is
// usually the tail of a chain; spliced into the middle it acts as a side
// tap and forwards the input frame unchanged.
type SurfaceRendererPipeline struct {
	Proxy
	out surfaceMirror
}

// NewSurfaceRendererPipeline returns a renderer for s. s may be nil and set
// later with SetSurface.
func NewSurfaceRendererPipeline(ctx *Context, s Surface) (*SurfaceRendererPipeline, error) {
	r := &SurfaceRendererPipeline{}
	r.init(ctx, r, "surface-renderer")
	if s == nil {
		return r, nil
	}
	if err := r.SetSurface(s); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

func (r *SurfaceRendererPipeline) OnFrameAvailable(f Frame) {
	if r.IsReleased() {
		return
	}
	if err := r.out.render(r.ctx.GPU(), f); err != nil {
		r.logger.Error("failed to render frame", "error", err)
	}
	r.forward(f)
}

// SetSurface replaces the output surface. nil stops rendering.
func (r *SurfaceRendererPipeline) SetSurface(s Surface) error {
	return r.ctx.Invoke(func() error {
		if r.IsReleased() {
			return ErrReleased
		}
		return r.out.set(r.ctx.GPU(), s)
	})
}

// Surface returns the output surface. It returns nil when none is set or
// the Context is closed.
func (r *SurfaceRendererPipeline) Surface() Surface {
	var s Surface
	if err := r.ctx.Invoke(func() error {
		s = r.out.surface()
		return nil
	}); err != nil {
		return nil
	}
	return s
}

func (r *SurfaceRendererPipeline) releaseResources() {
	r.out.release()
}
