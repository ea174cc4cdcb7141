package glpipe

// DrawerFunc creates the drawer a DrawerPipeline renders with, for the given
// input texture kind.
type DrawerFunc func(gpu GPU, oes bool) (Drawer, error)

type DrawerOption func(*DrawerPipeline)

// WithDrawer replaces the default copy drawer.
func WithDrawer(fn DrawerFunc) DrawerOption {
	return func(d *DrawerPipeline) {
		d.newDrawer = fn
	}
}

// DrawerPipeline renders every frame with a drawer into an offscreen
// texture and forwards that texture. External input textures come out as
// standard 2D textures.
type DrawerPipeline struct {
	transformer
	newDrawer DrawerFunc
	drawer    Drawer
	drawerOES bool
}

func NewDrawerPipeline(ctx *Context, opts ...DrawerOption) *DrawerPipeline {
	d := &DrawerPipeline{
		newDrawer: func(gpu GPU, oes bool) (Drawer, error) {
			return gpu.NewDrawer(oes)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.init(ctx, d, "drawer")
	return d
}

func (d *DrawerPipeline) OnFrameAvailable(f Frame) {
	if d.IsReleased() {
		return
	}
	drawer, err := d.drawerFor(f.OES)
	if err != nil {
		d.logger.Error("failed to create drawer", "error", err)
		return
	}
	off, err := d.target(f.Width, f.Height)
	if err != nil {
		d.logger.Error("failed to allocate offscreen", "error", err)
		return
	}
	if err := draw(off, drawer, f); err != nil {
		d.logger.Error("failed to draw frame", "error", err)
		return
	}
	d.emit(output(f, off))
}

func (d *DrawerPipeline) drawerFor(oes bool) (Drawer, error) {
	if d.drawer != nil && d.drawerOES == oes {
		return d.drawer, nil
	}
	if d.drawer != nil {
		d.drawer.Release()
		d.drawer = nil
	}
	drawer, err := d.newDrawer(d.ctx.GPU(), oes)
	if err != nil {
		return nil, err
	}
	d.drawer, d.drawerOES = drawer, oes
	return drawer, nil
}

func (d *DrawerPipeline) releaseResources() {
	if d.drawer != nil {
		d.drawer.Release()
		d.drawer = nil
	}
	d.releaseTargets()
}
