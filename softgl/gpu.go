// Package softgl is a software rendering backend for glpipe. Textures are
// RGBA images kept in memory, drawers sample them through the frame's
// texture matrix, and surfaces are in-memory hand-off points that tests and
// command line tools can feed and inspect.
package softgl

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mengelbart/glpipe"
)

var (
	ErrUnknownTexture = errors.New("unknown texture")
	ErrLost           = errors.New("context lost")
	errNotBound       = errors.New("render target not bound")
	errForeignTarget  = errors.New("render target belongs to another backend")
	errSamplerKind    = errors.New("sampler does not match texture kind")
)

type Option func(*GPU) error

// GLES3 sets the capability flag reported to the pipeline.
func GLES3(enabled bool) Option {
	return func(g *GPU) error {
		g.gles3 = enabled
		return nil
	}
}

// Effects replaces the built-in effect registry.
func Effects(r *Registry) Option {
	return func(g *GPU) error {
		if r == nil {
			return errors.New("missing effect registry")
		}
		g.effects = r
		return nil
	}
}

func Logger(l *slog.Logger) Option {
	return func(g *GPU) error {
		g.logger = l
		return nil
	}
}

type texture struct {
	img *image.RGBA
	oes bool
}

// GPU implements glpipe.GPU in software.
type GPU struct {
	logger  *slog.Logger
	gles3   bool
	effects *Registry

	mu       sync.Mutex
	next     glpipe.TextureID
	textures map[glpipe.TextureID]*texture

	current atomic.Bool
	lost    atomic.Bool
}

var _ glpipe.GPU = (*GPU)(nil)

func New(opts ...Option) (*GPU, error) {
	g := &GPU{
		logger:   slog.Default(),
		gles3:    true,
		effects:  NewRegistry(),
		textures: map[glpipe.TextureID]*texture{},
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *GPU) MakeCurrent() error {
	if g.lost.Load() {
		return ErrLost
	}
	g.current.Store(true)
	return nil
}

func (g *GPU) IsValid() bool {
	return !g.lost.Load()
}

func (g *GPU) IsGLES3() bool {
	return g.gles3
}

// Registry returns the effects this backend can draw.
func (g *GPU) Registry() *Registry {
	return g.effects
}

// Lose simulates a lost context. Every later operation fails.
func (g *GPU) Lose() {
	g.lost.Store(true)
}

func (g *GPU) Release() {
	g.mu.Lock()
	n := len(g.textures)
	clear(g.textures)
	g.mu.Unlock()
	if n > 0 {
		g.logger.Warn("released backend with live textures", "count", n)
	}
	g.current.Store(false)
}

// Textures returns the number of allocated textures.
func (g *GPU) Textures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.textures)
}

// Effects returns the effect registry.
func (g *GPU) Effects() *Registry {
	return g.effects
}

func (g *GPU) check() error {
	if g.lost.Load() {
		return ErrLost
	}
	return nil
}

func (g *GPU) alloc(img *image.RGBA, oes bool) glpipe.TextureID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.textures[g.next] = &texture{img: img, oes: oes}
	return g.next
}

func (g *GPU) lookup(id glpipe.TextureID) (*texture, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	return t, nil
}

func (g *GPU) store(id glpipe.TextureID, img *image.RGBA) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.textures[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	t.img = img
	return nil
}

func (g *GPU) NewTexture(img image.Image) (glpipe.TextureID, error) {
	if err := g.check(); err != nil {
		return glpipe.NoTexture, err
	}
	b := img.Bounds()
	if b.Empty() {
		return glpipe.NoTexture, errors.New("empty image")
	}
	return g.alloc(toRGBA(img, b.Dx(), b.Dy()), false), nil
}

func (g *GPU) UpdateTexture(tex glpipe.TextureID, img image.Image) error {
	if err := g.check(); err != nil {
		return err
	}
	t, err := g.lookup(tex)
	if err != nil {
		return err
	}
	b := t.img.Bounds()
	return g.store(tex, toRGBA(img, b.Dx(), b.Dy()))
}

func (g *GPU) DeleteTexture(tex glpipe.TextureID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.textures, tex)
}

func (g *GPU) NewStreamTexture(width, height int) (glpipe.StreamTexture, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid stream size: %dx%d", width, height)
	}
	blank := image.NewRGBA(image.Rect(0, 0, width, height))
	s := &streamTexture{
		gpu: g,
		tex: g.alloc(blank, true),
	}
	s.input = newInputSurface(width, height)
	return s, nil
}

func (g *GPU) NewOffscreen(width, height int) (glpipe.Offscreen, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid offscreen size: %dx%d", width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	return &offscreen{gpu: g, tex: g.alloc(img, false)}, nil
}

func (g *GPU) NewWindowTarget(s glpipe.Surface) (glpipe.WindowTarget, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	out, ok := s.(*OutputSurface)
	if !ok {
		return nil, fmt.Errorf("unsupported surface type %T", s)
	}
	if !out.IsValid() {
		return nil, errors.New("surface released")
	}
	return &windowTarget{gpu: g, surface: out}, nil
}

func (g *GPU) NewDrawer(oes bool) (glpipe.Drawer, error) {
	return g.NewEffect(glpipe.EffectNone, oes)
}

func (g *GPU) NewEffect(id glpipe.EffectID, oes bool) (glpipe.Drawer, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	e, err := g.effects.Get(id)
	if err != nil {
		return nil, err
	}
	return &drawer{gpu: g, oes: oes, effect: e}, nil
}

func (g *GPU) ReadPixels(tex glpipe.TextureID, oes bool, matrix glpipe.Matrix, width, height int) (*image.RGBA, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid readback size: %dx%d", width, height)
	}
	t, err := g.lookup(tex)
	if err != nil {
		return nil, err
	}
	if t.oes != oes {
		return nil, errSamplerKind
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if err := sample(dst, t.img, matrix); err != nil {
		return nil, err
	}
	return dst, nil
}
