package softgl

import (
	"fmt"
	"image/color"
	"maps"
	"slices"
	"sync"

	"github.com/mengelbart/glpipe"
)

// PixelFunc maps one output pixel to its effect result.
type PixelFunc func(c color.RGBA) color.RGBA

// Effect is a software shader. Matrix is applied to texture coordinates
// before the source matrix, Pixel to every rendered pixel. A nil Pixel
// leaves colors unchanged.
type Effect struct {
	Matrix glpipe.Matrix
	Pixel  PixelFunc
}

// Registry maps effect ids to effects.
type Registry struct {
	mu      sync.RWMutex
	effects map[glpipe.EffectID]Effect
}

// NewRegistry returns a registry holding the built-in effects.
func NewRegistry() *Registry {
	r := &Registry{effects: map[glpipe.EffectID]Effect{}}
	r.Register(glpipe.EffectNone, Effect{Matrix: glpipe.Identity()})
	r.Register(glpipe.EffectGrayscale, Effect{Matrix: glpipe.Identity(), Pixel: grayscale})
	r.Register(glpipe.EffectNegative, Effect{Matrix: glpipe.Identity(), Pixel: negative})
	r.Register(glpipe.EffectSepia, Effect{Matrix: glpipe.Identity(), Pixel: sepia})
	r.Register(glpipe.EffectFlipVertical, Effect{Matrix: glpipe.FlipVertical()})
	r.Register(glpipe.EffectFlipHorizontal, Effect{Matrix: glpipe.FlipHorizontal()})
	r.Register(glpipe.EffectBinarize, Effect{Matrix: glpipe.Identity(), Pixel: binarize(128)})
	return r
}

// Register adds or replaces the effect for id.
func (r *Registry) Register(id glpipe.EffectID, e Effect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects[id] = e
}

// IDs returns the registered effect ids in ascending order.
func (r *Registry) IDs() []glpipe.EffectID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := slices.Collect(maps.Keys(r.effects))
	slices.Sort(ids)
	return ids
}

func (r *Registry) Get(id glpipe.EffectID) (Effect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.effects[id]
	if !ok {
		return Effect{}, fmt.Errorf("unknown effect: %v", id)
	}
	return e, nil
}

func luma(c color.RGBA) uint8 {
	return uint8((299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B)) / 1000)
}

func grayscale(c color.RGBA) color.RGBA {
	y := luma(c)
	return color.RGBA{y, y, y, c.A}
}

func negative(c color.RGBA) color.RGBA {
	return color.RGBA{c.A - c.R, c.A - c.G, c.A - c.B, c.A}
}

func sepia(c color.RGBA) color.RGBA {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	clamp := func(v float64) uint8 {
		if v > float64(c.A) {
			return c.A
		}
		return uint8(v)
	}
	return color.RGBA{
		clamp(0.393*r + 0.769*g + 0.189*b),
		clamp(0.349*r + 0.686*g + 0.168*b),
		clamp(0.272*r + 0.534*g + 0.131*b),
		c.A,
	}
}

func binarize(threshold uint8) PixelFunc {
	return func(c color.RGBA) color.RGBA {
		if luma(c) >= threshold {
			return color.RGBA{c.A, c.A, c.A, c.A}
		}
		return color.RGBA{0, 0, 0, c.A}
	}
}
