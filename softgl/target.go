package softgl

import (
	"fmt"
	"image"

	"github.com/mengelbart/glpipe"
)

// canvas is implemented by every target a softgl drawer can render into.
type canvas interface {
	pixels() (*image.RGBA, error)
}

type offscreen struct {
	gpu   *GPU
	tex   glpipe.TextureID
	bound bool
}

func (o *offscreen) Size() (int, int) {
	t, err := o.gpu.lookup(o.tex)
	if err != nil {
		return 0, 0
	}
	b := t.img.Bounds()
	return b.Dx(), b.Dy()
}

func (o *offscreen) Texture() glpipe.TextureID {
	return o.tex
}

func (o *offscreen) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid offscreen size: %dx%d", width, height)
	}
	return o.gpu.store(o.tex, image.NewRGBA(image.Rect(0, 0, width, height)))
}

func (o *offscreen) Begin() error {
	if err := o.gpu.check(); err != nil {
		return err
	}
	o.bound = true
	return nil
}

func (o *offscreen) End() error {
	o.bound = false
	return o.gpu.check()
}

func (o *offscreen) Release() {
	o.gpu.DeleteTexture(o.tex)
}

func (o *offscreen) pixels() (*image.RGBA, error) {
	if !o.bound {
		return nil, errNotBound
	}
	t, err := o.gpu.lookup(o.tex)
	if err != nil {
		return nil, err
	}
	return t.img, nil
}

// windowTarget renders into an OutputSurface. Every pass draws into a fresh
// buffer that is presented on End.
type windowTarget struct {
	gpu     *GPU
	surface *OutputSurface
	back    *image.RGBA
}

func (w *windowTarget) Size() (int, int) {
	return w.surface.Size()
}

func (w *windowTarget) Surface() glpipe.Surface {
	return w.surface
}

func (w *windowTarget) Begin() error {
	if err := w.gpu.check(); err != nil {
		return err
	}
	width, height := w.surface.Size()
	w.back = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

func (w *windowTarget) End() error {
	back := w.back
	w.back = nil
	if back == nil {
		return errNotBound
	}
	return w.surface.present(back)
}

func (w *windowTarget) Release() {
	w.back = nil
}

func (w *windowTarget) pixels() (*image.RGBA, error) {
	if w.back == nil {
		return nil, errNotBound
	}
	return w.back, nil
}

type drawer struct {
	gpu    *GPU
	oes    bool
	effect Effect
}

func (d *drawer) Draw(dst glpipe.RenderTarget, src glpipe.Frame) error {
	if err := d.gpu.check(); err != nil {
		return err
	}
	c, ok := dst.(canvas)
	if !ok {
		return errForeignTarget
	}
	if src.OES != d.oes {
		return errSamplerKind
	}
	t, err := d.gpu.lookup(src.Texture)
	if err != nil {
		return err
	}
	if t.oes != src.OES {
		return errSamplerKind
	}
	img, err := c.pixels()
	if err != nil {
		return err
	}
	if err := sample(img, t.img, src.Matrix.Multiply(d.effect.Matrix)); err != nil {
		return err
	}
	if d.effect.Pixel != nil {
		applyPixels(img, d.effect.Pixel)
	}
	return nil
}

func (d *drawer) Release() {}

func applyPixels(img *image.RGBA, fn PixelFunc) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, fn(img.RGBAAt(x, y)))
		}
	}
}
