package softgl

import (
	"errors"
	"image"

	"github.com/mengelbart/glpipe"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

var errSingularMatrix = errors.New("texture matrix is not invertible")

// sample renders src into dst as if dst were covered by a quad whose texture
// coordinates (u, v) run from (0, 0) at the first pixel of dst to (1, 1) at
// the last, transformed by m before sampling src.
//
// Texture coordinate v=0 is the first row of the stored image.
func sample(dst *image.RGBA, src *image.RGBA, m glpipe.Matrix) error {
	s2d, err := srcToDst(m, dst.Bounds().Size(), src.Bounds().Size())
	if err != nil {
		return err
	}
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)
	draw.NearestNeighbor.Transform(dst, s2d, src, src.Bounds(), draw.Src, nil)
	return nil
}

// srcToDst builds the pixel space transform x/image/draw expects from the
// texture coordinate transform m.
func srcToDst(m glpipe.Matrix, dst, src image.Point) (f64.Aff3, error) {
	wd, hd := float64(dst.X), float64(dst.Y)
	ws, hs := float64(src.X), float64(src.Y)
	if wd == 0 || hd == 0 || ws == 0 || hs == 0 {
		return f64.Aff3{}, errors.New("empty image")
	}
	// d2s maps dst pixels to src pixels:
	// sx = ws * (m0*x/wd + m4*y/hd + m12)
	// sy = hs * (m1*x/wd + m5*y/hd + m13)
	a := ws * float64(m[0]) / wd
	b := ws * float64(m[4]) / hd
	c := ws * float64(m[12])
	d := hs * float64(m[1]) / wd
	e := hs * float64(m[5]) / hd
	f := hs * float64(m[13])

	det := a*e - b*d
	if det == 0 {
		return f64.Aff3{}, errSingularMatrix
	}
	return f64.Aff3{
		e / det, -b / det, (b*f - e*c) / det,
		-d / det, a / det, (d*c - a*f) / det,
	}, nil
}

// toRGBA returns img as an *image.RGBA of the given size, scaling if needed.
// The result never aliases img.
func toRGBA(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// flipRows returns a copy of img with the row order reversed.
func flipRows(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	n := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+n]
		dy := b.Dy() - 1 - y
		copy(out.Pix[dy*out.Stride:dy*out.Stride+n], src)
	}
	return out
}
