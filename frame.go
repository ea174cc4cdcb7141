package glpipe

import "fmt"

// TextureID is an opaque GPU texture handle.
type TextureID uint32

// NoTexture is the zero texture handle.
const NoTexture TextureID = 0

// Matrix is a 4x4 texture coordinate transform in column-major order, the
// layout OpenGL uses for uniform matrices.
type Matrix [16]float32

// Identity returns the identity matrix.
func Identity() Matrix {
	return Matrix{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// FlipVertical returns a matrix that maps texture coordinate v to 1-v.
func FlipVertical() Matrix {
	return Matrix{
		1, 0, 0, 0,
		0, -1, 0, 0,
		0, 0, 1, 0,
		0, 1, 0, 1,
	}
}

// FlipHorizontal returns a matrix that maps texture coordinate u to 1-u.
func FlipHorizontal() Matrix {
	return Matrix{
		-1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		1, 0, 0, 1,
	}
}

// Multiply returns m * o.
func (m Matrix) Multiply(o Matrix) Matrix {
	var r Matrix
	for col := range 4 {
		for row := range 4 {
			var sum float32
			for k := range 4 {
				sum += m[k*4+row] * o[col*4+k]
			}
			r[col*4+row] = sum
		}
	}
	return r
}

// Transform applies m to the texture coordinate (u, v).
func (m Matrix) Transform(u, v float32) (float32, float32) {
	return m[0]*u + m[4]*v + m[12], m[1]*u + m[5]*v + m[13]
}

// IsIdentity reports whether m is the identity matrix.
func (m Matrix) IsIdentity() bool {
	return m == Identity()
}

// Frame describes one frame-available notification.
//
// Texture is borrowed from the producer and stays valid only for the duration
// of the OnFrameAvailable call that carries it. A node that needs the pixels
// later must read them back before returning.
type Frame struct {
	GLES3   bool
	OES     bool
	Width   int
	Height  int
	Texture TextureID
	Matrix  Matrix
}

func (f Frame) String() string {
	return fmt.Sprintf("frame(tex=%d oes=%v %dx%d)", f.Texture, f.OES, f.Width, f.Height)
}
