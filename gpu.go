package glpipe

import "image"

// GPU is the rendering backend a Context drives. All methods except IsValid
// are called on the render thread only.
type GPU interface {
	TextureAllocator
	TargetFactory
	DrawerFactory
	Readback

	// MakeCurrent binds the backend to the calling OS thread. It is called
	// once by the render loop before any other work runs.
	MakeCurrent() error

	// IsValid reports whether the underlying context is still usable.
	IsValid() bool

	// IsGLES3 reports whether the context supports GLES3.
	IsGLES3() bool

	// Release frees the backend. It is called once when the Context closes.
	Release()
}

// TextureAllocator creates and frees textures.
type TextureAllocator interface {
	// NewTexture allocates a standard 2D texture and uploads img into it.
	NewTexture(img image.Image) (TextureID, error)

	// UpdateTexture replaces the content of a texture created by NewTexture.
	UpdateTexture(tex TextureID, img image.Image) error

	DeleteTexture(tex TextureID)

	// NewStreamTexture creates an external texture endpoint that producers
	// write into through its input Surface.
	NewStreamTexture(width, height int) (StreamTexture, error)
}

// TargetFactory creates render targets.
type TargetFactory interface {
	NewOffscreen(width, height int) (Offscreen, error)

	// NewWindowTarget connects to an externally owned surface. Releasing the
	// returned target disconnects from s but never destroys it.
	NewWindowTarget(s Surface) (WindowTarget, error)
}

// DrawerFactory creates drawers.
type DrawerFactory interface {
	// NewDrawer returns a drawer that copies a texture of the given kind
	// (external when oes is true) into a render target.
	NewDrawer(oes bool) (Drawer, error)

	// NewEffect returns a drawer that applies the effect with the given id.
	NewEffect(id EffectID, oes bool) (Drawer, error)
}

// Readback copies texture content into CPU memory.
type Readback interface {
	// ReadPixels samples tex through matrix into an upright width x height
	// image.
	ReadPixels(tex TextureID, oes bool, matrix Matrix, width, height int) (*image.RGBA, error)
}

// RenderTarget is something a Drawer can render into.
type RenderTarget interface {
	Size() (width, height int)

	// Begin binds the target for drawing, End finishes the pass.
	Begin() error
	End() error

	Release()
}

// Offscreen is a framebuffer backed by a texture owned by the target.
type Offscreen interface {
	RenderTarget
	Texture() TextureID
	Resize(width, height int) error
}

// WindowTarget renders into an external surface.
type WindowTarget interface {
	RenderTarget
	Surface() Surface
}

// Drawer renders a frame into a target.
type Drawer interface {
	Draw(dst RenderTarget, src Frame) error
	Release()
}

// Surface is a platform hand-off endpoint shared with an external
// collaborator. The pipeline never assumes exclusive ownership of it.
type Surface interface {
	IsValid() bool
}

// StreamTexture is a streaming texture endpoint. Producers write frames into
// Surface from any thread, the owner latches the newest frame on the render
// thread with UpdateTexImage.
type StreamTexture interface {
	Texture() TextureID
	Surface() Surface
	Size() (width, height int)

	// SetOnFrameAvailable registers fn to be called, on the producer's
	// thread, whenever a new frame lands on the surface.
	SetOnFrameAvailable(fn func())

	// UpdateTexImage latches the newest frame and returns the matrix that
	// describes how to sample it.
	UpdateTexImage() (Matrix, error)

	Release()
}

// EffectID selects an effect shader.
type EffectID int

const (
	EffectNone EffectID = iota
	EffectGrayscale
	EffectNegative
	EffectSepia
	EffectFlipVertical
	EffectFlipHorizontal
	EffectBinarize
)

var effectNames = map[EffectID]string{
	EffectNone:           "none",
	EffectGrayscale:      "grayscale",
	EffectNegative:       "negative",
	EffectSepia:          "sepia",
	EffectFlipVertical:   "flip-vertical",
	EffectFlipHorizontal: "flip-horizontal",
	EffectBinarize:       "binarize",
}

func (e EffectID) String() string {
	if s, ok := effectNames[e]; ok {
		return s
	}
	return "unknown"
}

// ParseEffect returns the EffectID for a name as printed by EffectID.String.
func ParseEffect(name string) (EffectID, bool) {
	for id, s := range effectNames {
		if s == name {
			return id, true
		}
	}
	return EffectNone, false
}
