package glpipe

import (
	"errors"
	"fmt"
)

// ErrInvalidState is the root of all structural errors. Structural errors
// indicate a programming defect in the caller and are never retried.
var ErrInvalidState = errors.New("invalid pipeline state")

var (
	ErrNilNode       = fmt.Errorf("%w: nil node", ErrInvalidState)
	ErrReleased      = fmt.Errorf("%w: node released", ErrInvalidState)
	ErrCycle         = fmt.Errorf("%w: cycle detected", ErrInvalidState)
	ErrAlreadyLinked = fmt.Errorf("%w: node already has a parent", ErrInvalidState)
	ErrForeignNode   = fmt.Errorf("%w: node belongs to another context", ErrInvalidState)
	ErrNotChild      = fmt.Errorf("%w: node is not a fan-out target", ErrInvalidState)
)

var (
	// ErrContextClosed is returned for work submitted to a closed Context.
	ErrContextClosed = errors.New("render context closed")

	// ErrNotReady is returned while an asynchronously created surface does
	// not exist yet.
	ErrNotReady = errors.New("surface not ready")
)
