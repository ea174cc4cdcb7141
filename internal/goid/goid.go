// Package goid returns the identity of the calling goroutine.
//
// The render thread of a glpipe.Context uses it to tell whether a blocking
// call originates on the render thread itself, in which case the work has to
// run inline instead of being queued behind the caller.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// Get returns the id of the current goroutine or 0 if it cannot be parsed.
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], prefix)
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
