// Package glpipe builds chains of GPU frame processing nodes: sources that
// originate textures, transforms that draw them through effects, fan-out
// nodes and sinks that capture, observe or render frames.
//
// All texture work runs on the render thread owned by a Context. Nodes are
// linked through stable handles in the Context, so linking and unlinking
// never leaves dangling references behind.
package glpipe
