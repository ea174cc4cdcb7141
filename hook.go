package glpipe

// Hook intercepts a frame. It calls next to continue delivery downstream,
// possibly with a modified frame, or returns without calling it to drop the
// frame.
type Hook func(f Frame, next func(Frame))

// HookPipeline decorates the forwarding of a Proxy with a user supplied
// Hook. It replaces subclassing a pass-through node to intercept frames.
type HookPipeline struct {
	Proxy
	hook Hook
}

// NewHookPipeline returns a node that runs hook for every frame. A nil hook
// forwards unchanged.
func NewHookPipeline(ctx *Context, hook Hook) *HookPipeline {
	h := &HookPipeline{hook: hook}
	h.init(ctx, h, "hook")
	return h
}

// Observe returns a hook that calls fn and then forwards the frame.
func Observe(fn func(Frame)) Hook {
	return func(f Frame, next func(Frame)) {
		fn(f)
		next(f)
	}
}

func (h *HookPipeline) OnFrameAvailable(f Frame) {
	if h.IsReleased() {
		return
	}
	if h.hook == nil {
		h.forward(f)
		return
	}
	h.hook(f, h.forward)
}
