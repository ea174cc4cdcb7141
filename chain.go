package glpipe

// Insert splices node directly after anchor. If node already has successors
// the whole sub-chain is inserted, and anchor's previous successor follows
// the tail of that sub-chain.
func Insert(anchor, node Node) error {
	if isNil(anchor) || isNil(node) {
		return ErrNilNode
	}
	ctx := anchor.Context()
	if node.Context() != ctx {
		return ErrForeignNode
	}
	return ctx.Invoke(func() error {
		if anchor.IsReleased() || node.IsReleased() {
			return ErrReleased
		}
		return ctx.links.insert(anchor.ID(), node.ID())
	})
}

// Append attaches node after the last node of anchor's chain.
func Append(anchor, node Node) error {
	if isNil(anchor) || isNil(node) {
		return ErrNilNode
	}
	ctx := anchor.Context()
	if node.Context() != ctx {
		return ErrForeignNode
	}
	return ctx.Invoke(func() error {
		if anchor.IsReleased() || node.IsReleased() {
			return ErrReleased
		}
		tail, err := ctx.links.last(anchor.ID())
		if err != nil {
			return err
		}
		return ctx.links.insert(tail.ID(), node.ID())
	})
}

// Remove unlinks node from its chain.
func Remove(node Node) error {
	if isNil(node) {
		return ErrNilNode
	}
	return node.Remove()
}

// FindFirst returns the head of the chain containing node.
func FindFirst(node Node) (Node, error) {
	if isNil(node) {
		return nil, ErrNilNode
	}
	return node.Context().links.first(node.ID())
}

// FindLast returns the tail of the chain starting at node.
func FindLast(node Node) (Node, error) {
	if isNil(node) {
		return nil, ErrNilNode
	}
	return node.Context().links.last(node.ID())
}

// FindFunc walks from node towards the head and returns the nearest node,
// node itself included, for which match returns true. It returns nil if no
// node matches.
func FindFunc(node Node, match func(Node) bool) (Node, error) {
	if isNil(node) {
		return nil, ErrNilNode
	}
	nodes, err := node.Context().links.ancestors(node.ID())
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if match(n) {
			return n, nil
		}
	}
	return nil, nil
}

// Find is FindFunc matching on the dynamic type T. It returns the zero value
// of T if no node matches.
func Find[T Node](node Node) (T, error) {
	var zero T
	n, err := FindFunc(node, func(n Node) bool {
		_, ok := n.(T)
		return ok
	})
	if err != nil || n == nil {
		return zero, err
	}
	return n.(T), nil
}

// Nodes returns the simple chain containing node from head to tail. Fan-out
// targets are not included; called on a target, it lists the target's own
// sub-chain.
func Nodes(node Node) ([]Node, error) {
	if isNil(node) {
		return nil, ErrNilNode
	}
	return node.Context().links.chain(node.ID())
}
