package glpipe

import (
	"slices"
	"sync"
)

// NodeID is a stable handle of a node inside its Context. Handles are never
// reused.
type NodeID uint64

// NoNode is the handle used for a missing parent or successor.
const NoNode NodeID = 0

// MaxChainLength bounds every traversal. Walking more links than this is
// reported as ErrCycle.
const MaxChainLength = 4096

type slot struct {
	node      Node
	parent    NodeID
	successor NodeID
	// children holds fan-out targets in registration order. The slice is
	// replaced, never modified in place, so readers can keep iterating a
	// snapshot while it changes.
	children []NodeID
}

// arena stores all links of one Context. Links are index rewrites on the
// arena; nodes never point at each other directly.
type arena struct {
	mu    sync.RWMutex
	next  NodeID
	slots map[NodeID]*slot
}

func newArena() *arena {
	return &arena{
		next:  NoNode,
		slots: map[NodeID]*slot{},
	}
}

func (a *arena) register(n Node) NodeID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	a.slots[a.next] = &slot{node: n}
	return a.next
}

func (a *arena) node(id NodeID) Node {
	if s, ok := a.slots[id]; ok {
		return s.node
	}
	return nil
}

func (a *arena) slot(id NodeID) (*slot, error) {
	s, ok := a.slots[id]
	if !ok {
		return nil, ErrReleased
	}
	return s, nil
}

func (a *arena) parent(id NodeID) Node {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.slots[id]; ok {
		return a.node(s.parent)
	}
	return nil
}

func (a *arena) successor(id NodeID) Node {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s, ok := a.slots[id]; ok {
		return a.node(s.successor)
	}
	return nil
}

func (a *arena) children(id NodeID) []Node {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.slots[id]
	if !ok {
		return nil
	}
	nodes := make([]Node, 0, len(s.children))
	for _, c := range s.children {
		if n := a.node(c); n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func (a *arena) attached(id NodeID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.slots[id]
	return ok && (s.parent != NoNode || s.successor != NoNode || len(s.children) > 0)
}

func (a *arena) live() []Node {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]NodeID, 0, len(a.slots))
	for id := range a.slots {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, a.slots[id].node)
	}
	return nodes
}

// isAncestor reports whether anc is reachable from id by parent links,
// including id itself. Caller holds the lock.
func (a *arena) isAncestor(anc, id NodeID) (bool, error) {
	for range MaxChainLength {
		if id == NoNode {
			return false, nil
		}
		if id == anc {
			return true, nil
		}
		s, ok := a.slots[id]
		if !ok {
			return false, nil
		}
		id = s.parent
	}
	return false, ErrCycle
}

// firstLocked walks parent links up to the head. Caller holds the lock.
func (a *arena) firstLocked(id NodeID) (NodeID, error) {
	for range MaxChainLength {
		s, err := a.slot(id)
		if err != nil {
			return NoNode, err
		}
		if s.parent == NoNode {
			return id, nil
		}
		id = s.parent
	}
	return NoNode, ErrCycle
}

// lastLocked walks successor links down to the tail. Caller holds the lock.
func (a *arena) lastLocked(id NodeID) (NodeID, error) {
	for range MaxChainLength {
		s, err := a.slot(id)
		if err != nil {
			return NoNode, err
		}
		if s.successor == NoNode {
			return id, nil
		}
		id = s.successor
	}
	return NoNode, ErrCycle
}

func (a *arena) first(id NodeID) (Node, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	head, err := a.firstLocked(id)
	if err != nil {
		return nil, err
	}
	return a.node(head), nil
}

func (a *arena) last(id NodeID) (Node, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	tail, err := a.lastLocked(id)
	if err != nil {
		return nil, err
	}
	return a.node(tail), nil
}

// ancestors returns id and all nodes above it, nearest first.
func (a *arena) ancestors(id NodeID) ([]Node, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var nodes []Node
	for range MaxChainLength {
		s, err := a.slot(id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, s.node)
		if s.parent == NoNode {
			return nodes, nil
		}
		id = s.parent
	}
	return nil, ErrCycle
}

// chain returns the simple chain containing id from head to tail. A fan-out
// target starts a chain of its own.
func (a *arena) chain(id NodeID) ([]Node, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	head := id
	for n := 0; ; n++ {
		if n >= MaxChainLength {
			return nil, ErrCycle
		}
		s, err := a.slot(head)
		if err != nil {
			return nil, err
		}
		ps, ok := a.slots[s.parent]
		if !ok || ps.successor != head {
			break
		}
		head = s.parent
	}
	var nodes []Node
	for cur := head; cur != NoNode; {
		if len(nodes) >= MaxChainLength {
			return nil, ErrCycle
		}
		s, err := a.slot(cur)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, s.node)
		cur = s.successor
	}
	return nodes, nil
}

// setSuccessor makes next the successor of id. The previous successor is
// detached together with its sub-chain. next must not have a parent.
func (a *arena) setSuccessor(id, next NodeID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(id)
	if err != nil {
		return err
	}
	if next == NoNode {
		if old, ok := a.slots[s.successor]; ok {
			old.parent = NoNode
		}
		s.successor = NoNode
		return nil
	}
	ns, err := a.slot(next)
	if err != nil {
		return err
	}
	if s.successor == next {
		return nil
	}
	if ns.parent != NoNode {
		return ErrAlreadyLinked
	}
	if cyc, err := a.isAncestor(next, id); err != nil || cyc {
		return ErrCycle
	}
	if old, ok := a.slots[s.successor]; ok {
		old.parent = NoNode
	}
	s.successor = next
	ns.parent = id
	return nil
}

// insert splices node, together with its own successor sub-chain, between
// anchor and anchor's current successor.
func (a *arena) insert(anchor, node NodeID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	as, err := a.slot(anchor)
	if err != nil {
		return err
	}
	ns, err := a.slot(node)
	if err != nil {
		return err
	}
	if ns.parent != NoNode {
		return ErrAlreadyLinked
	}
	if cyc, err := a.isAncestor(node, anchor); err != nil || cyc {
		return ErrCycle
	}
	tail, err := a.lastLocked(node)
	if err != nil {
		return err
	}
	old := as.successor
	as.successor = node
	ns.parent = anchor
	if olds, ok := a.slots[old]; ok {
		a.slots[tail].successor = old
		olds.parent = tail
	}
	return nil
}

// remove unlinks id and joins its parent with its successor. Removing a
// detached node is a no-op.
func (a *arena) remove(id NodeID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(id)
	if err != nil {
		return err
	}
	a.unlinkLocked(id, s)
	return nil
}

func (a *arena) unlinkLocked(id NodeID, s *slot) {
	p, next := s.parent, s.successor
	if ps, ok := a.slots[p]; ok {
		if ps.successor == id {
			ps.successor = next
		} else if i := slices.Index(ps.children, id); i >= 0 {
			children := slices.Clone(ps.children)
			if next != NoNode {
				children[i] = next
			} else {
				children = slices.Delete(children, i, i+1)
			}
			ps.children = children
		}
	}
	if ns, ok := a.slots[next]; ok {
		ns.parent = p
	}
	s.parent = NoNode
	s.successor = NoNode
}

func (a *arena) addChild(id, child NodeID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(id)
	if err != nil {
		return err
	}
	cs, err := a.slot(child)
	if err != nil {
		return err
	}
	if cs.parent != NoNode {
		return ErrAlreadyLinked
	}
	if cyc, err := a.isAncestor(child, id); err != nil || cyc {
		return ErrCycle
	}
	s.children = append(slices.Clone(s.children), child)
	cs.parent = id
	return nil
}

// removeChild detaches child from the fan-out of id. The child keeps its own
// successor sub-chain.
func (a *arena) removeChild(id, child NodeID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slot(id)
	if err != nil {
		return err
	}
	i := slices.Index(s.children, child)
	if i < 0 {
		return ErrNotChild
	}
	s.children = slices.Delete(slices.Clone(s.children), i, i+1)
	if cs, ok := a.slots[child]; ok {
		cs.parent = NoNode
	}
	return nil
}

// release unlinks id, detaches its fan-out targets and drops the slot.
func (a *arena) release(id NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.slots[id]
	if !ok {
		return
	}
	a.unlinkLocked(id, s)
	for _, c := range s.children {
		if cs, ok := a.slots[c]; ok {
			cs.parent = NoNode
		}
	}
	s.children = nil
	delete(a.slots, id)
}
