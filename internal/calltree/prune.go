package calltree

import "slices"

// The visitation thread links every attached node. During a snapshot it holds the nodes
// visited so far, in visit order, followed by the nodes not yet revisited, in the order of
// the previous snapshot. Once the last record is applied, everything behind the cursor is
// stale.

func (t *Tree) unthread(h Handle) {
	n := t.a.at(h)
	if s := t.a.lookup(n.prev); s != nil {
		s.n.next = n.next
	}
	if s := t.a.lookup(n.next); s != nil {
		s.n.prev = n.prev
	}
	n.prev, n.next = Nil, Nil
}

// threadAfter moves h directly behind prev, linking it if it was not threaded yet.
func (t *Tree) threadAfter(prev, h Handle) {
	if t.a.at(prev).next == h {
		return
	}
	t.unthread(h)

	p := t.a.at(prev)
	next := p.next
	p.next = h

	n := t.a.at(h)
	n.prev = prev
	n.next = next
	if !next.IsNil() {
		t.a.at(next).prev = h
	}
}

// pruneAfter detaches every node threaded behind last and returns the paths of the
// detached subtree roots.
func (t *Tree) pruneAfter(last Handle) []Path {
	var removed []Path
	for {
		h := t.a.at(last).next
		if h.IsNil() {
			return removed
		}
		removed = append(removed, t.Path(h))
		t.detach(h)
	}
}

// detach removes h and its subtree from the parent, the thread and the arena.
func (t *Tree) detach(h Handle) {
	if s := t.a.lookup(t.a.at(h).parent); s != nil {
		s.n.children = slices.DeleteFunc(s.n.children, func(c Handle) bool { return c == h })
	}
	t.release(h)
}

func (t *Tree) release(h Handle) {
	n := t.a.at(h)
	for _, c := range n.children {
		t.release(c)
	}
	t.unthread(h)
	t.a.release(h)
}
