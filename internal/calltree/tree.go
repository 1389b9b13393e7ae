package calltree

import (
	"slices"

	"profwatch/internal/model"
)

// Tree is the call tree of one connection. It is not safe for concurrent use; the session
// serializes writers and readers.
type Tree struct {
	a     arena
	root  Handle
	epoch uint64
}

// Node is a read-only copy of one tree node.
type Node struct {
	Handle  Handle
	Parent  Handle
	Depth   int
	ID      string
	Name    string
	Metrics []model.Metric
}

func New() *Tree {
	t := &Tree{}
	t.root = t.a.alloc()
	return t
}

func (t *Tree) Root() Handle {
	return t.root
}

// Len is the number of attached nodes, root included.
func (t *Tree) Len() int {
	return t.a.live
}

// Epoch is the sequence number of the most recently started snapshot.
func (t *Tree) Epoch() uint64 {
	return t.epoch
}

func (t *Tree) Contains(h Handle) bool {
	return t.a.lookup(h) != nil
}

func (t *Tree) Node(h Handle) (Node, bool) {
	s := t.a.lookup(h)
	if s == nil {
		return Node{}, false
	}
	return t.view(h, &s.n), true
}

func (t *Tree) Parent(h Handle) Handle {
	s := t.a.lookup(h)
	if s == nil {
		return Nil
	}
	return s.n.parent
}

func (t *Tree) Children(h Handle) []Handle {
	s := t.a.lookup(h)
	if s == nil {
		return nil
	}
	return slices.Clone(s.n.children)
}

// Child returns the child of h with the given id, or Nil.
func (t *Tree) Child(h Handle, id string) Handle {
	s := t.a.lookup(h)
	if s == nil {
		return Nil
	}
	return t.childByID(&s.n, id)
}

// Path returns the stable path of h, or nil for a stale handle.
func (t *Tree) Path(h Handle) Path {
	if t.a.lookup(h) == nil {
		return nil
	}
	var rev []string
	for cur := h; cur != t.root; {
		n := t.a.at(cur)
		rev = append(rev, n.id)
		cur = n.parent
	}
	p := make(Path, len(rev))
	for i, id := range rev {
		p[len(rev)-1-i] = id
	}
	return p
}

// Find resolves a path produced by Path.
func (t *Tree) Find(p Path) Handle {
	cur := t.root
	for _, id := range p {
		cur = t.childByID(t.a.at(cur), id)
		if cur.IsNil() {
			return Nil
		}
	}
	return cur
}

// Walk visits nodes in preorder, children in first-seen order. level is 0 for the root.
// Returning false from fn skips the node's subtree.
func (t *Tree) Walk(fn func(n Node, level int) bool) {
	t.walk(t.root, 0, fn)
}

func (t *Tree) walk(h Handle, level int, fn func(Node, int) bool) {
	n := t.a.at(h)
	if !fn(t.view(h, n), level) {
		return
	}
	for _, c := range n.children {
		t.walk(c, level+1, fn)
	}
}

// Thread returns the visitation thread starting at the root.
func (t *Tree) Thread() []Handle {
	out := []Handle{t.root}
	for h := t.a.at(t.root).next; !h.IsNil(); h = t.a.at(h).next {
		out = append(out, h)
	}
	return out
}

// Reset detaches every node below the root and clears the root.
func (t *Tree) Reset() {
	root := t.a.at(t.root)
	for _, c := range root.children {
		t.release(c)
	}
	*root = node{}
}

func (t *Tree) view(h Handle, n *node) Node {
	return Node{
		Handle:  h,
		Parent:  n.parent,
		Depth:   n.depth,
		ID:      n.id,
		Name:    n.name,
		Metrics: model.CloneMetrics(n.metrics),
	}
}

func (t *Tree) childByID(n *node, id string) Handle {
	for _, c := range n.children {
		if t.a.at(c).id == id {
			return c
		}
	}
	return Nil
}

func (t *Tree) newChild(parent Handle) Handle {
	h := t.a.alloc()
	t.a.at(h).parent = parent
	p := t.a.at(parent)
	p.children = append(p.children, h)
	return h
}
