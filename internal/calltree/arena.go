package calltree

import (
	"fmt"

	"profwatch/internal/model"
)

// Handle addresses a node in a Tree. A handle stops resolving once its node is pruned,
// even if the slot is reused for a new node.
type Handle struct {
	index uint32
	gen   uint32
}

// Nil is the zero Handle; it never resolves.
var Nil Handle

func (h Handle) IsNil() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	if h.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%d#%d", h.index, h.gen)
}

type node struct {
	depth   int
	id      string
	name    string
	metrics []model.Metric

	parent   Handle
	children []Handle

	// visitation thread, non-owning
	prev Handle
	next Handle

	epoch uint64
}

type slot struct {
	gen  uint32
	live bool
	n    node
}

type arena struct {
	slots []slot
	free  []uint32
	live  int
}

func (a *arena) alloc() Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true
	s.n = node{}
	a.live++
	return Handle{index: idx, gen: s.gen}
}

func (a *arena) release(h Handle) {
	s := a.lookup(h)
	if s == nil {
		return
	}
	s.live = false
	s.n = node{}
	s.gen++
	if s.gen == 0 {
		// wrapped; zero is reserved for Nil
		s.gen = 1
	}
	a.live--
	a.free = append(a.free, h.index)
}

func (a *arena) lookup(h Handle) *slot {
	if h.IsNil() || int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil
	}
	return s
}

// at returns the node for a handle the caller knows to be live.
func (a *arena) at(h Handle) *node {
	s := a.lookup(h)
	if s == nil {
		panic(fmt.Sprintf("calltree: stale handle %s", h))
	}
	return &s.n
}
