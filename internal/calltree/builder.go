package calltree

import (
	"errors"
	"fmt"

	"profwatch/internal/model"
	"profwatch/internal/protocol"
)

var ErrBuilderDone = errors.New("calltree: snapshot already finished")

// Builder applies the records of one snapshot to a Tree, in stream order.
type Builder struct {
	t       *Tree
	epoch   uint64
	cursor  Handle
	started bool
	done    bool
	delta   Delta
}

// Begin starts a snapshot. Only one builder may be active per tree.
func (t *Tree) Begin() *Builder {
	t.epoch++
	return &Builder{
		t:     t,
		epoch: t.epoch,
		delta: Delta{Epoch: t.epoch},
	}
}

// Apply places rec in the tree. The first record of a snapshot always describes the
// root; every following record is a descendant of the nearest node on the current stack
// whose depth is lower than its own.
func (b *Builder) Apply(rec protocol.Record) error {
	if b.done {
		return ErrBuilderDone
	}
	t := b.t

	var (
		h       Handle
		created bool
	)
	if !b.started {
		h = t.root
		created = t.a.at(h).epoch == 0
	} else {
		parent, err := b.ascend(rec.Depth)
		if err != nil {
			return err
		}
		h = t.childByID(t.a.at(parent), rec.ID)
		switch {
		case h.IsNil():
			h = t.newChild(parent)
			created = true
		case t.a.at(h).epoch == b.epoch:
			return &protocol.ProtocolError{Reason: fmt.Sprintf("id %q repeated under one parent", rec.ID)}
		}
		t.threadAfter(b.cursor, h)
	}

	n := t.a.at(h)
	updated := !created &&
		(n.name != rec.Name || n.depth != rec.Depth || !model.EqualMetrics(n.metrics, rec.Metrics))

	n.depth = rec.Depth
	n.id = rec.ID
	n.name = rec.Name
	n.metrics = append(n.metrics[:0], rec.Metrics...)
	n.epoch = b.epoch

	switch {
	case created:
		b.delta.Added = append(b.delta.Added, t.Path(h))
	case updated:
		b.delta.Updated = append(b.delta.Updated, t.Path(h))
	}
	b.delta.Visited++
	b.cursor = h
	b.started = true
	return nil
}

// ascend walks up from the cursor to the node that parents a record at depth. Each step
// covers the real depth gap between a node and its parent, which may exceed one.
func (b *Builder) ascend(depth int) (Handle, error) {
	cur := b.cursor
	for {
		n := b.t.a.at(cur)
		if n.depth < depth {
			return cur, nil
		}
		if n.parent.IsNil() {
			return Nil, &protocol.ProtocolError{
				Reason: fmt.Sprintf("depth %d matches no ancestor of the current frame", depth),
			}
		}
		cur = n.parent
	}
}

// Finish prunes every node the snapshot did not revisit. A snapshot without records
// leaves the tree untouched.
func (b *Builder) Finish() (Delta, error) {
	if b.done {
		return Delta{}, ErrBuilderDone
	}
	b.done = true
	if b.started {
		b.delta.Removed = b.t.pruneAfter(b.cursor)
	}
	return b.delta, nil
}

// Abort ends the snapshot without pruning. Nodes visited so far keep their new values;
// nothing else changes.
func (b *Builder) Abort() {
	b.done = true
}

// Visited is the number of records applied so far.
func (b *Builder) Visited() int {
	return b.delta.Visited
}
