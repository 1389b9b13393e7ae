package calltree

// Delta summarizes what one snapshot changed. Paths are taken at the time of the change;
// removed paths name the roots of detached subtrees.
type Delta struct {
	Epoch   uint64
	Visited int
	Added   []Path
	Updated []Path
	Removed []Path
}

// Structural reports whether nodes were added or removed.
func (d Delta) Structural() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

func (d Delta) Empty() bool {
	return !d.Structural() && len(d.Updated) == 0
}
