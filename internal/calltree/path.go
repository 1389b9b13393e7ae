package calltree

import "strings"

// PathSeparator joins ids in Path.String.
const PathSeparator = "/"

// Path identifies a node by the ids on the way down from the root, root excluded. It is
// stable across snapshots for as long as the node survives.
type Path []string

func (p Path) String() string {
	return PathSeparator + strings.Join(p, PathSeparator)
}

func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is p or an ancestor of p.
func (p Path) HasPrefix(q Path) bool {
	return len(q) <= len(p) && p[:len(q)].Equal(q)
}

func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

func (p Path) Child(id string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, id)
}

// ParsePath is the inverse of Path.String for ids without separators.
func ParsePath(s string) Path {
	s = strings.Trim(s, PathSeparator)
	if s == "" {
		return Path{}
	}
	return strings.Split(s, PathSeparator)
}
