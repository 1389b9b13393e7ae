package calltree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTree_PathAndFind(t *testing.T) {
	tree := New()
	apply(t, tree, rec(0, "root"), rec(1, "a"), rec(2, "b"), rec(1, "c"))

	b := mustFind(t, tree, "a", "b")
	require.Equal(t, Path{"a", "b"}, tree.Path(b))
	require.Equal(t, "/a/b", tree.Path(b).String())
	require.Equal(t, Path{}, tree.Path(tree.Root()))
	require.Equal(t, "/", tree.Path(tree.Root()).String())
	require.Equal(t, tree.Root(), tree.Find(nil))
	require.True(t, tree.Find(Path{"a", "missing"}).IsNil())
	require.Equal(t, b, tree.Child(mustFind(t, tree, "a"), "b"))

	require.Equal(t, Path{"a", "b"}, ParsePath("/a/b"))
	require.Equal(t, Path{}, ParsePath("/"))
	require.True(t, Path{"a", "b"}.HasPrefix(Path{"a"}))
	require.False(t, Path{"a"}.HasPrefix(Path{"a", "b"}))
	require.Equal(t, Path{"a"}, Path{"a", "b"}.Parent())
	require.Equal(t, Path{"a", "b", "c"}, Path{"a", "b"}.Child("c"))
}

func TestTree_Walk(t *testing.T) {
	tree := New()
	apply(t, tree, rec(0, "root"), rec(1, "a"), rec(2, "b"), rec(1, "c"))

	var got []string
	var levels []int
	tree.Walk(func(n Node, level int) bool {
		got = append(got, n.ID)
		levels = append(levels, level)
		return n.ID != "a"
	})
	require.Equal(t, []string{"root", "a", "c"}, got)
	require.Equal(t, []int{0, 1, 1}, levels)
}

func TestTree_Reset(t *testing.T) {
	tree := New()
	apply(t, tree, rec(0, "root"), rec(1, "a"), rec(2, "b"))
	root := tree.Root()
	a := mustFind(t, tree, "a")

	tree.Reset()
	require.Equal(t, root, tree.Root())
	require.Equal(t, 1, tree.Len())
	require.False(t, tree.Contains(a))
	require.Empty(t, tree.Children(root))
	n, ok := tree.Node(root)
	require.True(t, ok)
	require.Empty(t, n.ID)
	require.Empty(t, n.Name)
	require.Equal(t, []Handle{root}, tree.Thread())

	d := apply(t, tree, rec(0, "root"), rec(1, "a"))
	require.Len(t, d.Added, 2)
	require.Equal(t, root, tree.Root())
}

func TestHandle_Zero(t *testing.T) {
	tree := New()
	require.True(t, Nil.IsNil())
	require.Equal(t, "nil", Nil.String())
	require.False(t, tree.Contains(Nil))
	require.True(t, tree.Parent(tree.Root()).IsNil())
	require.Nil(t, tree.Children(Nil))
	require.Nil(t, tree.Path(Nil))
}
