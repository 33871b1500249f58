package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// buildTestTree assembles a fixed three-level tree:
//
//	root ── a ── a1, a2
//	     └─ b ── b1
func buildTestTree(t require.TestingT) *Cell {
	a1, err := NewBuilder().StoreUint32(0xa1).Build()
	require.NoError(t, err)
	a2, err := NewBuilder().StoreUint32(0xa2).Build()
	require.NoError(t, err)
	b1, err := NewBuilder().StoreUint32(0xb1).Build()
	require.NoError(t, err)

	a, err := NewBuilder().StoreByte(0x0a).StoreRef(a1).StoreRef(a2).Build()
	require.NoError(t, err)
	b, err := NewBuilder().StoreByte(0x0b).StoreRef(b1).Build()
	require.NoError(t, err)

	root, err := NewBuilder().StoreByte(0x01).StoreRef(a).StoreRef(b).Build()
	require.NoError(t, err)
	return root
}

func TestPruneKeepsRootHash(t *testing.T) {
	root := buildTestTree(t)

	pruned, err := Prune(root, []KeepPath{{0, 1}})
	require.NoError(t, err)
	assert.Equal(t, root.Hash(), pruned.Hash())

	// the kept branch stays expanded
	a := pruned.MustRef(0)
	assert.Equal(t, KindOrdinary, a.Kind())
	assert.Equal(t, KindPrunedBranch, a.MustRef(0).Kind())
	assert.Equal(t, KindOrdinary, a.MustRef(1).Kind())

	// the other branch collapses
	assert.Equal(t, KindPrunedBranch, pruned.MustRef(1).Kind())
}

func TestPruneEmptyKeepSet(t *testing.T) {
	root := buildTestTree(t)

	pruned, err := Prune(root, nil)
	require.NoError(t, err)
	assert.Equal(t, KindPrunedBranch, pruned.Kind())
	assert.Equal(t, root.Hash(), pruned.Hash())
}

func TestPruneFullKeepSetIsNoop(t *testing.T) {
	root := buildTestTree(t)

	pruned, err := Prune(root, []KeepPath{{}})
	require.NoError(t, err)
	assert.Same(t, root, pruned)
}

func TestPruneIdempotent(t *testing.T) {
	root := buildTestTree(t)
	keep := []KeepPath{{0, 0}}

	once, err := Prune(root, keep)
	require.NoError(t, err)
	twice, err := Prune(once, keep)
	require.NoError(t, err)

	assert.Equal(t, once.Hash(), twice.Hash())

	rawOnce, err := Encode(once)
	require.NoError(t, err)
	rawTwice, err := Encode(twice)
	require.NoError(t, err)
	assert.Equal(t, rawOnce, rawTwice)
}

func TestPrunePathOutOfRange(t *testing.T) {
	root := buildTestTree(t)

	_, err := Prune(root, []KeepPath{{3}})
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

func TestPrunePreservesHashProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		root := genCellTree(t)

		// draw a random set of valid keep paths
		nPaths := rapid.IntRange(0, 3).Draw(t, "nPaths").(int)
		keep := make([]KeepPath, 0, nPaths)
		for i := 0; i < nPaths; i++ {
			var path KeepPath
			node := root
			steps := rapid.IntRange(0, 4).Draw(t, "steps").(int)
			for j := 0; j < steps && node.RefsCount() > 0; j++ {
				next := rapid.IntRange(0, node.RefsCount()-1).Draw(t, "next").(int)
				path = append(path, next)
				node = node.MustRef(next)
			}
			keep = append(keep, path)
		}

		pruned, err := Prune(root, keep)
		require.NoError(t, err)
		require.Equal(t, root.Hash(), pruned.Hash())

		// pruning is idempotent under a fixed keep set
		again, err := Prune(pruned, keep)
		require.NoError(t, err)
		require.Equal(t, pruned.Hash(), again.Hash())
	})
}
