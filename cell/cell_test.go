package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderLimits(t *testing.T) {
	t.Run("too many refs", func(t *testing.T) {
		child, err := NewBuilder().StoreByte(0x01).Build()
		require.NoError(t, err)

		b := NewBuilder()
		for i := 0; i < MaxRefs+1; i++ {
			b.StoreRef(child)
		}
		_, err = b.Build()
		require.Error(t, err)
		assert.True(t, IsFormatError(err))
	})

	t.Run("data overflow", func(t *testing.T) {
		big := make([]byte, 128)
		_, err := NewBuilder().StoreBits(big, MaxBitLen+1).Build()
		require.Error(t, err)
		assert.True(t, IsFormatError(err))
	})

	t.Run("max data fits", func(t *testing.T) {
		big := make([]byte, 128)
		c, err := NewBuilder().StoreBits(big, MaxBitLen).Build()
		require.NoError(t, err)
		assert.Equal(t, MaxBitLen, c.BitLen())
	})

	t.Run("nil ref", func(t *testing.T) {
		_, err := NewBuilder().StoreRef(nil).Build()
		require.Error(t, err)
	})
}

func TestContentAddressing(t *testing.T) {
	build := func() *Cell {
		leaf, err := NewBuilder().StoreUint64(42).Build()
		require.NoError(t, err)
		root, err := NewBuilder().StoreByte(0xaa).StoreRef(leaf).Build()
		require.NoError(t, err)
		return root
	}

	a, b := build(), build()
	assert.Equal(t, a.Hash(), b.Hash(), "identical content must yield an identical hash")

	// any difference in data, order or children changes the hash
	leaf, err := NewBuilder().StoreUint64(43).Build()
	require.NoError(t, err)
	c, err := NewBuilder().StoreByte(0xaa).StoreRef(leaf).Build()
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestRefOrderMatters(t *testing.T) {
	x, err := NewBuilder().StoreByte(0x01).Build()
	require.NoError(t, err)
	y, err := NewBuilder().StoreByte(0x02).Build()
	require.NoError(t, err)

	xy, err := NewBuilder().StoreRef(x).StoreRef(y).Build()
	require.NoError(t, err)
	yx, err := NewBuilder().StoreRef(y).StoreRef(x).Build()
	require.NoError(t, err)

	assert.NotEqual(t, xy.Hash(), yx.Hash())
}

func TestPrunedBranchHash(t *testing.T) {
	leaf, err := NewBuilder().StoreUint32(7).Build()
	require.NoError(t, err)
	root, err := NewBuilder().StoreByte(0x55).StoreRef(leaf).Build()
	require.NoError(t, err)

	pruned := NewPrunedBranch(root)
	assert.Equal(t, KindPrunedBranch, pruned.Kind())
	assert.Equal(t, root.Hash(), pruned.Hash())
	assert.Equal(t, root.Depth(), pruned.Depth())
	assert.EqualValues(t, 1, pruned.LevelMask())

	// pruning a pruned branch is the identity
	assert.Same(t, pruned, NewPrunedBranch(pruned))
}

func TestParentHashUnchangedByChildPruning(t *testing.T) {
	leaf, err := NewBuilder().StoreUint32(1).Build()
	require.NoError(t, err)
	mid, err := NewBuilder().StoreByte(0x11).StoreRef(leaf).Build()
	require.NoError(t, err)

	full, err := NewBuilder().StoreByte(0x22).StoreRef(mid).Build()
	require.NoError(t, err)
	withPruned, err := NewBuilder().StoreByte(0x22).StoreRef(NewPrunedBranch(mid)).Build()
	require.NoError(t, err)

	assert.Equal(t, full.Hash(), withPruned.Hash())
	assert.NotEqual(t, full.LevelMask(), withPruned.LevelMask())
}

func TestMerkleProofCell(t *testing.T) {
	leaf, err := NewBuilder().StoreUint32(9).Build()
	require.NoError(t, err)
	root, err := NewBuilder().StoreRef(leaf).Build()
	require.NoError(t, err)

	proof, err := NewMerkleProof(root)
	require.NoError(t, err)
	assert.Equal(t, KindMerkleProof, proof.Kind())
	assert.Equal(t, 1, proof.RefsCount())

	s := proof.BeginParse()
	tag, err := s.LoadByte()
	require.NoError(t, err)
	assert.Equal(t, typeMerkleProof, tag)
	h, err := s.LoadHash()
	require.NoError(t, err)
	assert.Equal(t, root.Hash(), h)
}

func TestSliceUnderflow(t *testing.T) {
	c, err := NewBuilder().StoreByte(0x01).Build()
	require.NoError(t, err)

	s := c.BeginParse()
	_, err = s.LoadByte()
	require.NoError(t, err)
	_, err = s.LoadByte()
	require.Error(t, err)
	assert.True(t, IsFormatError(err))

	_, err = s.LoadRef()
	require.Error(t, err)
}
