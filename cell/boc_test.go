package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// genCellTree draws a small random cell tree, reusing earlier cells to
// exercise shared substructure.
func genCellTree(t *rapid.T) *Cell {
	var pool []*Cell

	nLeaves := rapid.IntRange(1, 5).Draw(t, "leaves").(int)
	for i := 0; i < nLeaves; i++ {
		// sizes range all the way up to a full cell
		data := rapid.SliceOfN(rapid.Byte(), 0, MaxBitLen/8+1).Draw(t, "leafData").([]byte)
		bitLen := len(data) * 8
		if bitLen > MaxBitLen {
			bitLen = MaxBitLen
		} else if bitLen > 0 && rapid.Bool().Draw(t, "partial").(bool) {
			drop := rapid.IntRange(1, 7).Draw(t, "dropBits").(int)
			bitLen -= drop
		}
		c, err := NewBuilder().StoreBits(data, bitLen).Build()
		require.NoError(t, err)
		pool = append(pool, c)
	}

	nNodes := rapid.IntRange(1, 8).Draw(t, "nodes").(int)
	for i := 0; i < nNodes; i++ {
		b := NewBuilder().StoreByte(byte(i))
		nRefs := rapid.IntRange(1, MaxRefs).Draw(t, "refs").(int)
		for j := 0; j < nRefs; j++ {
			pick := rapid.IntRange(0, len(pool)-1).Draw(t, "pick").(int)
			b.StoreRef(pool[pick])
		}
		c, err := b.Build()
		require.NoError(t, err)
		pool = append(pool, c)
	}

	return pool[len(pool)-1]
}

func TestBocRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		root := genCellTree(t)

		raw, err := Encode(root)
		require.NoError(t, err)

		roots, err := Decode(raw)
		require.NoError(t, err)
		require.Len(t, roots, 1)
		require.Equal(t, root.Hash(), roots[0].Hash())

		// canonical: re-encoding the decoded DAG is byte-identical
		raw2, err := Encode(roots[0])
		require.NoError(t, err)
		require.Equal(t, raw, raw2)
	})
}

// A full 1023-bit cell carries the maximum d2 descriptor (255); its data
// length must not wrap during decoding.
func TestBocRoundTripFullCell(t *testing.T) {
	data := make([]byte, MaxBitLen/8+1)
	for i := range data {
		data[i] = byte(i)
	}
	root, err := NewBuilder().StoreBits(data, MaxBitLen).Build()
	require.NoError(t, err)

	raw, err := Encode(root)
	require.NoError(t, err)

	roots, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.Hash(), roots[0].Hash())
	assert.Equal(t, MaxBitLen, roots[0].BitLen())
}

func TestBocMultiRoot(t *testing.T) {
	shared, err := NewBuilder().StoreUint64(0xdead).Build()
	require.NoError(t, err)
	a, err := NewBuilder().StoreByte(0x0a).StoreRef(shared).Build()
	require.NoError(t, err)
	b, err := NewBuilder().StoreByte(0x0b).StoreRef(shared).Build()
	require.NoError(t, err)

	raw, err := Encode(a, b, shared)
	require.NoError(t, err)

	roots, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, roots, 3)
	assert.Equal(t, a.Hash(), roots[0].Hash())
	assert.Equal(t, b.Hash(), roots[1].Hash())
	assert.Equal(t, shared.Hash(), roots[2].Hash())
}

func TestBocRoundTripExotic(t *testing.T) {
	leaf, err := NewBuilder().StoreUint32(3).Build()
	require.NoError(t, err)
	root, err := NewBuilder().StoreByte(0x77).StoreRef(leaf).StoreRef(NewPrunedBranch(leaf)).Build()
	require.NoError(t, err)
	proof, err := NewMerkleProof(root)
	require.NoError(t, err)

	raw, err := Encode(proof)
	require.NoError(t, err)
	roots, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, proof.Hash(), roots[0].Hash())
	assert.Equal(t, KindMerkleProof, roots[0].Kind())
}

func TestBocChecksumMismatch(t *testing.T) {
	c, err := NewBuilder().StoreUint32(1).Build()
	require.NoError(t, err)
	raw, err := Encode(c)
	require.NoError(t, err)

	raw[len(raw)/2] ^= 0xff
	_, err = Decode(raw)
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

func TestBocBadMagic(t *testing.T) {
	_, err := Decode([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

func TestBocTruncated(t *testing.T) {
	c, err := NewBuilder().StoreUint32(1).Build()
	require.NoError(t, err)
	raw, err := Encode(c)
	require.NoError(t, err)

	_, err = Decode(raw[:len(raw)-6])
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

// A reference that does not point strictly forward must be rejected; this
// is the cycle guard.
func TestBocBackwardRefRejected(t *testing.T) {
	leaf, err := NewBuilder().StoreByte(0x01).Build()
	require.NoError(t, err)
	root, err := NewBuilder().StoreByte(0x02).StoreRef(leaf).Build()
	require.NoError(t, err)

	raw, err := Encode(root)
	require.NoError(t, err)

	// the container holds two cells with refSize 1; cell 0's single child
	// index sits right after its descriptors and data byte
	refSize := 1
	off := 4 + 1 + 2*refSize + 1*refSize // header + root index
	off += 2 + 1                         // cell 0: d1, d2, one data byte
	require.EqualValues(t, 1, raw[off], "expected the child index of cell 0")

	raw[off] = 0 // self reference closes a cycle
	raw = append(raw[:len(raw)-4], make([]byte, 4)...)
	copy(raw[len(raw)-4:], recomputeCRC(raw[:len(raw)-4]))

	_, err = Decode(raw)
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

// Declared counts must fit the container body; otherwise a tiny input could
// demand an enormous allocation before any cell is read.
func TestBocImplausibleCountsRejected(t *testing.T) {
	t.Run("huge cell count", func(t *testing.T) {
		hdr := appendUint32(nil, bocMagic)
		hdr = append(hdr, 4) // index width
		hdr = appendIndex(hdr, 4, 0x7fffffff)
		hdr = appendIndex(hdr, 4, 1)
		raw := append(hdr, recomputeCRC(hdr)...)

		_, err := Decode(raw)
		require.Error(t, err)
		assert.True(t, IsFormatError(err))
	})

	t.Run("more roots than cells", func(t *testing.T) {
		hdr := appendUint32(nil, bocMagic)
		hdr = append(hdr, 1)
		hdr = append(hdr, 1, 0xff) // 1 cell, 255 roots
		raw := append(hdr, recomputeCRC(hdr)...)

		_, err := Decode(raw)
		require.Error(t, err)
		assert.True(t, IsFormatError(err))
	})
}

func recomputeCRC(body []byte) []byte {
	out := appendCRC(append([]byte(nil), body...))
	return out[len(out)-4:]
}

func TestEncodeBase64(t *testing.T) {
	c, err := NewBuilder().StoreUint64(123456).Build()
	require.NoError(t, err)

	s, err := EncodeBase64(c)
	require.NoError(t, err)

	roots, err := DecodeBase64(s)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, c.Hash(), roots[0].Hash())
}
