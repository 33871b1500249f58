// Package cell implements the content-addressed binary tree model used by
// block proofs: bounded bit-string cells with up to four ordered references,
// a bag-of-cells (BOC) wire codec and a hash-preserving Merkle pruner.
package cell

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	// MaxBitLen is the maximum number of data bits a single cell can hold.
	MaxBitLen = 1023

	// MaxRefs is the maximum number of child references per cell.
	MaxRefs = 4

	// HashSize is the size of a cell hash in bytes.
	HashSize = sha256.Size

	// maxDepth bounds the representation depth of a cell tree.
	maxDepth = 1<<16 - 1
)

// Kind discriminates the closed set of cell flavors. Behavior differs only
// in how the hash preimage is assembled.
type Kind uint8

const (
	// KindOrdinary is a regular data cell.
	KindOrdinary Kind = iota
	// KindPrunedBranch replaces a subtree with its hash and depth.
	KindPrunedBranch
	// KindMerkleProof wraps a (possibly pruned) tree and commits to the
	// root hash of the tree it was derived from.
	KindMerkleProof
)

func (k Kind) String() string {
	switch k {
	case KindOrdinary:
		return "ordinary"
	case KindPrunedBranch:
		return "pruned_branch"
	case KindMerkleProof:
		return "merkle_proof"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Hash is the content address of a cell.
type Hash [HashSize]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a copy of the hash contents.
func (h Hash) Bytes() []byte { return append([]byte(nil), h[:]...) }

// HashFromBytes converts a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, FormatErrorf("invalid hash length: %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Cell is an immutable, content-addressed tree node. Cells are sealed by a
// Builder (or by the BOC decoder) and are safe to share across goroutines.
type Cell struct {
	kind      Kind
	data      []byte
	bitLen    int
	refs      []*Cell
	levelMask uint8

	// derived at seal time
	hash  Hash
	depth uint16
}

// Kind returns the cell flavor.
func (c *Cell) Kind() Kind { return c.kind }

// BitLen returns the number of data bits.
func (c *Cell) BitLen() int { return c.bitLen }

// Data returns the cell payload bytes. The returned slice must not be
// mutated.
func (c *Cell) Data() []byte { return c.data }

// RefsCount returns the number of child references.
func (c *Cell) RefsCount() int { return len(c.refs) }

// Ref returns the i-th child.
func (c *Cell) Ref(i int) (*Cell, error) {
	if i < 0 || i >= len(c.refs) {
		return nil, FormatErrorf("reference index %d out of range (refs: %d)", i, len(c.refs))
	}
	return c.refs[i], nil
}

// MustRef is Ref for indices already validated by the caller.
func (c *Cell) MustRef(i int) *Cell { return c.refs[i] }

// LevelMask returns the cell level mask. Ordinary cells inherit the union
// of their children's masks, pruned branches introduce level 1 and merkle
// proof cells shift their child's mask down by one.
func (c *Cell) LevelMask() uint8 { return c.levelMask }

// Hash returns the content address of the cell. For pruned branches this is
// the hash of the replaced subtree, which is exactly what makes pruning
// hash-preserving.
func (c *Cell) Hash() Hash { return c.hash }

// Depth returns the representation depth of the cell. Pruned branches
// report the depth of the replaced subtree.
func (c *Cell) Depth() uint16 { return c.depth }

// PrunedHash returns the committed subtree hash of a pruned-branch cell.
func (c *Cell) PrunedHash() (Hash, error) {
	if c.kind != KindPrunedBranch {
		return Hash{}, FormatErrorf("not a pruned branch cell: %s", c.kind)
	}
	return c.hash, nil
}

// computeDigest seals the derived fields of a cell. Must be called exactly
// once, before the cell is shared.
func (c *Cell) computeDigest() error {
	switch c.kind {
	case KindPrunedBranch:
		// data = type byte, level mask, subtree hash, subtree depth.
		if c.bitLen != prunedDataBits || len(c.refs) != 0 {
			return FormatErrorf("malformed pruned branch cell")
		}
		copy(c.hash[:], c.data[2:2+HashSize])
		c.depth = binary.BigEndian.Uint16(c.data[2+HashSize:])
		c.levelMask = 1
		return nil

	case KindMerkleProof:
		if c.bitLen != merkleDataBits || len(c.refs) != 1 {
			return FormatErrorf("malformed merkle proof cell")
		}
		child := c.refs[0]
		if !bytes.Equal(c.data[1:1+HashSize], child.hash[:]) {
			return FormatErrorf("merkle proof hash does not match its child")
		}
		if binary.BigEndian.Uint16(c.data[1+HashSize:]) != child.depth {
			return FormatErrorf("merkle proof depth does not match its child")
		}
		c.levelMask = child.levelMask >> 1

	case KindOrdinary:
		mask := uint8(0)
		for _, ref := range c.refs {
			mask |= ref.levelMask
		}
		c.levelMask = mask

	default:
		return FormatErrorf("unknown cell kind: %d", uint8(c.kind))
	}

	depth := uint16(0)
	for _, ref := range c.refs {
		if int(ref.depth)+1 > maxDepth {
			return FormatErrorf("cell depth overflow")
		}
		if ref.depth+1 > depth {
			depth = ref.depth + 1
		}
	}
	c.depth = depth

	// The preimage deliberately excludes the level mask: replacing a child
	// subtree with a pruned branch that reports the same hash and depth must
	// leave every ancestor hash unchanged.
	h := sha256.New()
	h.Write([]byte{descriptor1(c.kind, len(c.refs), 0), descriptor2(c.bitLen)})
	h.Write(c.data)
	var buf [2]byte
	for _, ref := range c.refs {
		binary.BigEndian.PutUint16(buf[:], ref.depth)
		h.Write(buf[:])
	}
	for _, ref := range c.refs {
		h.Write(ref.hash[:])
	}
	h.Sum(c.hash[:0])

	return nil
}

// descriptor1 packs the refs count and the exotic bit; the level mask slot
// is only used on the wire.
func descriptor1(kind Kind, refs int, mask uint8) byte {
	d1 := byte(refs)
	if kind != KindOrdinary {
		d1 |= 0x08
	}
	return d1 | mask<<5
}

// descriptor2 encodes the data length: floor + ceil of the byte count, so
// the parity marks a partial trailing byte.
func descriptor2(bitLen int) byte {
	return byte(bitLen/8 + (bitLen+7)/8)
}
