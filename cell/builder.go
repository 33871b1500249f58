package cell

import (
	"encoding/binary"
)

const (
	prunedDataBytes = 2 + HashSize + 2 // type, level mask, hash, depth
	prunedDataBits  = prunedDataBytes * 8

	merkleDataBytes = 1 + HashSize + 2 // type, child hash, child depth
	merkleDataBits  = merkleDataBytes * 8

	typePrunedBranch byte = 0x01
	typeMerkleProof  byte = 0x03
)

// Builder accumulates bits and references and seals them into an immutable
// Cell. A zero Builder is ready for use.
type Builder struct {
	data   []byte
	bitLen int
	refs   []*Cell
	err    error
}

// NewBuilder returns an empty cell builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// StoreBits appends bitLen bits taken from data. Bits beyond bitLen in the
// last byte must be zero.
func (b *Builder) StoreBits(data []byte, bitLen int) *Builder {
	if b.err != nil {
		return b
	}
	if bitLen < 0 || (bitLen+7)/8 > len(data) {
		return b.fail(FormatErrorf("bit length %d does not fit into %d bytes", bitLen, len(data)))
	}
	if b.bitLen+bitLen > MaxBitLen {
		return b.fail(FormatErrorf("cell data overflow: %d bits", b.bitLen+bitLen))
	}
	if b.bitLen%8 != 0 {
		return b.fail(FormatErrorf("unaligned bit writes are not supported"))
	}
	b.data = append(b.data, data[:(bitLen+7)/8]...)
	if tail := bitLen % 8; tail != 0 {
		// zero the padding bits of the final partial byte
		b.data[len(b.data)-1] &= ^byte(0) << (8 - tail)
	}
	b.bitLen += bitLen
	return b
}

// StoreBytes appends whole bytes.
func (b *Builder) StoreBytes(data []byte) *Builder {
	return b.StoreBits(data, len(data)*8)
}

// StoreByte appends a single byte.
func (b *Builder) StoreByte(v byte) *Builder {
	return b.StoreBits([]byte{v}, 8)
}

// StoreUint16 appends a big-endian uint16.
func (b *Builder) StoreUint16(v uint16) *Builder {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return b.StoreBits(buf[:], 16)
}

// StoreUint32 appends a big-endian uint32.
func (b *Builder) StoreUint32(v uint32) *Builder {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return b.StoreBits(buf[:], 32)
}

// StoreUint64 appends a big-endian uint64.
func (b *Builder) StoreUint64(v uint64) *Builder {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return b.StoreBits(buf[:], 64)
}

// StoreHash appends a cell hash.
func (b *Builder) StoreHash(h Hash) *Builder {
	return b.StoreBits(h[:], HashSize*8)
}

// StoreRef appends a child reference.
func (b *Builder) StoreRef(c *Cell) *Builder {
	if b.err != nil {
		return b
	}
	if c == nil {
		return b.fail(FormatErrorf("nil cell reference"))
	}
	if len(b.refs) >= MaxRefs {
		return b.fail(FormatErrorf("too many references: %d", len(b.refs)+1))
	}
	b.refs = append(b.refs, c)
	return b
}

// Build seals the accumulated content into an ordinary cell.
func (b *Builder) Build() (*Cell, error) {
	return b.build(KindOrdinary)
}

func (b *Builder) build(kind Kind) (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	c := &Cell{
		kind:   kind,
		data:   append([]byte(nil), b.data...),
		bitLen: b.bitLen,
		refs:   append([]*Cell(nil), b.refs...),
	}
	if err := c.computeDigest(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewPrunedBranch returns a pruned-branch cell committing to the hash and
// depth of from. Pruning an already pruned branch is the identity.
func NewPrunedBranch(from *Cell) *Cell {
	if from.kind == KindPrunedBranch {
		return from
	}

	data := make([]byte, prunedDataBytes)
	data[0] = typePrunedBranch
	data[1] = from.levelMask | 1
	copy(data[2:], from.hash[:])
	binary.BigEndian.PutUint16(data[2+HashSize:], from.depth)

	c := &Cell{
		kind:   KindPrunedBranch,
		data:   data,
		bitLen: prunedDataBits,
	}
	// computeDigest cannot fail for a well-formed pruned payload
	if err := c.computeDigest(); err != nil {
		panic(err)
	}
	return c
}

// NewMerkleProof wraps root into a merkle-proof marker cell. The marker's
// payload commits to the (virtualized) hash and depth of the wrapped tree.
func NewMerkleProof(root *Cell) (*Cell, error) {
	data := make([]byte, merkleDataBytes)
	data[0] = typeMerkleProof
	copy(data[1:], root.hash[:])
	binary.BigEndian.PutUint16(data[1+HashSize:], root.depth)

	c := &Cell{
		kind:   KindMerkleProof,
		data:   data,
		bitLen: merkleDataBits,
		refs:   []*Cell{root},
	}
	if err := c.computeDigest(); err != nil {
		return nil, err
	}
	return c, nil
}
