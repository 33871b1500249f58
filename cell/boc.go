package cell

import (
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"sort"

	pool "github.com/libp2p/go-buffer-pool"
)

// The BOC (bag of cells) container lays out a deduplicated cell table with
// parents strictly preceding children, so a reference can only point
// forward. That single rule makes reference cycles unrepresentable.
//
// Layout:
//
//	magic      u32
//	refSize    u8     byte width of cell indices (1..4)
//	cellCount  refSize bytes, big-endian
//	rootCount  refSize bytes, big-endian
//	rootIndex  rootCount * refSize bytes
//	cells      d1, d2, data, child indices
//	crc        u32, little-endian CRC-32C of everything above

const bocMagic = 0xb5ee9c72

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Encode serializes the DAGs rooted at roots into a single container.
// Shared subtrees are stored once.
func Encode(roots ...*Cell) ([]byte, error) {
	if len(roots) == 0 {
		return nil, FormatErrorf("no roots to encode")
	}

	index := make(map[Hash]int)
	var ordered []*Cell

	// Preorder walk: a cell is appended before any of its children, then
	// children are indexed left to right. Revisits of shared cells are
	// elided by the hash index.
	var walk func(c *Cell) error
	walk = func(c *Cell) error {
		if _, ok := index[c.hash]; ok {
			return nil
		}
		index[c.hash] = len(ordered)
		ordered = append(ordered, c)
		for _, ref := range c.refs {
			if err := walk(ref); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if root == nil {
			return nil, FormatErrorf("nil root cell")
		}
		if err := walk(root); err != nil {
			return nil, err
		}
	}

	// The preorder index gives parents smaller indices than children only
	// for trees; a shared subtree first reached from a later sibling can
	// break the rule, so reorder by first-use depth.
	ordered, index = topoOrder(ordered, index)

	refSize := indexSize(len(ordered))

	size := 4 + 1 + 2*refSize + len(roots)*refSize + 4
	for _, c := range ordered {
		size += 2 + len(c.data) + len(c.refs)*refSize
	}

	out := make([]byte, 0, size)
	out = appendUint32(out, bocMagic)
	out = append(out, byte(refSize))
	out = appendIndex(out, refSize, len(ordered))
	out = appendIndex(out, refSize, len(roots))
	for _, root := range roots {
		out = appendIndex(out, refSize, index[root.hash])
	}
	for _, c := range ordered {
		out = append(out, descriptor1(c.kind, len(c.refs), c.levelMask), descriptor2(c.bitLen))
		out = appendCellData(out, c)
		for _, ref := range c.refs {
			out = appendIndex(out, refSize, index[ref.hash])
		}
	}
	out = appendCRC(out)

	return out, nil
}

// EncodeBase64 serializes roots and returns the container in base64. The
// intermediate binary buffer is pooled.
func EncodeBase64(roots ...*Cell) (string, error) {
	raw, err := Encode(roots...)
	if err != nil {
		return "", err
	}

	buf := pool.Get(base64.StdEncoding.EncodedLen(len(raw)))
	defer pool.Put(buf)

	base64.StdEncoding.Encode(buf, raw)
	return string(buf), nil
}

// Decode parses a container and returns its root cells. Every hash is
// recomputed from scratch; nothing from the wire is trusted.
func Decode(data []byte) ([]*Cell, error) {
	if len(data) < 4+1+4 {
		return nil, FormatErrorf("container too short: %d bytes", len(data))
	}
	if binary.BigEndian.Uint32(data) != bocMagic {
		return nil, FormatErrorf("bad container magic")
	}

	body, crc := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.Checksum(body, crcTable) != crc {
		return nil, FormatErrorf("container checksum mismatch")
	}

	r := &bocReader{data: body, off: 4}
	refSize := int(r.byte())
	if refSize < 1 || refSize > 4 {
		return nil, FormatErrorf("invalid index width: %d", refSize)
	}
	cellCount := r.index(refSize)
	rootCount := r.index(refSize)
	if r.err != nil {
		return nil, r.err
	}
	if cellCount <= 0 || rootCount <= 0 {
		return nil, FormatErrorf("empty container")
	}
	// every cell occupies at least its two descriptor bytes, so counts the
	// remaining body cannot possibly hold are rejected before allocating
	if remaining := len(r.data) - r.off; rootCount > cellCount || cellCount > remaining/2 {
		return nil, FormatErrorf("implausible counts: %d cells, %d roots in %d bytes", cellCount, rootCount, remaining)
	}

	rootIdx := make([]int, rootCount)
	for i := range rootIdx {
		rootIdx[i] = r.index(refSize)
	}

	type rawCell struct {
		d1, d2 byte
		data   []byte
		refs   []int
	}
	raw := make([]rawCell, cellCount)
	for i := 0; i < cellCount; i++ {
		rc := rawCell{d1: r.byte(), d2: r.byte()}
		rc.data = r.bytes((int(rc.d2) + 1) / 2)
		nrefs := int(rc.d1 & 0x07)
		if nrefs > MaxRefs {
			return nil, FormatErrorf("cell %d has too many references: %d", i, nrefs)
		}
		for j := 0; j < nrefs; j++ {
			child := r.index(refSize)
			if r.err == nil && (child <= i || child >= cellCount) {
				// a backward or self reference would allow a cycle
				return nil, FormatErrorf("cell %d has invalid child index %d", i, child)
			}
			rc.refs = append(rc.refs, child)
		}
		if r.err != nil {
			return nil, r.err
		}
		raw[i] = rc
	}
	if r.off != len(r.data) {
		return nil, FormatErrorf("trailing garbage: %d bytes", len(r.data)-r.off)
	}

	// Children have larger indices, so sealing back to front resolves all
	// references and recomputes all hashes in one pass.
	cells := make([]*Cell, cellCount)
	for i := cellCount - 1; i >= 0; i-- {
		rc := raw[i]

		bitLen := int(rc.d2/2) * 8
		if rc.d2%2 != 0 {
			// partial byte, terminated by a single marker bit
			tail, ok := strippedTailBits(rc.data[len(rc.data)-1])
			if !ok {
				return nil, FormatErrorf("cell %d has a malformed partial byte", i)
			}
			bitLen = int(rc.d2/2)*8 + tail
		}

		kind := KindOrdinary
		if rc.d1&0x08 != 0 {
			if len(rc.data) == 0 {
				return nil, FormatErrorf("cell %d: exotic cell without a type byte", i)
			}
			switch rc.data[0] {
			case typePrunedBranch:
				kind = KindPrunedBranch
			case typeMerkleProof:
				kind = KindMerkleProof
			default:
				return nil, FormatErrorf("cell %d: unknown exotic type %d", i, rc.data[0])
			}
		}

		c := &Cell{
			kind:   kind,
			data:   trimPartialByte(rc.data, bitLen),
			bitLen: bitLen,
		}
		for _, child := range rc.refs {
			c.refs = append(c.refs, cells[child])
		}
		if err := c.computeDigest(); err != nil {
			return nil, err
		}
		if c.levelMask != rc.d1>>5 {
			return nil, FormatErrorf("cell %d: inconsistent level mask", i)
		}
		cells[i] = c
	}

	roots := make([]*Cell, rootCount)
	for i, idx := range rootIdx {
		if idx < 0 || idx >= cellCount {
			return nil, FormatErrorf("root index %d out of range", idx)
		}
		roots[i] = cells[idx]
	}
	return roots, nil
}

// DecodeBase64 parses a base64-encoded container.
func DecodeBase64(s string) ([]*Cell, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, FormatErrorf("invalid base64: %v", err)
	}
	return Decode(raw)
}

// topoOrder reindexes cells so that every parent precedes its children even
// in the presence of sharing.
func topoOrder(cells []*Cell, index map[Hash]int) ([]*Cell, map[Hash]int) {
	depth := make(map[Hash]int, len(cells))
	var measure func(c *Cell) int
	measure = func(c *Cell) int {
		if d, ok := depth[c.hash]; ok {
			return d
		}
		d := 0
		for _, ref := range c.refs {
			if cd := measure(ref) + 1; cd > d {
				d = cd
			}
		}
		depth[c.hash] = d
		return d
	}
	for _, c := range cells {
		measure(c)
	}

	ordered := make([]*Cell, len(cells))
	copy(ordered, cells)
	// Taller subtrees first; the sort is stable over the preorder walk, so
	// identical DAGs always serialize byte-identically.
	sort.SliceStable(ordered, func(i, j int) bool {
		return depth[ordered[i].hash] > depth[ordered[j].hash]
	})

	for i, c := range ordered {
		index[c.hash] = i
	}
	return ordered, index
}

func indexSize(n int) int {
	switch {
	case n <= 0xff:
		return 1
	case n <= 0xffff:
		return 2
	case n <= 0xffffff:
		return 3
	default:
		return 4
	}
}

func appendUint32(out []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(out, buf[:]...)
}

func appendIndex(out []byte, refSize, v int) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return append(out, buf[4-refSize:]...)
}

func appendCRC(out []byte) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], crc32.Checksum(out, crcTable))
	return append(out, buf[:]...)
}

// appendCellData writes the cell payload, terminating a partial trailing
// byte with a single completion marker bit.
func appendCellData(out []byte, c *Cell) []byte {
	out = append(out, c.data...)
	if tail := c.bitLen % 8; tail != 0 {
		out[len(out)-1] |= 1 << (7 - tail)
	}
	return out
}

type bocReader struct {
	data []byte
	off  int
	err  error
}

func (r *bocReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = FormatErrorf("truncated container at offset %d", r.off)
		return nil
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out
}

func (r *bocReader) byte() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *bocReader) index(refSize int) int {
	b := r.bytes(refSize)
	if b == nil {
		return 0
	}
	v := 0
	for _, x := range b {
		v = v<<8 | int(x)
	}
	return v
}

// strippedTailBits finds the completion marker in a partial trailing byte
// and returns the number of payload bits before it.
func strippedTailBits(b byte) (int, bool) {
	for i := 0; i < 8; i++ {
		if b&(1<<uint(i)) != 0 {
			// the lowest set bit is the marker; everything above is payload
			return 7 - i, true
		}
	}
	return 0, false
}

func trimPartialByte(data []byte, bitLen int) []byte {
	out := append([]byte(nil), data[:(bitLen+7)/8]...)
	if tail := bitLen % 8; tail != 0 {
		out[len(out)-1] &= ^byte(0) << (8 - tail)
	}
	return out
}
