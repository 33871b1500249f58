package cell

import (
	"encoding/binary"
)

// Slice is a byte-aligned reader over a cell's data and references.
type Slice struct {
	cell    *Cell
	dataOff int // bytes
	refOff  int
}

// BeginParse returns a reader positioned at the start of the cell.
func (c *Cell) BeginParse() *Slice {
	return &Slice{cell: c}
}

// LoadBytes reads n bytes.
func (s *Slice) LoadBytes(n int) ([]byte, error) {
	if (s.dataOff+n)*8 > s.cell.bitLen {
		return nil, FormatErrorf("cell data underflow: want %d bytes at offset %d", n, s.dataOff)
	}
	out := s.cell.data[s.dataOff : s.dataOff+n]
	s.dataOff += n
	return out, nil
}

// LoadByte reads one byte.
func (s *Slice) LoadByte() (byte, error) {
	b, err := s.LoadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// LoadUint16 reads a big-endian uint16.
func (s *Slice) LoadUint16() (uint16, error) {
	b, err := s.LoadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// LoadUint32 reads a big-endian uint32.
func (s *Slice) LoadUint32() (uint32, error) {
	b, err := s.LoadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// LoadUint64 reads a big-endian uint64.
func (s *Slice) LoadUint64() (uint64, error) {
	b, err := s.LoadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// LoadHash reads a cell hash.
func (s *Slice) LoadHash() (Hash, error) {
	b, err := s.LoadBytes(HashSize)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// LoadRef consumes the next child reference.
func (s *Slice) LoadRef() (*Cell, error) {
	if s.refOff >= len(s.cell.refs) {
		return nil, FormatErrorf("cell reference underflow at index %d", s.refOff)
	}
	ref := s.cell.refs[s.refOff]
	s.refOff++
	return ref, nil
}

// RemainingBits returns the number of unread data bits.
func (s *Slice) RemainingBits() int {
	return s.cell.bitLen - s.dataOff*8
}

// RemainingRefs returns the number of unread references.
func (s *Slice) RemainingRefs() int {
	return len(s.cell.refs) - s.refOff
}
