package cell

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Dictionaries are compressed binary tries over fixed-width keys, stored as
// cells so that a lookup path doubles as a Merkle keep path.
//
// Node layout:
//
//	leaf: 0x00, suffix bit count u16, suffix bits; ref 0 = value
//	fork: 0x01, prefix bit count u16, prefix bits; ref 0 = left (next bit
//	      0), ref 1 = right (next bit 1)

const (
	dictTagLeaf byte = 0x00
	dictTagFork byte = 0x01
)

// DictEntry is one key/value pair of a dictionary under construction.
type DictEntry struct {
	Key   []byte
	Value *Cell
}

// BuildDict builds a dictionary over keyBits-wide keys. Keys must be unique
// and exactly keyBits wide; entries may arrive in any order.
func BuildDict(entries []DictEntry, keyBits int) (*Cell, error) {
	if len(entries) == 0 {
		return nil, FormatErrorf("empty dictionary")
	}
	sorted := make([]DictEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})
	for i, e := range sorted {
		if (keyBits+7)/8 != len(e.Key) {
			return nil, FormatErrorf("dictionary key width mismatch: %d bytes for %d bits", len(e.Key), keyBits)
		}
		if i > 0 && bytes.Equal(sorted[i-1].Key, e.Key) {
			return nil, FormatErrorf("duplicate dictionary key")
		}
	}
	return buildDictNode(sorted, 0, keyBits)
}

func buildDictNode(entries []DictEntry, fromBit, keyBits int) (*Cell, error) {
	if len(entries) == 1 {
		return buildDictLeaf(entries[0], fromBit, keyBits)
	}

	// longest common prefix of the remaining key bits
	common := keyBits - fromBit
	first, last := entries[0].Key, entries[len(entries)-1].Key
	for i := 0; i < common; i++ {
		if keyBit(first, fromBit+i) != keyBit(last, fromBit+i) {
			common = i
			break
		}
	}

	split := fromBit + common
	// entries are sorted, so the right branch starts at the first set bit
	cut := sort.Search(len(entries), func(i int) bool {
		return keyBit(entries[i].Key, split) == 1
	})
	if cut == 0 || cut == len(entries) {
		return nil, FormatErrorf("dictionary keys are not prefix-separable")
	}

	left, err := buildDictNode(entries[:cut], split+1, keyBits)
	if err != nil {
		return nil, err
	}
	right, err := buildDictNode(entries[cut:], split+1, keyBits)
	if err != nil {
		return nil, err
	}

	return NewBuilder().
		StoreByte(dictTagFork).
		StoreUint16(uint16(common)).
		StoreBytes(packKeyBits(entries[0].Key, fromBit, common)).
		StoreRef(left).
		StoreRef(right).
		Build()
}

func buildDictLeaf(e DictEntry, fromBit, keyBits int) (*Cell, error) {
	suffix := keyBits - fromBit
	return NewBuilder().
		StoreByte(dictTagLeaf).
		StoreUint16(uint16(suffix)).
		StoreBytes(packKeyBits(e.Key, fromBit, suffix)).
		StoreRef(e.Value).
		Build()
}

// DictGet walks the dictionary for key and returns the value cell together
// with the child-index path from the dictionary root to the leaf's value.
// A missing key returns (nil, nil, nil).
func DictGet(root *Cell, key []byte, keyBits int) (*Cell, []int, error) {
	if (keyBits+7)/8 != len(key) {
		return nil, nil, FormatErrorf("dictionary key width mismatch: %d bytes for %d bits", len(key), keyBits)
	}

	node, fromBit := root, 0
	var path []int
	for {
		s := node.BeginParse()
		tag, err := s.LoadByte()
		if err != nil {
			return nil, nil, err
		}
		nbits, err := s.LoadUint16()
		if err != nil {
			return nil, nil, err
		}
		frag, err := s.LoadBytes((int(nbits) + 7) / 8)
		if err != nil {
			return nil, nil, err
		}
		if fromBit+int(nbits) > keyBits {
			return nil, nil, FormatErrorf("dictionary node exceeds key width")
		}
		if !bytes.Equal(frag, packKeyBits(key, fromBit, int(nbits))) {
			return nil, nil, nil
		}
		fromBit += int(nbits)

		switch tag {
		case dictTagLeaf:
			if fromBit != keyBits {
				return nil, nil, FormatErrorf("dictionary leaf with a short key")
			}
			value, err := s.LoadRef()
			if err != nil {
				return nil, nil, err
			}
			return value, append(path, 0), nil

		case dictTagFork:
			if fromBit >= keyBits {
				return nil, nil, FormatErrorf("dictionary fork past the key width")
			}
			branch := int(keyBit(key, fromBit))
			fromBit++
			next, err := node.Ref(branch)
			if err != nil {
				return nil, nil, err
			}
			path = append(path, branch)
			node = next

		default:
			return nil, nil, FormatErrorf("unknown dictionary node tag: %d", tag)
		}
	}
}

// DictKey packs the (address, logical time) pair into a dictionary key.
func DictKey(address [32]byte, lt uint64) []byte {
	key := make([]byte, 40)
	copy(key, address[:])
	binary.BigEndian.PutUint64(key[32:], lt)
	return key
}

// DictKeyBits is the width of a transaction dictionary key.
const DictKeyBits = 40 * 8

func keyBit(key []byte, bit int) byte {
	return key[bit/8] >> (7 - bit%8) & 1
}

// packKeyBits extracts count bits of key starting at fromBit into a
// byte-aligned, zero-padded fragment.
func packKeyBits(key []byte, fromBit, count int) []byte {
	out := make([]byte, (count+7)/8)
	for i := 0; i < count; i++ {
		if keyBit(key, fromBit+i) != 0 {
			out[i/8] |= 1 << (7 - i%8)
		}
	}
	return out
}
