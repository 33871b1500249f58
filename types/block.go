package types

import (
	"encoding/binary"
	"fmt"

	"github.com/proofchain/proofapi/cell"
)

// Block cells follow a fixed reference layout so that proof keep paths are
// stable:
//
//	root:  tag, network id, shard, seqno
//	       ref 0: info, ref 1: extra
//	info:  flags (bit 0: key block), end lt
//	       ref 0: prev ref (prev seqno, prev root hash)
//	extra: tag
//	       ref 0: transaction dictionary
//	dict value: tx hash, lt
//	signature section: validator index, signature; ref 0: next entry
//
// The signature section is a standalone cell list, never part of the block
// it attests: validators sign the block's root hash, so the signatures
// cannot live under that hash.
const (
	blockTag uint8 = 0x11
	extraTag uint8 = 0x22

	blockInfoKeyFlag uint8 = 0x01

	// blockSignTag prefixes the payload validators sign over a block id.
	blockSignTag uint32 = 0x706e0bc5

	// Reference layout of a block root cell.
	BlockRefIdxInfo  = 0
	BlockRefIdxExtra = 1

	// Reference layout of the info and extra cells.
	InfoRefIdxPrev  = 0
	ExtraRefIdxDict = 0
)

// BlockRef identifies one block.
type BlockRef struct {
	NetworkID uint32
	Shard     uint64
	Seqno     uint32
	RootHash  cell.Hash
}

func (r BlockRef) String() string {
	return fmt.Sprintf("%d:%016x:%d:%s", r.NetworkID, r.Shard, r.Seqno, r.RootHash)
}

// IsZero reports whether the reference is unset.
func (r BlockRef) IsZero() bool {
	return r == BlockRef{}
}

// SignPayload is the canonical byte string validators sign to attest a
// block: tag, root hash, network id, seqno.
func (r BlockRef) SignPayload() []byte {
	out := make([]byte, 4+cell.HashSize+8)
	binary.BigEndian.PutUint32(out[:4], blockSignTag)
	copy(out[4:], r.RootHash[:])
	binary.BigEndian.PutUint32(out[4+cell.HashSize:], r.NetworkID)
	binary.BigEndian.PutUint32(out[4+cell.HashSize+4:], r.Seqno)
	return out
}

// BlockInfo is the parsed header of a block cell.
type BlockInfo struct {
	NetworkID  uint32
	Shard      uint64
	Seqno      uint32
	IsKeyBlock bool
	EndLT      uint64
	PrevSeqno  uint32
	PrevHash   cell.Hash
}

// PrevRef returns the reference of the previous block in the same chain.
func (info BlockInfo) PrevRef() BlockRef {
	return BlockRef{
		NetworkID: info.NetworkID,
		Shard:     info.Shard,
		Seqno:     info.PrevSeqno,
		RootHash:  info.PrevHash,
	}
}

// Ref returns the reference of the block itself.
func (info BlockInfo) Ref(root *cell.Cell) BlockRef {
	return BlockRef{
		NetworkID: info.NetworkID,
		Shard:     info.Shard,
		Seqno:     info.Seqno,
		RootHash:  root.Hash(),
	}
}

// ParseBlockInfo reads the block header and the previous-block reference
// from a block root cell.
func ParseBlockInfo(root *cell.Cell) (BlockInfo, error) {
	var info BlockInfo

	s := root.BeginParse()
	tag, err := s.LoadByte()
	if err != nil {
		return info, err
	}
	if tag != blockTag {
		return info, cell.FormatErrorf("not a block cell: tag %#x", tag)
	}
	if info.NetworkID, err = s.LoadUint32(); err != nil {
		return info, err
	}
	if info.Shard, err = s.LoadUint64(); err != nil {
		return info, err
	}
	if info.Seqno, err = s.LoadUint32(); err != nil {
		return info, err
	}

	infoCell, err := root.Ref(BlockRefIdxInfo)
	if err != nil {
		return info, err
	}
	is := infoCell.BeginParse()
	flags, err := is.LoadByte()
	if err != nil {
		return info, err
	}
	info.IsKeyBlock = flags&blockInfoKeyFlag != 0
	if info.EndLT, err = is.LoadUint64(); err != nil {
		return info, err
	}

	prevCell, err := infoCell.Ref(InfoRefIdxPrev)
	if err != nil {
		return info, err
	}
	ps := prevCell.BeginParse()
	if info.PrevSeqno, err = ps.LoadUint32(); err != nil {
		return info, err
	}
	if info.PrevHash, err = ps.LoadHash(); err != nil {
		return info, err
	}

	return info, nil
}

// TransactionDict returns the block's transaction dictionary root.
func TransactionDict(root *cell.Cell) (*cell.Cell, error) {
	extra, err := root.Ref(BlockRefIdxExtra)
	if err != nil {
		return nil, err
	}
	s := extra.BeginParse()
	tag, err := s.LoadByte()
	if err != nil {
		return nil, err
	}
	if tag != extraTag {
		return nil, cell.FormatErrorf("not a block extra cell: tag %#x", tag)
	}
	return extra.Ref(ExtraRefIdxDict)
}

// TransactionLeaf is the decoded value cell of a transaction dictionary
// entry.
type TransactionLeaf struct {
	TxHash      cell.Hash
	LogicalTime uint64
}

// ParseTransactionLeaf decodes a dictionary value cell.
func ParseTransactionLeaf(c *cell.Cell) (TransactionLeaf, error) {
	var leaf TransactionLeaf
	s := c.BeginParse()
	var err error
	if leaf.TxHash, err = s.LoadHash(); err != nil {
		return leaf, err
	}
	if leaf.LogicalTime, err = s.LoadUint64(); err != nil {
		return leaf, err
	}
	return leaf, nil
}

// ParseSignatures walks a signature section list.
func ParseSignatures(section *cell.Cell) ([]BlockSignature, error) {
	var out []BlockSignature
	for node := section; node != nil; {
		s := node.BeginParse()
		idx, err := s.LoadUint16()
		if err != nil {
			return nil, err
		}
		raw, err := s.LoadBytes(SignatureSize)
		if err != nil {
			return nil, err
		}
		sig := BlockSignature{ValidatorIndex: idx}
		copy(sig.Signature[:], raw)
		out = append(out, sig)

		if node.RefsCount() == 0 {
			break
		}
		if node, err = node.Ref(0); err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, cell.FormatErrorf("empty signature section")
	}
	return out, nil
}
