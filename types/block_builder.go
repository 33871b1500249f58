package types

import (
	"sort"

	"github.com/proofchain/proofapi/cell"
)

// BlockTx is one transaction recorded in a block under construction.
type BlockTx struct {
	Address     Address
	LogicalTime uint64
	TxHash      cell.Hash
}

// BlockParams collects everything needed to assemble a block cell. Used by
// fixtures and by data-source fakes; the API service itself never
// constructs blocks.
type BlockParams struct {
	NetworkID  uint32
	Shard      uint64
	Seqno      uint32
	IsKeyBlock bool
	EndLT      uint64
	PrevSeqno  uint32
	PrevHash   cell.Hash
	Txs        []BlockTx
}

// BuildBlock assembles a block cell following the layout documented in
// block.go.
func BuildBlock(p BlockParams) (*cell.Cell, error) {
	prev, err := cell.NewBuilder().
		StoreUint32(p.PrevSeqno).
		StoreHash(p.PrevHash).
		Build()
	if err != nil {
		return nil, err
	}

	flags := uint8(0)
	if p.IsKeyBlock {
		flags |= blockInfoKeyFlag
	}
	info, err := cell.NewBuilder().
		StoreByte(flags).
		StoreUint64(p.EndLT).
		StoreRef(prev).
		Build()
	if err != nil {
		return nil, err
	}

	dict, err := buildTransactionDict(p.Txs)
	if err != nil {
		return nil, err
	}
	extra, err := cell.NewBuilder().
		StoreByte(extraTag).
		StoreRef(dict).
		Build()
	if err != nil {
		return nil, err
	}

	return cell.NewBuilder().
		StoreByte(blockTag).
		StoreUint32(p.NetworkID).
		StoreUint64(p.Shard).
		StoreUint32(p.Seqno).
		StoreRef(info).
		StoreRef(extra).
		Build()
}

func buildTransactionDict(txs []BlockTx) (*cell.Cell, error) {
	entries := make([]cell.DictEntry, 0, len(txs))
	for _, tx := range txs {
		value, err := cell.NewBuilder().
			StoreHash(tx.TxHash).
			StoreUint64(tx.LogicalTime).
			Build()
		if err != nil {
			return nil, err
		}
		entries = append(entries, cell.DictEntry{
			Key:   cell.DictKey([32]byte(tx.Address), tx.LogicalTime),
			Value: value,
		})
	}
	return cell.BuildDict(entries, cell.DictKeyBits)
}

// BuildSignatureSection assembles the linked signature list attesting an
// anchor block, ordered by validator index so the result is canonical.
func BuildSignatureSection(sigs []BlockSignature) (*cell.Cell, error) {
	if len(sigs) == 0 {
		return nil, cell.FormatErrorf("empty signature set")
	}

	sorted := make([]BlockSignature, len(sigs))
	copy(sorted, sigs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ValidatorIndex < sorted[j].ValidatorIndex
	})

	var next *cell.Cell
	for i := len(sorted) - 1; i >= 0; i-- {
		b := cell.NewBuilder().
			StoreUint16(sorted[i].ValidatorIndex).
			StoreBytes(sorted[i].Signature[:])
		if next != nil {
			b.StoreRef(next)
		}
		node, err := b.Build()
		if err != nil {
			return nil, err
		}
		next = node
	}
	return next, nil
}
