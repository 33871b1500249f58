package proof

import (
	"github.com/proofchain/proofapi/cell"
	"github.com/proofchain/proofapi/types"
)

// Hop is one link of a proof chain: a Merkle proof of a single block,
// pruned down to the parts a verifier needs. The pruned root hash always
// equals the original block's root hash, so adjacent hops can be linked by
// the prev-ref each hop retains.
type Hop struct {
	Ref      types.BlockRef
	Info     types.BlockInfo
	Proof    *cell.Cell // merkle marker wrapping the pruned block root
	IsAnchor bool
}

// locateTx finds the transaction in the block's dictionary and returns the
// keep path of the lookup spine, rooted at the block cell.
//
// types.ErrNotFound when no entry matches; types.ErrAmbiguous when a tx
// hash is required but absent, or present but different from the located
// entry.
func locateTx(root *cell.Cell, d types.TransactionDescriptor, requireTxHash bool) (cell.KeepPath, error) {
	dict, err := types.TransactionDict(root)
	if err != nil {
		return nil, err
	}

	key := cell.DictKey([32]byte(d.Address), d.LogicalTime)
	value, path, err := cell.DictGet(dict, key, cell.DictKeyBits)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, types.ErrNotFound
	}

	leaf, err := types.ParseTransactionLeaf(value)
	if err != nil {
		return nil, err
	}
	if requireTxHash && d.TxHash == nil {
		return nil, types.ErrAmbiguous
	}
	if d.TxHash != nil && *d.TxHash != leaf.TxHash {
		return nil, types.ErrAmbiguous
	}

	keep := cell.KeepPath{types.BlockRefIdxExtra, types.ExtraRefIdxDict}
	return append(keep, path...), nil
}

// extractHop prunes a block down to its header (with the prev-ref) plus,
// for the transaction's own block, the dictionary path to the transaction.
// Pure function of its inputs.
func extractHop(root *cell.Cell, ref types.BlockRef, info types.BlockInfo, txPath cell.KeepPath, isAnchor bool) (*Hop, error) {
	keep := []cell.KeepPath{{types.BlockRefIdxInfo}}
	if txPath != nil {
		keep = append(keep, txPath)
	}

	pruned, err := cell.Prune(root, keep)
	if err != nil {
		return nil, err
	}
	if pruned.Hash() != root.Hash() {
		return nil, cell.FormatErrorf("pruned root hash diverged for block %s", ref)
	}

	proof, err := cell.NewMerkleProof(pruned)
	if err != nil {
		return nil, err
	}
	return &Hop{Ref: ref, Info: info, Proof: proof, IsAnchor: isAnchor}, nil
}
