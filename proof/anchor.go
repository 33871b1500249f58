package proof

import (
	"context"

	"github.com/proofchain/proofapi/proof/provider"
	"github.com/proofchain/proofapi/types"
)

// AnchorPolicy decides where a proof chain is allowed to stop. An anchor
// block is one whose validator signatures the verifier trusts directly.
type AnchorPolicy interface {
	IsAnchor(ctx context.Context, source provider.Provider, ref types.BlockRef, info types.BlockInfo) (bool, error)
}

// KeyBlockPolicy anchors at key blocks and lets the data source mark
// additional trusted checkpoints. This is the default.
type KeyBlockPolicy struct{}

func (KeyBlockPolicy) IsAnchor(ctx context.Context, source provider.Provider, ref types.BlockRef, info types.BlockInfo) (bool, error) {
	if info.IsKeyBlock {
		return true, nil
	}
	return source.IsAnchor(ctx, ref)
}
