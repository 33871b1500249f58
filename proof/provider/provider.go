// Package provider defines the read-only block/account data source the
// proof chain assembler consumes. Implementations must be safe for
// concurrent use.
package provider

import (
	"context"

	"github.com/proofchain/proofapi/cell"
	"github.com/proofchain/proofapi/types"
)

// Provider supplies raw block data for proof building (verification
// happens in the assembler, never here).
type Provider interface {
	// LocateTransaction resolves which block contains the transaction
	// identified by the account address and logical time. It returns
	// types.ErrNotFound when no such transaction exists.
	LocateTransaction(ctx context.Context, address types.Address, lt uint64) (types.BlockRef, error)

	// FetchBlock returns the full block cell for ref. The root hash of the
	// returned cell must equal ref.RootHash; the assembler rejects
	// anything else.
	FetchBlock(ctx context.Context, ref types.BlockRef) (*cell.Cell, error)

	// IsAnchor reports whether ref is signature-anchored, i.e. whether a
	// verifier is expected to trust its validator signature set directly.
	IsAnchor(ctx context.Context, ref types.BlockRef) (bool, error)

	// BlockSignatures returns the validator signatures over ref's sign
	// payload. Only anchor blocks are required to have any.
	BlockSignatures(ctx context.Context, ref types.BlockRef) ([]types.BlockSignature, error)

	// ValidatorSet returns the validator set whose signatures attest ref.
	ValidatorSet(ctx context.Context, ref types.BlockRef) (*types.ValidatorSet, error)

	// String identifies the provider in logs.
	String() string
}
