// Package mock provides an in-memory Provider for tests. It counts calls
// per method and can be told to fail the next N calls of a method, which
// makes retry and single-flight behavior observable.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/proofchain/proofapi/cell"
	"github.com/proofchain/proofapi/proof/provider"
	"github.com/proofchain/proofapi/types"
)

// Mock is a call-counting in-memory Provider.
type Mock struct {
	id string

	mtx      sync.Mutex
	blocks   map[cell.Hash]*cell.Cell
	refs     map[cell.Hash]types.BlockRef
	txIndex  map[string]types.BlockRef
	anchors  map[cell.Hash]bool
	sigs     map[cell.Hash][]types.BlockSignature
	valsets  map[cell.Hash]*types.ValidatorSet
	vals     *types.ValidatorSet
	calls    map[string]int
	failures map[string][]error
}

var _ provider.Provider = (*Mock)(nil)

// New returns an empty mock provider.
func New(id string) *Mock {
	return &Mock{
		id:       id,
		blocks:   make(map[cell.Hash]*cell.Cell),
		refs:     make(map[cell.Hash]types.BlockRef),
		txIndex:  make(map[string]types.BlockRef),
		anchors:  make(map[cell.Hash]bool),
		sigs:     make(map[cell.Hash][]types.BlockSignature),
		valsets:  make(map[cell.Hash]*types.ValidatorSet),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
}

// AddBlock builds a block from params and registers it together with its
// transactions.
func (m *Mock) AddBlock(p types.BlockParams) (types.BlockRef, error) {
	root, err := types.BuildBlock(p)
	if err != nil {
		return types.BlockRef{}, err
	}
	info, err := types.ParseBlockInfo(root)
	if err != nil {
		return types.BlockRef{}, err
	}
	ref := info.Ref(root)

	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.blocks[ref.RootHash] = root
	m.refs[ref.RootHash] = ref
	for _, tx := range p.Txs {
		m.txIndex[txKey(tx.Address, tx.LogicalTime)] = ref
	}
	return ref, nil
}

// MarkAnchor makes IsAnchor report true for ref.
func (m *Mock) MarkAnchor(ref types.BlockRef) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.anchors[ref.RootHash] = true
}

// SetSignatures registers the signature set returned for ref.
func (m *Mock) SetSignatures(ref types.BlockRef, sigs []types.BlockSignature) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.sigs[ref.RootHash] = sigs
}

// SetValidators registers the default validator set.
func (m *Mock) SetValidators(vals *types.ValidatorSet) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.vals = vals
}

// SetValidatorsFor overrides the validator set for one block.
func (m *Mock) SetValidatorsFor(ref types.BlockRef, vals *types.ValidatorSet) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.valsets[ref.RootHash] = vals
}

// FailNext queues err for the next n calls of method.
func (m *Mock) FailNext(method string, n int, err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for i := 0; i < n; i++ {
		m.failures[method] = append(m.failures[method], err)
	}
}

// Calls returns how many times method has been invoked.
func (m *Mock) Calls(method string) int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.calls[method]
}

func (m *Mock) enter(method string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.calls[method]++
	queue := m.failures[method]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.failures[method] = queue[1:]
	return err
}

func (m *Mock) LocateTransaction(ctx context.Context, address types.Address, lt uint64) (types.BlockRef, error) {
	if err := m.enter("LocateTransaction"); err != nil {
		return types.BlockRef{}, err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	ref, ok := m.txIndex[txKey(address, lt)]
	if !ok {
		return types.BlockRef{}, types.ErrNotFound
	}
	return ref, nil
}

func (m *Mock) FetchBlock(ctx context.Context, ref types.BlockRef) (*cell.Cell, error) {
	if err := m.enter("FetchBlock"); err != nil {
		return nil, err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	root, ok := m.blocks[ref.RootHash]
	if !ok {
		return nil, provider.ErrNotSynced
	}
	return root, nil
}

func (m *Mock) IsAnchor(ctx context.Context, ref types.BlockRef) (bool, error) {
	if err := m.enter("IsAnchor"); err != nil {
		return false, err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.anchors[ref.RootHash], nil
}

func (m *Mock) BlockSignatures(ctx context.Context, ref types.BlockRef) ([]types.BlockSignature, error) {
	if err := m.enter("BlockSignatures"); err != nil {
		return nil, err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	sigs, ok := m.sigs[ref.RootHash]
	if !ok {
		return nil, provider.ErrNotSynced
	}
	return sigs, nil
}

func (m *Mock) ValidatorSet(ctx context.Context, ref types.BlockRef) (*types.ValidatorSet, error) {
	if err := m.enter("ValidatorSet"); err != nil {
		return nil, err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if vals, ok := m.valsets[ref.RootHash]; ok {
		return vals, nil
	}
	if m.vals == nil {
		return nil, provider.ErrNotSynced
	}
	return m.vals, nil
}

func (m *Mock) String() string { return "mock{" + m.id + "}" }

func txKey(address types.Address, lt uint64) string {
	return fmt.Sprintf("%x/%d", address[:], lt)
}
