// Package proof builds trustless transaction inclusion proofs: multi-hop
// chains of pruned block proofs that a verifier can follow from the
// transaction's block back to a signature-anchored block, checking nothing
// but hashes and ed25519 signatures along the way.
package proof

import (
	"context"
	"fmt"
	"time"

	"github.com/proofchain/proofapi/cell"
	"github.com/proofchain/proofapi/libs/log"
	"github.com/proofchain/proofapi/proof/provider"
	"github.com/proofchain/proofapi/types"
)

const (
	// DefaultMaxHops bounds how far back a chain may walk before failing
	// with ChainTooLong.
	DefaultMaxHops = 1024

	// DefaultFetchAttempts is how many times a transient upstream failure
	// is retried before the build fails with UpstreamUnavailable.
	DefaultFetchAttempts = 5

	// DefaultRetryDelay is the base backoff between retries; it doubles on
	// each attempt.
	DefaultRetryDelay = 500 * time.Millisecond
)

// buildState is one step of the assembly state machine. Transitions:
//
//	Start -> LocateBlock -> ExtractHop -> (FollowPrevRef -> ExtractHop)*
//	      -> AnchorReached -> VerifyQuorum -> Serialize -> Done
//
// with Failed reachable from every state.
type buildState int

const (
	stateStart buildState = iota
	stateLocateBlock
	stateExtractHop
	stateFollowPrevRef
	stateAnchorReached
	stateVerifyQuorum
	stateSerialize
	stateDone
	stateFailed
)

func (s buildState) String() string {
	switch s {
	case stateStart:
		return "Start"
	case stateLocateBlock:
		return "LocateBlock"
	case stateExtractHop:
		return "ExtractHop"
	case stateFollowPrevRef:
		return "FollowPrevRef"
	case stateAnchorReached:
		return "AnchorReached"
	case stateVerifyQuorum:
		return "VerifyQuorum"
	case stateSerialize:
		return "Serialize"
	case stateDone:
		return "Done"
	case stateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("buildState(%d)", int(s))
	}
}

// BuilderOptions configures a Builder. Zero values fall back to defaults;
// a nil Policy means KeyBlockPolicy.
type BuilderOptions struct {
	NetworkID     uint32
	MaxHops       int
	RequireTxHash bool
	FetchAttempts int
	RetryDelay    time.Duration
	Policy        AnchorPolicy
	Metrics       *Metrics
}

// Builder assembles proof chains from blocks served by a Provider. Safe for
// concurrent use; each build keeps its own state.
type Builder struct {
	logger  log.Logger
	source  provider.Provider
	opts    BuilderOptions
	metrics *Metrics
}

func NewBuilder(logger log.Logger, source provider.Provider, opts BuilderOptions) *Builder {
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if opts.FetchAttempts <= 0 {
		opts.FetchAttempts = DefaultFetchAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Policy == nil {
		opts.Policy = KeyBlockPolicy{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Builder{logger: logger, source: source, opts: opts, metrics: metrics}
}

// BuildProofChain walks from the transaction's block back to the nearest
// anchor, verifies the anchor's signature quorum, and serializes the hops
// into one multi-root bag of cells: [tx hop, intermediate hops..., anchor
// hop, anchor signature section]. The output is byte-identical across
// builds of the same chain.
func (b *Builder) BuildProofChain(ctx context.Context, d types.TransactionDescriptor) ([]byte, error) {
	run := &chainRun{
		b:     b,
		desc:  d,
		fp:    types.BuildFingerprint(b.opts.NetworkID, d),
		state: stateStart,
	}
	return run.run(ctx)
}

// withRetry runs fn, retrying transient provider failures with exponential
// backoff. A non-retryable error fails immediately; exhausting the attempts
// fails with UpstreamUnavailable.
func (b *Builder) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < b.opts.FetchAttempts; attempt++ {
		if attempt > 0 {
			b.metrics.FetchRetries.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.opts.RetryDelay << uint(attempt-1)):
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !provider.IsRetryable(err) {
			return err
		}
		b.logger.Debug("retrying upstream read",
			"op", op,
			"attempt", attempt+1,
			"source", b.source.String(),
			"err", err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, types.ErrUpstreamUnavailable)
}

// chainRun is the per-build state of the assembly state machine.
type chainRun struct {
	b     *Builder
	desc  types.TransactionDescriptor
	fp    types.Fingerprint
	state buildState
	err   error

	cur         types.BlockRef
	curRoot     *cell.Cell
	curInfo     types.BlockInfo
	curIsAnchor bool

	hops []*Hop
	sigs []types.BlockSignature
	out  []byte
}

func (r *chainRun) fail(err error) {
	r.err = err
	r.state = stateFailed
}

func (r *chainRun) run(ctx context.Context) ([]byte, error) {
	r.b.metrics.BuildsStarted.Add(1)
	start := time.Now()

	for {
		switch r.state {
		case stateDone:
			r.b.metrics.BuildDuration.Observe(time.Since(start).Seconds())
			r.b.metrics.ProofSize.Observe(float64(len(r.out)))
			r.b.logger.Info("proof chain built",
				"fingerprint", r.fp,
				"hops", len(r.hops),
				"bytes", len(r.out),
				"took", time.Since(start).String())
			return r.out, nil
		case stateFailed:
			kind := FailureKind(r.err)
			r.b.metrics.BuildsFailed.With("kind", kind).Add(1)
			r.b.logger.Error("proof build failed",
				"fingerprint", r.fp,
				"hop", len(r.hops),
				"kind", kind,
				"err", r.err)
			return nil, &BuildError{Fingerprint: r.fp, Hop: len(r.hops), Err: r.err}
		}

		if err := ctx.Err(); err != nil {
			r.fail(err)
			continue
		}

		switch r.state {
		case stateStart:
			r.start()
		case stateLocateBlock:
			r.locateBlock(ctx)
		case stateExtractHop:
			r.extractHop()
		case stateFollowPrevRef:
			r.followPrevRef(ctx)
		case stateAnchorReached:
			r.anchorReached(ctx)
		case stateVerifyQuorum:
			r.verifyQuorum(ctx)
		case stateSerialize:
			r.serialize()
		}
	}
}

func (r *chainRun) start() {
	r.b.logger.Debug("building proof chain", "fingerprint", r.fp, "tx", r.desc.String())
	r.state = stateLocateBlock
}

func (r *chainRun) locateBlock(ctx context.Context) {
	var ref types.BlockRef
	err := r.b.withRetry(ctx, "locate transaction", func(ctx context.Context) error {
		var err error
		ref, err = r.b.source.LocateTransaction(ctx, r.desc.Address, r.desc.LogicalTime)
		return err
	})
	if err != nil {
		r.fail(err)
		return
	}
	if err := r.loadBlock(ctx, ref); err != nil {
		r.fail(err)
		return
	}
	r.state = stateExtractHop
}

// loadBlock fetches ref, validates it against its reference, and asks the
// anchor policy about it.
func (r *chainRun) loadBlock(ctx context.Context, ref types.BlockRef) error {
	var root *cell.Cell
	err := r.b.withRetry(ctx, "fetch block", func(ctx context.Context) error {
		var err error
		root, err = r.b.source.FetchBlock(ctx, ref)
		return err
	})
	if err != nil {
		return err
	}

	info, err := checkBlock(ref, root)
	if err != nil {
		return err
	}

	var anchor bool
	err = r.b.withRetry(ctx, "anchor check", func(ctx context.Context) error {
		var err error
		anchor, err = r.b.opts.Policy.IsAnchor(ctx, r.b.source, ref, info)
		return err
	})
	if err != nil {
		return err
	}

	r.cur, r.curRoot, r.curInfo, r.curIsAnchor = ref, root, info, anchor
	return nil
}

func (r *chainRun) extractHop() {
	var txPath cell.KeepPath
	if len(r.hops) == 0 {
		path, err := locateTx(r.curRoot, r.desc, r.b.opts.RequireTxHash)
		if err != nil {
			r.fail(err)
			return
		}
		txPath = path
	}

	hop, err := extractHop(r.curRoot, r.cur, r.curInfo, txPath, r.curIsAnchor)
	if err != nil {
		r.fail(err)
		return
	}
	r.hops = append(r.hops, hop)
	r.b.logger.Debug("extracted hop",
		"fingerprint", r.fp,
		"hop", len(r.hops),
		"block", r.cur.String(),
		"anchor", r.curIsAnchor)

	if r.curIsAnchor {
		r.state = stateAnchorReached
	} else {
		r.state = stateFollowPrevRef
	}
}

func (r *chainRun) followPrevRef(ctx context.Context) {
	if len(r.hops) >= r.b.opts.MaxHops {
		r.fail(types.ErrChainTooLong)
		return
	}

	next := r.curInfo.PrevRef()
	if next.RootHash == (cell.Hash{}) {
		r.fail(cell.FormatErrorf("chain ended at block %s without reaching an anchor", r.cur))
		return
	}
	if err := r.loadBlock(ctx, next); err != nil {
		r.fail(err)
		return
	}
	r.state = stateExtractHop
}

func (r *chainRun) anchorReached(ctx context.Context) {
	anchor := r.hops[len(r.hops)-1]
	err := r.b.withRetry(ctx, "fetch signatures", func(ctx context.Context) error {
		var err error
		r.sigs, err = r.b.source.BlockSignatures(ctx, anchor.Ref)
		return err
	})
	if err != nil {
		r.fail(err)
		return
	}
	r.state = stateVerifyQuorum
}

func (r *chainRun) verifyQuorum(ctx context.Context) {
	anchor := r.hops[len(r.hops)-1]

	var vals *types.ValidatorSet
	err := r.b.withRetry(ctx, "fetch validator set", func(ctx context.Context) error {
		var err error
		vals, err = r.b.source.ValidatorSet(ctx, anchor.Ref)
		return err
	})
	if err != nil {
		r.fail(err)
		return
	}

	if err := vals.VerifyQuorum(anchor.Ref, r.sigs); err != nil {
		r.fail(err)
		return
	}
	r.state = stateSerialize
}

func (r *chainRun) serialize() {
	section, err := types.BuildSignatureSection(r.sigs)
	if err != nil {
		r.fail(err)
		return
	}

	roots := make([]*cell.Cell, 0, len(r.hops)+1)
	for _, hop := range r.hops {
		roots = append(roots, hop.Proof)
	}
	roots = append(roots, section)

	out, err := cell.Encode(roots...)
	if err != nil {
		r.fail(err)
		return
	}
	r.out = out
	r.state = stateDone
}

// checkBlock rejects a fetched block that does not match its reference.
func checkBlock(ref types.BlockRef, root *cell.Cell) (types.BlockInfo, error) {
	if root == nil {
		return types.BlockInfo{}, provider.ErrBadBlock{Reason: cell.FormatErrorf("nil block")}
	}
	if root.Hash() != ref.RootHash {
		return types.BlockInfo{}, provider.ErrBadBlock{
			Reason: cell.FormatErrorf("root hash mismatch: want %s, got %s", ref.RootHash, root.Hash()),
		}
	}
	info, err := types.ParseBlockInfo(root)
	if err != nil {
		return types.BlockInfo{}, provider.ErrBadBlock{Reason: err}
	}
	if info.NetworkID != ref.NetworkID || info.Seqno != ref.Seqno {
		return types.BlockInfo{}, provider.ErrBadBlock{
			Reason: cell.FormatErrorf("block header disagrees with its reference %s", ref),
		}
	}
	return info, nil
}
