// Package http provides a Provider backed by a block data node's JSON API.
package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/proofchain/proofapi/cell"
	"github.com/proofchain/proofapi/proof/provider"
	"github.com/proofchain/proofapi/types"
)

const defaultTimeout = 10 * time.Second

// Client is an HTTP implementation of provider.Provider.
type Client struct {
	remote string
	client *http.Client
}

var _ provider.Provider = (*Client)(nil)

// New constructs a client for the node at remote (scheme://host[:port][/path]).
func New(remote string) (*Client, error) {
	return NewWithClient(remote, &http.Client{Timeout: defaultTimeout})
}

// NewWithClient lets the caller supply the http.Client (proxies, custom
// timeouts).
func NewWithClient(remote string, client *http.Client) (*Client, error) {
	u, err := url.Parse(remote)
	if err != nil {
		return nil, fmt.Errorf("invalid remote %q: %w", remote, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote %q: unsupported scheme", remote)
	}
	return &Client{remote: strings.TrimSuffix(remote, "/"), client: client}, nil
}

func (c *Client) String() string { return c.remote }

type blockRefJSON struct {
	NetworkID uint32 `json:"networkId"`
	Shard     string `json:"shard"`
	Seqno     uint32 `json:"seqno"`
	RootHash  string `json:"rootHash"`
}

func (j blockRefJSON) toRef() (types.BlockRef, error) {
	ref := types.BlockRef{NetworkID: j.NetworkID, Seqno: j.Seqno}
	shard, err := strconv.ParseUint(j.Shard, 16, 64)
	if err != nil {
		return ref, fmt.Errorf("invalid shard %q: %w", j.Shard, err)
	}
	ref.Shard = shard
	raw, err := hex.DecodeString(j.RootHash)
	if err != nil {
		return ref, fmt.Errorf("invalid root hash: %w", err)
	}
	if ref.RootHash, err = cell.HashFromBytes(raw); err != nil {
		return ref, err
	}
	return ref, nil
}

func refPath(ref types.BlockRef) string {
	return fmt.Sprintf("%d/%016x/%d/%s", ref.NetworkID, ref.Shard, ref.Seqno, ref.RootHash)
}

func (c *Client) LocateTransaction(ctx context.Context, address types.Address, lt uint64) (types.BlockRef, error) {
	path := fmt.Sprintf("/tx_location/%x/%d", address[:], lt)

	var out blockRefJSON
	if err := c.get(ctx, path, &out); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return types.BlockRef{}, types.ErrNotFound
		}
		return types.BlockRef{}, err
	}
	return out.toRef()
}

func (c *Client) FetchBlock(ctx context.Context, ref types.BlockRef) (*cell.Cell, error) {
	var out struct {
		Boc string `json:"boc"`
	}
	if err := c.get(ctx, "/block/"+refPath(ref), &out); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, provider.ErrNotSynced
		}
		return nil, err
	}
	roots, err := cell.DecodeBase64(out.Boc)
	if err != nil {
		return nil, provider.ErrBadBlock{Reason: err}
	}
	if len(roots) != 1 {
		return nil, provider.ErrBadBlock{Reason: cell.FormatErrorf("expected one root, got %d", len(roots))}
	}
	return roots[0], nil
}

func (c *Client) IsAnchor(ctx context.Context, ref types.BlockRef) (bool, error) {
	var out struct {
		Anchor bool `json:"anchor"`
	}
	if err := c.get(ctx, "/is_anchor/"+refPath(ref), &out); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, provider.ErrNotSynced
		}
		return false, err
	}
	return out.Anchor, nil
}

func (c *Client) BlockSignatures(ctx context.Context, ref types.BlockRef) ([]types.BlockSignature, error) {
	var out struct {
		Signatures []struct {
			Index     uint16 `json:"index"`
			Signature string `json:"signature"`
		} `json:"signatures"`
	}
	if err := c.get(ctx, "/signatures/"+refPath(ref), &out); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, provider.ErrNotSynced
		}
		return nil, err
	}

	sigs := make([]types.BlockSignature, 0, len(out.Signatures))
	for _, s := range out.Signatures {
		raw, err := hex.DecodeString(s.Signature)
		if err != nil || len(raw) != types.SignatureSize {
			return nil, provider.ErrBadBlock{Reason: cell.FormatErrorf("malformed signature for validator %d", s.Index)}
		}
		sig := types.BlockSignature{ValidatorIndex: s.Index}
		copy(sig.Signature[:], raw)
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (c *Client) ValidatorSet(ctx context.Context, ref types.BlockRef) (*types.ValidatorSet, error) {
	var out struct {
		Validators []struct {
			PubKey string `json:"pubKey"`
			Weight uint64 `json:"weight"`
		} `json:"validators"`
	}
	if err := c.get(ctx, "/validator_set/"+refPath(ref), &out); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, provider.ErrNotSynced
		}
		return nil, err
	}

	vals := make([]types.Validator, 0, len(out.Validators))
	for i, v := range out.Validators {
		raw, err := hex.DecodeString(v.PubKey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, provider.ErrBadBlock{Reason: cell.FormatErrorf("malformed public key for validator %d", i)}
		}
		vals = append(vals, types.Validator{PubKey: ed25519.PublicKey(raw), Weight: v.Weight})
	}
	vset, err := types.NewValidatorSet(vals)
	if err != nil {
		return nil, provider.ErrBadBlock{Reason: err}
	}
	return vset, nil
}

// statusError reports an unexpected HTTP status from the remote.
type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("remote returned status %d", e.code)
}

func isStatus(err error, code int) bool {
	se, ok := err.(statusError)
	return ok && se.code == code
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.remote+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%v: %w", err, provider.ErrNoResponse)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return fmt.Errorf("%v: %w", statusError{resp.StatusCode}, provider.ErrNoResponse)
	default:
		return statusError{resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}
