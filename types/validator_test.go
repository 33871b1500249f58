package types

import (
	"crypto/rand"
	"testing"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofchain/proofapi/cell"
)

type testValidator struct {
	priv ed25519.PrivateKey
	val  Validator
}

func genValidators(t *testing.T, weights ...uint64) ([]testValidator, *ValidatorSet) {
	t.Helper()

	tvs := make([]testValidator, len(weights))
	vals := make([]Validator, len(weights))
	for i, w := range weights {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		tvs[i] = testValidator{priv: priv, val: Validator{PubKey: pub, Weight: w}}
		vals[i] = tvs[i].val
	}

	vset, err := NewValidatorSet(vals)
	require.NoError(t, err)
	return tvs, vset
}

func signBlock(tvs []testValidator, ref BlockRef, idxs ...uint16) []BlockSignature {
	payload := ref.SignPayload()
	sigs := make([]BlockSignature, 0, len(idxs))
	for _, idx := range idxs {
		sig := BlockSignature{ValidatorIndex: idx}
		copy(sig.Signature[:], ed25519.Sign(tvs[idx].priv, payload))
		sigs = append(sigs, sig)
	}
	return sigs
}

func testBlockRef() BlockRef {
	return BlockRef{NetworkID: 1, Seqno: 100, RootHash: cell.Hash{0xab}}
}

func TestVerifyQuorum(t *testing.T) {
	tvs, vset := genValidators(t, 25, 25, 25, 25)
	ref := testBlockRef()

	t.Run("full set passes", func(t *testing.T) {
		require.NoError(t, vset.VerifyQuorum(ref, signBlock(tvs, ref, 0, 1, 2, 3)))
	})

	t.Run("three quarters passes", func(t *testing.T) {
		require.NoError(t, vset.VerifyQuorum(ref, signBlock(tvs, ref, 0, 1, 2)))
	})

	t.Run("half is rejected", func(t *testing.T) {
		err := vset.VerifyQuorum(ref, signBlock(tvs, ref, 0, 1))
		require.Error(t, err)
		assert.True(t, IsInvalidSignatures(err))

		var quorum ErrNotEnoughSignedWeight
		require.ErrorAs(t, err, &quorum)
		assert.EqualValues(t, 50, quorum.Got)
	})

	t.Run("exactly two thirds is rejected", func(t *testing.T) {
		// quorum requires strictly more than 2/3
		tvs3, vset3 := genValidators(t, 1, 1, 1)
		err := vset3.VerifyQuorum(ref, signBlock(tvs3, ref, 0, 1))
		require.Error(t, err)
		assert.True(t, IsInvalidSignatures(err))
	})

	t.Run("empty signature set", func(t *testing.T) {
		err := vset.VerifyQuorum(ref, nil)
		require.Error(t, err)
		assert.True(t, IsInvalidSignatures(err))
	})
}

func TestVerifyQuorumRejectsBadSignatures(t *testing.T) {
	tvs, vset := genValidators(t, 1, 1, 1, 1)
	ref := testBlockRef()

	t.Run("forged signature", func(t *testing.T) {
		sigs := signBlock(tvs, ref, 0, 1, 2)
		sigs[1].Signature[0] ^= 0xff

		err := vset.VerifyQuorum(ref, sigs)
		require.Error(t, err)

		var invalid ErrInvalidSignature
		require.ErrorAs(t, err, &invalid)
		assert.EqualValues(t, 1, invalid.ValidatorIndex)
	})

	t.Run("signature over a different block", func(t *testing.T) {
		other := ref
		other.Seqno++
		err := vset.VerifyQuorum(ref, signBlock(tvs, other, 0, 1, 2))
		require.Error(t, err)
		assert.True(t, IsInvalidSignatures(err))
	})

	t.Run("duplicate validator", func(t *testing.T) {
		sigs := signBlock(tvs, ref, 0, 0, 1, 2)
		err := vset.VerifyQuorum(ref, sigs)
		require.Error(t, err)

		var invalid ErrInvalidSignature
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "duplicate", invalid.Reason)
	})

	t.Run("unknown validator index", func(t *testing.T) {
		sigs := signBlock(tvs, ref, 0, 1, 2)
		sigs[0].ValidatorIndex = 99
		err := vset.VerifyQuorum(ref, sigs)
		require.Error(t, err)
	})
}

func TestNewValidatorSet(t *testing.T) {
	_, err := NewValidatorSet(nil)
	require.Error(t, err)

	_, err = NewValidatorSet([]Validator{{PubKey: []byte{0x01}, Weight: 1}})
	require.Error(t, err)
}

// Weights summing past MaxTotalWeight must be rejected at construction:
// admitting them would let signedWeight*3 wrap and pass a fake quorum.
func TestNewValidatorSetWeightCap(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	vset, err := NewValidatorSet([]Validator{{PubKey: pub, Weight: MaxTotalWeight}})
	require.NoError(t, err)
	assert.Equal(t, MaxTotalWeight, vset.TotalWeight)

	_, err = NewValidatorSet([]Validator{
		{PubKey: pub, Weight: MaxTotalWeight},
		{PubKey: pub, Weight: 1},
	})
	require.Error(t, err)

	// a single oversized weight, and a pair whose sum wraps uint64
	_, err = NewValidatorSet([]Validator{{PubKey: pub, Weight: 1 << 63}})
	require.Error(t, err)

	_, err = NewValidatorSet([]Validator{
		{PubKey: pub, Weight: MaxTotalWeight},
		{PubKey: pub, Weight: ^uint64(0) - (1 << 60)},
	})
	require.Error(t, err)
}
