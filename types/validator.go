package types

import (
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/proofchain/proofapi/cell"
)

// SignatureSize is the byte width of an ed25519 block signature.
const SignatureSize = ed25519.SignatureSize

// BlockSignature is one validator's signature over a block's sign payload,
// keyed by the validator's index in the set that produced the block.
type BlockSignature struct {
	ValidatorIndex uint16
	Signature      [SignatureSize]byte
}

// Validator is one member of a validator set.
type Validator struct {
	PubKey ed25519.PublicKey
	Weight uint64
}

// MaxTotalWeight bounds the sum of validator weights so the quorum
// comparison (signedWeight*3 vs TotalWeight*2) cannot wrap uint64.
const MaxTotalWeight = uint64(1) << 61

// ValidatorSet is the ordered set of validators whose signatures anchor a
// key block. Immutable after construction.
type ValidatorSet struct {
	Validators  []Validator
	TotalWeight uint64
}

// NewValidatorSet computes the total weight and returns the set.
func NewValidatorSet(validators []Validator) (*ValidatorSet, error) {
	if len(validators) == 0 {
		return nil, cell.FormatErrorf("empty validator set")
	}
	total := uint64(0)
	for i, v := range validators {
		if len(v.PubKey) != ed25519.PublicKeySize {
			return nil, cell.FormatErrorf("validator %d has a malformed public key", i)
		}
		total += v.Weight
		if total > MaxTotalWeight || total < v.Weight {
			return nil, cell.FormatErrorf("total validator weight exceeds %d", MaxTotalWeight)
		}
	}
	return &ValidatorSet{Validators: validators, TotalWeight: total}, nil
}

// Size returns the number of validators.
func (vals *ValidatorSet) Size() int { return len(vals.Validators) }

// VerifyQuorum checks that the given signatures over ref's sign payload
// carry strictly more than two-thirds of the set's total weight.
//
// Every provided signature must verify and must belong to a distinct,
// known validator; a signature set padded with garbage is rejected rather
// than ignored. Signatures are batch-verified, then rechecked one by one
// only on batch failure to name the offender.
func (vals *ValidatorSet) VerifyQuorum(ref BlockRef, sigs []BlockSignature) error {
	if len(sigs) == 0 {
		return ErrNotEnoughSignedWeight{Got: 0, Needed: vals.TotalWeight * 2 / 3}
	}

	payload := ref.SignPayload()

	seen := make(map[uint16]bool, len(sigs))
	batch := ed25519.NewBatchVerifier()
	signedWeight := uint64(0)
	for _, sig := range sigs {
		if seen[sig.ValidatorIndex] {
			return ErrInvalidSignature{ValidatorIndex: sig.ValidatorIndex, Reason: "duplicate"}
		}
		seen[sig.ValidatorIndex] = true

		if int(sig.ValidatorIndex) >= len(vals.Validators) {
			return ErrInvalidSignature{ValidatorIndex: sig.ValidatorIndex, Reason: "unknown validator"}
		}
		val := vals.Validators[sig.ValidatorIndex]

		batch.Add(val.PubKey, payload, sig.Signature[:])
		signedWeight += val.Weight
	}

	if ok, _ := batch.Verify(nil); !ok {
		for _, sig := range sigs {
			val := vals.Validators[sig.ValidatorIndex]
			if !ed25519.Verify(val.PubKey, payload, sig.Signature[:]) {
				return ErrInvalidSignature{ValidatorIndex: sig.ValidatorIndex, Reason: "verification failed"}
			}
		}
		return ErrInvalidSignature{ValidatorIndex: 0, Reason: "batch verification failed"}
	}

	// quorum: signedWeight * 3 > TotalWeight * 2
	if signedWeight*3 <= vals.TotalWeight*2 {
		return ErrNotEnoughSignedWeight{Got: signedWeight, Needed: vals.TotalWeight * 2 / 3}
	}
	return nil
}
