package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no transaction matches the requested
	// address and logical time.
	ErrNotFound = errors.New("transaction not found")

	// ErrAmbiguous is returned when a transaction hash is required for
	// disambiguation but is missing or does not match the located entry.
	ErrAmbiguous = errors.New("transaction hash missing or mismatched")

	// ErrChainTooLong is returned when continuing the proof chain would
	// exceed the configured maximum hop count.
	ErrChainTooLong = errors.New("proof chain exceeds the hop limit")

	// ErrUpstreamUnavailable is returned when the block data source fails
	// transiently; callers may retry.
	ErrUpstreamUnavailable = errors.New("block data source unavailable")
)

// ErrNotEnoughSignedWeight is returned when an anchor's signature set falls
// short of the two-thirds quorum.
type ErrNotEnoughSignedWeight struct {
	Got    uint64
	Needed uint64
}

func (e ErrNotEnoughSignedWeight) Error() string {
	return fmt.Sprintf("invalid signatures: signed weight %d, need more than %d", e.Got, e.Needed)
}

// ErrInvalidSignature is returned when a block signature fails ed25519
// verification or references an unknown validator.
type ErrInvalidSignature struct {
	ValidatorIndex uint16
	Reason         string
}

func (e ErrInvalidSignature) Error() string {
	return fmt.Sprintf("invalid signature from validator %d: %s", e.ValidatorIndex, e.Reason)
}

// IsInvalidSignatures reports whether err is a signature or quorum failure.
func IsInvalidSignatures(err error) bool {
	var quorum ErrNotEnoughSignedWeight
	var sig ErrInvalidSignature
	return errors.As(err, &quorum) || errors.As(err, &sig)
}
