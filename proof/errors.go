package proof

import (
	"errors"
	"fmt"

	"github.com/proofchain/proofapi/cell"
	"github.com/proofchain/proofapi/types"
)

// BuildError carries the fingerprint and the hop index at which a proof
// build failed. It never exposes storage paths or upstream addresses.
type BuildError struct {
	Fingerprint types.Fingerprint
	Hop         int
	Err         error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("proof build %s failed at hop %d: %s", e.Fingerprint, e.Hop, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// FailureKind maps an error to its taxonomy label, used for metrics and
// logs.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return "notFound"
	case errors.Is(err, types.ErrAmbiguous):
		return "ambiguous"
	case errors.Is(err, types.ErrChainTooLong):
		return "chainTooLong"
	case errors.Is(err, types.ErrUpstreamUnavailable):
		return "upstreamUnavailable"
	case types.IsInvalidSignatures(err):
		return "invalidSignatures"
	case cell.IsFormatError(err):
		return "format"
	default:
		return "internal"
	}
}
