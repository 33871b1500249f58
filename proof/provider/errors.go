package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResponse is returned if the provider doesn't respond to the
	// request in a given time. The request may be retried.
	ErrNoResponse = errors.New("provider failed to respond")

	// ErrNotSynced is returned when the provider has not yet synced the
	// requested block range. The request may be retried.
	ErrNotSynced = errors.New("provider is not synced to the requested range")
)

// ErrBadBlock is returned when a provider returns a block that fails
// validation; the provider cannot be trusted to retry.
type ErrBadBlock struct {
	Reason error
}

func (e ErrBadBlock) Error() string {
	return fmt.Sprintf("provider returned a bad block: %s", e.Reason.Error())
}

func (e ErrBadBlock) Unwrap() error { return e.Reason }

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNoResponse) || errors.Is(err, ErrNotSynced)
}
