package cell

import (
	"errors"
	"fmt"
)

// FormatError reports a malformed cell or BOC container. Decoding and cell
// construction never return partial results together with a FormatError.
type FormatError struct {
	msg string
}

func (e *FormatError) Error() string { return "format error: " + e.msg }

// FormatErrorf builds a FormatError from a format string.
func FormatErrorf(format string, args ...interface{}) error {
	return &FormatError{msg: fmt.Sprintf(format, args...)}
}

// IsFormatError reports whether err wraps a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
