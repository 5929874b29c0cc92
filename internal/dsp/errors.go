package dsp

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned for caller errors: empty or mismatched buffers,
// non-positive lags, out-of-range shift amounts or malformed bands. It never
// signals a transient condition, so callers should fix the input rather than
// retry.
var ErrInvalidInput = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
