package bmff

import "errors"

// Errors returned by the bmff package.
var (
	// ErrMalformedBox is returned when a declared box size exceeds the
	// remaining bytes in its enclosing range.
	ErrMalformedBox = errors.New("bmff: malformed box")

	// ErrTruncatedBox is returned when fewer than 8 bytes remain where a
	// box header was expected.
	ErrTruncatedBox = errors.New("bmff: truncated box")

	// ErrUnknownContainer is returned in strict mode when a box type that
	// is neither a recognised container nor a known leaf type is
	// encountered.
	ErrUnknownContainer = errors.New("bmff: unknown container box")
)
