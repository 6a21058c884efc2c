package screen

import "errors"

// Error kinds returned by the surface and the converter. Every error
// produced by this package wraps exactly one of them.
var (
	// ErrConfiguration reports a non-positive or unallocatable surface geometry
	ErrConfiguration = errors.New("invalid surface configuration")

	// ErrSizeMismatch reports a pixel buffer whose length does not match its dimensions
	ErrSizeMismatch = errors.New("invalid data size")

	// ErrOutOfRange reports a block coordinate outside the block grid
	ErrOutOfRange = errors.New("block out of range")
)
