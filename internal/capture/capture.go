package capture

import (
	"image"
)

// Capturer defines the interface for screen capture backends. Captured
// images are RGBA, the surface's display pixel format.
type Capturer interface {
	// Start initializes the capturer and any required resources
	Start() error

	// Stop releases resources
	Stop() error

	// Name returns a human-readable name for this capturer
	Name() string

	// IsAvailable checks if this capturer can be used in the current environment
	IsAvailable() bool

	// Bounds returns the capturable area, with its minimum at the origin
	Bounds() image.Rectangle

	// CaptureRegion captures a region of the screen. The returned image's
	// bounds start at (0, 0).
	CaptureRegion(x, y, width, height int) (*image.RGBA, error)
}
