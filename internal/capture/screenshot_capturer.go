package capture

import (
	"fmt"
	"image"

	"github.com/bryanchriswhite/blockcast/internal/logger"
	"github.com/kbinani/screenshot"
)

// ScreenshotCapturer captures one monitor through the platform screenshot API
type ScreenshotCapturer struct {
	display int
	bounds  image.Rectangle
}

// NewScreenshotCapturer creates a capturer for the given monitor index
func NewScreenshotCapturer(display int) *ScreenshotCapturer {
	return &ScreenshotCapturer{display: display}
}

// Start resolves the monitor bounds
func (c *ScreenshotCapturer) Start() error {
	total := screenshot.NumActiveDisplays()
	if total == 0 {
		return fmt.Errorf("no active displays")
	}
	if c.display < 0 || c.display >= total {
		return fmt.Errorf("display %d out of range (%d active)", c.display, total)
	}
	c.bounds = screenshot.GetDisplayBounds(c.display)

	logger.WithComponent("screenshot-capturer").Info().
		Int("display", c.display).
		Int("displays", total).
		Str("bounds", c.bounds.String()).
		Msg("Screenshot capturer started")
	return nil
}

// Stop is a no-op
func (c *ScreenshotCapturer) Stop() error {
	return nil
}

// Name returns the capturer name
func (c *ScreenshotCapturer) Name() string {
	return "Screenshot"
}

// IsAvailable reports whether any display is active
func (c *ScreenshotCapturer) IsAvailable() bool {
	return screenshot.NumActiveDisplays() > 0
}

// Bounds returns the monitor size
func (c *ScreenshotCapturer) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.bounds.Dx(), c.bounds.Dy())
}

// CaptureRegion captures a region relative to the monitor's top left corner
func (c *ScreenshotCapturer) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
	r := image.Rect(x, y, x+width, y+height).Add(c.bounds.Min)
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return nil, fmt.Errorf("failed to capture %v: %w", r, err)
	}
	return img, nil
}
