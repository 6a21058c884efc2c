package output

import (
	"github.com/bryanchriswhite/blockcast/internal/config"
	"github.com/bryanchriswhite/blockcast/internal/session"
)

// Output consumes the frames a session produces. Implementations can render
// a preview, write a recording, or forward blocks elsewhere.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame hands one session frame to the output
	WriteFrame(frame *session.Frame) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds the preview settings
type Config struct {
	Quality  int
	Scale    float64
	Grid     bool
	Overlays []config.OverlayConfig
}

// ConfigFromPreview converts the preview section of the configuration
func ConfigFromPreview(p config.PreviewConfig) Config {
	return Config{Quality: p.Quality, Scale: p.Scale, Grid: p.Grid, Overlays: p.Overlays}
}
