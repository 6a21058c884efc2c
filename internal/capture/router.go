package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/blockcast/internal/config"
	"github.com/bryanchriswhite/blockcast/internal/logger"
)

// autoOrder is the order backends are tried in for the "auto" backend
var autoOrder = []string{config.BackendX11, config.BackendScreenshot}

// Router selects a capture backend from the configuration and forwards
// captures to it
type Router struct {
	cfg     config.CaptureConfig
	open    func(backend string) (Capturer, error)
	active  Capturer
	mu      sync.RWMutex
	started bool
}

// NewRouter creates a capture router for the given configuration
func NewRouter(cfg config.CaptureConfig) *Router {
	r := &Router{cfg: cfg}
	r.open = r.openBackend
	return r
}

// openBackend constructs, but does not start, the named backend
func (r *Router) openBackend(backend string) (Capturer, error) {
	switch backend {
	case config.BackendX11:
		return NewX11Capturer()
	case config.BackendScreenshot:
		return NewScreenshotCapturer(r.cfg.Display), nil
	case config.BackendFile:
		return NewFileCapturer(r.cfg.Files)
	default:
		return nil, fmt.Errorf("unknown capture backend %q", backend)
	}
}

// Start initializes the configured backend, or the first available one
// when the backend is "auto"
func (r *Router) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	log := logger.WithComponent("capture-router")

	candidates := []string{r.cfg.Backend}
	if r.cfg.Backend == config.BackendAuto || r.cfg.Backend == "" {
		candidates = autoOrder
	}

	var lastErr error
	for _, name := range candidates {
		c, err := r.open(name)
		if err != nil {
			log.Warn().Err(err).Str("backend", name).Msg("Capture backend not available")
			lastErr = err
			continue
		}
		if err := c.Start(); err != nil {
			log.Warn().Err(err).Str("backend", name).Msg("Failed to start capture backend")
			c.Stop()
			lastErr = err
			continue
		}
		r.active = c
		r.started = true
		log.Info().Str("backend", c.Name()).Str("bounds", c.Bounds().String()).Msg("Capture backend initialized")
		return nil
	}

	return fmt.Errorf("no capture backends available: %w", lastErr)
}

// Stop stops the active backend
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.active != nil {
		err = r.active.Stop()
		r.active = nil
	}
	r.started = false
	return err
}

// Name returns the active backend's name
func (r *Router) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return "none"
	}
	return r.active.Name()
}

// IsAvailable reports whether a backend is running
func (r *Router) IsAvailable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active != nil && r.active.IsAvailable()
}

// Bounds returns the active backend's capturable area
func (r *Router) Bounds() image.Rectangle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return image.Rectangle{}
	}
	return r.active.Bounds()
}

// CaptureRegion captures a region with the active backend
func (r *Router) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
	r.mu.RLock()
	c := r.active
	r.mu.RUnlock()

	if c == nil {
		return nil, fmt.Errorf("no capturer available for region capture")
	}
	return c.CaptureRegion(x, y, width, height)
}
