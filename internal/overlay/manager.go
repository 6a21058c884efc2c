package overlay

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/bryanchriswhite/blockcast/internal/config"
	"github.com/bryanchriswhite/blockcast/internal/logger"
)

var (
	ErrWidgetExists   = errors.New("overlay widget already exists")
	ErrWidgetNotFound = errors.New("overlay widget not found")
	ErrUnknownType    = errors.New("unknown overlay widget type")
)

// Manager holds the overlay widgets drawn on the preview
type Manager struct {
	widgets map[string]Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates an empty, enabled overlay manager
func NewManager() *Manager {
	return &Manager{
		widgets: make(map[string]Widget),
		enabled: true,
	}
}

// NewWidget builds a widget from its configuration entry
func NewWidget(spec config.OverlayConfig) (Widget, error) {
	var (
		w   Widget
		err error
	)
	switch spec.Type {
	case "text":
		w, err = NewTextWidget(spec.ID, spec.Settings)
	case "grid":
		w, err = NewGridWidget(spec.ID, spec.Settings)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("widget %s: %w", spec.ID, err)
	}
	return w, nil
}

// Spec returns the configuration entry that recreates w
func Spec(w Widget) config.OverlayConfig {
	settings := w.GetConfig()
	delete(settings, "id")
	delete(settings, "type")
	return config.OverlayConfig{ID: w.ID(), Type: w.Type(), Settings: settings}
}

// AddWidget adds a widget to the overlay
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.widgets[widget.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrWidgetExists, widget.ID())
	}
	m.widgets[widget.ID()] = widget
	logger.WithComponent("overlay").Debug().Str("id", widget.ID()).Str("type", widget.Type()).Msg("Added widget")
	return nil
}

// Load builds and adds a widget for every entry
func (m *Manager) Load(specs []config.OverlayConfig) error {
	for _, spec := range specs {
		w, err := NewWidget(spec)
		if err != nil {
			return err
		}
		if err := m.AddWidget(w); err != nil {
			return err
		}
	}
	return nil
}

// Replace swaps every widget for the ones described by specs. Nothing
// changes if any entry fails to build.
func (m *Manager) Replace(specs []config.OverlayConfig) error {
	widgets := make(map[string]Widget, len(specs))
	for _, spec := range specs {
		if _, dup := widgets[spec.ID]; dup {
			return fmt.Errorf("%w: %s", ErrWidgetExists, spec.ID)
		}
		w, err := NewWidget(spec)
		if err != nil {
			return err
		}
		widgets[spec.ID] = w
	}

	m.mu.Lock()
	m.widgets = widgets
	m.mu.Unlock()
	logger.WithComponent("overlay").Info().Int("widgets", len(widgets)).Msg("Replaced widgets")
	return nil
}

// RemoveWidget removes a widget from the overlay
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.widgets[id]; !exists {
		return fmt.Errorf("%w: %s", ErrWidgetNotFound, id)
	}
	delete(m.widgets, id)
	logger.WithComponent("overlay").Debug().Str("id", id).Msg("Removed widget")
	return nil
}

// GetAllWidgets returns all widgets ordered by ID
func (m *Manager) GetAllWidgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

func (m *Manager) sortedLocked() []Widget {
	widgets := make([]Widget, 0, len(m.widgets))
	for _, w := range m.widgets {
		widgets = append(widgets, w)
	}
	sort.Slice(widgets, func(i, j int) bool { return widgets[i].ID() < widgets[j].ID() })
	return widgets
}

// UpdateWidget applies settings to one widget and returns its new entry.
// It waits for any render in progress.
func (m *Manager) UpdateWidget(id string, settings map[string]interface{}) (config.OverlayConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.widgets[id]
	if !ok {
		return config.OverlayConfig{}, fmt.Errorf("%w: %s", ErrWidgetNotFound, id)
	}
	if err := w.UpdateConfig(settings); err != nil {
		return config.OverlayConfig{}, fmt.Errorf("widget %s: %w", id, err)
	}
	return Spec(w), nil
}

// Specs returns the entries of every widget, ordered by ID
func (m *Manager) Specs() []config.OverlayConfig {
	widgets := m.GetAllWidgets()
	specs := make([]config.OverlayConfig, 0, len(widgets))
	for _, w := range widgets {
		specs = append(specs, Spec(w))
	}
	return specs
}

// SetEnabled turns the whole overlay on or off
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled reports whether the overlay is drawn at all
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws every enabled widget onto img in ID order
func (m *Manager) Render(img *image.RGBA) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.enabled {
		return nil
	}
	for _, w := range m.sortedLocked() {
		if !w.IsEnabled() {
			continue
		}
		if err := w.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("id", w.ID()).Msg("Failed to render widget")
		}
	}
	return nil
}
