package overlay

import (
	"image"
	"image/color"
	"sync"
)

// GridWidget outlines the blocks sent in the most recent frame. Key frames
// are outlined in a second color so they stand out from delta frames.
type GridWidget struct {
	*BaseWidget
	mu        sync.Mutex
	blockSize int
	blocks    []image.Point
	key       bool
	color     color.RGBA
	keyColor  color.RGBA
}

// NewGridWidget creates a block outline widget from its config
func NewGridWidget(id string, config map[string]interface{}) (*GridWidget, error) {
	w := &GridWidget{
		BaseWidget: NewBaseWidget(id, 0, 0, 0.8),
		color:      color.RGBA{255, 64, 64, 255},
		keyColor:   color.RGBA{64, 160, 255, 255},
	}
	if err := w.UpdateConfig(config); err != nil {
		return nil, err
	}
	return w, nil
}

// Type returns the widget type
func (w *GridWidget) Type() string {
	return "grid"
}

// Mark replaces the outlined blocks. Block positions are in block units
// relative to the canvas origin.
func (w *GridWidget) Mark(blockSize int, blocks []image.Point, key bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blockSize = blockSize
	w.blocks = append(w.blocks[:0], blocks...)
	w.key = key
}

// Marked returns how many blocks are currently outlined
func (w *GridWidget) Marked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.blocks)
}

// Render outlines every marked block
func (w *GridWidget) Render(img *image.RGBA) error {
	if !w.IsEnabled() {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	c := w.color
	if w.key {
		c = w.keyColor
	}
	bs := w.blockSize
	for _, b := range w.blocks {
		StrokeRectangle(img, w.x+b.X*bs, w.y+b.Y*bs, bs, bs, c, w.opacity)
	}
	return nil
}

// GetConfig returns the widget configuration
func (w *GridWidget) GetConfig() map[string]interface{} {
	config := w.baseConfig(w.Type())
	config["color"] = colorConfig(w.color)
	config["key_color"] = colorConfig(w.keyColor)
	return config
}

// UpdateConfig updates the widget configuration
func (w *GridWidget) UpdateConfig(config map[string]interface{}) error {
	w.updateBase(config)
	if c, ok := getColor(config["color"]); ok {
		w.color = c
	}
	if c, ok := getColor(config["key_color"]); ok {
		w.keyColor = c
	}
	return nil
}
