package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Widget is something drawn over the preview canvas
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto img
	Render(img *image.RGBA) error

	GetConfig() map[string]interface{}
	UpdateConfig(config map[string]interface{}) error

	IsEnabled() bool
	SetEnabled(enabled bool)
}

// BaseWidget holds the fields every widget shares
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates an enabled base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{id: id, enabled: true, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// SetOpacity sets the widget's opacity, clamped to [0, 1]
func (w *BaseWidget) SetOpacity(opacity float64) {
	w.opacity = min(max(opacity, 0), 1)
}

// baseConfig returns the shared fields in widget config form
func (w *BaseWidget) baseConfig(widgetType string) map[string]interface{} {
	return map[string]interface{}{
		"id":      w.id,
		"type":    widgetType,
		"enabled": w.enabled,
		"x":       w.x,
		"y":       w.y,
		"opacity": w.opacity,
	}
}

// updateBase applies the shared fields of a widget config
func (w *BaseWidget) updateBase(config map[string]interface{}) {
	if x, ok := getInt(config["x"]); ok {
		w.x = x
	}
	if y, ok := getInt(config["y"]); ok {
		w.y = y
	}
	if opacity, ok := getFloat(config["opacity"]); ok {
		w.SetOpacity(opacity)
	}
	if enabled, ok := config["enabled"].(bool); ok {
		w.SetEnabled(enabled)
	}
}

// opacityMask is a uniform mask scaling source alpha by opacity
func opacityMask(opacity float64) image.Image {
	return image.NewUniform(color.Alpha{A: uint8(min(max(opacity, 0), 1)*255 + 0.5)})
}

// BlendImage composites src over dst with its top left corner at (x, y),
// scaling the source alpha by opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}
	sb := src.Bounds()
	r := image.Rectangle{Min: image.Pt(x, y), Max: image.Pt(x+sb.Dx(), y+sb.Dy())}
	draw.DrawMask(dst, r, src, sb.Min, opacityMask(opacity), image.Point{}, draw.Over)
}

// DrawRectangle fills a rectangle with c at the given opacity
func DrawRectangle(dst *image.RGBA, x, y, width, height int, c color.Color, opacity float64) {
	if opacity <= 0 {
		return
	}
	r := image.Rect(x, y, x+width, y+height)
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, opacityMask(opacity), image.Point{}, draw.Over)
}

// StrokeRectangle draws a one pixel outline of a rectangle
func StrokeRectangle(dst *image.RGBA, x, y, width, height int, c color.Color, opacity float64) {
	if width <= 0 || height <= 0 {
		return
	}
	DrawRectangle(dst, x, y, width, 1, c, opacity)
	if height == 1 {
		return
	}
	DrawRectangle(dst, x, y+height-1, width, 1, c, opacity)
	if height > 2 {
		DrawRectangle(dst, x, y+1, 1, height-2, c, opacity)
		DrawRectangle(dst, x+width-1, y+1, 1, height-2, c, opacity)
	}
}

// getInt extracts an integer from a decoded config value
func getInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case uint8:
		return int(val), true
	case float64:
		return int(val), true
	default:
		return 0, false
	}
}

func getFloat(v interface{}) (float64, bool) {
	if f, ok := v.(float64); ok {
		return f, true
	}
	n, ok := getInt(v)
	return float64(n), ok
}

// getColor parses a {r, g, b, a} config object
func getColor(v interface{}) (color.RGBA, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return color.RGBA{}, false
	}
	channel := func(key string) uint8 {
		n, _ := getInt(m[key])
		return uint8(n)
	}
	return color.RGBA{R: channel("r"), G: channel("g"), B: channel("b"), A: channel("a")}, true
}

func colorConfig(c color.RGBA) map[string]interface{} {
	return map[string]interface{}{"r": c.R, "g": c.G, "b": c.B, "a": c.A}
}
