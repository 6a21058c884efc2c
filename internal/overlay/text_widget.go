package overlay

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextWidget draws a text label, optionally on a filled background
type TextWidget struct {
	*BaseWidget
	text      string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

// NewTextWidget creates a text widget from its config
func NewTextWidget(id string, config map[string]interface{}) (*TextWidget, error) {
	w := &TextWidget{
		BaseWidget: NewBaseWidget(id, 0, 0, 1.0),
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    4,
	}
	if err := w.UpdateConfig(config); err != nil {
		return nil, err
	}
	return w, nil
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// Size returns the rendered size of the label including padding
func (w *TextWidget) Size() (int, int) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, w.text).Ceil()
	return width + w.padding*2, face.Metrics().Height.Ceil() + w.padding*2
}

// Render draws the label with its top left corner at the widget position
func (w *TextWidget) Render(img *image.RGBA) error {
	if !w.IsEnabled() || w.text == "" {
		return nil
	}

	face := basicfont.Face7x13
	width, height := w.Size()
	label := image.NewRGBA(image.Rect(0, 0, width, height))
	if w.bgColor != nil {
		DrawRectangle(label, 0, 0, width, height, *w.bgColor, 1)
	}

	d := &font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.P(w.padding, w.padding+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(w.text)

	BlendImage(img, label, w.x, w.y, w.opacity)
	return nil
}

// GetConfig returns the widget configuration
func (w *TextWidget) GetConfig() map[string]interface{} {
	config := w.baseConfig(w.Type())
	config["text"] = w.text
	config["padding"] = w.padding
	config["color"] = colorConfig(w.textColor)
	if w.bgColor != nil {
		config["background"] = colorConfig(*w.bgColor)
	}
	return config
}

// UpdateConfig updates the widget configuration
func (w *TextWidget) UpdateConfig(config map[string]interface{}) error {
	w.updateBase(config)
	if text, ok := config["text"].(string); ok {
		w.text = text
	}
	if padding, ok := getInt(config["padding"]); ok {
		if padding < 0 {
			return fmt.Errorf("invalid padding %d", padding)
		}
		w.padding = padding
	}
	if c, ok := getColor(config["color"]); ok {
		w.textColor = c
	}
	if c, ok := getColor(config["background"]); ok {
		w.bgColor = &c
	}
	return nil
}

// SetText updates the text content
func (w *TextWidget) SetText(text string) {
	w.text = text
}
