package screen

import "fmt"

// ToDisplay converts a width x height encoder-format buffer into a newly
// allocated display-format buffer. Rows are flipped vertically, channels are
// reordered from blue, green, red to red, green, blue, and alpha is set to 0.
func ToDisplay(width, height int, data []byte) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image %dx%d", ErrSizeMismatch, width, height)
	}
	if len(data) != width*height*EncoderPixelSize {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d pixels, want %d", ErrSizeMismatch, len(data), width, height, width*height*EncoderPixelSize)
	}

	out := make([]byte, width*height*DisplayPixelSize)
	for y := 0; y < height; y++ {
		src := data[y*width*EncoderPixelSize:]
		dst := out[(height-1-y)*width*DisplayPixelSize:]
		for x := 0; x < width; x++ {
			decodePixel(dst[x*DisplayPixelSize:], src[x*EncoderPixelSize:])
		}
	}
	return out, nil
}

// FromDisplay is the inverse of ToDisplay: it drops alpha, reorders channels
// to blue, green, red and flips rows to bottom-to-top order.
func FromDisplay(width, height int, data []byte) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image %dx%d", ErrSizeMismatch, width, height)
	}
	if len(data) != width*height*DisplayPixelSize {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d pixels, want %d", ErrSizeMismatch, len(data), width, height, width*height*DisplayPixelSize)
	}

	out := make([]byte, width*height*EncoderPixelSize)
	for y := 0; y < height; y++ {
		src := data[y*width*DisplayPixelSize:]
		dst := out[(height-1-y)*width*EncoderPixelSize:]
		for x := 0; x < width; x++ {
			encodePixel(dst[x*EncoderPixelSize:], src[x*DisplayPixelSize:])
		}
	}
	return out, nil
}
