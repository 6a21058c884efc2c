package capture

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
)

// ReplayCapturer plays back a fixed list of frames. Each capture returns the
// next frame and the last frame repeats once the list is exhausted.
type ReplayCapturer struct {
	name   string
	frames []*image.RGBA
	served int
	mu     sync.Mutex
}

// NewReplayCapturer creates a capturer over in-memory frames. Frames smaller
// than the first one are padded with transparent black when captured.
func NewReplayCapturer(frames ...*image.RGBA) *ReplayCapturer {
	return &ReplayCapturer{name: "Replay", frames: frames}
}

// NewFileCapturer loads PNG or JPEG images to replay
func NewFileCapturer(paths []string) (*ReplayCapturer, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image files given")
	}
	frames := make([]*image.RGBA, 0, len(paths))
	for _, p := range paths {
		img, err := LoadImage(p)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	c := NewReplayCapturer(frames...)
	c.name = "File"
	return c, nil
}

// LoadImage decodes an image file into an RGBA image anchored at the origin
func LoadImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return ToRGBA(src), nil
}

// ToRGBA copies img into a new RGBA image whose bounds start at (0, 0)
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Start fails when there is nothing to replay
func (c *ReplayCapturer) Start() error {
	if len(c.frames) == 0 {
		return fmt.Errorf("no frames to replay")
	}
	return nil
}

// Stop is a no-op
func (c *ReplayCapturer) Stop() error {
	return nil
}

// Name returns the capturer name
func (c *ReplayCapturer) Name() string {
	return c.name
}

// IsAvailable reports whether there are frames to replay
func (c *ReplayCapturer) IsAvailable() bool {
	return len(c.frames) > 0
}

// Bounds returns the first frame's size
func (c *ReplayCapturer) Bounds() image.Rectangle {
	if len(c.frames) == 0 {
		return image.Rectangle{}
	}
	b := c.frames[0].Bounds()
	return image.Rect(0, 0, b.Dx(), b.Dy())
}

// CaptureRegion returns a region of the next frame
func (c *ReplayCapturer) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.frames) == 0 {
		return nil, fmt.Errorf("no frames to replay")
	}
	frame := c.frames[min(c.served, len(c.frames)-1)]
	c.served++

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	fb := frame.Bounds()
	draw.Draw(out, out.Bounds(), frame, fb.Min.Add(image.Pt(x, y)), draw.Src)
	return out, nil
}

// Remaining returns how many frames have not been captured yet
func (c *ReplayCapturer) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(0, len(c.frames)-c.served)
}
