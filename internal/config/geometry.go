package config

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	sizePattern = regexp.MustCompile(`^(\d+)x(\d+)$`)
	clipPattern = regexp.MustCompile(`^(\d+)x(\d+)([-+])(\d+)([-+])(\d+)$`)
)

// Size is a width and height in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ParseSize parses a "WxH" size spec
func ParseSize(s string) (Size, error) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return Size{}, fmt.Errorf("invalid size spec: %q", s)
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("invalid size spec: %q", s)
	}
	return Size{Width: w, Height: h}, nil
}

// Clip selects a rectangle of the captured screen. FromRight and FromBottom
// measure X and Y from the right and bottom edges instead of the left and top.
type Clip struct {
	Size
	X          int  `json:"x"`
	Y          int  `json:"y"`
	FromRight  bool `json:"from_right"`
	FromBottom bool `json:"from_bottom"`
}

// ParseClip parses a "WxH+X+Y" clip spec, where either sign may be '-' to
// anchor that offset to the opposite edge
func ParseClip(s string) (Clip, error) {
	m := clipPattern.FindStringSubmatch(s)
	if m == nil {
		return Clip{}, fmt.Errorf("invalid clipping spec: %q", s)
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	x, _ := strconv.Atoi(m[4])
	y, _ := strconv.Atoi(m[6])
	if w <= 0 || h <= 0 {
		return Clip{}, fmt.Errorf("invalid clipping spec: %q", s)
	}
	return Clip{
		Size:       Size{Width: w, Height: h},
		X:          x,
		Y:          y,
		FromRight:  m[3] == "-",
		FromBottom: m[5] == "-",
	}, nil
}

// Resolve returns the clip's top left corner on a screenW x screenH screen
func (c Clip) Resolve(screenW, screenH int) (x, y int) {
	x, y = c.X, c.Y
	if c.FromRight {
		x = screenW - c.Width - c.X
	}
	if c.FromBottom {
		y = screenH - c.Height - c.Y
	}
	return x, y
}

// String formats the clip back into its spec form
func (c Clip) String() string {
	xs, ys := "+", "+"
	if c.FromRight {
		xs = "-"
	}
	if c.FromBottom {
		ys = "-"
	}
	return fmt.Sprintf("%dx%d%s%d%s%d", c.Width, c.Height, xs, c.X, ys, c.Y)
}
