package session

import (
	"image"

	"github.com/bryanchriswhite/blockcast/internal/screen"
)

// panner moves a window of blocks over the block grid so that it follows
// recent changes. Rectangles are in block units.
type panner struct {
	window  image.Point // window size
	grid    image.Point // grid size
	speed   int         // number of recent change boxes averaged
	history []image.Rectangle
}

// bounds returns the smallest rectangle containing every block.
func bounds(blocks []screen.BlockCoord) image.Rectangle {
	r := image.Rect(blocks[0].Col, blocks[0].Row, blocks[0].Col+1, blocks[0].Row+1)
	for _, b := range blocks[1:] {
		r.Min.X = min(r.Min.X, b.Col)
		r.Min.Y = min(r.Min.Y, b.Row)
		r.Max.X = max(r.Max.X, b.Col+1)
		r.Max.Y = max(r.Max.Y, b.Row+1)
	}
	return r
}

// next returns the window position for a frame whose dirty blocks are
// changes, given the current position pos. Frames without changes repeat the
// previous change box so the window keeps drifting toward it.
func (p *panner) next(pos image.Point, changes []screen.BlockCoord) image.Point {
	switch {
	case len(changes) > 0:
		p.history = append(p.history, bounds(changes))
	case len(p.history) > 0:
		p.history = append(p.history, p.history[len(p.history)-1])
	default:
		return pos
	}
	if speed := max(p.speed, 1); len(p.history) > speed {
		p.history = p.history[len(p.history)-speed:]
	}

	var sum image.Rectangle
	for _, r := range p.history {
		sum.Min = sum.Min.Add(r.Min)
		sum.Max = sum.Max.Add(r.Max)
	}
	n := len(p.history)
	c := image.Rect(sum.Min.X/n, sum.Min.Y/n, sum.Max.X/n, sum.Max.Y/n)

	pos.X = follow(pos.X, c.Min.X, c.Max.X, p.window.X, p.grid.X)
	pos.Y = follow(pos.Y, c.Min.Y, c.Max.Y, p.window.Y, p.grid.Y)
	return pos
}

// follow moves a window of length size starting at pos along one axis so it
// covers [lo, hi), centering on the span when it does not fit, and keeps the
// window inside [0, limit).
func follow(pos, lo, hi, size, limit int) int {
	switch {
	case size < hi-lo:
		pos = min(max(0, (lo+hi-size)/2), limit-size)
	case lo < pos:
		pos = lo
	case pos < hi-size:
		pos = hi - size
	}
	return pos
}
