package screen

import (
	"bytes"
	"fmt"
	"image"
)

// maxPixels caps the surface area so the backing buffer size always fits an int.
const maxPixels = 1 << 28

// BlockCoord addresses one block of a surface by column and row.
type BlockCoord struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Surface is a display-format pixel buffer split into square blocks, with a
// dirty flag per block recording whether its pixels changed since the last
// Reset.
//
// A Surface is not safe for concurrent use. Callers sharing one across
// goroutines must serialize Update, Changed, Get and Reset themselves.
type Surface struct {
	blockSize   int
	blockWidth  int
	blockHeight int
	pixelWidth  int
	pixelHeight int

	// pixels holds pixelWidth*pixelHeight display pixels, row-major, top row first
	pixels []byte

	// dirty holds one flag per block, indexed [row*blockWidth+col]
	dirty []bool

	// scratch receives one encoded block during Get
	scratch []byte
}

// New creates a surface of blockWidth x blockHeight blocks of blockSize
// pixels each. All pixels start zeroed and every block starts dirty.
func New(blockSize, blockWidth, blockHeight int) (*Surface, error) {
	if blockSize <= 0 || blockWidth <= 0 || blockHeight <= 0 {
		return nil, fmt.Errorf("%w: block size %d, grid %dx%d", ErrConfiguration, blockSize, blockWidth, blockHeight)
	}
	if blockWidth > maxPixels/blockSize || blockHeight > maxPixels/blockSize {
		return nil, fmt.Errorf("%w: grid %dx%d of %d pixel blocks is too large", ErrConfiguration, blockWidth, blockHeight, blockSize)
	}
	pixelWidth := blockWidth * blockSize
	pixelHeight := blockHeight * blockSize
	if pixelWidth > maxPixels/pixelHeight {
		return nil, fmt.Errorf("%w: %dx%d pixels is too large", ErrConfiguration, pixelWidth, pixelHeight)
	}

	s := &Surface{
		blockSize:   blockSize,
		blockWidth:  blockWidth,
		blockHeight: blockHeight,
		pixelWidth:  pixelWidth,
		pixelHeight: pixelHeight,
		pixels:      make([]byte, pixelWidth*pixelHeight*DisplayPixelSize),
		dirty:       make([]bool, blockWidth*blockHeight),
		scratch:     make([]byte, blockSize*blockSize*EncoderPixelSize),
	}
	for i := range s.dirty {
		s.dirty[i] = true
	}
	return s, nil
}

// BlockSize returns the edge length of a block in pixels
func (s *Surface) BlockSize() int { return s.blockSize }

// BlockWidth returns the number of block columns
func (s *Surface) BlockWidth() int { return s.blockWidth }

// BlockHeight returns the number of block rows
func (s *Surface) BlockHeight() int { return s.blockHeight }

// PixelWidth returns the surface width in pixels
func (s *Surface) PixelWidth() int { return s.pixelWidth }

// PixelHeight returns the surface height in pixels
func (s *Surface) PixelHeight() int { return s.pixelHeight }

// BlockBytes returns the length of an encoded block as returned by Get
func (s *Surface) BlockBytes() int { return len(s.scratch) }

// pixelOffset returns the byte offset of pixel (x, y) in pixels.
func (s *Surface) pixelOffset(x, y int) int {
	if x < 0 || x >= s.pixelWidth || y < 0 || y >= s.pixelHeight {
		panic(fmt.Sprintf("screen: pixel (%d,%d) outside %dx%d surface", x, y, s.pixelWidth, s.pixelHeight))
	}
	return (y*s.pixelWidth + x) * DisplayPixelSize
}

// blockIndex returns the index of block (col, row) in dirty.
func (s *Surface) blockIndex(col, row int) int {
	if col < 0 || col >= s.blockWidth || row < 0 || row >= s.blockHeight {
		panic(fmt.Sprintf("screen: block (%d,%d) outside %dx%d grid", col, row, s.blockWidth, s.blockHeight))
	}
	return row*s.blockWidth + col
}

// Update copies a width x height rectangle of display pixels with its top
// left corner at (x, y) into the surface. The rectangle may lie partly or
// entirely outside the surface; parts that do not land on a block are
// dropped. A block is marked dirty only when the bytes written to it differ
// from what it held before.
//
// Update returns the number of source rows that changed at least one block.
func (s *Surface) Update(x, y, width, height int, data []byte) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: rectangle %dx%d", ErrSizeMismatch, width, height)
	}
	stride := width * DisplayPixelSize
	if len(data) != stride*height {
		return 0, fmt.Errorf("%w: got %d bytes for %dx%d pixels, want %d", ErrSizeMismatch, len(data), width, height, stride*height)
	}

	// clip the block column range once, it is the same for every row
	bx0 := floorDiv(x, s.blockSize)
	bx1 := floorDiv(x+width-1, s.blockSize)
	if bx0 < 0 {
		bx0 = 0
	}
	if bx1 >= s.blockWidth {
		bx1 = s.blockWidth - 1
	}

	changes := 0
	for row := 0; row < height; row++ {
		py := y + row
		by := floorDiv(py, s.blockSize)
		if by < 0 || by >= s.blockHeight {
			continue
		}
		src := data[row*stride : (row+1)*stride]

		changed := false
		for bx := bx0; bx <= bx1; bx++ {
			lo := max(x, bx*s.blockSize)
			hi := min(x+width, (bx+1)*s.blockSize)
			n := (hi - lo) * DisplayPixelSize

			off := s.pixelOffset(lo, py)
			dst := s.pixels[off : off+n]
			in := src[(lo-x)*DisplayPixelSize : (lo-x)*DisplayPixelSize+n]
			if !bytes.Equal(dst, in) {
				s.dirty[s.blockIndex(bx, by)] = true
				changed = true
			}
			copy(dst, in)
		}
		if changed {
			changes++
		}
	}
	return changes, nil
}

// BlitImage copies img into the surface with img's bounds minimum placed at
// (x, y). It is Update fed from an image's rows.
func (s *Surface) BlitImage(x, y int, img *image.RGBA) (int, error) {
	b := img.Bounds()
	if b.Empty() {
		return 0, nil
	}
	w, h := b.Dx(), b.Dy()
	rowBytes := w * DisplayPixelSize

	var data []byte
	if img.Stride == rowBytes {
		start := img.PixOffset(b.Min.X, b.Min.Y)
		data = img.Pix[start : start+rowBytes*h]
	} else {
		data = make([]byte, 0, rowBytes*h)
		for yy := b.Min.Y; yy < b.Max.Y; yy++ {
			start := img.PixOffset(b.Min.X, yy)
			data = append(data, img.Pix[start:start+rowBytes]...)
		}
	}
	return s.Update(x, y, w, h, data)
}

// Changed lists the dirty blocks, bottom block row first and left to right
// within a row.
func (s *Surface) Changed() []BlockCoord {
	var blocks []BlockCoord
	for row := s.blockHeight - 1; row >= 0; row-- {
		for col := 0; col < s.blockWidth; col++ {
			if s.dirty[s.blockIndex(col, row)] {
				blocks = append(blocks, BlockCoord{Col: col, Row: row})
			}
		}
	}
	return blocks
}

// Dirty reports whether block (col, row) changed since the last Reset.
// Coordinates outside the grid report false.
func (s *Surface) Dirty(col, row int) bool {
	if col < 0 || col >= s.blockWidth || row < 0 || row >= s.blockHeight {
		return false
	}
	return s.dirty[s.blockIndex(col, row)]
}

// DirtyCount returns the number of dirty blocks.
func (s *Surface) DirtyCount() int {
	n := 0
	for _, d := range s.dirty {
		if d {
			n++
		}
	}
	return n
}

// Get returns block (col, row) in encoder format: blockSize*blockSize
// blue, green, red pixels with the block's bottom row first. The dirty flags
// are left untouched.
func (s *Surface) Get(col, row int) ([]byte, error) {
	if col < 0 || row < 0 || col >= s.blockWidth || row >= s.blockHeight {
		return nil, fmt.Errorf("%w: block (%d,%d) in %dx%d grid", ErrOutOfRange, col, row, s.blockWidth, s.blockHeight)
	}

	px := col * s.blockSize
	py := row * s.blockSize
	rowBytes := s.blockSize * EncoderPixelSize
	for dy := 0; dy < s.blockSize; dy++ {
		src := s.pixels[s.pixelOffset(px, py+dy):]
		dst := s.scratch[(s.blockSize-1-dy)*rowBytes:]
		for dx := 0; dx < s.blockSize; dx++ {
			encodePixel(dst[dx*EncoderPixelSize:], src[dx*DisplayPixelSize:])
		}
	}

	out := make([]byte, len(s.scratch))
	copy(out, s.scratch)
	return out, nil
}

// Reset marks every block clean.
func (s *Surface) Reset() {
	for i := range s.dirty {
		s.dirty[i] = false
	}
}
