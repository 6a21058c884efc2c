package screen

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"reflect"
	"strings"
	"testing"
)

// rgba concatenates display pixels given as r, g, b triples with alpha 0.
func rgba(px ...[3]byte) []byte {
	out := make([]byte, 0, len(px)*DisplayPixelSize)
	for _, p := range px {
		out = append(out, p[0], p[1], p[2], 0)
	}
	return out
}

func gray(v byte) [3]byte { return [3]byte{v, v, v} }

func mustSurface(t *testing.T, blockSize, w, h int) *Surface {
	t.Helper()
	s, err := New(blockSize, w, h)
	if err != nil {
		t.Fatalf("New(%d, %d, %d): %v", blockSize, w, h, err)
	}
	return s
}

func mustUpdate(t *testing.T, s *Surface, x, y, w, h int, data []byte, want int) {
	t.Helper()
	got, err := s.Update(x, y, w, h, data)
	if err != nil {
		t.Fatalf("Update(%d, %d, %d, %d): %v", x, y, w, h, err)
	}
	if got != want {
		t.Fatalf("Update(%d, %d, %d, %d) = %d changed rows, want %d", x, y, w, h, got, want)
	}
}

func mustGet(t *testing.T, s *Surface, col, row int) []byte {
	t.Helper()
	b, err := s.Get(col, row)
	if err != nil {
		t.Fatalf("Get(%d, %d): %v", col, row, err)
	}
	return b
}

func assertChanged(t *testing.T, s *Surface, want ...BlockCoord) {
	t.Helper()
	got := s.Changed()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Changed() = %v, want %v", got, want)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name                 string
		size, width, height  int
		wantErr              bool
		pixelWidth, pixelHgt int
	}{
		{name: "square", size: 2, width: 3, height: 3, pixelWidth: 6, pixelHgt: 6},
		{name: "wide", size: 16, width: 5, height: 2, pixelWidth: 80, pixelHgt: 32},
		{name: "single pixel blocks", size: 1, width: 7, height: 1, pixelWidth: 7, pixelHgt: 1},
		{name: "zero block size", size: 0, width: 3, height: 3, wantErr: true},
		{name: "negative width", size: 16, width: -1, height: 3, wantErr: true},
		{name: "zero height", size: 16, width: 3, height: 0, wantErr: true},
		{name: "too large", size: 1 << 16, width: 1 << 16, height: 1 << 16, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.size, tt.width, tt.height)
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("New() error = %v, want ErrConfiguration", err)
				}
				if s != nil {
					t.Fatalf("New() returned a surface alongside an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if s.PixelWidth() != tt.pixelWidth || s.PixelHeight() != tt.pixelHgt {
				t.Errorf("pixel size = %dx%d, want %dx%d", s.PixelWidth(), s.PixelHeight(), tt.pixelWidth, tt.pixelHgt)
			}
			if s.BlockSize() != tt.size || s.BlockWidth() != tt.width || s.BlockHeight() != tt.height {
				t.Errorf("geometry = %d %dx%d, want %d %dx%d", s.BlockSize(), s.BlockWidth(), s.BlockHeight(), tt.size, tt.width, tt.height)
			}
			if got, want := s.DirtyCount(), tt.width*tt.height; got != want {
				t.Errorf("DirtyCount() = %d, want %d", got, want)
			}
			if got, want := s.BlockBytes(), tt.size*tt.size*EncoderPixelSize; got != want {
				t.Errorf("BlockBytes() = %d, want %d", got, want)
			}
		})
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		a, b, want int
	}{
		{0, 16, 0},
		{15, 16, 0},
		{16, 16, 1},
		{-1, 16, -1},
		{-16, 16, -1},
		{-17, 16, -2},
		{-1, 2, -1},
		{-2, 2, -1},
		{-3, 2, -2},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBlockGrid(t *testing.T) {
	tests := []struct {
		w, h, size   int
		wantW, wantH int
	}{
		{640, 480, 32, 20, 15},
		{641, 481, 32, 21, 16},
		{1, 1, 16, 1, 1},
		{100, 100, 0, 0, 0},
	}
	for _, tt := range tests {
		gw, gh := BlockGrid(tt.w, tt.h, tt.size)
		if gw != tt.wantW || gh != tt.wantH {
			t.Errorf("BlockGrid(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.size, gw, gh, tt.wantW, tt.wantH)
		}
	}
}

// TestSurfaceSequence walks one surface through a series of blits covering
// partial overlaps, unchanged writes and negative origins.
func TestSurfaceSequence(t *testing.T) {
	zero := make([]byte, 12)
	s := mustSurface(t, 2, 3, 3)

	assertChanged(t, s,
		BlockCoord{0, 2}, BlockCoord{1, 2}, BlockCoord{2, 2},
		BlockCoord{0, 1}, BlockCoord{1, 1}, BlockCoord{2, 1},
		BlockCoord{0, 0}, BlockCoord{1, 0}, BlockCoord{2, 0},
	)
	for _, c := range s.Changed() {
		if got := mustGet(t, s, c.Col, c.Row); !bytes.Equal(got, zero) {
			t.Fatalf("Get(%d, %d) = %x, want zeros", c.Col, c.Row, got)
		}
	}

	s.Reset()
	assertChanged(t, s)

	mustUpdate(t, s, 0, 0, 1, 1, rgba([3]byte{0x11, 0x22, 0x33}), 1)
	assertChanged(t, s, BlockCoord{0, 0})
	want := []byte{0, 0, 0, 0, 0, 0, 0x33, 0x22, 0x11, 0, 0, 0}
	if got := mustGet(t, s, 0, 0); !bytes.Equal(got, want) {
		t.Fatalf("Get(0, 0) = %x, want %x", got, want)
	}

	// same content again: copied but no row reported changed
	mustUpdate(t, s, 0, 0, 1, 1, rgba([3]byte{0x11, 0x22, 0x33}), 0)
	assertChanged(t, s, BlockCoord{0, 0})

	mustUpdate(t, s, 1, 1, 1, 1, rgba([3]byte{0x44, 0x55, 0x66}), 1)
	assertChanged(t, s, BlockCoord{0, 0})
	want = []byte{0, 0, 0, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11, 0, 0, 0}
	if got := mustGet(t, s, 0, 0); !bytes.Equal(got, want) {
		t.Fatalf("Get(0, 0) = %x, want %x", got, want)
	}

	// the first pixel repeats what (1,1) already holds, so block (0,0) stays clean
	s.Reset()
	mustUpdate(t, s, 1, 1, 2, 2, rgba([3]byte{0x44, 0x55, 0x66}, gray(0x22), gray(0x33), gray(0x44)), 2)
	assertChanged(t, s, BlockCoord{0, 1}, BlockCoord{1, 1}, BlockCoord{1, 0})
	for _, tc := range []struct {
		col, row int
		want     []byte
	}{
		{0, 1, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0x33, 0x33, 0x33}},
		{1, 1, []byte{0, 0, 0, 0, 0, 0, 0x44, 0x44, 0x44, 0, 0, 0}},
		{1, 0, []byte{0x22, 0x22, 0x22, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
	} {
		if got := mustGet(t, s, tc.col, tc.row); !bytes.Equal(got, tc.want) {
			t.Fatalf("Get(%d, %d) = %x, want %x", tc.col, tc.row, got, tc.want)
		}
	}

	// a 3x2 rectangle straddling two blocks horizontally
	s.Reset()
	mustUpdate(t, s, 2, 2, 3, 2, rgba(gray(0xaa), gray(0xbb), gray(0xcc), gray(0xdd), gray(0xee), gray(0xff)), 2)
	assertChanged(t, s, BlockCoord{1, 1}, BlockCoord{2, 1})
	want = []byte{0xdd, 0xdd, 0xdd, 0xee, 0xee, 0xee, 0xaa, 0xaa, 0xaa, 0xbb, 0xbb, 0xbb}
	if got := mustGet(t, s, 1, 1); !bytes.Equal(got, want) {
		t.Fatalf("Get(1, 1) = %x, want %x", got, want)
	}
	want = []byte{0xff, 0xff, 0xff, 0, 0, 0, 0xcc, 0xcc, 0xcc, 0, 0, 0}
	if got := mustGet(t, s, 2, 1); !bytes.Equal(got, want) {
		t.Fatalf("Get(2, 1) = %x, want %x", got, want)
	}

	// rectangles hanging off the top left and bottom right corners
	s.Reset()
	mustUpdate(t, s, -1, -1, 2, 2, rgba(gray(0), gray(0), gray(0), gray(0)), 1)
	mustUpdate(t, s, 5, 5, 2, 2, rgba(gray(0x99), gray(0x99), gray(0x99), gray(0x99)), 1)
	assertChanged(t, s, BlockCoord{2, 2}, BlockCoord{0, 0})
	want = []byte{0, 0, 0, 0x99, 0x99, 0x99, 0, 0, 0, 0, 0, 0}
	if got := mustGet(t, s, 2, 2); !bytes.Equal(got, want) {
		t.Fatalf("Get(2, 2) = %x, want %x", got, want)
	}
	want = []byte{0, 0, 0, 0x66, 0x55, 0x44, 0, 0, 0, 0, 0, 0}
	if got := mustGet(t, s, 0, 0); !bytes.Equal(got, want) {
		t.Fatalf("Get(0, 0) = %x, want %x", got, want)
	}
}

func TestUpdateSizeMismatch(t *testing.T) {
	s := mustSurface(t, 2, 3, 3)
	s.Reset()
	before := make([][]byte, 0, 9)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			before = append(before, mustGet(t, s, col, row))
		}
	}

	ones := func(n int) []byte { return bytes.Repeat([]byte{0xff}, n) }
	tests := []struct {
		name          string
		width, height int
		data          []byte
	}{
		{name: "empty data", width: 1, height: 1, data: nil},
		{name: "short data", width: 2, height: 1, data: ones(7)},
		{name: "long data", width: 1, height: 1, data: ones(5)},
		{name: "short by a row", width: 2, height: 2, data: ones(8)},
		{name: "zero width", width: 0, height: 1, data: ones(4)},
		{name: "negative height", width: 1, height: -1, data: ones(4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.Update(0, 0, tt.width, tt.height, tt.data)
			if !errors.Is(err, ErrSizeMismatch) {
				t.Fatalf("Update() error = %v, want ErrSizeMismatch", err)
			}
			if n != 0 {
				t.Errorf("Update() = %d, want 0", n)
			}
			if s.DirtyCount() != 0 {
				t.Errorf("failed Update dirtied %d blocks", s.DirtyCount())
			}
			for i, want := range before {
				if got := mustGet(t, s, i%3, i/3); !bytes.Equal(got, want) {
					t.Fatalf("failed Update changed block (%d,%d): %x", i%3, i/3, got)
				}
			}
		})
	}
}

func TestUpdateOutsideSurface(t *testing.T) {
	tests := []struct {
		name string
		x, y int
		w, h int
	}{
		{name: "far top left", x: -1000, y: -1000, w: 1, h: 1},
		{name: "just left", x: -4, y: 0, w: 4, h: 2},
		{name: "just above", x: 0, y: -3, w: 2, h: 3},
		{name: "right edge", x: 6, y: 0, w: 3, h: 3},
		{name: "below", x: 0, y: 6, w: 6, h: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustSurface(t, 2, 3, 3)
			s.Reset()
			data := bytes.Repeat([]byte{0xff}, tt.w*tt.h*DisplayPixelSize)
			mustUpdate(t, s, tt.x, tt.y, tt.w, tt.h, data, 0)
			assertChanged(t, s)
			for row := 0; row < 3; row++ {
				for col := 0; col < 3; col++ {
					if got := mustGet(t, s, col, row); !bytes.Equal(got, make([]byte, 12)) {
						t.Fatalf("Get(%d, %d) = %x after out of bounds update", col, row, got)
					}
				}
			}
		})
	}
}

func TestUpdateNegativeCoordinates(t *testing.T) {
	// with 16 pixel blocks, x = -1 falls in block -1 and must be dropped
	// while x = 0 lands in block 0
	s := mustSurface(t, 16, 2, 2)
	s.Reset()

	mustUpdate(t, s, -1, -1, 2, 1, rgba(gray(1), gray(2)), 0)
	assertChanged(t, s)

	mustUpdate(t, s, -1, 15, 2, 2, rgba(gray(1), gray(2), gray(3), gray(4)), 2)
	assertChanged(t, s, BlockCoord{0, 1}, BlockCoord{0, 0})

	block := mustGet(t, s, 0, 0)
	// pixel (0,15) is the block's bottom row, so it comes first
	if got := block[:EncoderPixelSize]; !bytes.Equal(got, []byte{2, 2, 2}) {
		t.Errorf("block (0,0) first pixel = %x, want 020202", got)
	}
	block = mustGet(t, s, 0, 1)
	// pixel (0,16) is the top row of block (0,1), so it comes last
	last := block[(16-1)*16*EncoderPixelSize:]
	if got := last[:EncoderPixelSize]; !bytes.Equal(got, []byte{4, 4, 4}) {
		t.Errorf("block (0,1) top left pixel = %x, want 040404", got)
	}
}

func TestUpdateIdenticalContent(t *testing.T) {
	s := mustSurface(t, 4, 4, 4)
	data := make([]byte, 10*6*DisplayPixelSize)
	for i := range data {
		data[i] = byte(i * 7)
	}

	first, err := s.Update(3, 5, 10, 6, data)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if first != 6 {
		t.Fatalf("first Update = %d, want 6", first)
	}
	dirtyAfterFirst := s.DirtyCount()

	mustUpdate(t, s, 3, 5, 10, 6, data, 0)
	if got := s.DirtyCount(); got != dirtyAfterFirst {
		t.Errorf("DirtyCount() = %d after identical write, want %d", got, dirtyAfterFirst)
	}

	s.Reset()
	mustUpdate(t, s, 3, 5, 10, 6, data, 0)
	assertChanged(t, s)
}

func TestUpdateCountsRowsNotBlocks(t *testing.T) {
	s := mustSurface(t, 2, 4, 2)
	s.Reset()

	// one row spanning all four blocks of the top block row
	row := rgba(gray(1), gray(2), gray(3), gray(4), gray(5), gray(6), gray(7), gray(8))
	mustUpdate(t, s, 0, 0, 8, 1, row, 1)
	if got := s.DirtyCount(); got != 4 {
		t.Errorf("DirtyCount() = %d, want 4", got)
	}
}

func TestChangedOrder(t *testing.T) {
	s := mustSurface(t, 1, 2, 2)
	s.Reset()
	mustUpdate(t, s, 0, 0, 1, 1, rgba(gray(9)), 1)
	mustUpdate(t, s, 1, 1, 1, 1, rgba(gray(9)), 1)
	assertChanged(t, s, BlockCoord{1, 1}, BlockCoord{0, 0})

	if !s.Dirty(0, 0) || !s.Dirty(1, 1) || s.Dirty(1, 0) || s.Dirty(0, 1) {
		t.Errorf("Dirty flags do not match Changed()")
	}
	if s.Dirty(-1, 0) || s.Dirty(0, 2) {
		t.Errorf("Dirty() outside the grid should be false")
	}
}

func TestGetOutOfRange(t *testing.T) {
	s := mustSurface(t, 2, 3, 2)
	mustUpdate(t, s, 0, 0, 1, 1, rgba(gray(5)), 1)
	before := s.Changed()

	for _, c := range []BlockCoord{{-1, -1}, {-1, 0}, {0, -1}, {3, 0}, {0, 2}, {3, 2}} {
		b, err := s.Get(c.Col, c.Row)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Get(%d, %d) error = %v, want ErrOutOfRange", c.Col, c.Row, err)
		}
		if b != nil {
			t.Errorf("Get(%d, %d) returned data with an error", c.Col, c.Row)
		}
	}
	if after := s.Changed(); !reflect.DeepEqual(before, after) {
		t.Errorf("Changed() = %v after failed Get, want %v", after, before)
	}
}

func TestGetDoesNotAlias(t *testing.T) {
	s := mustSurface(t, 2, 2, 1)
	mustUpdate(t, s, 0, 0, 1, 1, rgba(gray(7)), 1)

	a := mustGet(t, s, 0, 0)
	_ = mustGet(t, s, 1, 0)
	if !bytes.Equal(a, []byte{0, 0, 0, 0, 0, 0, 7, 7, 7, 0, 0, 0}) {
		t.Errorf("first Get result overwritten by a later Get: %x", a)
	}
	if !s.Dirty(0, 0) {
		t.Errorf("Get cleared a dirty flag")
	}
}

func TestRoundTripMirrorsRows(t *testing.T) {
	const size = 4
	s := mustSurface(t, size, 1, 1)

	in := make([]byte, size*size*DisplayPixelSize)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := in[(y*size+x)*DisplayPixelSize:]
			p[0], p[1], p[2], p[3] = byte(y), byte(x), byte(x+y*size), 0xff
		}
	}
	if _, err := s.Update(0, 0, size, size, in); err != nil {
		t.Fatalf("Update: %v", err)
	}

	out := mustGet(t, s, 0, 0)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			src := in[(y*size+x)*DisplayPixelSize:]
			dst := out[((size-1-y)*size+x)*EncoderPixelSize:]
			if dst[0] != src[2] || dst[1] != src[1] || dst[2] != src[0] {
				t.Fatalf("pixel (%d,%d): got bgr %x, want %02x%02x%02x", x, y, dst[:3], src[2], src[1], src[0])
			}
		}
	}
}

func TestBlitImage(t *testing.T) {
	s := mustSurface(t, 2, 2, 2)
	s.Reset()

	// a sub-image has a stride wider than its rows
	full := image.NewRGBA(image.Rect(0, 0, 4, 4))
	full.SetRGBA(2, 2, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	full.SetRGBA(3, 3, color.RGBA{R: 4, G: 5, B: 6, A: 255})
	sub := full.SubImage(image.Rect(2, 2, 4, 4)).(*image.RGBA)

	n, err := s.BlitImage(2, 0, sub)
	if err != nil {
		t.Fatalf("BlitImage: %v", err)
	}
	if n != 2 {
		t.Fatalf("BlitImage = %d, want 2", n)
	}
	assertChanged(t, s, BlockCoord{1, 0})
	want := []byte{0, 0, 0, 6, 5, 4, 3, 2, 1, 0, 0, 0}
	if got := mustGet(t, s, 1, 0); !bytes.Equal(got, want) {
		t.Errorf("Get(1, 0) = %x, want %x", got, want)
	}

	n, err = s.BlitImage(0, 0, image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if err != nil || n != 0 {
		t.Errorf("BlitImage(empty) = %d, %v", n, err)
	}
}

func TestDump(t *testing.T) {
	s := mustSurface(t, 1, 2, 2)
	s.Reset()
	mustUpdate(t, s, 1, 0, 1, 1, rgba([3]byte{0xab, 0xcd, 0xef}), 1)

	var buf bytes.Buffer
	if err := s.Dump(&buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"block 0: 01", "block 1: 00", "pixel 0: 000000 abcdef", "dirty 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump output missing %q:\n%s", want, out)
		}
	}
}
