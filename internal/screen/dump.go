package screen

import (
	"bufio"
	"fmt"
	"io"
)

// Dump writes the dirty grid and every pixel's red, green and blue values to
// w. It is a debugging aid; the format is not stable.
func (s *Surface) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "surface: pixels %dx%d, block size %d, blocks %dx%d, dirty %d\n",
		s.pixelWidth, s.pixelHeight, s.blockSize, s.blockWidth, s.blockHeight, s.DirtyCount())

	for row := 0; row < s.blockHeight; row++ {
		fmt.Fprintf(bw, "  block %d: ", row)
		for col := 0; col < s.blockWidth; col++ {
			if s.dirty[s.blockIndex(col, row)] {
				bw.WriteByte('1')
			} else {
				bw.WriteByte('0')
			}
		}
		bw.WriteByte('\n')
	}

	for y := 0; y < s.pixelHeight; y++ {
		fmt.Fprintf(bw, "  pixel %d: ", y)
		for x := 0; x < s.pixelWidth; x++ {
			p := s.pixels[s.pixelOffset(x, y):]
			fmt.Fprintf(bw, "%02x%02x%02x ", p[0], p[1], p[2])
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
