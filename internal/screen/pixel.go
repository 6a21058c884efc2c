package screen

// Pixel layouts shared by the surface and the converter.
//
// Display format is 4 bytes per pixel in red, green, blue, alpha order with
// rows stored top to bottom. Encoder format is 3 bytes per pixel in blue,
// green, red order with rows stored bottom to top.
const (
	DisplayPixelSize = 4
	EncoderPixelSize = 3
)

// floorDiv divides rounding toward negative infinity. Block mapping depends
// on it: pixel -1 belongs to block -1, not block 0.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// BlockGrid returns how many blocks of blockSize are needed to cover a
// pixelWidth x pixelHeight area.
func BlockGrid(pixelWidth, pixelHeight, blockSize int) (int, int) {
	if blockSize <= 0 {
		return 0, 0
	}
	return (pixelWidth + blockSize - 1) / blockSize, (pixelHeight + blockSize - 1) / blockSize
}

// encodePixel writes one display pixel as an encoder pixel.
func encodePixel(dst, src []byte) {
	dst[0] = src[2]
	dst[1] = src[1]
	dst[2] = src[0]
}

// decodePixel writes one encoder pixel as a display pixel with zero alpha.
func decodePixel(dst, src []byte) {
	dst[0] = src[2]
	dst[1] = src[1]
	dst[2] = src[0]
	dst[3] = 0
}
