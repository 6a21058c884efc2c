package capture

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/blockcast/internal/logger"
)

// X11Capturer captures the root window of the default X screen
type X11Capturer struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	mu     sync.Mutex
}

// NewX11Capturer connects to the X server named by $DISPLAY
func NewX11Capturer() (*X11Capturer, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &X11Capturer{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
	}, nil
}

// Start checks that the root window depth is one we can decode
func (c *X11Capturer) Start() error {
	depth := c.screen.RootDepth
	if depth != 24 && depth != 32 {
		return fmt.Errorf("unsupported root window depth %d", depth)
	}
	logger.WithComponent("x11-capturer").Info().
		Uint16("width", c.screen.WidthInPixels).
		Uint16("height", c.screen.HeightInPixels).
		Uint8("depth", depth).
		Msg("X11 capturer started")
	return nil
}

// Stop closes the X11 connection
func (c *X11Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// Name returns the capturer name
func (c *X11Capturer) Name() string {
	return "X11"
}

// IsAvailable checks if X11 capture is available
func (c *X11Capturer) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Bounds returns the root window size
func (c *X11Capturer) Bounds() image.Rectangle {
	return image.Rect(0, 0, int(c.screen.WidthInPixels), int(c.screen.HeightInPixels))
}

// CaptureRegion captures a region of the root window
func (c *X11Capturer) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
	if err := checkRegion(x, y, width, height); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("X11 capturer is stopped")
	}

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(c.root),
		int16(x), int16(y),
		uint16(width), uint16(height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return convertBGRX(reply.Data, width, height), nil
}

// checkRegion rejects regions GetImage cannot express in its 16 bit fields
func checkRegion(x, y, width, height int) error {
	if width <= 0 || height <= 0 || width > math.MaxUint16 || height > math.MaxUint16 ||
		x < math.MinInt16 || x > math.MaxInt16 || y < math.MinInt16 || y > math.MaxInt16 {
		return fmt.Errorf("region %dx%d at (%d,%d) out of X11 range", width, height, x, y)
	}
	return nil
}

// convertBGRX converts 32 bits per pixel ZPixmap data (blue, green, red,
// padding) to an opaque RGBA image
func convertBGRX(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	n := width * height
	if len(data) < n*4 {
		n = len(data) / 4
	}
	for i := 0; i < n; i++ {
		s := data[i*4 : i*4+4]
		d := img.Pix[i*4 : i*4+4]
		d[0] = s[2]
		d[1] = s[1]
		d[2] = s[0]
		d[3] = 0xff
	}
	return img
}
