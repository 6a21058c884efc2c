package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/bryanchriswhite/blockcast/internal/logger"
	"github.com/bryanchriswhite/blockcast/internal/overlay"
	"github.com/bryanchriswhite/blockcast/internal/screen"
	"github.com/bryanchriswhite/blockcast/internal/session"
	xdraw "golang.org/x/image/draw"
)

// PreviewOutput rebuilds a viewable picture from encoder-format frame blocks
// and publishes it as MJPEG. Only the blocks carried by each frame are
// redrawn, so the preview shows exactly what a decoder would see.
type PreviewOutput struct {
	config   Config
	stream   *MJPEGStream
	overlays *overlay.Manager
	grid     *overlay.GridWidget
	status   *overlay.TextWidget

	mu        sync.RWMutex
	running   bool
	canvas    *image.RGBA
	window    image.Rectangle
	blockSize int
	frames    uint64
	startTime time.Time
}

// PreviewStats describes the preview's activity
type PreviewStats struct {
	Running bool      `json:"running"`
	Frames  uint64    `json:"frames"`
	Clients int       `json:"clients"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Started time.Time `json:"started"`
}

// NewPreviewOutput creates a preview publishing to stream. When the grid
// option is set, blocks of each frame are outlined and a status label is drawn.
// Configured overlays are added after those two.
func NewPreviewOutput(cfg Config, stream *MJPEGStream) (*PreviewOutput, error) {
	if cfg.Quality < 1 || cfg.Quality > 100 {
		return nil, fmt.Errorf("invalid JPEG quality %d", cfg.Quality)
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}

	p := &PreviewOutput{
		config:   cfg,
		stream:   stream,
		overlays: overlay.NewManager(),
	}
	if cfg.Grid {
		grid, err := overlay.NewGridWidget("grid", nil)
		if err != nil {
			return nil, err
		}
		status, err := overlay.NewTextWidget("status", map[string]interface{}{
			"x":          2,
			"y":          2,
			"opacity":    0.9,
			"background": map[string]interface{}{"r": 0, "g": 0, "b": 0, "a": 160},
		})
		if err != nil {
			return nil, err
		}
		if err := p.overlays.AddWidget(grid); err != nil {
			return nil, err
		}
		if err := p.overlays.AddWidget(status); err != nil {
			return nil, err
		}
		p.grid, p.status = grid, status
	}
	if err := p.overlays.Load(cfg.Overlays); err != nil {
		return nil, fmt.Errorf("preview overlays: %w", err)
	}
	return p, nil
}

// Overlays returns the overlay manager drawn over every preview frame
func (p *PreviewOutput) Overlays() *overlay.Manager {
	return p.overlays
}

// Start initializes the preview
func (p *PreviewOutput) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("preview output already running")
	}
	p.running = true
	p.startTime = time.Now()
	p.frames = 0

	logger.WithComponent("preview").Info().
		Int("quality", p.config.Quality).
		Float64("scale", p.config.Scale).
		Bool("grid", p.config.Grid).
		Msg("Preview output started")
	return nil
}

// Stop shuts the preview down and disconnects stream clients
func (p *PreviewOutput) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	frames := p.frames
	p.mu.Unlock()

	p.stream.CloseClients()
	logger.WithComponent("preview").Info().Uint64("frames", frames).Msg("Preview output stopped")
	return nil
}

// Name returns the output type name
func (p *PreviewOutput) Name() string {
	return "MJPEG Preview"
}

// IsRunning returns true if the output is active
func (p *PreviewOutput) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// WriteFrame draws the frame's blocks onto the canvas and publishes the
// result. A change of window or block size starts a fresh canvas.
func (p *PreviewOutput) WriteFrame(frame *session.Frame) error {
	if !p.IsRunning() {
		return fmt.Errorf("preview output not running")
	}

	p.mu.Lock()
	if err := p.applyLocked(frame); err != nil {
		p.mu.Unlock()
		return err
	}
	p.frames++
	view := image.NewRGBA(p.canvas.Bounds())
	copy(view.Pix, p.canvas.Pix)
	p.mu.Unlock()

	if p.grid != nil {
		marked := make([]image.Point, 0, len(frame.Blocks))
		for _, b := range frame.Blocks {
			marked = append(marked, image.Pt(b.Col-frame.Window.Min.X, b.Row-frame.Window.Min.Y))
		}
		p.grid.Mark(frame.BlockSize, marked, frame.Key)
		kind := "delta"
		if frame.Key {
			kind = "key"
		}
		p.status.SetText(fmt.Sprintf("#%d %s %d blocks", frame.Number, kind, len(frame.Blocks)))
	}
	if err := p.overlays.Render(view); err != nil {
		return err
	}

	jpegData, err := p.encode(view)
	if err != nil {
		return err
	}
	p.stream.Publish(jpegData)
	return nil
}

// applyLocked decodes the frame's blocks into the canvas
func (p *PreviewOutput) applyLocked(frame *session.Frame) error {
	bs := frame.BlockSize
	w, h := frame.PixelSize()
	if p.canvas == nil || frame.Window != p.window || bs != p.blockSize {
		p.canvas = image.NewRGBA(image.Rect(0, 0, w, h))
		p.window = frame.Window
		p.blockSize = bs
	}

	for _, b := range frame.Blocks {
		pix, err := screen.ToDisplay(bs, bs, b.Data)
		if err != nil {
			return fmt.Errorf("block (%d,%d): %w", b.Col, b.Row, err)
		}
		x0 := (b.Col - frame.Window.Min.X) * bs
		y0 := (b.Row - frame.Window.Min.Y) * bs
		for y := 0; y < bs; y++ {
			row := pix[y*bs*screen.DisplayPixelSize : (y+1)*bs*screen.DisplayPixelSize]
			dst := p.canvas.PixOffset(x0, y0+y)
			copy(p.canvas.Pix[dst:dst+len(row)], row)
		}
	}

	// decoded pixels carry zero alpha
	for i := 3; i < len(p.canvas.Pix); i += 4 {
		p.canvas.Pix[i] = 0xff
	}
	return nil
}

// encode scales img and compresses it to JPEG
func (p *PreviewOutput) encode(img *image.RGBA) ([]byte, error) {
	var src image.Image = img
	if p.config.Scale != 1 {
		b := img.Bounds()
		w := max(1, int(float64(b.Dx())*p.config.Scale))
		h := max(1, int(float64(b.Dy())*p.config.Scale))
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
		src = scaled
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, src, &jpeg.Options{Quality: p.config.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Canvas returns a copy of the reconstructed picture without overlays
func (p *PreviewOutput) Canvas() *image.RGBA {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.canvas == nil {
		return nil
	}
	out := image.NewRGBA(p.canvas.Bounds())
	copy(out.Pix, p.canvas.Pix)
	return out
}

// Stats returns the preview statistics
func (p *PreviewOutput) Stats() PreviewStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := PreviewStats{
		Running: p.running,
		Frames:  p.frames,
		Clients: p.stream.ClientCount(),
		Started: p.startTime,
	}
	if p.canvas != nil {
		st.Width, st.Height = p.canvas.Bounds().Dx(), p.canvas.Bounds().Dy()
	}
	return st
}
