package session

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/blockcast/internal/capture"
	"github.com/bryanchriswhite/blockcast/internal/config"
	"github.com/bryanchriswhite/blockcast/internal/logger"
	"github.com/bryanchriswhite/blockcast/internal/screen"
	"github.com/google/uuid"
)

// Block is one encoder-format block of a frame
type Block struct {
	Col  int    `json:"col"`
	Row  int    `json:"row"`
	Data []byte `json:"-"`
}

// Frame is the set of blocks to encode at one timestamp. Key frames carry
// every block of the window; other frames carry only blocks that changed.
type Frame struct {
	Number    int             `json:"number"`
	Timestamp time.Duration   `json:"timestamp"`
	Key       bool            `json:"key"`
	BlockSize int             `json:"block_size"`
	Window    image.Rectangle `json:"window"` // in blocks
	Blocks    []Block         `json:"blocks"`
}

// PixelSize returns the window size in pixels
func (f *Frame) PixelSize() (int, int) {
	return f.Window.Dx() * f.BlockSize, f.Window.Dy() * f.BlockSize
}

// FrameWriter receives every frame a running session produces
type FrameWriter interface {
	WriteFrame(frame *Frame) error
}

// Options controls how a session tracks and emits frames
type Options struct {
	BlockSize        int
	FrameRate        int
	KeyframeInterval int
	Clip             string
	PanWindow        string
	PanSpeed         int
}

// OptionsFromConfig extracts session options from the configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BlockSize:        cfg.Encoder.BlockSize,
		FrameRate:        cfg.Encoder.FrameRate,
		KeyframeInterval: cfg.Encoder.KeyframeInterval,
		Clip:             cfg.Capture.Clip,
		PanWindow:        cfg.Encoder.PanWindow,
		PanSpeed:         cfg.Encoder.PanSpeed,
	}
}

// Stats summarizes a session's activity
type Stats struct {
	ID           string          `json:"id"`
	Started      time.Time       `json:"started"`
	Captures     uint64          `json:"captures"`
	CaptureFails uint64          `json:"capture_failures"`
	Frames       uint64          `json:"frames"`
	KeyFrames    uint64          `json:"key_frames"`
	BlocksSent   uint64          `json:"blocks_sent"`
	LastChanged  int             `json:"last_changed_rows"`
	DirtyBlocks  int             `json:"dirty_blocks"`
	Origin       image.Point     `json:"origin"`
	PixelWidth   int             `json:"pixel_width"`
	PixelHeight  int             `json:"pixel_height"`
	BlockSize    int             `json:"block_size"`
	Grid         image.Point     `json:"grid"`
	Window       image.Rectangle `json:"window"`
}

// Session captures a screen region into a block surface and turns the
// surface's dirty blocks into frames at a fixed frame rate.
type Session struct {
	id       string
	capturer capture.Capturer
	opts     Options

	// origin and size of the captured region in screen pixels
	origin image.Point
	size   image.Point

	mu        sync.Mutex
	surface   *screen.Surface
	pan       panner
	windowPos image.Point
	curFrame  int
	stats     Stats

	writersMu sync.RWMutex
	writers   []FrameWriter

	listenersMu sync.RWMutex
	listeners   []chan *Frame
}

// New creates a session capturing from c, which must already be started
func New(c capture.Capturer, opts Options) (*Session, error) {
	if opts.FrameRate <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", opts.FrameRate)
	}

	screenBounds := c.Bounds()
	origin := image.Point{}
	size := screenBounds.Size()
	if opts.Clip != "" {
		clip, err := config.ParseClip(opts.Clip)
		if err != nil {
			return nil, err
		}
		origin.X, origin.Y = clip.Resolve(size.X, size.Y)
		size = image.Pt(clip.Width, clip.Height)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("empty capture region %v", size)
	}

	bw, bh := screen.BlockGrid(size.X, size.Y, opts.BlockSize)
	surface, err := screen.New(opts.BlockSize, bw, bh)
	if err != nil {
		return nil, fmt.Errorf("failed to create surface: %w", err)
	}

	grid := image.Pt(bw, bh)
	window := grid
	if opts.PanWindow != "" {
		ps, err := config.ParseSize(opts.PanWindow)
		if err != nil {
			return nil, err
		}
		ww, wh := screen.BlockGrid(ps.Width, ps.Height, opts.BlockSize)
		window = image.Pt(min(ww, bw), min(wh, bh))
	}

	s := &Session{
		id:       uuid.New().String(),
		capturer: c,
		opts:     opts,
		origin:   origin,
		size:     size,
		surface:  surface,
		pan: panner{
			window: window,
			grid:   grid,
			speed:  opts.PanSpeed,
		},
	}
	if visible := s.region().Intersect(screenBounds); visible != s.region() {
		logger.WithComponent("session").Warn().
			Str("region", s.region().String()).
			Str("screen", screenBounds.String()).
			Msg("Capture region extends past the screen, only the visible part is captured")
	}
	s.stats = Stats{
		ID:          s.id,
		Started:     time.Now(),
		Origin:      origin,
		PixelWidth:  size.X,
		PixelHeight: size.Y,
		BlockSize:   opts.BlockSize,
		Grid:        grid,
	}

	logger.WithComponent("session").Info().
		Str("session_id", s.id).
		Str("capturer", c.Name()).
		Str("origin", origin.String()).
		Str("size", size.String()).
		Int("block_size", opts.BlockSize).
		Str("grid", grid.String()).
		Str("window", window.String()).
		Msg("Session created")
	return s, nil
}

// ID returns the session's unique identifier
func (s *Session) ID() string {
	return s.id
}

// AddWriter registers a writer for every frame produced by Run
func (s *Session) AddWriter(w FrameWriter) {
	s.writersMu.Lock()
	s.writers = append(s.writers, w)
	s.writersMu.Unlock()
}

// region returns the capture region in screen coordinates
func (s *Session) region() image.Rectangle {
	return image.Rectangle{Min: s.origin, Max: s.origin.Add(s.size)}
}

// Capture grabs the part of the capture region that lies on screen and
// blits it into the surface, returning the number of pixel rows that changed.
// Blocks off screen keep whatever they last held.
func (s *Session) Capture() (int, error) {
	r := s.region().Intersect(s.capturer.Bounds())
	if r.Empty() {
		s.mu.Lock()
		s.stats.Captures++
		s.stats.LastChanged = 0
		s.mu.Unlock()
		return 0, nil
	}
	img, err := s.capturer.CaptureRegion(r.Min.X, r.Min.Y, r.Dx(), r.Dy())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Captures++
	if err != nil {
		s.stats.CaptureFails++
		return 0, fmt.Errorf("capture failed: %w", err)
	}
	rows, err := s.surface.BlitImage(r.Min.X-s.origin.X, r.Min.Y-s.origin.Y, img)
	if err != nil {
		s.stats.CaptureFails++
		return 0, err
	}
	s.stats.LastChanged = rows
	return rows, nil
}

// Blit writes display-format pixels at (x, y) in screen coordinates
func (s *Session) Blit(x, y, width, height int, data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Update(x-s.origin.X, y-s.origin.Y, width, height, data)
}

// Flush emits every frame due at or before elapsed time t since the session
// started. Frame n is due at n*1000/frameRate milliseconds.
func (s *Session) Flush(t time.Duration) []*Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	var frames []*Frame
	for {
		ts := time.Duration(s.curFrame*1000/s.opts.FrameRate) * time.Millisecond
		if t < ts {
			break
		}
		frames = append(frames, s.nextFrameLocked(ts))
		s.curFrame++
	}
	return frames
}

// nextFrameLocked consumes the dirty blocks into a frame
func (s *Session) nextFrameLocked(ts time.Duration) *Frame {
	changes := s.surface.Changed()
	s.surface.Reset()

	pos := s.pan.next(s.windowPos, changes)
	key := pos != s.windowPos ||
		(s.opts.KeyframeInterval > 0 && s.curFrame%s.opts.KeyframeInterval == 0)
	if key {
		s.windowPos = pos
	}
	window := image.Rectangle{Min: s.windowPos, Max: s.windowPos.Add(s.pan.window)}

	dirty := make(map[screen.BlockCoord]bool, len(changes))
	for _, c := range changes {
		dirty[c] = true
	}

	frame := &Frame{
		Number:    s.curFrame,
		Timestamp: ts,
		Key:       key,
		BlockSize: s.opts.BlockSize,
		Window:    window,
	}
	for row := window.Max.Y - 1; row >= window.Min.Y; row-- {
		for col := window.Min.X; col < window.Max.X; col++ {
			c := screen.BlockCoord{Col: col, Row: row}
			if !key && !dirty[c] {
				continue
			}
			data, err := s.surface.Get(col, row)
			if err != nil {
				continue
			}
			frame.Blocks = append(frame.Blocks, Block{Col: col, Row: row, Data: data})
		}
	}

	s.stats.Frames++
	if key {
		s.stats.KeyFrames++
	}
	s.stats.BlocksSent += uint64(len(frame.Blocks))
	s.stats.Window = window

	logger.WithComponent("session").Debug().
		Int("frame", frame.Number).
		Bool("key", key).
		Int("changed", len(changes)).
		Int("blocks", len(frame.Blocks)).
		Msg("Frame flushed")
	return frame
}

// Changed returns the blocks dirtied since the last flushed frame
func (s *Session) Changed() []screen.BlockCoord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Changed()
}

// Block returns one block of the surface in encoder format
func (s *Session) Block(col, row int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Get(col, row)
}

// Stats returns a snapshot of the session statistics
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.DirtyBlocks = s.surface.DirtyCount()
	return st
}

// Run captures and flushes at the frame rate until ctx is cancelled
func (s *Session) Run(ctx context.Context) error {
	log := logger.WithComponent("session")
	interval := time.Second / time.Duration(s.opts.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	log.Info().Str("session_id", s.id).Dur("interval", interval).Msg("Session running")

	for {
		if _, err := s.Capture(); err != nil {
			log.Warn().Err(err).Msg("Capture failed")
		}
		for _, frame := range s.Flush(time.Since(start)) {
			s.publish(frame)
		}

		select {
		case <-ctx.Done():
			log.Info().Str("session_id", s.id).Msg("Session stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// publish hands a frame to every writer and subscriber
func (s *Session) publish(frame *Frame) {
	s.writersMu.RLock()
	for _, w := range s.writers {
		if err := w.WriteFrame(frame); err != nil {
			logger.WithComponent("session").Warn().Err(err).Int("frame", frame.Number).Msg("Frame writer failed")
		}
	}
	s.writersMu.RUnlock()

	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, listener := range s.listeners {
		select {
		case listener <- frame:
		default:
			// Skip if channel is full
		}
	}
}

// Subscribe adds a listener for flushed frames
func (s *Session) Subscribe() chan *Frame {
	ch := make(chan *Frame, 10)
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, ch)
	s.listenersMu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel
func (s *Session) Unsubscribe(ch chan *Frame) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for i, listener := range s.listeners {
		if listener == ch {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}
