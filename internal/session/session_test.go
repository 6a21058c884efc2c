package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"reflect"
	"testing"
	"time"

	"github.com/bryanchriswhite/blockcast/internal/capture"
	"github.com/bryanchriswhite/blockcast/internal/screen"
)

func blank(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func withPixel(img *image.RGBA, x, y int, c color.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	out.SetRGBA(x, y, c)
	return out
}

func coords(f *Frame) []screen.BlockCoord {
	var out []screen.BlockCoord
	for _, b := range f.Blocks {
		out = append(out, screen.BlockCoord{Col: b.Col, Row: b.Row})
	}
	return out
}

func newSession(t *testing.T, opts Options, frames ...*image.RGBA) *Session {
	t.Helper()
	c := capture.NewReplayCapturer(frames...)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s, err := New(c, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewGeometry(t *testing.T) {
	s := newSession(t, Options{BlockSize: 16, FrameRate: 10}, blank(40, 20))
	st := s.Stats()
	if st.Grid != image.Pt(3, 2) {
		t.Errorf("grid = %v, want (3,2)", st.Grid)
	}
	if st.PixelWidth != 40 || st.PixelHeight != 20 {
		t.Errorf("size = %dx%d", st.PixelWidth, st.PixelHeight)
	}
	if st.DirtyBlocks != 6 {
		t.Errorf("DirtyBlocks = %d, want 6", st.DirtyBlocks)
	}
	if s.ID() == "" || st.ID != s.ID() {
		t.Errorf("session id not set")
	}

	c := capture.NewReplayCapturer(blank(40, 20))
	if _, err := New(c, Options{BlockSize: 0, FrameRate: 10}); !errors.Is(err, screen.ErrConfiguration) {
		t.Errorf("New with block size 0: error = %v", err)
	}
	if _, err := New(c, Options{BlockSize: 16, FrameRate: 0}); err == nil {
		t.Errorf("New with frame rate 0 succeeded")
	}
	if _, err := New(c, Options{BlockSize: 16, FrameRate: 10, Clip: "bad"}); err == nil {
		t.Errorf("New with a bad clip succeeded")
	}
}

func TestFlushTiming(t *testing.T) {
	s := newSession(t, Options{BlockSize: 16, FrameRate: 10}, blank(32, 32))

	if got := len(s.Flush(0)); got != 1 {
		t.Fatalf("Flush(0) = %d frames, want 1", got)
	}
	if got := len(s.Flush(50 * time.Millisecond)); got != 0 {
		t.Fatalf("Flush(50ms) = %d frames, want 0", got)
	}
	frames := s.Flush(250 * time.Millisecond)
	if len(frames) != 2 {
		t.Fatalf("Flush(250ms) = %d frames, want 2", len(frames))
	}
	if frames[0].Number != 1 || frames[0].Timestamp != 100*time.Millisecond {
		t.Errorf("frame = #%d at %v, want #1 at 100ms", frames[0].Number, frames[0].Timestamp)
	}
	if frames[1].Number != 2 || frames[1].Timestamp != 200*time.Millisecond {
		t.Errorf("frame = #%d at %v, want #2 at 200ms", frames[1].Number, frames[1].Timestamp)
	}
}

func TestFlushSendsChangedBlocks(t *testing.T) {
	base := blank(40, 20)
	changed := withPixel(base, 17, 3, color.RGBA{R: 9, G: 8, B: 7, A: 255})
	s := newSession(t, Options{BlockSize: 16, FrameRate: 10}, base, base, changed)

	// the first frame carries every block because a new surface is all dirty
	if _, err := s.Capture(); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	first := s.Flush(0)[0]
	want := []screen.BlockCoord{{Col: 0, Row: 1}, {Col: 1, Row: 1}, {Col: 2, Row: 1}, {Col: 0, Row: 0}, {Col: 1, Row: 0}, {Col: 2, Row: 0}}
	if got := coords(first); !reflect.DeepEqual(got, want) {
		t.Errorf("first frame blocks = %v, want %v", got, want)
	}
	if first.Key {
		t.Errorf("first frame marked key without a keyframe interval")
	}
	for _, b := range first.Blocks {
		if len(b.Data) != 16*16*screen.EncoderPixelSize {
			t.Fatalf("block data length = %d", len(b.Data))
		}
	}

	rows, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if rows != 0 {
		t.Errorf("identical capture changed %d rows", rows)
	}
	if got := s.Flush(100 * time.Millisecond)[0]; len(got.Blocks) != 0 {
		t.Errorf("unchanged frame carries %v", coords(got))
	}

	rows, err = s.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if rows != 1 {
		t.Errorf("Capture = %d rows, want 1", rows)
	}
	if got := s.Changed(); !reflect.DeepEqual(got, []screen.BlockCoord{{Col: 1, Row: 0}}) {
		t.Errorf("Changed() = %v", got)
	}
	frame := s.Flush(200 * time.Millisecond)[0]
	if got := coords(frame); !reflect.DeepEqual(got, []screen.BlockCoord{{Col: 1, Row: 0}}) {
		t.Fatalf("frame blocks = %v, want [(1,0)]", got)
	}

	// pixel (17,3) is (1,3) inside block (1,0), row 15-3 once flipped
	off := ((16-1-3)*16 + 1) * screen.EncoderPixelSize
	if got := frame.Blocks[0].Data[off : off+3]; !reflect.DeepEqual(got, []byte{7, 8, 9}) {
		t.Errorf("encoded pixel = %v, want [7 8 9]", got)
	}
	if len(s.Changed()) != 0 {
		t.Errorf("flush left dirty blocks behind")
	}

	st := s.Stats()
	if st.Frames != 3 || st.BlocksSent != 7 || st.Captures != 3 {
		t.Errorf("stats = %+v", st)
	}
}

func TestKeyframeInterval(t *testing.T) {
	s := newSession(t, Options{BlockSize: 16, FrameRate: 10, KeyframeInterval: 2}, blank(32, 16))

	frames := s.Flush(200 * time.Millisecond)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, wantKey := range []bool{true, false, true} {
		if frames[i].Key != wantKey {
			t.Errorf("frame %d key = %v, want %v", i, frames[i].Key, wantKey)
		}
	}
	if len(frames[1].Blocks) != 0 {
		t.Errorf("delta frame carries %d blocks", len(frames[1].Blocks))
	}
	if len(frames[2].Blocks) != 2 {
		t.Errorf("key frame carries %d blocks, want 2", len(frames[2].Blocks))
	}
	if st := s.Stats(); st.KeyFrames != 2 {
		t.Errorf("KeyFrames = %d, want 2", st.KeyFrames)
	}
}

func TestAutopanFollowsChanges(t *testing.T) {
	base := blank(64, 64)
	corner := withPixel(base, 63, 63, color.RGBA{R: 1, A: 255})
	s := newSession(t, Options{BlockSize: 16, FrameRate: 10, PanWindow: "32x32", PanSpeed: 1}, base, corner)

	s.Capture()
	first := s.Flush(0)[0]
	if !first.Key || first.Window != image.Rect(1, 1, 3, 3) {
		t.Fatalf("first frame key=%v window=%v, want centered key frame", first.Key, first.Window)
	}
	if len(first.Blocks) != 4 {
		t.Errorf("first frame carries %d blocks, want 4", len(first.Blocks))
	}
	if w, h := first.PixelSize(); w != 32 || h != 32 {
		t.Errorf("PixelSize() = %dx%d", w, h)
	}

	s.Capture()
	second := s.Flush(100 * time.Millisecond)[0]
	if !second.Key || second.Window != image.Rect(2, 2, 4, 4) {
		t.Fatalf("second frame key=%v window=%v, want key frame at (2,2)", second.Key, second.Window)
	}
	want := []screen.BlockCoord{{Col: 2, Row: 3}, {Col: 3, Row: 3}, {Col: 2, Row: 2}, {Col: 3, Row: 2}}
	if got := coords(second); !reflect.DeepEqual(got, want) {
		t.Errorf("second frame blocks = %v, want %v", got, want)
	}

	// nothing changes, the window stays put
	s.Capture()
	third := s.Flush(200 * time.Millisecond)[0]
	if third.Key || third.Window != second.Window || len(third.Blocks) != 0 {
		t.Errorf("idle frame key=%v window=%v blocks=%d", third.Key, third.Window, len(third.Blocks))
	}
}

func TestFollow(t *testing.T) {
	tests := []struct {
		name                     string
		pos, lo, hi, size, limit int
		want                     int
	}{
		{name: "inside", pos: 2, lo: 3, hi: 4, size: 4, limit: 10, want: 2},
		{name: "left of window", pos: 5, lo: 1, hi: 3, size: 4, limit: 10, want: 1},
		{name: "right of window", pos: 0, lo: 6, hi: 8, size: 4, limit: 10, want: 4},
		{name: "wider than window", pos: 0, lo: 2, hi: 9, size: 4, limit: 10, want: 3},
		{name: "wider, clamped", pos: 0, lo: 5, hi: 12, size: 4, limit: 8, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := follow(tt.pos, tt.lo, tt.hi, tt.size, tt.limit); got != tt.want {
				t.Errorf("follow() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBlitUsesClipOrigin(t *testing.T) {
	s := newSession(t, Options{BlockSize: 16, FrameRate: 10, Clip: "32x32+16+16"}, blank(64, 64))
	s.Flush(0)

	n, err := s.Blit(16, 16, 1, 1, []byte{1, 2, 3, 0})
	if err != nil || n != 1 {
		t.Fatalf("Blit = %d, %v", n, err)
	}
	if got := s.Changed(); !reflect.DeepEqual(got, []screen.BlockCoord{{Col: 0, Row: 0}}) {
		t.Errorf("Changed() = %v, want [(0,0)]", got)
	}
	if st := s.Stats(); st.Origin != image.Pt(16, 16) || st.Grid != image.Pt(2, 2) {
		t.Errorf("origin=%v grid=%v", st.Origin, st.Grid)
	}

	if _, err := s.Block(2, 0); !errors.Is(err, screen.ErrOutOfRange) {
		t.Errorf("Block(2, 0) error = %v, want ErrOutOfRange", err)
	}
}

// strictCapturer fails like an X server does when asked for pixels off screen
type strictCapturer struct {
	*capture.ReplayCapturer
	regions []image.Rectangle
}

func (c *strictCapturer) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
	r := image.Rect(x, y, x+width, y+height)
	c.regions = append(c.regions, r)
	if !r.In(c.Bounds()) {
		return nil, fmt.Errorf("region %v outside %v", r, c.Bounds())
	}
	return c.ReplayCapturer.CaptureRegion(x, y, width, height)
}

func TestCaptureClipsToScreen(t *testing.T) {
	screenImg := withPixel(blank(100, 100), 90, 90, color.RGBA{R: 9, G: 8, B: 7, A: 255})

	tests := []struct {
		name     string
		clip     string
		region   image.Rectangle // requested from the capturer, empty for none
		rows     int
		col, row int // block holding the screen pixel (90,90)
		x, y     int // pixel within that block
	}{
		{name: "past bottom right", clip: "64x64+80+80", region: image.Rect(80, 80, 100, 100), rows: 1, col: 0, row: 0, x: 10, y: 10},
		{name: "anchored larger than screen", clip: "128x128-0-0", region: image.Rect(0, 0, 100, 100), rows: 1, col: 7, row: 7, x: 6, y: 6},
		{name: "off screen", clip: "32x32+200+200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &strictCapturer{ReplayCapturer: capture.NewReplayCapturer(screenImg)}
			if err := c.Start(); err != nil {
				t.Fatal(err)
			}
			s, err := New(c, Options{BlockSize: 16, FrameRate: 10, Clip: tt.clip})
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			rows, err := s.Capture()
			if err != nil {
				t.Fatalf("Capture: %v", err)
			}
			if rows != tt.rows {
				t.Errorf("Capture = %d rows, want %d", rows, tt.rows)
			}
			if tt.region.Empty() {
				if len(c.regions) != 0 {
					t.Errorf("capturer asked for %v", c.regions)
				}
				return
			}
			if len(c.regions) != 1 || c.regions[0] != tt.region {
				t.Fatalf("capturer asked for %v, want %v", c.regions, tt.region)
			}

			data, err := s.Block(tt.col, tt.row)
			if err != nil {
				t.Fatalf("Block: %v", err)
			}
			off := ((16-1-tt.y)*16 + tt.x) * screen.EncoderPixelSize
			if got := data[off : off+3]; !reflect.DeepEqual(got, []byte{7, 8, 9}) {
				t.Errorf("encoded pixel = %v, want [7 8 9]", got)
			}
			if st := s.Stats(); st.CaptureFails != 0 {
				t.Errorf("CaptureFails = %d", st.CaptureFails)
			}
		})
	}
}

type recordingWriter struct {
	frames []*Frame
}

func (w *recordingWriter) WriteFrame(f *Frame) error {
	w.frames = append(w.frames, f)
	return nil
}

func TestRunPublishes(t *testing.T) {
	s := newSession(t, Options{BlockSize: 16, FrameRate: 10}, blank(16, 16))
	w := &recordingWriter{}
	s.AddWriter(w)
	ch := s.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}

	if len(w.frames) == 0 {
		t.Fatalf("writer received no frames")
	}
	select {
	case f := <-ch:
		if f.Number != 0 {
			t.Errorf("first published frame = #%d", f.Number)
		}
	default:
		t.Errorf("subscriber received no frame")
	}

	s.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Errorf("channel still open after Unsubscribe")
	}
}
