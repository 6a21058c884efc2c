package output

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/blockcast/internal/logger"
)

// MJPEGStream fans encoded JPEG frames out to HTTP clients as a
// multipart/x-mixed-replace stream
type MJPEGStream struct {
	mu         sync.RWMutex
	latest     []byte
	lastUpdate time.Time
	frames     uint64

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
}

// NewMJPEGStream creates a stream with no clients
func NewMJPEGStream() *MJPEGStream {
	return &MJPEGStream{clients: make(map[chan []byte]struct{})}
}

// Publish sends one JPEG to every client. Slow clients skip frames.
func (m *MJPEGStream) Publish(jpegData []byte) {
	m.mu.Lock()
	m.latest = jpegData
	m.lastUpdate = time.Now()
	m.frames++
	m.mu.Unlock()

	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
}

// Latest returns the most recently published JPEG, or nil
func (m *MJPEGStream) Latest() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// ClientCount returns the number of connected stream clients
func (m *MJPEGStream) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// CloseClients disconnects every client
func (m *MJPEGStream) CloseClients() {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
}

func (m *MJPEGStream) addClient() chan []byte {
	ch := make(chan []byte, 2)
	m.clientsMu.Lock()
	m.clients[ch] = struct{}{}
	n := len(m.clients)
	m.clientsMu.Unlock()
	logger.WithComponent("mjpeg").Info().Int("clients", n).Msg("Client connected")
	return ch
}

func (m *MJPEGStream) removeClient(ch chan []byte) {
	m.clientsMu.Lock()
	delete(m.clients, ch)
	n := len(m.clients)
	m.clientsMu.Unlock()
	logger.WithComponent("mjpeg").Info().Int("clients", n).Msg("Client disconnected")
}

// writePart writes one multipart JPEG part
func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Handler streams frames until the client disconnects or the stream closes.
// A client joining mid-stream first receives the latest frame.
func (m *MJPEGStream) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		ch := m.addClient()
		defer m.removeClient(ch)

		if latest := m.Latest(); latest != nil {
			if err := writePart(w, latest); err != nil {
				return
			}
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-ch:
				if !ok {
					return
				}
				if err := writePart(w, jpegData); err != nil {
					return
				}
			}
		}
	}
}

// SnapshotHandler serves the latest frame as a single JPEG
func (m *MJPEGStream) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest := m.Latest()
		if latest == nil {
			http.Error(w, "no frame yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(latest)
	}
}
