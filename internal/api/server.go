package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/blockcast/internal/config"
	"github.com/bryanchriswhite/blockcast/internal/logger"
	"github.com/bryanchriswhite/blockcast/internal/output"
	"github.com/bryanchriswhite/blockcast/internal/overlay"
	"github.com/bryanchriswhite/blockcast/internal/screen"
	"github.com/bryanchriswhite/blockcast/internal/session"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Version is reported by the health endpoint
const Version = "0.1.0"

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	configMgr *config.Manager
	session   *session.Session
	preview   *output.PreviewOutput
	stream    *output.MJPEGStream
	upgrader  websocket.Upgrader
	http      *http.Server
}

// NewServer creates an API server for a session. preview and stream may be
// nil when the preview is disabled.
func NewServer(configMgr *config.Manager, sess *session.Session, preview *output.PreviewOutput, stream *output.MJPEGStream) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		configMgr: configMgr,
		session:   sess,
		preview:   preview,
		stream:    stream,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/blocks", s.handleChangedBlocks).Methods("GET")
	api.HandleFunc("/blocks/{col:-?[0-9]+}/{row:-?[0-9]+}", s.handleBlock).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)

	if s.preview != nil {
		api.HandleFunc("/overlays", s.handleGetOverlays).Methods("GET")
		api.HandleFunc("/overlays", s.handleReplaceOverlays).Methods("PUT")
		api.HandleFunc("/overlays", s.handleAddOverlay).Methods("POST")
		api.HandleFunc("/overlays/{id}", s.handleUpdateOverlay).Methods("PUT")
		api.HandleFunc("/overlays/{id}", s.handleRemoveOverlay).Methods("DELETE")
	}

	if s.stream != nil {
		s.router.HandleFunc("/stream", s.stream.Handler()).Methods("GET")
		s.router.HandleFunc("/snapshot.jpg", s.stream.SnapshotHandler()).Methods("GET")
	}
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves HTTP on port until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.WithComponent("api").Info().Msgf("Starting server on http://localhost%s", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

// sessionStatus is the body of /api/session
type sessionStatus struct {
	Session session.Stats        `json:"session"`
	Preview *output.PreviewStats `json:"preview,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	status := sessionStatus{Session: s.session.Stats()}
	if s.preview != nil {
		st := s.preview.Stats()
		status.Preview = &st
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleChangedBlocks(w http.ResponseWriter, r *http.Request) {
	changed := s.session.Changed()
	if changed == nil {
		changed = []screen.BlockCoord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"block_size": s.session.Stats().BlockSize,
		"changed":    changed,
	})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	col, err := strconv.Atoi(vars["col"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	row, err := strconv.Atoi(vars["row"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := s.session.Block(col, row)
	switch {
	case errors.Is(err, screen.ErrOutOfRange):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Block-Size", strconv.Itoa(s.session.Stats().BlockSize))
	w.Write(data)
}

// overlayState is the body of /api/overlays
type overlayState struct {
	Enabled bool                   `json:"enabled"`
	Widgets []config.OverlayConfig `json:"widgets"`
}

func (s *Server) overlayState() overlayState {
	m := s.preview.Overlays()
	return overlayState{Enabled: m.IsEnabled(), Widgets: m.Specs()}
}

func (s *Server) handleGetOverlays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.overlayState())
}

// handleReplaceOverlays toggles the overlay and, when widgets is present,
// replaces every widget
func (s *Server) handleReplaceOverlays(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool                   `json:"enabled"`
		Widgets *[]config.OverlayConfig `json:"widgets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	m := s.preview.Overlays()
	if req.Widgets != nil {
		if err := m.Replace(*req.Widgets); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Enabled != nil {
		m.SetEnabled(*req.Enabled)
	}
	writeJSON(w, http.StatusOK, s.overlayState())
}

func (s *Server) handleAddOverlay(w http.ResponseWriter, r *http.Request) {
	var spec config.OverlayConfig
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if spec.ID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing overlay id"))
		return
	}

	widget, err := overlay.NewWidget(spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.preview.Overlays().AddWidget(widget); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusCreated, overlay.Spec(widget))
}

func (s *Server) handleUpdateOverlay(w http.ResponseWriter, r *http.Request) {
	var settings map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	spec, err := s.preview.Overlays().UpdateWidget(mux.Vars(r)["id"], settings)
	switch {
	case errors.Is(err, overlay.ErrWidgetNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
	default:
		writeJSON(w, http.StatusOK, spec)
	}
}

func (s *Server) handleRemoveOverlay(w http.ResponseWriter, r *http.Request) {
	if err := s.preview.Overlays().RemoveWidget(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// event is one message on the events websocket
type event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	// subscribe before the upgrade completes so no frame is missed
	frames := s.session.Subscribe()
	defer s.session.Unsubscribe(frames)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	send := func(ev event) error {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	if err := send(event{Type: "session", Data: s.session.Stats()}); err != nil {
		log.Warn().Err(err).Msg("WebSocket write error")
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := send(event{Type: "frame", Data: frame}); err != nil {
				log.Warn().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>blockcast</title>
    <style>
        body { font-family: monospace; margin: 20px; background: #1e1e1e; color: #d4d4d4; }
        img { max-width: 100%; border: 1px solid #444; }
        a { color: #569cd6; }
        #events { height: 12em; overflow-y: auto; font-size: 12px; }
    </style>
</head>
<body>
    <h1>blockcast</h1>
    <img src="/stream" alt="preview">
    <p>
        <a href="/api/health">health</a> |
        <a href="/api/session">session</a> |
        <a href="/api/blocks">changed blocks</a> |
        <a href="/api/config">config</a> |
        <a href="/api/overlays">overlays</a> |
        <a href="/snapshot.jpg">snapshot</a>
    </p>
    <pre id="events"></pre>
    <script>
        const out = document.getElementById('events');
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/events');
        ws.onmessage = (msg) => {
            const ev = JSON.parse(msg.data);
            if (ev.type !== 'frame') return;
            const f = ev.data;
            out.textContent = '#' + f.number + (f.key ? ' key ' : ' ') + (f.blocks || []).length + ' blocks\n' + out.textContent.slice(0, 4000);
        };
    </script>
</body>
</html>`
