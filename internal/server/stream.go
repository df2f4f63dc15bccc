package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/tellmenow/internal/service"
)

// streamWriteTimeout bounds a single event write on either transport.
const streamWriteTimeout = 10 * time.Second

// sseWriter frames events as server-sent events. Headers are written on the
// first event so a handler can still answer with a JSON error before that.
// Every write gets its own deadline; after a failed or timed out write every
// later event is dropped.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	started bool
	failed  bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w), timeout: streamWriteTimeout}
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	// Watchers may outlive the server's write timeout, so the deadline is
	// extended per write instead.
	_ = s.rc.SetWriteDeadline(time.Now().Add(s.timeout))
	s.w.WriteHeader(http.StatusOK)
	if err := s.rc.Flush(); err != nil {
		s.failed = true
	}
}

// Start writes the stream headers if no event has been sent yet.
func (s *sseWriter) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start()
}

// Started reports whether the stream headers have been written.
func (s *sseWriter) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Send implements service.Emit.
func (s *sseWriter) Send(e service.Event) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		slog.Error("failed to encode event", "event", e.Name, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	s.start()
	if s.failed {
		return
	}

	_ = s.rc.SetWriteDeadline(time.Now().Add(s.timeout))
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Name, data); err != nil {
		s.failed = true
		slog.Debug("dropping event, client gone", "event", e.Name, "error", err)
		return
	}
	if err := s.rc.Flush(); err != nil {
		s.failed = true
	}
}

// wsFrame is one event on the websocket transport.
type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsWriter sends events as JSON websocket messages.
type wsWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	failed bool
}

// Send implements service.Emit.
func (w *wsWriter) Send(e service.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failed {
		return
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := w.conn.WriteJSON(wsFrame{Event: e.Name, Data: e.Data}); err != nil {
		w.failed = true
		slog.Debug("dropping event, websocket closed", "event", e.Name, "error", err)
	}
}

// Close sends a normal closure frame.
func (w *wsWriter) Close() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
