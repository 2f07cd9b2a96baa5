package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/artpar/storedeploy/internal/core/domain"
)

// =============================================================================
// Server-Sent Events
// =============================================================================

// SSE event names.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

// streamWriteTimeout bounds each event write, so a client that stops reading
// is dropped instead of holding the handler.
const streamWriteTimeout = 30 * time.Second

// eventStream writes server-sent events and flushes after each one. After the
// first write error the stream is considered gone and further events are
// dropped.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	mu     sync.Mutex
	broken bool
}

func newEventStream(w http.ResponseWriter, logger *slog.Logger) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher, rc: http.NewResponseController(w), logger: logger}, true
}

// Emit writes a progress event. The ordinal doubles as the SSE id.
func (s *eventStream) Emit(e domain.ProgressEvent) {
	s.send(strconv.FormatUint(e.Ordinal, 10), EventProgress, e)
}

func (s *eventStream) send(id, event string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	// Writers without deadline support (recorders, some wrappers) report
	// http.ErrNotSupported and write unbounded.
	_ = s.rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if id != "" {
		if _, err = fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			s.fail(event, err)
			return
		}
	}
	if _, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		s.fail(event, err)
		return
	}
	s.flusher.Flush()
}

func (s *eventStream) fail(event string, err error) {
	s.broken = true
	s.logger.Warn("event stream closed by client", "event", event, "error", err)
}
