package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/event"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
)

// StreamEvent is the JSON payload of one SSE message.
type StreamEvent struct {
	Type       event.EventType `json:"type"`
	Properties any             `json:"properties"`
}

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second

	// sseBuffer is the per-client backlog before events are dropped.
	sseBuffer = 64
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	// ResponseController reaches through middleware wrappers
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events handles GET /event. With ?path= only events of that document are
// streamed.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("path")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("message", StreamEvent{Type: "server.connected", Properties: map[string]any{}}); err != nil {
		return
	}

	// Publishers hold the coordinator lock, so the subscriber never blocks.
	events := make(chan event.Event, sseBuffer)
	unsub := s.bus.SubscribeAll(func(e event.Event) {
		if filter != "" && eventPath(e) != filter {
			return
		}
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent("message", StreamEvent{Type: e.Type, Properties: e.Data}); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventPath returns the document an event concerns.
func eventPath(e event.Event) string {
	switch data := e.Data.(type) {
	case event.DocumentData:
		return data.Path
	case event.DocumentSavedData:
		return data.Path
	case event.DocumentSaveFailedData:
		return data.Path
	case event.DocumentChangedOnDiskData:
		return data.Path
	case event.RunUpdatedData:
		if data.Info != nil {
			return data.Info.FilePath
		}
	case event.RunThoughtData:
		return data.FilePath
	case event.RunReviewedData:
		return data.FilePath
	case event.ChangeData:
		return data.Change.FilePath
	}
	return ""
}
