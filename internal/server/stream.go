package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// handleStream serves the live commentary as Server-Sent Events. Each
// broadcast message becomes one `data:` frame. The subscription lasts until
// the client disconnects or the broadcaster shuts down; a subscriber that
// cannot keep up silently loses messages rather than slowing anyone down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.selector.Current(); !ok {
		writeError(w, http.StatusServiceUnavailable, "no active source")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub, unsubscribe, err := s.broadcaster.Subscribe()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stream shutting down")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	s.metrics.Subscribers.Add(ctx, 1)
	defer s.metrics.Subscribers.Add(ctx, -1)
	slog.Debug("stream subscriber connected", "remote", r.RemoteAddr)

	for {
		select {
		case msg, open := <-sub:
			if !open {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				slog.Error("marshal stream event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			slog.Debug("stream subscriber disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}
