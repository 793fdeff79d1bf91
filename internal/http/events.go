package http

import (
	"encoding/json"
	"net/http"

	"kharcha/internal/notify"
)

// handleEvents streams change events for the caller's (owner, trip-context)
// pair as server-sent events. Clients reconnect and bulk-load on any gap;
// the stream is a hint channel, not a durable log.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	o, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeStatus(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, err := s.bus.Subscribe(r.Context(), notify.Filter{
		Owner:  o,
		TripID: r.URL.Query().Get("trip"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.logger.ErrorContext(r.Context(), "encode event failed", "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + string(ev.Op) + "\ndata: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
