package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/carteras/internal/logging"
)

// handleProgress streams commit progress as Server-Sent Events. The first
// event is the latest known state; the stream ends with a "complete" event
// once the run finishes, or right away when nothing is running. Event ids
// are the percentage.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	events, unsubscribe, err := s.service.SubscribeProgress(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	logger := logging.FromContext(r.Context())

	for {
		select {
		case p, ok := <-events:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			data, err := json.Marshal(p)
			if err != nil {
				logger.Error("encode progress", "error", err)
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", p.Percent, data)
			if err := rc.Flush(); err != nil {
				logger.Warn("progress stream closed", "error", err)
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}
