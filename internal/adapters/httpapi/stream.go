package httpapi

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// handleStream is the server-push side of the live feed: one connection,
// one hub subscriber. Frames are SSE: `data: <json>\n\n`, starting with a
// synthetic "connected" acknowledgement. The subscription is released on
// every exit path; connection closure is the cancellation signal.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := s.cfg.Hub.Subscribe()
	defer s.cfg.Hub.Unsubscribe(sub.ID)

	log.Debug().Str("subscriber", sub.ID).Str("remote", r.RemoteAddr).Msg("Live stream client connected")

	fmt.Fprintf(w, "data: %q\n\n", "connected")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("subscriber", sub.ID).Msg("Live stream client disconnected")
			return
		case event, open := <-sub.Events():
			if !open {
				// Evicted by the hub for falling behind; close fast so the
				// client can reconnect with a fresh subscription.
				log.Debug().Str("subscriber", sub.ID).Msg("Live stream subscription closed")
				return
			}
			data, err := event.ToJSON()
			if err != nil {
				log.Debug().Err(err).Str("event", event.ID).Msg("Skipping unserializable event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				log.Debug().Err(err).Str("subscriber", sub.ID).Msg("Live stream write failed")
				return
			}
			flusher.Flush()
		}
	}
}
