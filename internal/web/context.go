package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/carteras/internal/core"
	"github.com/JonMunkholm/carteras/internal/logging"
)

// sessionContext tags the request context with the {id} URL parameter so
// every log line of the request carries the session id.
func sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chi.URLParam(r, "id"); id != "" {
			r = r.WithContext(logging.WithSession(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// sessionID parses the {id} URL parameter. Malformed ids are reported as
// unknown sessions.
func sessionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", core.ErrSessionNotFound, raw)
	}
	return id, nil
}
