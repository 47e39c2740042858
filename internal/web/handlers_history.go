package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/carteras/internal/core"
)

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// handleHistory lists recorded commit attempts with pagination.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "page_size", core.DefaultHistoryLimit)

	result, err := s.service.ImportHistory(r.Context(), core.HistoryOptions{
		Limit:  pageSize,
		Offset: (page - 1) * min(pageSize, core.MaxHistoryLimit),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleRun returns one run, as JSON or as the stored text report.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", core.ErrRunNotFound, err))
		return
	}
	run, err := s.service.ImportRun(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.txt"`, id))
		_, _ = w.Write([]byte(run.Report))
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}
