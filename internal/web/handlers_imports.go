package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/carteras/internal/core"
	"github.com/JonMunkholm/carteras/internal/logging"
	"github.com/JonMunkholm/carteras/internal/workbook"
)

// handleCreateImport decodes an uploaded xlsx (form field "file") and
// stages it into a new session.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, fmt.Errorf("%w: limit %d bytes", errFileTooLarge, maxSize))
			return
		}
		respondError(w, r, fmt.Errorf("%w: %w", errNoFile, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	wb, err := workbook.Decode(file, header.Filename)
	if err != nil {
		respondError(w, r, err)
		return
	}

	view, err := s.service.CreateSession(r.Context(), wb)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import staged",
		"session_id", view.ID,
		"file", header.Filename,
		"bytes", header.Size,
	)
	writeJSON(w, r, http.StatusCreated, view)
}

// handleGetImport returns the staged preview.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	view, err := s.service.Session(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleEditHeader applies a partial header edit to sheet {n} (zero-based).
func (s *Server) handleEditHeader(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %q", core.ErrSheetIndex, chi.URLParam(r, "n")))
		return
	}

	var patch core.HeaderPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&patch); err != nil {
		respondError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	sheet, err := s.service.EditHeader(id, n, patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sheet)
}

type startedResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Phase     string `json:"phase,omitempty"`
}

// handleCommit starts a full commit. Progress is read from /progress.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.service.StartCommit(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, startedResponse{SessionID: id.String(), Status: "started"})
}

// handleRunPhase re-runs one phase by name.
func (s *Server) handleRunPhase(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	phase, err := core.ParsePhase(chi.URLParam(r, "phase"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.service.StartPhase(r.Context(), id, phase); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, startedResponse{
		SessionID: id.String(),
		Status:    "started",
		Phase:     phase.String(),
	})
}

type reportResponse struct {
	SessionID string            `json:"session_id"`
	Running   bool              `json:"running"`
	Report    core.CommitReport `json:"report"`
}

// handleReport returns the latest report as JSON, or as the plain-text
// copy-log when ?format=text.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	report, running, err := s.service.Report(id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="import-%s.txt"`, id))
		_, _ = w.Write([]byte(report.String()))
		return
	}
	writeJSON(w, r, http.StatusOK, reportResponse{SessionID: id.String(), Running: running, Report: report})
}

// handleDeleteImport discards an idle session.
func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.service.DeleteSession(id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status  string                   `json:"status"`
	Commits core.CommitLimiterStatus `json:"commits"`
	Error   string                   `json:"error,omitempty"`
}

// handleHealth reports store reachability and commit slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Commits: s.service.LimiterStatus()}
	status := http.StatusOK
	if err := s.service.Ping(r.Context()); err != nil {
		resp.Status = "unavailable"
		resp.Error = core.FormatUserError(err)
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
