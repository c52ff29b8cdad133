package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Terminal3D/DLMS-Parser/internal/export"
	"github.com/Terminal3D/DLMS-Parser/internal/history"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// maxIDLen bounds the {id} path parameter; entry IDs are UUIDs.
	maxIDLen = 64
)

// historyListResponse is returned by GET /history.
type historyListResponse struct {
	Count   int             `json:"count"`
	Entries []history.Entry `json:"entries"`
}

// requireHistory writes a 503 and returns false when history is disabled.
func (s *Server) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "parse history is disabled")
		return false
	}
	return true
}

// historyID reads and bounds the {id} path parameter.
func historyID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid history ID")
		return "", false
	}
	return id, true
}

// handleListHistory returns the newest history entries.
//
// Query parameters:
//   - limit: max results (default 50, max 500)
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing history failed", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, http.StatusOK, historyListResponse{
		Count:   len(entries),
		Entries: entries,
	})
}

// handleGetHistory returns one entry.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	id, ok := historyID(w, r)
	if !ok {
		return
	}

	entry, err := s.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeNotFound(w, "history entry not found")
			return
		}
		s.logger.Error("getting history entry failed", "id", id, "error", err)
		writeInternalError(w, "failed to get history entry")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// handleDeleteHistory removes one entry.
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	id, ok := historyID(w, r)
	if !ok {
		return
	}

	if err := s.history.Delete(r.Context(), id); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeNotFound(w, "history entry not found")
			return
		}
		s.logger.Error("deleting history entry failed", "id", id, "error", err)
		writeInternalError(w, "failed to delete history entry")
		return
	}

	s.logger.Debug("history entry deleted", "id", id, "subject", subjectFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleClearHistory removes every entry.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}

	n, err := s.history.Clear(r.Context())
	if err != nil {
		s.logger.Error("clearing history failed", "error", err)
		writeInternalError(w, "failed to clear history")
		return
	}

	s.logger.Info("history cleared", "deleted", n, "subject", subjectFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// handleExportHistory renders a successful entry's messages as a document.
//
// Query parameters:
//   - format: json (default) or xml
func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	id, ok := historyID(w, r)
	if !ok {
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	entry, err := s.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeNotFound(w, "history entry not found")
			return
		}
		s.logger.Error("getting history entry failed", "id", id, "error", err)
		writeInternalError(w, "failed to get history entry")
		return
	}
	if !entry.Success {
		writeError(w, http.StatusConflict, ErrCodeValidation, "history entry has no decoded messages")
		return
	}

	s.writeDocument(w, entry.Messages, format)
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}
