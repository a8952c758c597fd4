package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/consultease-core/internal/presence"
)

// facultyIDParam parses the {id} route parameter. It writes a 400 and
// returns false when the id is not a positive integer.
func facultyIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeBadRequest(w, "faculty id must be a positive integer")
		return 0, false
	}
	return id, true
}

// handleListPresence returns the current presence of every known faculty member.
func (s *Server) handleListPresence(w http.ResponseWriter, r *http.Request) {
	if s.presence == nil {
		writeUnavailable(w, "presence tracking is not enabled")
		return
	}

	list, err := s.presence.List(r.Context())
	if err != nil {
		s.logger.Error("listing presence failed", "error", err)
		writeInternalError(w, "failed to list presence")
		return
	}

	available := 0
	for _, p := range list {
		if p.Present {
			available++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"faculty":   list,
		"count":     len(list),
		"available": available,
	})
}

// handleGetPresence returns one faculty member's presence.
func (s *Server) handleGetPresence(w http.ResponseWriter, r *http.Request) {
	if s.presence == nil {
		writeUnavailable(w, "presence tracking is not enabled")
		return
	}
	id, ok := facultyIDParam(w, r)
	if !ok {
		return
	}

	p, err := s.presence.Get(r.Context(), id)
	if errors.Is(err, presence.ErrNotFound) {
		writeNotFound(w, "no presence recorded for faculty "+strconv.Itoa(id))
		return
	}
	if err != nil {
		s.logger.Error("reading presence failed", "faculty_id", id, "error", err)
		writeInternalError(w, "failed to read presence")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handlePresenceHistory returns availability changes, newest first.
// ?limit= caps the number of entries (default 50, max 200).
func (s *Server) handlePresenceHistory(w http.ResponseWriter, r *http.Request) {
	if s.presence == nil {
		writeUnavailable(w, "presence tracking is not enabled")
		return
	}
	id, ok := facultyIDParam(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.presence.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("reading presence history failed", "faculty_id", id, "error", err)
		writeInternalError(w, "failed to read presence history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"faculty_id": id,
		"history":    entries,
		"count":      len(entries),
	})
}
