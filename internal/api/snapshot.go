package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cti/internal/model"
)

// handleSnapshot returns the whole telephony state.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleSnapshotKind returns one section of the state, e.g. "queues".
func (s *Server) handleSnapshotKind(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	snap := s.engine.Snapshot()
	section, ok := snap.Kind(kind)
	if !ok {
		writeNotFound(w, "unknown snapshot kind "+kind+"; valid kinds: "+joinKinds())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     kind,
		"taken_at": snap.TakenAt,
		kind:       section,
	})
}

func joinKinds() string { return strings.Join(model.Kinds(), ", ") }
