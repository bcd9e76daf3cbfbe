package server

import (
	"net/http"

	"github.com/panchalshubham0608/securekey/internal/auth"
)

func (s *Server) handlePendingMigration(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r)
	pending, err := s.app.Migration.Pending(r.Context(), id.UID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"pending": pending})
}

// handleRunMigration runs the whole migration inside the request. A
// failed run leaves later entries pending and can be repeated.
func (s *Server) handleRunMigration(w http.ResponseWriter, r *http.Request) {
	var req migrateReq
	if !decodeJSON(w, r, &req) {
		return
	}
	rep, err := s.app.Migrate(r.Context(), sessionFrom(r), req.LegacyPassword, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, rep)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r)
	writeJSON(w, map[string]any{
		"entries":  s.app.Audit.ForUser(id.UID),
		"verified": s.app.Audit.Verify() == nil,
	})
}
