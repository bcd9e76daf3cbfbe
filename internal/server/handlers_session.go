package server

import (
	"context"
	"net/http"

	"github.com/panchalshubham0608/securekey/internal/auth"
	"github.com/panchalshubham0608/securekey/internal/ceremony"
	"github.com/panchalshubham0608/securekey/internal/vault"
	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

type sessionKey struct{}

// requireUnlocked rejects requests from users without an unlocked vault
// and passes the session on in the request context.
func (s *Server) requireUnlocked(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFrom(r)
		if !ok {
			httpError(w, http.StatusUnauthorized, "no auth context")
			return
		}
		sess, ok := s.session(id.UID)
		if !ok {
			httpError(w, http.StatusLocked, "vault is locked")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *vault.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*vault.Session)
	return sess
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r)
	_, unlocked := s.session(id.UID)
	writeJSON(w, sessionResp{
		UID:         id.UID,
		Email:       id.Email,
		Unlocked:    unlocked,
		QuickUnlock: s.app.Quick.IsEnabled(r.Context(), id.UID),
	})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r)
	if !s.rl.unlockID.allow(id.UID) {
		tooMany(w, s.rl.unlockID.retryAfter())
		return
	}
	var req unlockReq
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.app.Unlock(r.Context(), id.UID, req.Password)
	if err != nil {
		if vaulterr.KindOf(err) == vaulterr.KindCrypto {
			httpError(w, http.StatusUnauthorized, "unable to unlock vault")
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.putSession(id, sess)
	writeJSON(w, map[string]any{"unlocked": true})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r)
	s.dropSession(id.UID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuickUnlockStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r)
	q := s.app.Quick
	writeJSON(w, quickUnlockStatus{
		Supported: q.IsSupported(),
		Enabled:   q.IsEnabled(r.Context(), id.UID),
		State:     q.State().String(),
	})
}

// handleQuickUnlock unlocks with the device enrollment. The PIN in the
// body answers the authenticator's user-verification prompt.
func (s *Server) handleQuickUnlock(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r)
	if !s.rl.unlockID.allow(id.UID) {
		tooMany(w, s.rl.unlockID.retryAfter())
		return
	}
	var req pinReq
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, ok, err := s.app.QuickUnlock(ceremony.WithPIN(r.Context(), req.PIN), id.UID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		httpError(w, http.StatusNotFound, "quick unlock is not enabled")
		return
	}
	s.putSession(id, sess)
	writeJSON(w, map[string]any{"unlocked": true})
}

func (s *Server) handleQuickUnlockEnable(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r)
	sess, ok := s.session(id.UID)
	if !ok {
		httpError(w, http.StatusLocked, "vault is locked")
		return
	}
	var req pinReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.EnableQuickUnlock(ceremony.WithPIN(r.Context(), req.PIN), id, sess); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuickUnlockDisable(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r)
	if uid, ok := s.app.Quick.EnrolledUID(r.Context()); !ok || uid != id.UID {
		httpError(w, http.StatusNotFound, "quick unlock is not enabled")
		return
	}
	if err := s.app.DisableQuickUnlock(r.Context(), id.UID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
