package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/panchalshubham0608/securekey/internal/audit"
	"github.com/panchalshubham0608/securekey/internal/auth"
	"github.com/panchalshubham0608/securekey/internal/vault"
	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return auth.AuthRequired(s.signer)(next)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.rl.signupIP.allow(getClientIP(r)) {
		tooMany(w, s.rl.signupIP.retryAfter())
		return
	}
	var req credentialsReq
	if !decodeJSON(w, r, &req) {
		return
	}
	id, sess, err := s.app.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issue(w, http.StatusCreated, id, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.rl.loginIP.allow(getClientIP(r)) {
		tooMany(w, s.rl.loginIP.retryAfter())
		return
	}
	var req credentialsReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.rl.loginID.allow(strings.ToLower(strings.TrimSpace(req.Email))) {
		tooMany(w, s.rl.loginID.retryAfter())
		return
	}
	id, sess, err := s.app.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, vaulterr.ErrValidation) || errors.Is(err, vaulterr.ErrCrypto) {
		httpError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issue(w, http.StatusOK, id, sess)
}

func (s *Server) issue(w http.ResponseWriter, code int, id auth.Identity, sess *vault.Session) {
	tok, exp, err := s.signer.IssueToken(id)
	if err != nil {
		s.app.Lock(sess)
		httpError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	s.putSession(id, sess)
	writeJSONStatus(w, code, auth.LoginResponse{UID: id.UID, Token: tok, ExpiresAt: exp})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.MustClaims(r)
	if err != nil {
		httpError(w, http.StatusUnauthorized, "no auth context")
		return
	}
	s.dropSession(claims.Sub)
	s.signer.Revoke(claims)
	s.app.Audit.Append(claims.Sub, audit.SignedOut, "")
	w.WriteHeader(http.StatusNoContent)
}
