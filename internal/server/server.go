// Package server exposes the vault over a local HTTP API. Each signed-in
// user holds at most one unlocked session, locked after the configured
// idle timeout.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/panchalshubham0608/securekey/internal/app"
	"github.com/panchalshubham0608/securekey/internal/auth"
	"github.com/panchalshubham0608/securekey/internal/logging"
	"github.com/panchalshubham0608/securekey/internal/vault"
)

type Server struct {
	app    *app.App
	router *mux.Router
	signer *auth.JWTSigner
	log    *log.Logger
	policy vault.Policy
	now    func() time.Time
	rl     limits

	mu       sync.Mutex
	sessions map[string]*userSession
}

func New(a *app.App, opts Options) (*Server, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	signer := opts.Signer
	if signer == nil {
		priv, _, err := auth.GenerateEd25519()
		if err != nil {
			return nil, err
		}
		signer = auth.NewJWTSigner(priv, a.Config.Server.JWTIssuer, a.Config.Server.TokenTTL)
	}
	s := &Server{
		app:      a,
		router:   mux.NewRouter(),
		signer:   signer,
		log:      logging.OrNop(opts.Logger),
		policy:   a.Policy(),
		now:      opts.Now,
		rl:       newLimits(),
		sessions: map[string]*userSession{},
	}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic", "recover", rec, "path", r.URL.Path)
			httpError(w, http.StatusInternalServerError, "internal error")
		}
	}()

	s.addDefaultHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.router.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s
}

func (s *Server) addDefaultHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	w.Header().Set("Cache-Control", "no-store")
}

// Run serves on addr until ctx is cancelled, then shuts down and locks
// every open session.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", addr)

	tick := time.NewTicker(30 * time.Second)
	defer tick.Stop()
	for {
		select {
		case err := <-errc:
			s.lockAll()
			return err
		case <-tick.C:
			s.reapIdle()
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := srv.Shutdown(sctx)
			s.lockAll()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	}
}

func (s *Server) putSession(id auth.Identity, v *vault.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[id.UID]; ok && old.vault != v {
		s.app.Lock(old.vault)
	}
	s.sessions[id.UID] = &userSession{id: id, vault: v, lastUsed: s.now()}
}

// session returns uid's unlocked vault, locking it first if it sat idle
// past the lock timeout.
func (s *Server) session(uid string) (*vault.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	us, ok := s.sessions[uid]
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.idle(us, now) || us.vault.Locked() {
		s.app.Lock(us.vault)
		delete(s.sessions, uid)
		return nil, false
	}
	us.lastUsed = now
	return us.vault, true
}

func (s *Server) dropSession(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if us, ok := s.sessions[uid]; ok {
		s.app.Lock(us.vault)
		delete(s.sessions, uid)
	}
}

func (s *Server) idle(us *userSession, now time.Time) bool {
	return s.policy.LockTimeout > 0 && now.Sub(us.lastUsed) > s.policy.LockTimeout
}

func (s *Server) reapIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for uid, us := range s.sessions {
		if s.idle(us, now) {
			s.app.Lock(us.vault)
			delete(s.sessions, uid)
			s.log.Info("idle session locked", "uid", uid)
		}
	}
}

func (s *Server) lockAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, us := range s.sessions {
		s.app.Lock(us.vault)
		delete(s.sessions, uid)
	}
}
