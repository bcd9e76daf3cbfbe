package server

import "net/http"

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/signup", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/unlock", s.handleUnlock).Methods(http.MethodPost)
	api.HandleFunc("/lock", s.handleLock).Methods(http.MethodPost)

	api.HandleFunc("/quick-unlock", s.handleQuickUnlockStatus).Methods(http.MethodGet)
	api.HandleFunc("/quick-unlock", s.handleQuickUnlock).Methods(http.MethodPost)
	api.HandleFunc("/quick-unlock", s.handleQuickUnlockEnable).Methods(http.MethodPut)
	api.HandleFunc("/quick-unlock", s.handleQuickUnlockDisable).Methods(http.MethodDelete)

	items := api.PathPrefix("/items").Subrouter()
	items.Use(s.requireUnlocked)
	items.HandleFunc("", s.handleListItems).Methods(http.MethodGet)
	items.HandleFunc("", s.handleAddItem).Methods(http.MethodPost)
	items.HandleFunc("/lookup", s.handleLookupItem).Methods(http.MethodGet)
	items.HandleFunc("/{id}", s.handleGetItem).Methods(http.MethodGet)
	items.HandleFunc("/{id}", s.handleUpdatePassword).Methods(http.MethodPut)
	items.HandleFunc("/{id}", s.handleDeleteItem).Methods(http.MethodDelete)
	items.HandleFunc("/{id}/history", s.handleItemHistory).Methods(http.MethodGet)

	api.HandleFunc("/migration", s.handlePendingMigration).Methods(http.MethodGet)
	api.Handle("/migration", s.requireUnlocked(http.HandlerFunc(s.handleRunMigration))).Methods(http.MethodPost)

	api.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
