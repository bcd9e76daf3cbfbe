package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/panchalshubham0608/securekey/internal/vault"
)

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.Items.List(r.Context(), sessionFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, items)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req itemReq
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.app.Items.Add(r.Context(), sessionFrom(r), vault.NewItem{
		Account:  req.Account,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"id": id})
}

// handleLookupItem returns the password for ?account=&username=.
func (s *Server) handleLookupItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pw, err := s.app.Items.Password(r.Context(), sessionFrom(r), q.Get("account"), q.Get("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"password": pw})
}

// handleGetItem omits the password unless ?reveal=true.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess := sessionFrom(r)
	it, err := s.app.Items.Get(r.Context(), sess, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := itemResp{Item: it}
	if reveal, _ := strconv.ParseBool(r.URL.Query().Get("reveal")); reveal {
		if resp.Password, err = s.app.Items.PasswordByID(r.Context(), sess, id); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.Items.UpdatePassword(r.Context(), sessionFrom(r), mux.Vars(r)["id"], req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"updated": true})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Items.Delete(r.Context(), sessionFrom(r), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleItemHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.app.Items.History(r.Context(), sessionFrom(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, hist)
}
