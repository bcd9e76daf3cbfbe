package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/panchalshubham0608/securekey/internal/vaulterr"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, errorResp{Error: msg})
}

// writeError maps the vault error taxonomy onto HTTP status codes. Only
// the public message of a *vaulterr.Error reaches the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *vaulterr.Error
	if !errors.As(err, &ve) {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}
	code := http.StatusInternalServerError
	switch ve.Kind {
	case vaulterr.KindValidation:
		code = http.StatusBadRequest
	case vaulterr.KindNotFound:
		code = http.StatusNotFound
	case vaulterr.KindCrypto:
		code = http.StatusUnprocessableEntity
	case vaulterr.KindDuplicate:
		code = http.StatusConflict
	case vaulterr.KindPlatformAuth:
		code = http.StatusForbidden
	case vaulterr.KindStore:
		code = http.StatusServiceUnavailable
	}
	if code >= 500 {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSONStatus(w, code, errorResp{Error: ve.Msg, Kind: ve.Kind.String()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}

func tooMany(w http.ResponseWriter, retryAfterSeconds int) {
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	httpError(w, http.StatusTooManyRequests, "too many requests")
}
