package web

import (
	"encoding/json"
	"net/http"
)

// Envelope codes, shared with existing API clients.
const (
	CodeOK           = 1000
	CodeSystemError  = 1010
	CodeBadRequest   = 1011
	CodeUnauthorized = 1012
)

// envelope wraps every response body.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(env)
	if err != nil {
		// Headers are already written, all we can do is log.
		s.deps.Logger.Error("failed to write response", "path", logPath(r), "error", err)
	}
}

func (s *Server) writeOK(w http.ResponseWriter, r *http.Request, data any) {
	s.writeJSON(w, r, http.StatusOK, envelope{
		Code: CodeOK,
		Msg:  "ok",
		Data: data,
	})
}
