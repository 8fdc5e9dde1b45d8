package server

import (
	"net/http"
	"strings"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/session"
	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// RunRequest submits an instruction for a document.
type RunRequest struct {
	Path string `json:"path"`
	session.Instruction
}

// listRuns handles GET /run
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	runs, err := s.coordinator.Runs(r.Context(), path)
	if err != nil {
		writeErr(w, err)
		return
	}
	if runs == nil {
		runs = []*types.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// submitRun handles POST /run. The run continues in the background; its
// progress is streamed on /event.
func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := cleanPath(w, req.Path)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required")
		return
	}
	run, err := s.coordinator.Submit(path, req.Instruction)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// abortRun handles POST /run/abort
func (s *Server) abortRun(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := cleanPath(w, req.Path)
	if !ok {
		return
	}
	if err := s.coordinator.Abort(path); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

// listMessages handles GET /message
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	msgs, err := s.coordinator.Messages(r.Context(), path)
	if err != nil {
		writeErr(w, err)
		return
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// getConfig handles GET /config. Secrets are not returned.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	if s.appConfig == nil {
		writeJSON(w, http.StatusOK, types.Config{})
		return
	}
	cfg := *s.appConfig
	if cfg.Reasoning != nil {
		reasoning := *cfg.Reasoning
		if reasoning.APIKey != "" {
			reasoning.APIKey = "********"
		}
		cfg.Reasoning = &reasoning
	}
	writeJSON(w, http.StatusOK, cfg)
}
