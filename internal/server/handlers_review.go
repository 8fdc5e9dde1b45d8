package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/review"
)

// ReviewRequest selects changes to resolve: explicit ids, every pending
// change of a run, or every pending change of a document, in that order of
// precedence.
type ReviewRequest struct {
	IDs   []string `json:"ids,omitempty"`
	RunID string   `json:"runID,omitempty"`
	Path  string   `json:"path,omitempty"`
}

// FocusRequest moves the review cursor.
type FocusRequest struct {
	Path string `json:"path"`
	ID   string `json:"id"`
}

// NavigationResponse is the change under the review cursor, if any.
type NavigationResponse struct {
	Change *review.Change `json:"change"`
}

// listChanges handles GET /change
func (s *Server) listChanges(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	changes, err := s.coordinator.Pending(path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

// getChange handles GET /change/{changeID}
func (s *Server) getChange(w http.ResponseWriter, r *http.Request) {
	ch, err := s.coordinator.Change(chi.URLParam(r, "changeID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// acceptChanges handles POST /change/accept
func (s *Server) acceptChanges(w http.ResponseWriter, r *http.Request) {
	s.resolveChanges(w, r, s.coordinator.Accept, s.coordinator.AcceptRun, s.coordinator.AcceptAll)
}

// rejectChanges handles POST /change/reject
func (s *Server) rejectChanges(w http.ResponseWriter, r *http.Request) {
	s.resolveChanges(w, r, s.coordinator.Reject, s.coordinator.RejectRun, s.coordinator.RejectAll)
}

func (s *Server) resolveChanges(
	w http.ResponseWriter,
	r *http.Request,
	byID func(...string) ([]review.Change, error),
	byRun func(string) ([]review.Change, error),
	byPath func(string) ([]review.Change, error),
) {
	var req ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		resolved []review.Change
		err      error
	)
	switch {
	case len(req.IDs) > 0:
		resolved, err = byID(req.IDs...)
	case req.RunID != "":
		resolved, err = byRun(req.RunID)
	case req.Path != "":
		path, ok := cleanPath(w, req.Path)
		if !ok {
			return
		}
		resolved, err = byPath(path)
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "ids, runID or path is required")
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	if resolved == nil {
		resolved = []review.Change{}
	}
	writeJSON(w, http.StatusOK, resolved)
}

// currentChange handles GET /change/current
func (s *Server) currentChange(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	s.writeNavigation(w, path, s.coordinator.Current)
}

// nextChange handles POST /change/next
func (s *Server) nextChange(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if path, ok := cleanPath(w, req.Path); ok {
		s.writeNavigation(w, path, s.coordinator.Next)
	}
}

// prevChange handles POST /change/prev
func (s *Server) prevChange(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if path, ok := cleanPath(w, req.Path); ok {
		s.writeNavigation(w, path, s.coordinator.Prev)
	}
}

// focusChange handles POST /change/focus
func (s *Server) focusChange(w http.ResponseWriter, r *http.Request) {
	var req FocusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := cleanPath(w, req.Path)
	if !ok {
		return
	}
	if err := s.coordinator.Focus(path, req.ID); err != nil {
		writeErr(w, err)
		return
	}
	s.writeNavigation(w, path, s.coordinator.Current)
}

func (s *Server) writeNavigation(w http.ResponseWriter, path string, step func(string) (review.Change, bool, error)) {
	ch, ok, err := step(path)
	if err != nil {
		writeErr(w, err)
		return
	}
	var resp NavigationResponse
	if ok {
		resp.Change = &ch
	}
	writeJSON(w, http.StatusOK, resp)
}
