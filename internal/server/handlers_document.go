package server

import (
	"net/http"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/docstore"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/session"
	"github.com/CarmenSalvado/ProofMesh-sub001/internal/textbuf"
)

// PathRequest names a document.
type PathRequest struct {
	Path string `json:"path"`
}

// EditRequest is a user edit of a document.
type EditRequest struct {
	Path  string        `json:"path"`
	Range textbuf.Range `json:"range"`
	Text  string        `json:"text"`
}

// SelectRequest sets or clears the selection of a document.
type SelectRequest struct {
	Path  string         `json:"path"`
	Range *textbuf.Range `json:"range,omitempty"`
}

// FileContent is a workspace file as stored on disk.
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// queryPath returns the cleaned ?path= parameter, writing a 400 when it is
// missing or invalid.
func queryPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	return cleanPath(w, r.URL.Query().Get("path"))
}

func cleanPath(w http.ResponseWriter, p string) (string, bool) {
	if p == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return "", false
	}
	clean, err := docstore.Clean(p)
	if err != nil {
		writeErr(w, err)
		return "", false
	}
	return clean, true
}

// listFiles handles GET /file
func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	var (
		files []string
		err   error
	)
	if pattern := r.URL.Query().Get("pattern"); pattern != "" {
		files, err = s.docs.Glob(pattern)
	} else {
		files, err = s.docs.List()
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, files)
}

// readFile handles GET /file/content
func (s *Server) readFile(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	content, err := s.docs.Read(path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FileContent{Path: path, Content: content})
}

// listDocuments handles GET /document
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Documents())
}

// openDocument handles POST /document
func (s *Server) openDocument(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := cleanPath(w, req.Path)
	if !ok {
		return
	}
	info, err := s.coordinator.Open(r.Context(), path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// getDocument handles GET /document/state
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	info, err := s.coordinator.Document(path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// closeDocument handles DELETE /document
func (s *Server) closeDocument(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	if err := s.coordinator.Close(path); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

// activateDocument handles POST /document/activate
func (s *Server) activateDocument(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := cleanPath(w, req.Path)
	if !ok {
		return
	}
	if err := s.coordinator.Activate(path); err != nil {
		writeErr(w, err)
		return
	}
	s.writeDocument(w, path)
}

// editDocument handles POST /document/edit
func (s *Server) editDocument(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := cleanPath(w, req.Path)
	if !ok {
		return
	}
	info, err := s.coordinator.Edit(path, req.Range, req.Text)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// undoDocument handles POST /document/undo
func (s *Server) undoDocument(w http.ResponseWriter, r *http.Request) {
	s.historyStep(w, r, s.coordinator.Undo)
}

// redoDocument handles POST /document/redo
func (s *Server) redoDocument(w http.ResponseWriter, r *http.Request) {
	s.historyStep(w, r, s.coordinator.Redo)
}

func (s *Server) historyStep(w http.ResponseWriter, r *http.Request, step func(string) (*session.DocumentInfo, error)) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := cleanPath(w, req.Path)
	if !ok {
		return
	}
	info, err := step(path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// selectDocument handles POST /document/select
func (s *Server) selectDocument(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := cleanPath(w, req.Path)
	if !ok {
		return
	}
	var err error
	if req.Range != nil {
		err = s.coordinator.Select(path, *req.Range)
	} else {
		err = s.coordinator.ClearSelection(path)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

// saveDocument handles POST /document/save
func (s *Server) saveDocument(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, ok := cleanPath(w, req.Path)
	if !ok {
		return
	}
	if err := s.coordinator.Save(path); err != nil {
		writeErr(w, err)
		return
	}
	s.writeDocument(w, path)
}

func (s *Server) writeDocument(w http.ResponseWriter, path string) {
	info, err := s.coordinator.Document(path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
