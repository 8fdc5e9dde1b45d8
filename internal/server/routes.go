package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w)
	})

	// Workspace files
	r.Route("/file", func(r chi.Router) {
		r.Get("/", s.listFiles)
		r.Get("/content", s.readFile)
	})

	// Open documents
	r.Route("/document", func(r chi.Router) {
		r.Get("/", s.listDocuments)
		r.Post("/", s.openDocument)
		r.Get("/state", s.getDocument)
		r.Delete("/", s.closeDocument)
		r.Post("/activate", s.activateDocument)
		r.Post("/edit", s.editDocument)
		r.Post("/undo", s.undoDocument)
		r.Post("/redo", s.redoDocument)
		r.Post("/select", s.selectDocument)
		r.Post("/save", s.saveDocument)
	})

	// Runs
	r.Route("/run", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Post("/", s.submitRun)
		r.Post("/abort", s.abortRun)
	})
	r.Get("/message", s.listMessages)

	// Review
	r.Route("/change", func(r chi.Router) {
		r.Get("/", s.listChanges)
		r.Get("/current", s.currentChange)
		r.Get("/{changeID}", s.getChange)
		r.Post("/accept", s.acceptChanges)
		r.Post("/reject", s.rejectChanges)
		r.Post("/next", s.nextChange)
		r.Post("/prev", s.prevChange)
		r.Post("/focus", s.focusChange)
	})

	// Event streaming (SSE)
	r.Get("/event", s.events)

	r.Get("/config", s.getConfig)
}
