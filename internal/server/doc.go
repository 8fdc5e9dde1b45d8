// Package server provides the HTTP API of the edit engine.
//
// The API is a thin layer over session.Coordinator. Documents are addressed
// by their workspace-relative path, passed as ?path= on reads and as a
// "path" field in request bodies.
//
// # API Endpoints
//
//   - /file: workspace listing and raw file content
//   - /document: open, close, edit, undo, redo, select and save documents
//   - /run: submit, abort and list runs
//   - /message: chat history of a document
//   - /change: list, accept, reject and navigate pending changes
//   - /event: real-time event streaming via SSE
//   - /config: the effective configuration, secrets redacted
//
// # Usage Example
//
//	srv := server.New(server.DefaultConfig(), appConfig, coordinator, docs, bus)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
//
// # SSE
//
// /event streams every bus event as {"type": ..., "properties": ...}, with
// a heartbeat comment every 30 seconds. Slow clients lose events rather
// than stall the engine; they can resynchronize from /document/state.
package server
