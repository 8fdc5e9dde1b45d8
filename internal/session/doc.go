// Package session coordinates documents, runs and review.
//
// A Coordinator owns every open document: its text buffer, its undo history,
// the run in flight and the debounced write-back to disk. It drives runs
// against the reasoning service and feeds the streamed edits into the review
// ledger, which keeps them pending until the user accepts or rejects them.
//
// # Runs
//
// A document has at most one run in flight:
//
//	idle -> sending -> streaming -> completed | failed | cancelled
//
// The run's edits address the buffer text it was sent with. Transport
// failures are retried with exponential backoff; a reconnect that replays
// the stream from the start does not apply the same edit twice.
//
//	c := session.New(session.Options{Client: client, Docs: docs, Trail: trail, Bus: bus})
//	if _, err := c.Open(ctx, "main.tex"); err != nil {
//		return err
//	}
//	run, err := c.Run(ctx, "main.tex", session.Instruction{Prompt: "tighten the proof"})
//
// When a finished run's changes are all resolved, its status becomes
// accepted, or rejected if any change was rejected.
//
// # Concurrency
//
// One mutex guards all buffers and the ledger. Network reads, context
// assembly and file writes run outside it. Events are published while the
// mutex is held so subscribers see them in mutation order; subscribers
// must not call back into the Coordinator synchronously.
package session
