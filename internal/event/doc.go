/*
Package event provides a pub/sub event system for the ProofMesh engine.

Publishers emit events and subscribers react to them without direct
dependencies. The session coordinator publishes with PublishSync so every
subscriber observes events in the order they happened; subscribers that do
slow work hand events off to their own goroutine or channel.

# Event Types

Document events:
  - document.opened, document.closed: a document entered or left the registry
  - document.updated: buffer text changed (user edit, engine edit, undo, reload)
  - document.saved: autosave wrote the buffer
  - document.save_failed: autosave failed; retried on the next debounce cycle
  - document.changed_on_disk: the file changed outside the engine

Run events:
  - run.updated: a run changed status, summary, steps or error
  - run.thought: an ephemeral "Thinking:" note arrived
  - run.reviewed: every change of a finished run has been resolved

Change events:
  - change.added: an edit became a pending change
  - change.resolved: a change was accepted or rejected

# Watermill

The bus owns a watermill GoChannel. It is not used for direct subscribers;
queue-style consumers that need acknowledgement and redelivery, such as the
audit recorder, publish and subscribe on it through PubSub. Watermill's own
logging is routed through zerolog by NewLogger.
*/
package event
