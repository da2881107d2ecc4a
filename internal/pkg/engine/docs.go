// Package engine implements the server-side synchronization core.
//
// The engine is the single serialization point for the two pieces of
// cross-connection mutable state: the document store and the
// active-editor tracker. Session handlers call into it for every
// protocol operation:
//
//	1. FILES reads a snapshot of the document names.
//	2. GET resolves (or creates and persists) the document and joins the
//	   requester to its active-editor set, returning the content and the
//	   membership snapshot to broadcast.
//	3. EDIT persists the new content and then overwrites memory, returning
//	   the active editors of that document minus the sender as the UPDATE
//	   recipients. Users who never opened the document receive nothing.
//	4. CLOSE_EDIT and Disconnect shrink the editor sets and return the
//	   snapshots needed to notify the remaining editors.
//
// All persistence happens inside the engine's critical section so that
// observable in-memory state never runs ahead of the durable state. All
// network sends happen outside of it, driven by the snapshots the
// methods return.
package engine
