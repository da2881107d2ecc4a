// Package session implements the per-connection protocol state machine.
//
// Each accepted connection gets one Handler, which moves through three
// states:
//
//	1. Unauthenticated: only HELLO is accepted. Registration binds the
//	   username to this connection in the client registry; a duplicate
//	   username is rejected and the connection closed, so every binding
//	   has exactly one owner. Anything else gets an ERROR reply and the
//	   connection keeps waiting for HELLO.
//	2. Active: FILES, GET, EDIT and CLOSE_EDIT are accepted in any order,
//	   any number of times. Every state mutation goes through the engine
//	   under its lock; the broadcast fan-out driven by the returned
//	   snapshots runs afterwards, outside the lock.
//	3. Closed: terminal. The handler unregisters the username, leaves
//	   every active-editor set, and notifies the remaining editors of
//	   each affected document. The same cleanup runs whether the exit
//	   was a clean close, a transport error, or a rejected duplicate
//	   HELLO.
//
// Malformed frames are rejected individually with an ERROR reply and
// never terminate the connection; a read returning no more data is
// always treated as a clean disconnect.
package session
