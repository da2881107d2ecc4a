// Package server exposes the websocket accept surface.
//
// The server performs the following steps:
//	1. Routes GET /ws through the websocket upgrader and spawns one
//	   session handler per accepted connection.
//	2. Serves GET /healthz for liveness checks and GET /metrics for the
//	   prometheus collectors.
//	3. On context cancellation it stops accepting, lets every session
//	   run its disconnect cleanup, and waits for them before returning.
//
// Documents must already be loaded into the engine before Run is
// called; the server itself never touches the document store directly.
package server
