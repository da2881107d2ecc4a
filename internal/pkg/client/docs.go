// Package client implements the terminal client for the sync service.
//
// The client performs the following steps:
//	1. Connects to the server's websocket endpoint.
//	2. Sends HELLO with the configured username and waits for the
//	   welcome reply; an ERROR reply means the username is taken and the
//	   client gives up.
//	3. Prints pushed events (UPDATE, ACTIVE_EDITORS, FILES, CONTENT,
//	   INFO, ERROR) as they arrive.
//	4. Reads commands from the terminal: files, open <file>,
//	   edit <file> <text>, close <file>, exit.
//
// The rendering here is deliberately minimal; the client is a thin
// collaborator around the protocol, and the programmatic operations
// (Open, Edit, CloseEdit, Files, Messages) are what the integration
// tests drive.
package client
