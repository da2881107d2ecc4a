package session

import (
	"syncpad/internal/pkg/metrics"
	"syncpad/internal/pkg/protocol"
	"syncpad/internal/pkg/registry"
)

// Broadcast fans a message out to every recipient except exclude. A
// failure for one recipient is logged and counted but never aborts
// delivery to the rest; the registry's own failure accounting decides
// whether a repeatedly unreachable recipient gets evicted. Fan-out
// order across recipients is unspecified, but each recipient's
// connection preserves the order messages were sent to it.
func Broadcast(reg *registry.Registry, recipients []string, msg *protocol.Message, exclude string) {
	for _, recipient := range recipients {
		if recipient == exclude {
			continue
		}
		if err := reg.Send(recipient, msg); err != nil {
			metrics.BroadcastFailuresTotal.Inc()
			logger.WithField("username", recipient).WithError(err).Warn("broadcast send failed")
		}
	}
}

// Cleanup removes a user from every active-editor set and notifies the
// remaining editors of each affected document. It backs the registry's
// send-failure eviction path, which bypasses the handler's own close.
func Cleanup(eng engineDisconnecter, reg *registry.Registry, username string) {
	for filename, editors := range eng.Disconnect(username) {
		Broadcast(reg, editors, protocol.ActiveEditors(filename, editors), "")
	}
}

type engineDisconnecter interface {
	Disconnect(username string) map[string][]string
}
