// Package registry binds usernames to their live outbound connections
// and is the single place server-initiated messages are pushed through.
package registry

import (
	"sort"
	"sync"

	"syncpad/internal/pkg/protocol"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// DefaultEvictThreshold is the number of consecutive failed sends after
// which a registry entry is evicted.
const DefaultEvictThreshold = 3

// Sink is the outbound side of a client connection. Implementations
// must be safe for concurrent sends and must preserve send order per
// connection. Close tears the connection down so an evicted session's
// handler unblocks and exits.
type Sink interface {
	Send(msg *protocol.Message) error
	Close() error
}

// Registry maps usernames to live connections. A duplicate registration
// is rejected rather than silently replacing the prior binding, so each
// entry is owned by exactly one session handler. A single failed send
// is non-fatal and only counted; once the consecutive-failure threshold
// is reached the entry is evicted, its connection is closed, and the
// eviction handler is invoked so the caller can run the same cleanup as
// a disconnect. Both eviction and Unregister check that the binding
// still belongs to the sink in question, so a stale handler can never
// tear down a newer session that reused its username.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]Sink
	failures  map[string]int
	threshold int
	onEvict   func(username string)
}

// Cfg configures a Registry.
type Cfg func(*Registry) error

// WithEvictThreshold sets the consecutive-failure count that triggers eviction.
func WithEvictThreshold(n int) Cfg {
	return func(r *Registry) error {
		if n < 1 {
			return errors.New("evict threshold must be at least 1")
		}
		r.threshold = n
		return nil
	}
}

// WithEvictHandler sets the callback invoked after an entry is evicted
// for repeated send failures. The callback runs outside the registry
// lock and may call back into the registry.
func WithEvictHandler(fn func(username string)) Cfg {
	return func(r *Registry) error {
		r.onEvict = fn
		return nil
	}
}

// NewRegistry creates a new Registry with the given configuration.
func NewRegistry(cfgs ...Cfg) (*Registry, error) {
	reg := &Registry{
		sessions:  make(map[string]Sink),
		failures:  make(map[string]int),
		threshold: DefaultEvictThreshold,
	}
	for _, cfg := range cfgs {
		if err := cfg(reg); err != nil {
			return nil, errors.Wrap(err, "apply Registry cfg failed")
		}
	}
	return reg, nil
}

// Register binds a username to a live connection. A username with an
// existing binding is rejected with ErrUsernameTaken.
func (r *Registry) Register(username string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[username]; ok {
		return errors.Wrapf(ErrUsernameTaken, "%q", username)
	}
	r.sessions[username] = sink
	r.failures[username] = 0
	return nil
}

// Unregister removes the binding for a username only if it is still
// bound to the given sink, reporting whether it was removed. Safe to
// call if the username is absent. The identity check means a stale
// handler whose binding was evicted, or replaced by a newer session
// for the same username, never removes the live entry.
func (r *Registry) Unregister(username string, sink Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[username]; !ok || current != sink {
		return false
	}
	delete(r.sessions, username)
	delete(r.failures, username)
	return true
}

// Send attempts delivery to one username. A failure is reported to the
// caller and counted; the entry stays registered until the consecutive
// failure threshold is reached, at which point it is evicted and the
// eviction handler runs.
func (r *Registry) Send(username string, msg *protocol.Message) error {
	r.mu.RLock()
	sink, ok := r.sessions[username]
	r.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNotRegistered, "%q", username)
	}
	err := sink.Send(msg)
	if err == nil {
		r.mu.Lock()
		r.failures[username] = 0
		r.mu.Unlock()
		return nil
	}

	r.mu.Lock()
	evicted := false
	// Failures are only charged against the binding the send used; if a
	// newer session took over the username in the meantime it starts
	// with a clean slate.
	if current, stillThere := r.sessions[username]; stillThere && current == sink {
		r.failures[username]++
		if r.failures[username] >= r.threshold {
			delete(r.sessions, username)
			delete(r.failures, username)
			evicted = true
		}
	}
	r.mu.Unlock()

	if evicted {
		logger.WithField("username", username).Warn("evicting client after repeated send failures")
		// Closing the connection unblocks the evicted session's handler
		// so it exits rather than lingering as an unregistered ghost.
		_ = sink.Close()
		if r.onEvict != nil {
			r.onEvict(username)
		}
	}
	return errors.Wrapf(err, "send to %q failed", username)
}

// Usernames returns a sorted snapshot of the registered usernames.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	usernames := make([]string, 0, len(r.sessions))
	for username := range r.sessions {
		usernames = append(usernames, username)
	}
	r.mu.RUnlock()
	sort.Strings(usernames)
	return usernames
}
