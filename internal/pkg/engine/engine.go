package engine

import (
	"sync"

	"syncpad/internal/pkg/document"
	"syncpad/internal/pkg/tracker"

	"github.com/pkg/errors"
)

// Engine owns the document store and the active-editor tracker behind a
// single mutex; it is the only place the two are mutated. Each method
// runs its read-modify-persist sequence entirely inside the critical
// section and returns the recipient snapshots the caller needs for
// broadcasting, which must happen after the method returns so a slow
// peer cannot stall edits from other connections.
//
// Because the persistence write for an edit happens inside the critical
// section, no other connection can observe in-memory content that has
// not been durably written, and concurrent edits to one document commit
// in lock-grant order.
type Engine struct {
	mu      sync.Mutex
	store   *document.Store
	editors *tracker.Tracker
}

// Cfg configures an Engine.
type Cfg func(*Engine) error

// WithStore sets the document store.
func WithStore(store *document.Store) Cfg {
	return func(e *Engine) error {
		e.store = store
		return nil
	}
}

// NewEngine creates a new Engine with the given configuration.
func NewEngine(cfgs ...Cfg) (*Engine, error) {
	eng := &Engine{
		editors: tracker.NewTracker(),
	}
	for _, cfg := range cfgs {
		if err := cfg(eng); err != nil {
			return nil, errors.Wrap(err, "apply Engine cfg failed")
		}
	}
	if eng.store == nil {
		return nil, errors.New("document store is required")
	}
	return eng, nil
}

// Files returns a sorted snapshot of the known document names.
func (e *Engine) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Filenames()
}

// Open resolves a GET: the document is created empty and persisted if
// absent, and the user joins its active-editor set. Returns the content
// for the requester and the new editor set for the membership broadcast.
func (e *Engine) Open(filename, username string) (string, []string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	content, _, err := e.store.Ensure(filename)
	if err != nil {
		return "", nil, errors.Wrapf(err, "open %q failed", filename)
	}
	e.editors.Join(filename, username)
	return content, e.editors.EditorsOf(filename), nil
}

// Edit applies a last-write-wins overwrite of the document, persisting
// before the in-memory update. Returns the active editors of the
// document minus the sender, the recipients of the UPDATE broadcast.
func (e *Engine) Edit(filename, content, username string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Put(filename, content); err != nil {
		return nil, errors.Wrapf(err, "edit %q failed", filename)
	}
	recipients := make([]string, 0)
	for _, editor := range e.editors.EditorsOf(filename) {
		if editor != username {
			recipients = append(recipients, editor)
		}
	}
	return recipients, nil
}

// CloseEdit removes the user from the document's active-editor set and
// returns the remaining editors for the membership broadcast. A no-op
// for documents or users that are not tracked.
func (e *Engine) CloseEdit(filename, username string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.editors.Leave(filename, username)
	return e.editors.EditorsOf(filename)
}

// Disconnect removes the user from every active-editor set and returns,
// per affected document, the snapshot of its remaining editors so the
// caller can notify them. Atomic with respect to concurrent joins and
// leaves, so no ghost entry survives a disconnect race.
func (e *Engine) Disconnect(username string) map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editors.LeaveAll(username)
}
