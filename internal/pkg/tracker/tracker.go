// Package tracker maintains the per-document set of active editors:
// users who have opened a document (GET) and not yet closed it
// (CLOSE_EDIT or disconnect). Edit broadcasts are scoped to this set,
// which bounds fan-out to the clients that actually hold the document
// open rather than every registered connection.
package tracker

import "sort"

// Tracker maps each filename to the set of usernames currently editing
// it. Empty sets are pruned so absence of a key means no active
// editors. Tracker does no locking of its own; the engine serializes
// all access behind its mutex.
type Tracker struct {
	editors map[string]map[string]struct{}
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		editors: make(map[string]map[string]struct{}),
	}
}

// Join adds the user to the document's editor set, creating the set if
// absent. Idempotent.
func (t *Tracker) Join(filename, username string) {
	set, ok := t.editors[filename]
	if !ok {
		set = make(map[string]struct{})
		t.editors[filename] = set
	}
	set[username] = struct{}{}
}

// Leave removes the user from the document's editor set, pruning the
// set if it becomes empty. Idempotent; safe if the document or user is
// absent.
func (t *Tracker) Leave(filename, username string) {
	set, ok := t.editors[filename]
	if !ok {
		return
	}
	delete(set, username)
	if len(set) == 0 {
		delete(t.editors, filename)
	}
}

// EditorsOf returns a sorted snapshot of the document's editor set,
// possibly empty.
func (t *Tracker) EditorsOf(filename string) []string {
	set := t.editors[filename]
	editors := make([]string, 0, len(set))
	for username := range set {
		editors = append(editors, username)
	}
	sort.Strings(editors)
	return editors
}

// LeaveAll removes the user from every editor set and returns, for each
// document the user was editing, the snapshot of its remaining editors.
// Called on disconnect so the caller can notify the remaining editors
// of each affected document.
func (t *Tracker) LeaveAll(username string) map[string][]string {
	affected := make(map[string][]string)
	for filename, set := range t.editors {
		if _, ok := set[username]; !ok {
			continue
		}
		t.Leave(filename, username)
		affected[filename] = t.EditorsOf(filename)
	}
	return affected
}
