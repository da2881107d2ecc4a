package document

import (
	"sort"

	"github.com/pkg/errors"
)

// Store is the in-memory document map, the single source of truth for
// reads and edits. Every mutation writes through to the persistence
// layer before touching memory, so the in-memory content always equals
// the last durably written content.
//
// Store does no locking of its own; the engine serializes all access
// behind its mutex.
type Store struct {
	docs    map[string]string
	persist Persistence
}

// Cfg configures a Store.
type Cfg func(*Store) error

// WithPersistence sets the durable store documents are written through to.
func WithPersistence(p Persistence) Cfg {
	return func(s *Store) error {
		s.persist = p
		return nil
	}
}

// NewStore creates a Store and seeds it from the persistence layer.
func NewStore(cfgs ...Cfg) (*Store, error) {
	store := &Store{
		docs: make(map[string]string),
	}
	for _, cfg := range cfgs {
		if err := cfg(store); err != nil {
			return nil, errors.Wrap(err, "apply Store cfg failed")
		}
	}
	if store.persist == nil {
		return nil, errors.New("persistence is required")
	}
	docs, err := store.persist.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load documents failed")
	}
	for filename, content := range docs {
		store.docs[filename] = content
	}
	return store, nil
}

// Get returns the current content of the named document.
func (s *Store) Get(filename string) (string, error) {
	content, ok := s.docs[filename]
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "%q", filename)
	}
	return content, nil
}

// Put overwrites the document unconditionally (last-write-wins). The
// content is persisted first; on a persistence error the in-memory map
// is left untouched.
func (s *Store) Put(filename, content string) error {
	if err := ValidFilename(filename); err != nil {
		return err
	}
	if err := s.persist.Save(filename, content); err != nil {
		return errors.Wrap(err, "persist document failed")
	}
	s.docs[filename] = content
	return nil
}

// Ensure returns the existing content, or creates the document with
// empty content and persists it if absent. The second return reports
// whether the document was created by this call.
func (s *Store) Ensure(filename string) (string, bool, error) {
	if content, ok := s.docs[filename]; ok {
		return content, false, nil
	}
	if err := s.Put(filename, ""); err != nil {
		return "", false, err
	}
	return "", true, nil
}

// Filenames returns a sorted snapshot of the known document names.
func (s *Store) Filenames() []string {
	names := make([]string, 0, len(s.docs))
	for filename := range s.docs {
		names = append(names, filename)
	}
	sort.Strings(names)
	return names
}
