package document

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Persistence is the external durable store for document content.
type Persistence interface {
	// Load reads every persisted document. Called once at startup.
	Load() (map[string]string, error)
	// Save durably rewrites the full content of one document.
	Save(filename, content string) error
}

// FSStore persists each document as one UTF-8 file under a root directory,
// file name equal to the document name.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed and returns a store over it.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create document root %s failed", root)
	}
	return &FSStore{root: root}, nil
}

// Load reads every regular file under the root into a filename->content map.
func (f *FSStore) Load() (map[string]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, errors.Wrapf(err, "read document root %s failed", f.root)
	}
	docs := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.root, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read document %s failed", entry.Name())
		}
		docs[entry.Name()] = string(data)
	}
	return docs, nil
}

// Save rewrites the full file for the named document.
func (f *FSStore) Save(filename, content string) error {
	if err := ValidFilename(filename); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(f.root, filename), []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "write document %s failed", filename)
	}
	return nil
}

// ValidFilename rejects names that would escape the document root.
func ValidFilename(filename string) error {
	if filename == "" || filename == "." || filename == ".." {
		return errors.Wrapf(ErrBadFilename, "%q", filename)
	}
	if strings.ContainsAny(filename, `/\`) {
		return errors.Wrapf(ErrBadFilename, "%q contains a path separator", filename)
	}
	return nil
}
