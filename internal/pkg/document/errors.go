package document

import "github.com/pkg/errors"

// ErrNotFound indicates the named document does not exist in the store.
var ErrNotFound = errors.New("document not found")

// ErrBadFilename indicates a document name that is not a single path element.
var ErrBadFilename = errors.New("invalid document filename")
