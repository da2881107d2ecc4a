package registry

import "github.com/pkg/errors"

// ErrUsernameTaken indicates a HELLO for a username that already has a live session.
var ErrUsernameTaken = errors.New("username already registered")

// ErrNotRegistered indicates a send to a username with no live session.
var ErrNotRegistered = errors.New("username not registered")
