package client

import "github.com/pkg/errors"

// ErrRejected indicates the server refused the registration, usually
// because the username already has a live session.
var ErrRejected = errors.New("registration rejected")
