package protocol

import "github.com/pkg/errors"

// ErrMalformed indicates a frame that could not be parsed into a valid message.
// A malformed frame is rejected on its own; it never terminates the connection.
var ErrMalformed = errors.New("malformed message")
