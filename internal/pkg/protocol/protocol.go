package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Type identifies a message on the wire.
type Type string

// Client-to-server message types.
const (
	TypeHello     Type = "HELLO"
	TypeFiles     Type = "FILES"
	TypeGet       Type = "GET"
	TypeEdit      Type = "EDIT"
	TypeCloseEdit Type = "CLOSE_EDIT"
)

// Server-to-client message types.
const (
	TypeInfo          Type = "INFO"
	TypeError         Type = "ERROR"
	TypeContent       Type = "CONTENT"
	TypeUpdate        Type = "UPDATE"
	TypeActiveEditors Type = "ACTIVE_EDITORS"
)

// Message is the JSON envelope exchanged over the websocket.
// One message occupies exactly one text frame, so message boundaries
// are unambiguous on the ordered channel.
type Message struct {
	Type      Type     `json:"type"`
	Username  string   `json:"username,omitempty"`
	Filename  string   `json:"filename,omitempty"`
	Content   string   `json:"content,omitempty"`
	Filenames []string `json:"filenames,omitempty"`
	Editors   []string `json:"editors,omitempty"`
}

// Decode parses a single client frame and checks that the fields
// required by its type are present.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	switch msg.Type {
	case TypeHello:
		if msg.Username == "" {
			return nil, errors.Wrap(ErrMalformed, "hello requires a username")
		}
	case TypeFiles:
	case TypeGet, TypeCloseEdit:
		if msg.Filename == "" {
			return nil, errors.Wrapf(ErrMalformed, "%s requires a filename", msg.Type)
		}
	case TypeEdit:
		if msg.Filename == "" {
			return nil, errors.Wrap(ErrMalformed, "edit requires a filename")
		}
	default:
		return nil, errors.Wrapf(ErrMalformed, "unknown message type %q", msg.Type)
	}
	return &msg, nil
}

// Encode serializes a message to a single frame payload.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message failed")
	}
	return data, nil
}

// Hello builds the client registration message.
func Hello(username string) *Message {
	return &Message{Type: TypeHello, Username: username}
}

// Info builds an informational reply.
func Info(text string) *Message {
	return &Message{Type: TypeInfo, Content: text}
}

// Error builds an error reply for a rejected message or failed operation.
func Error(text string) *Message {
	return &Message{Type: TypeError, Content: text}
}

// Files builds the filename listing reply.
func Files(filenames []string) *Message {
	return &Message{Type: TypeFiles, Filenames: filenames}
}

// Content builds the reply to a GET.
func Content(filename, content string) *Message {
	return &Message{Type: TypeContent, Filename: filename, Content: content}
}

// Update builds the pushed-edit notification for active editors.
func Update(filename, content string) *Message {
	return &Message{Type: TypeUpdate, Filename: filename, Content: content}
}

// ActiveEditors builds the pushed membership-change notification.
func ActiveEditors(filename string, editors []string) *Message {
	return &Message{Type: TypeActiveEditors, Filename: filename, Editors: editors}
}
