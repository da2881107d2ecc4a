package session

import (
	"sync"
	"time"

	"syncpad/internal/pkg/protocol"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// DefaultWriteTimeout bounds how long a single outbound send may block
// on a slow peer.
const DefaultWriteTimeout = 10 * time.Second

// Conn is a reliable, ordered message channel to one client. Send must
// be safe for concurrent use and must preserve per-connection order.
type Conn interface {
	// ReadFrame blocks for the next inbound frame. An error means the
	// connection is gone (clean close included).
	ReadFrame() ([]byte, error)
	Send(msg *protocol.Message) error
	Close() error
}

// WSConn adapts a gorilla websocket connection to Conn. Writes are
// serialized by a mutex because the websocket connection allows only
// one concurrent writer, which also gives each recipient a stable
// delivery order.
type WSConn struct {
	ws           *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

// NewWSConn wraps an established websocket connection.
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{
		ws:           ws,
		writeTimeout: DefaultWriteTimeout,
	}
}

// ReadFrame returns the payload of the next text frame.
func (c *WSConn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, errors.Wrap(err, "read frame failed")
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

// Send writes one message as a single text frame.
func (c *WSConn) Send(msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return errors.Wrap(err, "encode message failed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return errors.Wrap(err, "set write deadline failed")
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "write frame failed")
	}
	return nil
}

// Close closes the underlying connection.
func (c *WSConn) Close() error {
	return c.ws.Close()
}
