package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"syncpad/internal/pkg/protocol"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Client connects to a syncpad server, registers a username and exposes
// the protocol operations plus the stream of server-initiated messages.
type Client struct {
	serverURL string
	username  string
	out       io.Writer

	conn     *websocket.Conn
	writeMu  sync.Mutex
	messages chan *protocol.Message
}

// Cfg configures a Client.
type Cfg func(*Client) error

// WithServerURL sets the websocket URL to connect to.
func WithServerURL(url string) Cfg {
	return func(c *Client) error {
		c.serverURL = url
		return nil
	}
}

// WithUsername sets the username sent in the HELLO.
func WithUsername(username string) Cfg {
	return func(c *Client) error {
		c.username = username
		return nil
	}
}

// WithOutput sets where the interactive loop prints server events.
func WithOutput(w io.Writer) Cfg {
	return func(c *Client) error {
		c.out = w
		return nil
	}
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfgs ...Cfg) (*Client, error) {
	client := &Client{
		out:      os.Stdout,
		messages: make(chan *protocol.Message, 64),
	}
	for _, cfg := range cfgs {
		if err := cfg(client); err != nil {
			return nil, errors.Wrap(err, "apply Client cfg failed")
		}
	}
	if client.serverURL == "" || client.username == "" {
		return nil, errors.New("server URL and username are required")
	}
	return client, nil
}

// Connect dials the server, registers the username and starts the
// receive pump. The server's first reply decides the outcome: an ERROR
// means the registration was rejected.
func (c *Client) Connect(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s failed", c.serverURL)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	c.conn = conn

	if err := c.send(protocol.Hello(c.username)); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "send hello failed")
	}
	reply, err := c.read()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "read welcome failed")
	}
	if reply.Type == protocol.TypeError {
		_ = conn.Close()
		return errors.Wrap(ErrRejected, reply.Content)
	}
	logger.WithField("username", c.username).Info(reply.Content)

	go func() {
		defer close(c.messages)
		for {
			msg, err := c.read()
			if err != nil {
				logger.WithError(err).Debug("connection read ended")
				return
			}
			c.messages <- msg
		}
	}()
	return nil
}

// Messages returns the stream of messages pushed by the server. The
// channel is closed when the connection is gone.
func (c *Client) Messages() <-chan *protocol.Message {
	return c.messages
}

// Files requests the server's document list.
func (c *Client) Files() error {
	return c.send(&protocol.Message{Type: protocol.TypeFiles})
}

// Open requests the document's content and joins its active-editor set.
func (c *Client) Open(filename string) error {
	return c.send(&protocol.Message{Type: protocol.TypeGet, Filename: filename})
}

// Edit overwrites the document with new content.
func (c *Client) Edit(filename, content string) error {
	return c.send(&protocol.Message{Type: protocol.TypeEdit, Filename: filename, Content: content})
}

// CloseEdit leaves the document's active-editor set.
func (c *Client) CloseEdit(filename string) error {
	return c.send(&protocol.Message{Type: protocol.TypeCloseEdit, Filename: filename})
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Run drives the interactive terminal loop: server events are printed
// as they arrive, and input lines are parsed as commands.
func (c *Client) Run(ctx context.Context, input io.Reader) error {
	go func() {
		for msg := range c.messages {
			c.printMessage(msg)
		}
	}()

	scanner := bufio.NewScanner(input)
	fmt.Fprintln(c.out, "commands: files | open <file> | edit <file> <text> | close <file> | exit")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		if err := c.runCommand(line); err != nil {
			fmt.Fprintf(c.out, "error: %s\n", err)
		}
	}
	return errors.Wrap(scanner.Err(), "read input failed")
}

func (c *Client) runCommand(line string) error {
	parts := strings.SplitN(line, " ", 3)
	switch parts[0] {
	case "files":
		return c.Files()
	case "open":
		if len(parts) < 2 {
			return errors.New("usage: open <file>")
		}
		return c.Open(parts[1])
	case "edit":
		if len(parts) < 3 {
			return errors.New("usage: edit <file> <text>")
		}
		return c.Edit(parts[1], parts[2])
	case "close":
		if len(parts) < 2 {
			return errors.New("usage: close <file>")
		}
		return c.CloseEdit(parts[1])
	default:
		return errors.Errorf("unknown command %q", parts[0])
	}
}

func (c *Client) printMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeInfo:
		fmt.Fprintln(c.out, msg.Content)
	case protocol.TypeError:
		fmt.Fprintf(c.out, "server error: %s\n", msg.Content)
	case protocol.TypeFiles:
		fmt.Fprintf(c.out, "files: %s\n", strings.Join(msg.Filenames, ", "))
	case protocol.TypeContent:
		fmt.Fprintf(c.out, "--- %s ---\n%s\n", msg.Filename, msg.Content)
	case protocol.TypeUpdate:
		fmt.Fprintf(c.out, "*** %s updated ***\n%s\n", msg.Filename, msg.Content)
	case protocol.TypeActiveEditors:
		fmt.Fprintf(c.out, "editors of %s: %s\n", msg.Filename, strings.Join(msg.Editors, ", "))
	}
}

func (c *Client) send(msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.Wrap(c.conn.WriteMessage(websocket.TextMessage, data), "write message failed")
}

func (c *Client) read() (*protocol.Message, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, errors.Wrap(err, "read message failed")
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, errors.Wrap(err, "decode server message failed")
		}
		return &msg, nil
	}
}
