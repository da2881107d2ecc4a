package session

import (
	"context"
	"fmt"
	"sync"

	"syncpad/internal/pkg/engine"
	"syncpad/internal/pkg/log"
	"syncpad/internal/pkg/metrics"
	"syncpad/internal/pkg/protocol"
	"syncpad/internal/pkg/registry"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// State is the lifecycle state of a connection's handler.
type State int

const (
	// StateUnauthenticated accepts only HELLO.
	StateUnauthenticated State = iota
	// StateActive accepts the full protocol.
	StateActive
	// StateClosed is terminal; cleanup has run.
	StateClosed
)

// Handler runs the protocol state machine for one connection. It owns
// the connection's outbound channel, registers the username on HELLO,
// and funnels every state mutation through the engine. Cleanup
// (unregister plus leaving every active-editor set) runs exactly once
// on any exit path: clean close, transport error, or protocol failure.
type Handler struct {
	id       uuid.UUID
	conn     Conn
	engine   *engine.Engine
	registry *registry.Registry

	state     State
	username  string
	closeOnce sync.Once
}

// Cfg configures a Handler.
type Cfg func(*Handler) error

// WithConn sets the connection the handler serves.
func WithConn(conn Conn) Cfg {
	return func(h *Handler) error {
		h.conn = conn
		return nil
	}
}

// WithEngine sets the synchronization engine.
func WithEngine(eng *engine.Engine) Cfg {
	return func(h *Handler) error {
		h.engine = eng
		return nil
	}
}

// WithRegistry sets the client registry.
func WithRegistry(reg *registry.Registry) Cfg {
	return func(h *Handler) error {
		h.registry = reg
		return nil
	}
}

// NewHandler creates a new Handler with the given configuration.
func NewHandler(cfgs ...Cfg) (*Handler, error) {
	h := &Handler{
		id:    uuid.New(),
		state: StateUnauthenticated,
	}
	for _, cfg := range cfgs {
		if err := cfg(h); err != nil {
			return nil, errors.Wrap(err, "apply Handler cfg failed")
		}
	}
	if h.conn == nil || h.engine == nil || h.registry == nil {
		return nil, errors.New("conn, engine and registry are required")
	}
	return h, nil
}

// Run reads and dispatches messages until the connection closes or the
// context is cancelled, then runs cleanup.
func (h *Handler) Run(ctx context.Context) error {
	defer h.close()

	in := make(chan *protocol.Message)
	go func() {
		defer close(in)
		for {
			frame, err := h.conn.ReadFrame()
			if err != nil {
				logger.WithField("conn", h.id.String()).WithError(err).Debug("connection read ended")
				return
			}
			msg, err := protocol.Decode(frame)
			if err != nil {
				// A frame that cannot be parsed is rejected on its own;
				// the connection stays open.
				logger.WithField("conn", h.id.String()).WithError(err).Warn("rejected malformed message")
				h.reply(protocol.Error(err.Error()))
				continue
			}
			select {
			case in <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			logger.WithField("conn", h.id.String()).WithFields(log.MessageToFields(msg)).Debug("received message")
			if err := h.handleMessage(msg); err != nil {
				return errors.Wrap(err, "handle message failed")
			}
		}
	}
}

// handleMessage dispatches one inbound message. A returned error is
// fatal to the connection; per-message failures are reported to the
// peer and absorbed.
func (h *Handler) handleMessage(msg *protocol.Message) error {
	if h.state == StateUnauthenticated {
		return h.handleHello(msg)
	}
	switch msg.Type {
	case protocol.TypeHello:
		h.reply(protocol.Error("already registered"))
	case protocol.TypeFiles:
		h.reply(protocol.Files(h.engine.Files()))
	case protocol.TypeGet:
		content, editors, err := h.engine.Open(msg.Filename, h.username)
		if err != nil {
			h.reply(protocol.Error(fmt.Sprintf("get %s failed: %s", msg.Filename, err)))
			return nil
		}
		h.reply(protocol.Content(msg.Filename, content))
		h.broadcastToOthers(protocol.ActiveEditors(msg.Filename, editors))
	case protocol.TypeEdit:
		recipients, err := h.engine.Edit(msg.Filename, msg.Content, h.username)
		if err != nil {
			h.reply(protocol.Error(fmt.Sprintf("edit %s failed: %s", msg.Filename, err)))
			return nil
		}
		metrics.EditsTotal.Inc()
		Broadcast(h.registry, recipients, protocol.Update(msg.Filename, msg.Content), "")
	case protocol.TypeCloseEdit:
		editors := h.engine.CloseEdit(msg.Filename, h.username)
		h.broadcastToOthers(protocol.ActiveEditors(msg.Filename, editors))
	}
	return nil
}

// handleHello performs registration. A duplicate username is rejected
// and fatal to this connection so the existing binding keeps exactly
// one owner.
func (h *Handler) handleHello(msg *protocol.Message) error {
	if msg.Type != protocol.TypeHello {
		h.reply(protocol.Error("hello required before any other message"))
		return nil
	}
	if err := h.registry.Register(msg.Username, h.conn); err != nil {
		if errors.Is(err, registry.ErrUsernameTaken) {
			h.reply(protocol.Error(fmt.Sprintf("username %s is already connected", msg.Username)))
			return err
		}
		return errors.Wrap(err, "register failed")
	}
	h.username = msg.Username
	h.state = StateActive
	h.reply(protocol.Info(fmt.Sprintf("Welcome, %s", h.username)))
	logger.WithFields(logrus.Fields{
		"conn":     h.id.String(),
		"username": h.username,
	}).Info("user logged in")
	return nil
}

// reply sends to this handler's own peer. A failed reply is not fatal
// here; the read side will surface the broken connection.
func (h *Handler) reply(msg *protocol.Message) {
	if err := h.conn.Send(msg); err != nil {
		logger.WithField("conn", h.id.String()).WithError(err).Warn("reply failed")
	}
}

// broadcastToOthers notifies every registered client except this one.
func (h *Handler) broadcastToOthers(msg *protocol.Message) {
	Broadcast(h.registry, h.registry.Usernames(), msg, h.username)
}

// close runs the terminal cleanup exactly once: unregister, leave every
// active-editor set, and tell the remaining editors of each affected
// document who is still there. The unregister is identity-guarded: if
// this handler's binding was already evicted, and possibly reclaimed by
// a newer session for the same username, the disconnect cleanup is not
// ours to run and is skipped.
func (h *Handler) close() {
	h.closeOnce.Do(func() {
		h.state = StateClosed
		_ = h.conn.Close()
		if h.username == "" {
			return
		}
		if !h.registry.Unregister(h.username, h.conn) {
			logger.WithFields(logrus.Fields{
				"conn":     h.id.String(),
				"username": h.username,
			}).Debug("superseded session closed; cleanup already ran")
			return
		}
		affected := h.engine.Disconnect(h.username)
		for filename, editors := range affected {
			Broadcast(h.registry, editors, protocol.ActiveEditors(filename, editors), "")
		}
		logger.WithFields(logrus.Fields{
			"conn":     h.id.String(),
			"username": h.username,
		}).Info("user disconnected")
	})
}
