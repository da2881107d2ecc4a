package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"syncpad/internal/pkg/document"
	"syncpad/internal/pkg/engine"
	"syncpad/internal/pkg/protocol"
	"syncpad/internal/pkg/registry"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type memPersistence struct {
	mu      sync.Mutex
	saved   map[string]string
	saveErr error
}

func newMemPersistence() *memPersistence {
	return &memPersistence{saved: make(map[string]string)}
}

func (m *memPersistence) Load() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := make(map[string]string, len(m.saved))
	for filename, content := range m.saved {
		docs[filename] = content
	}
	return docs, nil
}

func (m *memPersistence) Save(filename, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[filename] = content
	return nil
}

func (m *memPersistence) get(filename string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[filename]
}

func (m *memPersistence) setSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// fakeConn is an in-memory Conn for driving a handler without a socket.
type fakeConn struct {
	in        chan []byte
	sent      chan *protocol.Message
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		sent:   make(chan *protocol.Message, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case frame, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeConn) Send(msg *protocol.Message) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	default:
	}
	f.mu.Lock()
	sendErr := f.sendErr
	f.mu.Unlock()
	if sendErr != nil {
		return sendErr
	}
	select {
	case f.sent <- msg:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (f *fakeConn) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
	return nil
}

func (f *fakeConn) push(t *testing.T, msg *protocol.Message) {
	t.Helper()
	data, err := msg.Encode()
	require.NoError(t, err)
	f.in <- data
}

func (f *fakeConn) recv(t *testing.T) *protocol.Message {
	t.Helper()
	select {
	case msg := <-f.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func (f *fakeConn) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.sent:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

type fixture struct {
	engine   *engine.Engine
	registry *registry.Registry
	persist  *memPersistence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	persist := newMemPersistence()
	store, err := document.NewStore(document.WithPersistence(persist))
	require.NoError(t, err)
	eng, err := engine.NewEngine(engine.WithStore(store))
	require.NoError(t, err)
	reg, err := registry.NewRegistry()
	require.NoError(t, err)
	return &fixture{engine: eng, registry: reg, persist: persist}
}

// newEvictingFixture wires the registry's eviction handler to the same
// disconnect cleanup the server app installs.
func newEvictingFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	persist := newMemPersistence()
	store, err := document.NewStore(document.WithPersistence(persist))
	require.NoError(t, err)
	eng, err := engine.NewEngine(engine.WithStore(store))
	require.NoError(t, err)
	var reg *registry.Registry
	reg, err = registry.NewRegistry(
		registry.WithEvictThreshold(threshold),
		registry.WithEvictHandler(func(username string) {
			Cleanup(eng, reg, username)
		}),
	)
	require.NoError(t, err)
	return &fixture{engine: eng, registry: reg, persist: persist}
}

// start runs a handler for the connection and returns its exit channel.
func (fx *fixture) start(t *testing.T, conn *fakeConn) chan error {
	t.Helper()
	h, err := NewHandler(
		WithConn(conn),
		WithEngine(fx.engine),
		WithRegistry(fx.registry),
	)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		done <- h.Run(context.Background())
	}()
	return done
}

// login starts a handler and completes the HELLO exchange.
func (fx *fixture) login(t *testing.T, username string) (*fakeConn, chan error) {
	t.Helper()
	conn := newFakeConn()
	done := fx.start(t, conn)
	conn.push(t, protocol.Hello(username))
	welcome := conn.recv(t)
	require.Equal(t, protocol.TypeInfo, welcome.Type)
	return conn, done
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler exit")
		return nil
	}
}

func TestHelloRequiredFirst(t *testing.T) {
	fx := newFixture(t)
	conn := newFakeConn()
	fx.start(t, conn)

	conn.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "notes.txt"})
	reply := conn.recv(t)
	require.Equal(t, protocol.TypeError, reply.Type)

	// The connection is still usable once HELLO arrives.
	conn.push(t, protocol.Hello("alice"))
	welcome := conn.recv(t)
	require.Equal(t, protocol.TypeInfo, welcome.Type)
	require.Contains(t, welcome.Content, "alice")
}

func TestDuplicateUsernameRejected(t *testing.T) {
	fx := newFixture(t)
	_, _ = fx.login(t, "alice")

	conn := newFakeConn()
	done := fx.start(t, conn)
	conn.push(t, protocol.Hello("alice"))
	reply := conn.recv(t)
	require.Equal(t, protocol.TypeError, reply.Type)
	require.Error(t, waitDone(t, done))
	require.Equal(t, []string{"alice"}, fx.registry.Usernames())
}

func TestMalformedMessageRejectedWithoutClosing(t *testing.T) {
	fx := newFixture(t)
	conn, _ := fx.login(t, "alice")

	conn.in <- []byte(`{"type":"NOPE"}`)
	reply := conn.recv(t)
	require.Equal(t, protocol.TypeError, reply.Type)

	conn.in <- []byte(`this is not json`)
	reply = conn.recv(t)
	require.Equal(t, protocol.TypeError, reply.Type)

	conn.push(t, &protocol.Message{Type: protocol.TypeFiles})
	files := conn.recv(t)
	require.Equal(t, protocol.TypeFiles, files.Type)
}

func TestEndToEnd(t *testing.T) {
	fx := newFixture(t)

	alice, _ := fx.login(t, "alice")
	alice.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "notes.txt"})
	content := alice.recv(t)
	require.Equal(t, protocol.Content("notes.txt", ""), content)

	alice.push(t, &protocol.Message{Type: protocol.TypeEdit, Filename: "notes.txt", Content: "hello"})
	// A FILES round-trip proves the edit was applied; messages on one
	// connection are processed in order.
	alice.push(t, &protocol.Message{Type: protocol.TypeFiles})
	require.Equal(t, protocol.TypeFiles, alice.recv(t).Type)

	bob, _ := fx.login(t, "bob")
	bob.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "notes.txt"})
	content = bob.recv(t)
	require.Equal(t, protocol.Content("notes.txt", "hello"), content)

	membership := alice.recv(t)
	require.Equal(t, protocol.ActiveEditors("notes.txt", []string{"alice", "bob"}), membership)

	bob.push(t, &protocol.Message{Type: protocol.TypeEdit, Filename: "notes.txt", Content: "hello world"})
	update := alice.recv(t)
	require.Equal(t, protocol.Update("notes.txt", "hello world"), update)

	// The sender never sees its own update.
	bob.expectSilence(t)
	require.Equal(t, "hello world", fx.persist.get("notes.txt"))
}

func TestUpdateScopedToActiveEditors(t *testing.T) {
	fx := newFixture(t)

	alice, _ := fx.login(t, "alice")
	carol, _ := fx.login(t, "carol")

	alice.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "notes.txt"})
	require.Equal(t, protocol.TypeContent, alice.recv(t).Type)
	// carol is registered but never opened the document; she sees the
	// membership broadcast, never the edits.
	require.Equal(t, protocol.TypeActiveEditors, carol.recv(t).Type)

	alice.push(t, &protocol.Message{Type: protocol.TypeEdit, Filename: "notes.txt", Content: "secret"})
	carol.expectSilence(t)
}

func TestCloseEditStopsUpdates(t *testing.T) {
	fx := newFixture(t)

	alice, _ := fx.login(t, "alice")
	bob, _ := fx.login(t, "bob")

	alice.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "notes.txt"})
	require.Equal(t, protocol.TypeContent, alice.recv(t).Type)
	require.Equal(t, protocol.TypeActiveEditors, bob.recv(t).Type)

	bob.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "notes.txt"})
	require.Equal(t, protocol.TypeContent, bob.recv(t).Type)
	require.Equal(t, protocol.TypeActiveEditors, alice.recv(t).Type)

	bob.push(t, &protocol.Message{Type: protocol.TypeCloseEdit, Filename: "notes.txt"})
	membership := alice.recv(t)
	require.Equal(t, protocol.ActiveEditors("notes.txt", []string{"alice"}), membership)

	alice.push(t, &protocol.Message{Type: protocol.TypeEdit, Filename: "notes.txt", Content: "v2"})
	bob.expectSilence(t)
}

func TestDisconnectLeavesAllAndNotifiesRemainingEditors(t *testing.T) {
	fx := newFixture(t)

	alice, aliceDone := fx.login(t, "alice")
	bob, _ := fx.login(t, "bob")

	for _, filename := range []string{"f1.txt", "f2.txt"} {
		alice.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: filename})
		require.Equal(t, protocol.TypeContent, alice.recv(t).Type)
		require.Equal(t, protocol.TypeActiveEditors, bob.recv(t).Type)

		bob.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: filename})
		require.Equal(t, protocol.TypeContent, bob.recv(t).Type)
		require.Equal(t, protocol.TypeActiveEditors, alice.recv(t).Type)
	}

	// Simulate the transport going away.
	close(alice.in)
	require.NoError(t, waitDone(t, aliceDone))

	got := map[string][]string{}
	for i := 0; i < 2; i++ {
		msg := bob.recv(t)
		require.Equal(t, protocol.TypeActiveEditors, msg.Type)
		got[msg.Filename] = msg.Editors
	}
	require.Equal(t, map[string][]string{
		"f1.txt": {"bob"},
		"f2.txt": {"bob"},
	}, got)
	require.Equal(t, []string{"bob"}, fx.registry.Usernames())
}

func TestStaleHandlerDoesNotRemoveLiveSession(t *testing.T) {
	fx := newFixture(t)

	stale, staleDone := fx.login(t, "alice")
	stale.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "f1.txt"})
	require.Equal(t, protocol.TypeContent, stale.recv(t).Type)

	// The registry drops the binding out from under the handler, the way
	// send-failure eviction does, and a fresh session reclaims the
	// username.
	require.True(t, fx.registry.Unregister("alice", stale))
	Cleanup(fx.engine, fx.registry, "alice")
	fresh, _ := fx.login(t, "alice")
	fresh.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "f1.txt"})
	require.Equal(t, protocol.TypeContent, fresh.recv(t).Type)

	// When the stale handler finally exits, its cleanup must not touch
	// the live session's registry entry or editor memberships.
	close(stale.in)
	require.NoError(t, waitDone(t, staleDone))
	require.Equal(t, []string{"alice"}, fx.registry.Usernames())

	bob, _ := fx.login(t, "bob")
	bob.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "f1.txt"})
	require.Equal(t, protocol.TypeContent, bob.recv(t).Type)
	membership := fresh.recv(t)
	require.Equal(t, protocol.ActiveEditors("f1.txt", []string{"alice", "bob"}), membership)
}

func TestEvictionRunsDisconnectCleanup(t *testing.T) {
	fx := newEvictingFixture(t, 1)

	alice, aliceDone := fx.login(t, "alice")
	alice.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "f1.txt"})
	require.Equal(t, protocol.TypeContent, alice.recv(t).Type)
	alice.setSendErr(errors.New("broken pipe"))

	// The membership broadcast from bob's GET fails to reach alice and
	// trips the eviction: her connection is closed, her handler exits,
	// and bob is told she left the document.
	bob, _ := fx.login(t, "bob")
	bob.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "f1.txt"})
	require.Equal(t, protocol.TypeContent, bob.recv(t).Type)
	membership := bob.recv(t)
	require.Equal(t, protocol.ActiveEditors("f1.txt", []string{"bob"}), membership)

	require.NoError(t, waitDone(t, aliceDone))
	require.Equal(t, []string{"bob"}, fx.registry.Usernames())
}

func TestEditPersistenceFailureRepliesErrorOnly(t *testing.T) {
	fx := newFixture(t)

	alice, _ := fx.login(t, "alice")
	bob, _ := fx.login(t, "bob")

	alice.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "notes.txt"})
	require.Equal(t, protocol.TypeContent, alice.recv(t).Type)
	require.Equal(t, protocol.TypeActiveEditors, bob.recv(t).Type)
	bob.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "notes.txt"})
	require.Equal(t, protocol.TypeContent, bob.recv(t).Type)
	require.Equal(t, protocol.TypeActiveEditors, alice.recv(t).Type)

	fx.persist.setSaveErr(errors.New("disk full"))
	alice.push(t, &protocol.Message{Type: protocol.TypeEdit, Filename: "notes.txt", Content: "lost"})
	reply := alice.recv(t)
	require.Equal(t, protocol.TypeError, reply.Type)

	// The failed edit is invisible to the other editor.
	bob.expectSilence(t)
	fx.persist.setSaveErr(nil)
}

func TestFilesListsKnownDocuments(t *testing.T) {
	fx := newFixture(t)
	alice, _ := fx.login(t, "alice")

	alice.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "b.txt"})
	require.Equal(t, protocol.TypeContent, alice.recv(t).Type)
	alice.push(t, &protocol.Message{Type: protocol.TypeGet, Filename: "a.txt"})
	require.Equal(t, protocol.TypeContent, alice.recv(t).Type)

	alice.push(t, &protocol.Message{Type: protocol.TypeFiles})
	files := alice.recv(t)
	require.Equal(t, protocol.Files([]string{"a.txt", "b.txt"}), files)
}
