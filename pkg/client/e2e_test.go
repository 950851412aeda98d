package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coauthor-backend/internal/config"
	"coauthor-backend/internal/di"
	"coauthor-backend/pkg/client"
	"coauthor-backend/pkg/delta"
	"coauthor-backend/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stack struct {
	srv *httptest.Server
	url string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	cfg, err := config.NewLoader(t.TempDir(), config.Production).Load()
	require.NoError(t, err)

	ctx := context.Background()
	c, cleanup, err := di.InitializeContainer(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = c.StartDelivery(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(c.Server.Handler)
	t.Cleanup(func() {
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = c.Shutdown(shutdownCtx)
		cleanup()
	})
	return &stack{srv: srv, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func (s *stack) create(t *testing.T, path string, body any) string {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created.ID
}

func (s *stack) dial(t *testing.T) *client.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := client.Dial(ctx, s.url, client.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// pump feeds events to handle until done reports true.
func pump(t *testing.T, conn *client.Conn, handle func(client.Event), done func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for !done() {
		ev, err := conn.Next(ctx)
		require.NoError(t, err)
		handle(ev)
	}
}

func documentHandler(t *testing.T, e *client.DocumentEditor, seen map[protocol.EventType]int) func(client.Event) {
	return func(ev client.Event) {
		seen[ev.Type]++
		require.NoError(t, e.Handle(ev))
	}
}

func TestDocumentScenario(t *testing.T) {
	s := newStack(t)
	docID := s.create(t, "/api/v1/documents", map[string]string{"ownerId": "alice"})

	connA, connB := s.dial(t), s.dial(t)
	alice := client.NewDocumentEditor(docID, "alice", "Alice")
	bob := client.NewDocumentEditor(docID, "bob", "Bob")
	seenA := map[protocol.EventType]int{}
	seenB := map[protocol.EventType]int{}

	require.NoError(t, connA.Send(protocol.JoinDocument, alice.JoinMessage()))
	pump(t, connA, documentHandler(t, alice, seenA), func() bool {
		return alice.Loaded() && len(alice.Participants()) == 1
	})
	assert.Empty(t, alice.Contents().Sections)

	require.NoError(t, connB.Send(protocol.JoinDocument, bob.JoinMessage()))
	pump(t, connB, documentHandler(t, bob, seenB), func() bool {
		return bob.Loaded() && len(bob.Participants()) == 2
	})
	pump(t, connA, documentHandler(t, alice, seenA), func() bool {
		return len(alice.Participants()) == 2
	})

	hello := delta.Text("hello")
	change, err := alice.Edit("s1", "", hello, &protocol.Cursor{Index: 5})
	require.NoError(t, err)
	require.NoError(t, connA.Send(protocol.SectionChange, change))
	pump(t, connB, documentHandler(t, bob, seenB), func() bool {
		content, ok := bob.Content("s1", "")
		return ok && delta.Equal(hello, content)
	})

	require.NoError(t, connA.Send(protocol.CursorSelection, alice.MoveCursor("s1", "", protocol.Cursor{Index: 2})))
	pump(t, connB, documentHandler(t, bob, seenB), func() bool {
		return len(bob.MarkersOn("s1")) == 1
	})

	contents := alice.Contents()
	contents.Title = "Paper X"
	require.NoError(t, connA.Send(protocol.WholeDocumentSave, alice.SaveAll(contents)))
	pump(t, connA, documentHandler(t, alice, seenA), func() bool {
		return seenA[protocol.LoadDocumentBroadcast] == 1
	})
	pump(t, connB, documentHandler(t, bob, seenB), func() bool {
		return seenB[protocol.LoadDocumentBroadcast] == 1
	})
	assert.Equal(t, "Paper X", alice.Contents().Title)
	assert.Equal(t, "Paper X", bob.Contents().Title)
	assert.Zero(t, seenA[protocol.SectionChangeBroadcast], "the sender gets no echo")

	require.NoError(t, connA.Close())
	pump(t, connB, documentHandler(t, bob, seenB), func() bool {
		return len(bob.Participants()) == 1
	})
	assert.Empty(t, bob.Markers(), "alice's marker goes with her")
}

func TestGraphScenario(t *testing.T) {
	s := newStack(t)
	graphID := s.create(t, "/api/v1/graphs", map[string]string{"ownerId": "alice"})

	connA, connB := s.dial(t), s.dial(t)
	alice := client.NewGraphEditor(graphID, "alice", "Alice")
	bob := client.NewGraphEditor(graphID, "bob", "Bob")

	require.NoError(t, connA.Send(protocol.JoinGraph, alice.JoinMessage()))
	_, err := connA.Expect(context.Background(), protocol.LoadGraph)
	require.NoError(t, err)
	require.NoError(t, connB.Send(protocol.JoinGraph, bob.JoinMessage()))
	ev, err := connB.Expect(context.Background(), protocol.LoadGraph)
	require.NoError(t, err)
	bob.Handle(ev)
	role, ok := bob.Role("alice")
	require.True(t, ok)
	assert.Equal(t, "owner", role)

	root, msg, err := alice.AddNode("Root", 0, 0)
	require.NoError(t, err)
	require.NoError(t, connA.Send(protocol.GraphUpdate, msg))
	n1, msg, err := alice.AddNode("n1", 5, 5)
	require.NoError(t, err)
	require.NoError(t, connA.Send(protocol.GraphUpdate, msg))

	sel, err := alice.Select(root)
	require.NoError(t, err)
	require.NoError(t, connA.Send(protocol.NodeSelected, sel))
	require.NoError(t, alice.StartRelation("has"))
	update, err := alice.ClickNode(n1)
	require.NoError(t, err)
	require.NoError(t, connA.Send(protocol.GraphUpdate, *update))

	pump(t, connB, bob.Handle, func() bool {
		n, ok := nodeDepth(bob, n1)
		return ok && n == 1 && len(bob.Editors(root)) == 1
	})
	assert.Equal(t, []string{"Alice"}, bob.Editors(root))

	deleted, err := alice.DeleteNode(root)
	require.NoError(t, err)
	require.NoError(t, connA.Send(protocol.GraphUpdate, deleted))
	pump(t, connB, bob.Handle, func() bool {
		n, ok := nodeDepth(bob, n1)
		return ok && n == 0 && len(bob.State().Nodes) == 1
	})

	require.NoError(t, connA.Send(protocol.LeaveGraph, alice.LeaveMessage()))
	pump(t, connB, bob.Handle, func() bool {
		return len(bob.Editors(root)) == 0
	})
}

func nodeDepth(e *client.GraphEditor, id string) (int, bool) {
	s := e.State()
	n, ok := s.Node(id)
	if !ok {
		return 0, false
	}
	return n.Depth, true
}

func TestDialGivesUpOnUnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := client.Dial(ctx, "ws://127.0.0.1:1/ws", client.Options{MaxRetries: 1})
	assert.Error(t, err)
}
