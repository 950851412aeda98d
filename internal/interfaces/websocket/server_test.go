package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"coauthor-backend/internal/collab/session"
	"coauthor-backend/internal/infrastructure/messaging"
	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/pkg/auth"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// echoHandler answers every frame by delivering it back to its sender.
type echoHandler struct {
	hub *Hub

	mu           sync.Mutex
	disconnected []string
}

func (e *echoHandler) HandleMessage(_ context.Context, sess *session.Session, data []byte) error {
	e.hub.Deliver(messaging.Delivery{ConnectionIDs: []string{sess.ConnectionID}, Payload: json.RawMessage(data)})
	return nil
}

func (e *echoHandler) HandleDisconnect(_ context.Context, sess *session.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnected = append(e.disconnected, sess.ConnectionID)
}

func (e *echoHandler) disconnects() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.disconnected)
}

func startServer(t *testing.T, validator *auth.Validator, config *ServerConfig) (*Hub, *echoHandler, *observability.Collector, *httptest.Server) {
	t.Helper()
	handler := &echoHandler{}
	metrics := observability.NewCollector("test")
	hub := NewHub(handler, metrics, zap.NewNop())
	handler.hub = hub
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(NewServer(hub, validator, config, zap.NewNop()).HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, handler, metrics, srv
}

func wsURL(srv *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	if query != "" {
		u += "?" + query
	}
	return u
}

func TestEchoAndDisconnect(t *testing.T) {
	hub, handler, metrics, srv := startServer(t, nil, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.NoError(t, err)

	frame := []byte(`{"type":"join-document","payload":{}}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(frame), string(got))

	assert.Equal(t, 1, hub.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Connections))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return handler.disconnects() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Connections))
}

func TestAuthenticationAndLimits(t *testing.T) {
	cfg := auth.Config{SecretKey: "s3cret", Issuer: "coauthor"}
	validator, err := auth.NewValidator(cfg)
	require.NoError(t, err)
	generator, err := auth.NewGenerator(cfg)
	require.NoError(t, err)

	config := DefaultServerConfig()
	config.MaxConnectionsPerSubject = 1
	hub, _, _, srv := startServer(t, validator, config)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := generator.Generate("alice", "Alice")
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+token), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, 1, hub.SubjectCount("alice"))

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestSlowClientIsClosed(t *testing.T) {
	handler := &echoHandler{}
	metrics := observability.NewCollector("test")
	hub := NewHub(handler, metrics, zap.NewNop())
	handler.hub = hub

	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		upgraded <- conn
	}))
	defer srv.Close()

	peer, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.NoError(t, err)
	defer peer.Close()

	// Registered without pumps, so nothing drains its one-slot buffer.
	client := NewClient("", hub, <-upgraded, 1, zap.NewNop())
	require.True(t, hub.registerClient(client))

	d := messaging.Delivery{ConnectionIDs: []string{client.ID()}, Payload: json.RawMessage(`{}`)}
	hub.deliver(d)
	assert.Equal(t, 1, hub.Count())
	hub.deliver(d)

	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SlowClients))
	assert.Equal(t, 1, handler.disconnects())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
