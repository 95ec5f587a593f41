package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine/events"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/frames"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type callerFunc func(ctx context.Context, method string, params any) (json.RawMessage, error)

func (f callerFunc) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return f(ctx, method, params)
}

type fixture struct {
	handler  *Handler
	registry *frames.Registry
	metrics  *monitoring.Metrics
	server   *httptest.Server
}

func newFixture(t *testing.T, caller callerFunc) *fixture {
	t.Helper()
	registry := frames.NewRegistry()
	metrics := monitoring.NewMetrics()
	h := NewHandler(caller, registry, Options{Metrics: metrics, RequestTimeout: 5 * time.Second})

	r := gin.New()
	r.GET("/ws/page", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return &fixture{handler: h, registry: registry, metrics: metrics, server: srv}
}

func (f *fixture) dial(t *testing.T, pageURL string) *websocket.Conn {
	t.Helper()
	endpoint := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/page?url=" + url.QueryEscape(pageURL)
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func sendRequest(t *testing.T, conn *websocket.Conn, frameID, messageID, method string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":      frames.TypeRequest,
		"frameId":   frameID,
		"messageId": messageID,
		"method":    method,
		"params":    map[string]any{},
	}))
}

func TestRequestResponseOverSocket(t *testing.T) {
	f := newFixture(t, func(_ context.Context, method string, _ any) (json.RawMessage, error) {
		if method == "listSessions" {
			return json.RawMessage("[]"), nil
		}
		return json.RawMessage(`{"echo":"` + method + `"}`), nil
	})
	conn := f.dial(t, "https://dapp.example/app")

	sendRequest(t, conn, "frame-1", "7", "send")
	msg := readJSON(t, conn)
	assert.Equal(t, frames.TypeResponse, msg["type"])
	assert.Equal(t, "frame-1", msg["frameId"])
	assert.Equal(t, "7", msg["messageId"])
	assert.Equal(t, true, msg["success"])
	assert.Equal(t, map[string]any{"echo": "send"}, msg["payload"])

	assert.Eventually(t, func() bool { return f.handler.Active() == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, f.metrics.GetSnapshot().ActivePages)
}

func TestMalformedRequestKeepsConnection(t *testing.T) {
	f := newFixture(t, func(context.Context, string, any) (json.RawMessage, error) {
		return json.RawMessage("true"), nil
	})
	conn := f.dial(t, "https://dapp.example")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"TONCONNECT_BRIDGE_REQUEST","method":"send"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	sendRequest(t, conn, "main", "1", "send")

	msg := readJSON(t, conn)
	assert.Equal(t, "1", msg["messageId"])
}

func TestDisconnectEventReachesBoundPage(t *testing.T) {
	f := newFixture(t, func(_ context.Context, method string, _ any) (json.RawMessage, error) {
		switch method {
		case frames.MethodConnect:
			return json.RawMessage(`{"sessionId":"s-1"}`), nil
		case "listSessions":
			return json.RawMessage("[]"), nil
		}
		return json.RawMessage("null"), nil
	})
	conn := f.dial(t, "https://dapp.example")

	sendRequest(t, conn, "main", "1", frames.MethodConnect)
	readJSON(t, conn)
	require.Eventually(t, func() bool { _, ok := f.registry.Lookup("s-1"); return ok }, 5*time.Second, 10*time.Millisecond)

	hub := frames.NewHub(f.registry, nil)
	require.NoError(t, hub.HandleEvent(events.Disconnect{SessionID: "s-1"}))

	msg := readJSON(t, conn)
	assert.Equal(t, frames.TypeEvent, msg["type"])
	assert.Equal(t, map[string]any{
		"event":   "disconnect",
		"payload": map[string]any{"sessionId": "s-1"},
	}, msg["event"])
}

func TestAttachRebindsOnConnect(t *testing.T) {
	f := newFixture(t, func(_ context.Context, method string, _ any) (json.RawMessage, error) {
		if method == "listSessions" {
			return json.RawMessage(`[{"sessionId":"old","dAppUrl":"https://dapp.example/"}]`), nil
		}
		return json.RawMessage("null"), nil
	})
	f.dial(t, "https://dapp.example/page")

	assert.Eventually(t, func() bool { _, ok := f.registry.Lookup("old"); return ok }, 5*time.Second, 10*time.Millisecond)
}

func TestCloseDisconnectsPages(t *testing.T) {
	f := newFixture(t, func(context.Context, string, any) (json.RawMessage, error) {
		return json.RawMessage("[]"), nil
	})
	conn := f.dial(t, "https://dapp.example")
	require.Eventually(t, func() bool { return f.handler.Active() == 1 }, time.Second, 5*time.Millisecond)

	f.handler.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
	assert.Eventually(t, func() bool { return f.handler.Active() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return f.metrics.GetSnapshot().ActivePages == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestPageConnRefusesAfterClose(t *testing.T) {
	p := &pageConn{send: make(chan []byte, 1), done: make(chan struct{})}

	require.NoError(t, p.Broadcast([]byte("a")))
	assert.ErrorIs(t, p.DeliverToMain([]byte("b")), ErrSlowPage)

	p.close()
	assert.ErrorIs(t, p.DeliverToFrame("f", []byte("c")), ErrPageClosed)
	assert.True(t, p.closed())
}
