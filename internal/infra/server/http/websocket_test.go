package httpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/dexproxy/internal/app/dex"
)

type stubRPC struct {
	channels []string
}

func (s stubRPC) Channels() []string { return s.channels }

func (s stubRPC) ProcessRequest(ctx context.Context, conn dex.Replier, id any, method string, _ dex.Params) bool {
	if method != "ping" {
		return false
	}
	_ = conn.Reply(ctx, map[string]any{"jsonrpc": "2.0", "id": id, "result": "pong"})
	return true
}

func dialWebsocket(t *testing.T, url string) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http")+websocketPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, request map[string]any) map[string]any {
	t.Helper()
	require.NoError(t, wsjson.Write(ctx, conn, request))
	var reply map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &reply))
	return reply
}

func TestWebsocketSubscribeUnknownChannel(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetRPCHandler(stubRPC{})
	conn, ctx := dialWebsocket(t, ts.URL)

	reply := roundTrip(t, ctx, conn, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "subscribe", "params": map[string]any{"channel": "orders"}})
	require.Equal(t, float64(1), reply["id"])
	require.Equal(t, map[string]any{"message": "Channel orders does not exist"}, reply["error"])
	require.NotContains(t, reply, "result")

	reply = roundTrip(t, ctx, conn, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "unsubscribe", "params": map[string]any{"channel": "orders"}})
	require.Equal(t, map[string]any{"message": "Channel orders does not exist"}, reply["error"])
}

func TestWebsocketSubscribePublishUnsubscribe(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetRPCHandler(stubRPC{channels: []string{"orders"}})
	conn, ctx := dialWebsocket(t, ts.URL)

	reply := roundTrip(t, ctx, conn, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "subscribe", "params": map[string]any{"channel": "orders"}})
	require.Equal(t, []any{"orders"}, reply["result"])

	srv.Publish(ctx, "orders", map[string]any{"channel": "orders", "data": "filled"})
	var event map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &event))
	require.Equal(t, "filled", event["data"])

	reply = roundTrip(t, ctx, conn, map[string]any{"jsonrpc": "2.0", "id": 2, "method": "unsubscribe", "params": map[string]any{"channel": "orders"}})
	require.Equal(t, []any{"orders"}, reply["result"])

	reply = roundTrip(t, ctx, conn, map[string]any{"jsonrpc": "2.0", "id": 3, "method": "unsubscribe", "params": map[string]any{"channel": "orders"}})
	require.Equal(t, []any{}, reply["result"])
}

func TestWebsocketDelegatesAndClosesOnUnknownMethod(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetRPCHandler(stubRPC{})
	conn, ctx := dialWebsocket(t, ts.URL)

	reply := roundTrip(t, ctx, conn, map[string]any{"jsonrpc": "2.0", "id": 7, "method": "ping", "params": map[string]any{}})
	require.Equal(t, "pong", reply["result"])

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"jsonrpc": "2.0", "id": 8, "method": "bogus", "params": map[string]any{}}))
	var discard map[string]any
	err := wsjson.Read(ctx, conn, &discard)
	require.Error(t, err)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWebsocketMissingChannel(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.SetRPCHandler(stubRPC{channels: []string{"orders"}})
	conn, ctx := dialWebsocket(t, ts.URL)

	reply := roundTrip(t, ctx, conn, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "subscribe", "params": map[string]any{}})
	require.Equal(t, map[string]any{"message": `Missing "channel" parameter`}, reply["error"])
}
