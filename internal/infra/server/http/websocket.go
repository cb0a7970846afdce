package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/coachpo/dexproxy/internal/app/dex"
)

const jsonRPCVersion = "2.0"

type rpcRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      any        `json:"id"`
	Method  string     `json:"method"`
	Params  dex.Params `json:"params"`
}

// wsConn serialises writes to one client connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Reply writes msg to the client as JSON.
func (c *wsConn) Reply(ctx context.Context, msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.conn, msg)
}

func (c *wsConn) close(code websocket.StatusCode, reason string) {
	_ = c.conn.Close(code, reason)
}

// hub tracks connected clients and their channel subscriptions.
type hub struct {
	mu            sync.RWMutex
	conns         map[*wsConn]struct{}
	subscriptions map[string]map[*wsConn]struct{}
}

func newHub() *hub {
	return &hub{
		conns:         make(map[*wsConn]struct{}),
		subscriptions: make(map[string]map[*wsConn]struct{}),
	}
}

func (h *hub) add(c *wsConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	for _, subs := range h.subscriptions {
		delete(subs, c)
	}
}

// subscribe reports whether the subscription is new.
func (h *hub) subscribe(channel string, c *wsConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscriptions[channel]
	if !ok {
		subs = make(map[*wsConn]struct{})
		h.subscriptions[channel] = subs
	}
	if _, exists := subs[c]; exists {
		return false
	}
	subs[c] = struct{}{}
	return true
}

// unsubscribe reports whether the channel is known and whether c was subscribed to it.
func (h *hub) unsubscribe(channel string, c *wsConn) (known, removed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscriptions[channel]
	if !ok {
		return false, false
	}
	if _, exists := subs[c]; !exists {
		return true, false
	}
	delete(subs, c)
	return true, true
}

func (h *hub) subscribers(channel string) []*wsConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*wsConn, 0, len(h.subscriptions[channel]))
	for c := range h.subscriptions[channel] {
		out = append(out, c)
	}
	return out
}

func (h *hub) all() []*wsConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.allowedOrigins})
	if err != nil {
		s.logger.Printf("websocket accept failed: remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	client := &wsConn{conn: conn}
	s.hub.add(client)
	s.logger.Printf("websocket client connected: remote=%s", r.RemoteAddr)
	defer func() {
		s.hub.remove(client)
		client.close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		var msg rpcRequest
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Printf("websocket client lost: remote=%s err=%v", r.RemoteAddr, err)
			}
			return
		}
		if !s.handleMessage(ctx, client, msg) {
			return
		}
	}
}

// handleMessage serves one JSON-RPC request and reports whether the connection stays open.
func (s *Server) handleMessage(ctx context.Context, client *wsConn, msg rpcRequest) bool {
	switch msg.Method {
	case "subscribe":
		s.reply(ctx, client, s.subscribe(client, msg))
		return true
	case "unsubscribe":
		s.reply(ctx, client, s.unsubscribe(client, msg))
		return true
	}

	if rpc := s.rpcHandler(); rpc != nil && rpc.ProcessRequest(ctx, client, msg.ID, msg.Method, msg.Params) {
		return true
	}
	s.logger.Printf("unknown websocket method %q; closing connection", msg.Method)
	client.close(websocket.StatusPolicyViolation, "Unknown method "+msg.Method)
	return false
}

func (s *Server) subscribe(client *wsConn, msg rpcRequest) map[string]any {
	reply := map[string]any{"jsonrpc": jsonRPCVersion, "id": msg.ID}
	channel := msg.Params.FirstString("channel")
	if channel == "" {
		reply["error"] = map[string]any{"message": `Missing "channel" parameter`}
		return reply
	}
	if !s.channelExists(channel) {
		reply["error"] = map[string]any{"message": fmt.Sprintf("Channel %s does not exist", channel)}
		return reply
	}
	s.hub.subscribe(channel, client)
	reply["result"] = []string{channel}
	return reply
}

func (s *Server) unsubscribe(client *wsConn, msg rpcRequest) map[string]any {
	reply := map[string]any{"jsonrpc": jsonRPCVersion, "id": msg.ID}
	channel := msg.Params.FirstString("channel")
	if channel == "" {
		reply["error"] = map[string]any{"message": `Missing "channel" parameter`}
		return reply
	}
	known, removed := s.hub.unsubscribe(channel, client)
	switch {
	case !known:
		reply["error"] = map[string]any{"message": fmt.Sprintf("Channel %s does not exist", channel)}
	case removed:
		reply["result"] = []string{channel}
	default:
		reply["result"] = []string{}
	}
	return reply
}

func (s *Server) channelExists(channel string) bool {
	rpc := s.rpcHandler()
	if rpc == nil {
		return false
	}
	for _, c := range rpc.Channels() {
		if c == channel {
			return true
		}
	}
	return false
}

func (s *Server) reply(ctx context.Context, client *wsConn, msg any) {
	if err := client.Reply(ctx, msg); err != nil {
		s.logger.Printf("websocket reply failed: err=%v", err)
		client.close(websocket.StatusInternalError, "write failed")
	}
}

// Publish sends event to every websocket client subscribed to channel.
func (s *Server) Publish(ctx context.Context, channel string, event any) {
	for _, client := range s.hub.subscribers(channel) {
		s.reply(ctx, client, event)
	}
}

// Close disconnects every websocket client.
func (s *Server) Close() {
	for _, client := range s.hub.all() {
		client.close(websocket.StatusGoingAway, "Server shutdown")
	}
}
