// Package dex defines the host capabilities a venue adapter is wired into: lifecycle hooks, route
// registration, websocket request handling, and the shared on-chain request surface.
package dex

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Params carries inbound request parameters: query values for GET/DELETE, the decoded JSON object for
// POST/PUT.
type Params map[string]any

// Has reports whether the key is present, regardless of its value.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the value for key rendered as a string. Missing and null values yield "".
func (p Params) String(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

// FirstString returns the first non-empty value among keys.
func (p Params) FirstString(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(p.String(key)); value != "" {
			return value
		}
	}
	return ""
}

// Clone returns a shallow copy safe to hand to another component.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Request describes one inbound call dispatched to a venue handler.
type Request struct {
	Method     string
	Path       string
	Params     Params
	ReceivedAt time.Time
	RequestID  string
}

// Handler serves a registered route and returns the HTTP status and JSON body for the caller.
type Handler func(ctx context.Context, req Request) (int, any)

// RouteMeta documents a registered route.
type RouteMeta struct {
	Summary string
	Tags    []string
}

// Router is the route-registration capability provided by the host server.
type Router interface {
	Register(method, path string, handler Handler, meta RouteMeta)
}

// Lifecycle is implemented by components the host starts and stops.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Replier sends JSON messages back over a client websocket connection.
type Replier interface {
	Reply(ctx context.Context, msg any) error
}

// RPCHandler receives websocket JSON-RPC requests the host does not handle itself.
type RPCHandler interface {
	// Channels lists the subscription channels the venue publishes.
	Channels() []string
	// ProcessRequest handles method and reports whether it was recognised.
	ProcessRequest(ctx context.Context, conn Replier, id any, method string, params Params) bool
}

// OnChain is the shared request surface every venue exposes through the common routes.
type OnChain interface {
	Approve(ctx context.Context, req Request) (any, error)
	Transfer(ctx context.Context, req Request) (any, error)
	AmendRequest(ctx context.Context, req Request) (any, error)
	CancelRequest(ctx context.Context, req Request) (any, error)
	GasPrice(ctx context.Context) (any, error)
	TransactionReceipt(ctx context.Context, txHash string) (any, error)
	GetAllOpenRequests(ctx context.Context, req Request) (int, any)
	CancelAll(ctx context.Context, req Request) (int, any)
}

// Venue is a complete venue adapter.
type Venue interface {
	Lifecycle
	RPCHandler
	OnChain
	Name() string
}

type requestIDKey struct{}

// WithRequestID stores the inbound request identifier on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the inbound request identifier stored on ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
