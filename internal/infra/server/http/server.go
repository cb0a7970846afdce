// Package httpserver hosts the dex proxy HTTP surface: venue routes, health, route docs and the
// private websocket.
package httpserver

import (
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/coachpo/dexproxy/errs"
	"github.com/coachpo/dexproxy/internal/app/dex"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	healthPath    = "/health"
	routeDocsPath = "/docs/routes"
	websocketPath = "/private/ws"

	headerRequestID = "X-Request-ID"
)

var _ dex.Router = (*Server)(nil)

// RouteInfo describes one registered venue route.
type RouteInfo struct {
	Method  string   `json:"method"`
	Path    string   `json:"path"`
	Summary string   `json:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Server implements dex.Router on top of chi and serves the private websocket.
type Server struct {
	mux            *chi.Mux
	logger         *log.Logger
	allowedOrigins []string
	hub            *hub

	mu     sync.RWMutex
	rpc    dex.RPCHandler
	routes []RouteInfo
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAllowedOrigins lists cross-origin patterns accepted on the websocket endpoint.
func WithAllowedOrigins(patterns ...string) Option {
	return func(s *Server) {
		s.allowedOrigins = append(s.allowedOrigins, patterns...)
	}
}

// New builds a server with the health, route docs and websocket endpoints mounted.
func New(opts ...Option) *Server {
	s := &Server{
		mux:    chi.NewRouter(),
		logger: log.New(os.Stdout, "http ", log.LstdFlags|log.Lmicroseconds),
		hub:    newHub(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.mux.Use(middleware.RealIP)
	s.mux.Use(withRequestID)
	s.mux.Use(middleware.Recoverer)
	s.mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	s.mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.mux.Get(healthPath, s.health)
	s.mux.Get(routeDocsPath, s.routeDocs)
	s.mux.Get(websocketPath, s.serveWebsocket)
	return s
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

// SetRPCHandler installs the venue receiving websocket methods other than subscribe and unsubscribe.
func (s *Server) SetRPCHandler(handler dex.RPCHandler) {
	s.mu.Lock()
	s.rpc = handler
	s.mu.Unlock()
}

func (s *Server) rpcHandler() dex.RPCHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rpc
}

// Register mounts handler for method and path.
func (s *Server) Register(method, path string, handler dex.Handler, meta dex.RouteMeta) {
	method = strings.ToUpper(strings.TrimSpace(method))
	s.mux.Method(method, path, s.venueHandler(handler))

	s.mu.Lock()
	s.routes = append(s.routes, RouteInfo{Method: method, Path: path, Summary: meta.Summary, Tags: append([]string(nil), meta.Tags...)})
	s.mu.Unlock()
}

// Routes returns the registered venue routes sorted by path then method.
func (s *Server) Routes() []RouteInfo {
	s.mu.RLock()
	out := append([]RouteInfo(nil), s.routes...)
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].Method < out[j].Method
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func (s *Server) venueHandler(handler dex.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limitRequestBody(w, r)
		params, err := extractParams(r)
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		req := dex.Request{
			Method:     r.Method,
			Path:       r.URL.Path,
			Params:     params,
			ReceivedAt: time.Now(),
			RequestID:  dex.RequestIDFrom(r.Context()),
		}
		status, data := handler(r.Context(), req)
		if status >= http.StatusInternalServerError {
			s.logger.Printf("request failed: method=%s path=%s status=%d request_id=%s", req.Method, req.Path, status, req.RequestID)
		}
		writeJSON(w, status, data)
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) routeDocs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"routes": s.Routes()})
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(dex.WithRequestID(r.Context(), id)))
	})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errs.Body(message))
}
