package httpserver

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/coachpo/dexproxy/internal/app/dex"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(WithLogger(log.New(io.Discard, "", 0)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func captureHandler(captured *dex.Request) dex.Handler {
	return func(_ context.Context, req dex.Request) (int, any) {
		*captured = req
		return http.StatusAccepted, map[string]any{"ok": true}
	}
}

func TestRegisterPassesQueryParams(t *testing.T) {
	srv, ts := newTestServer(t)
	var got dex.Request
	srv.Register(http.MethodGet, "/public/test/depth", captureHandler(&got), dex.RouteMeta{Summary: "depth"})

	resp, err := http.Get(ts.URL + "/public/test/depth?symbol=BTCUSD&depth=50&depth=60")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected handler status, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json response, got %q", ct)
	}
	if body := decodeResponse(t, resp); body["ok"] != true {
		t.Fatalf("unexpected body %#v", body)
	}
	if got.Params.String("symbol") != "BTCUSD" || got.Params.String("depth") != "50" {
		t.Fatalf("unexpected params %#v", got.Params)
	}
	if got.Method != http.MethodGet || got.Path != "/public/test/depth" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.RequestID == "" || got.ReceivedAt.IsZero() {
		t.Fatalf("expected request id and receive time, got %+v", got)
	}
}

func TestRegisterPassesJSONBody(t *testing.T) {
	srv, ts := newTestServer(t)
	var got dex.Request
	srv.Register(http.MethodPost, "/private/test/order", captureHandler(&got), dex.RouteMeta{})

	resp, err := http.Post(ts.URL+"/private/test/order", "application/json", strings.NewReader(`{"symbol":"BTCUSD","qty":1.5}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected handler status, got %d", resp.StatusCode)
	}
	if got.Params.String("symbol") != "BTCUSD" {
		t.Fatalf("unexpected params %#v", got.Params)
	}
	if qty, ok := got.Params["qty"].(json.Number); !ok || qty.String() != "1.5" {
		t.Fatalf("numbers must keep their literal form, got %#v", got.Params["qty"])
	}
}

func TestRegisterEmptyBodyFallsBackToQuery(t *testing.T) {
	srv, ts := newTestServer(t)
	var got dex.Request
	srv.Register(http.MethodPut, "/private/test/order", captureHandler(&got), dex.RouteMeta{})

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/private/test/order?orderId=o-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got.Params.String("orderId") != "o-1" {
		t.Fatalf("expected query params, got %#v", got.Params)
	}
}

func TestRegisterRejectsBadBodies(t *testing.T) {
	srv, ts := newTestServer(t)
	called := false
	srv.Register(http.MethodPost, "/private/test/order", func(context.Context, dex.Request) (int, any) {
		called = true
		return http.StatusOK, nil
	}, dex.RouteMeta{})

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{"symbol":`, http.StatusBadRequest},
		{"not an object", `[1,2,3]`, http.StatusBadRequest},
		{"too large", `{"pad":"` + strings.Repeat("x", int(maxJSONBodyBytes)) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/private/test/order", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			body := decodeResponse(t, resp)
			if _, ok := body["error"].(map[string]any); !ok {
				t.Fatalf("expected error body, got %#v", body)
			}
		})
	}
	if called {
		t.Fatalf("handler must not run for rejected bodies")
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv, ts := newTestServer(t)
	var got dex.Request
	var fromCtx string
	srv.Register(http.MethodGet, "/public/test/id", func(ctx context.Context, req dex.Request) (int, any) {
		got = req
		fromCtx = dex.RequestIDFrom(ctx)
		return http.StatusOK, map[string]any{}
	}, dex.RouteMeta{})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/public/test/id", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got.RequestID != "abc-123" || fromCtx != "abc-123" {
		t.Fatalf("expected propagated id, got %q/%q", got.RequestID, fromCtx)
	}
	if resp.Header.Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected id echoed in response")
	}
}

func TestHealthAndRouteDocs(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Register(http.MethodGet, "/public/b", func(context.Context, dex.Request) (int, any) { return 200, nil },
		dex.RouteMeta{Summary: "b", Tags: []string{"public"}})
	srv.Register(http.MethodGet, "/public/a", func(context.Context, dex.Request) (int, any) { return 200, nil },
		dex.RouteMeta{Summary: "a"})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	if body := decodeResponse(t, resp); resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response %d %#v", resp.StatusCode, body)
	}

	routes := srv.Routes()
	if len(routes) != 2 || routes[0].Path != "/public/a" || routes[1].Tags[0] != "public" {
		t.Fatalf("unexpected routes %+v", routes)
	}
	resp, err = http.Get(ts.URL + "/docs/routes")
	if err != nil {
		t.Fatalf("route docs request failed: %v", err)
	}
	body := decodeResponse(t, resp)
	if list, ok := body["routes"].([]any); !ok || len(list) != 2 {
		t.Fatalf("unexpected route docs %#v", body)
	}
}

func TestCORSAndNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/public/anything", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight response %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/public/missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body := decodeResponse(t, resp); body["error"] == nil {
		t.Fatalf("expected json error body, got %#v", body)
	}
}
