package dex

import (
	"context"
	"errors"
	"net/http"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/coachpo/dexproxy/errs"
)

func TestParamsString(t *testing.T) {
	params := Params{
		"symbol": "BTCUSD",
		"depth":  json.Number("50"),
		"flag":   true,
		"empty":  nil,
	}
	if got := params.String("symbol"); got != "BTCUSD" {
		t.Fatalf("unexpected symbol %q", got)
	}
	if got := params.String("depth"); got != "50" {
		t.Fatalf("unexpected depth %q", got)
	}
	if got := params.String("flag"); got != "true" {
		t.Fatalf("unexpected flag %q", got)
	}
	if got := params.String("empty"); got != "" {
		t.Fatalf("null values should render empty, got %q", got)
	}
	if !params.Has("empty") {
		t.Fatalf("Has must report present keys even when null")
	}
	if params.Has("missing") {
		t.Fatalf("Has must not report absent keys")
	}
}

func TestParamsFirstStringSkipsEmpty(t *testing.T) {
	params := Params{"withdrawId": "", "withdraw_id": "w-1"}
	if got := params.FirstString("withdrawId", "withdraw_id"); got != "w-1" {
		t.Fatalf("expected fallback key to win, got %q", got)
	}
	if got := (Params{}).FirstString("txId", "tx_id"); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestOutcome(t *testing.T) {
	status, body := Outcome(map[string]any{"ok": true}, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body.(map[string]any)["ok"] != true {
		t.Fatalf("unexpected body %#v", body)
	}

	status, body = Outcome(nil, errs.NotSupported("Transfers are not supported"))
	if status != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", status)
	}
	detail := body.(map[string]any)["error"].(map[string]any)
	if detail["message"] != "Transfers are not supported" {
		t.Fatalf("unexpected message %v", detail["message"])
	}

	status, body = Outcome(nil, errors.New("boom"))
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if body.(map[string]any)["error"].(map[string]any)["message"] != "boom" {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestIDFrom(ctx); got != "req-1" {
		t.Fatalf("unexpected request id %q", got)
	}
	if got := RequestIDFrom(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}

type recordingRouter struct {
	routes map[string]Handler
}

func (r *recordingRouter) Register(method, path string, handler Handler, _ RouteMeta) {
	if r.routes == nil {
		r.routes = make(map[string]Handler)
	}
	r.routes[method+" "+path] = handler
}

type stubOnChain struct{}

func (stubOnChain) Approve(context.Context, Request) (any, error) {
	return nil, errs.NotSupported("approve")
}
func (stubOnChain) Transfer(context.Context, Request) (any, error) {
	return map[string]any{"id": "t-1"}, nil
}
func (stubOnChain) AmendRequest(context.Context, Request) (any, error) {
	return nil, errs.NotSupported("amend")
}
func (stubOnChain) CancelRequest(context.Context, Request) (any, error) {
	return nil, errs.NotSupported("cancel")
}
func (stubOnChain) GasPrice(context.Context) (any, error) { return nil, errs.NotSupported("gas") }
func (stubOnChain) TransactionReceipt(context.Context, string) (any, error) {
	return nil, errs.NotSupported("receipt")
}
func (stubOnChain) GetAllOpenRequests(context.Context, Request) (int, any) {
	return http.StatusOK, []any{}
}
func (stubOnChain) CancelAll(context.Context, Request) (int, any) {
	return http.StatusOK, map[string]any{"result": []any{}}
}

func TestRegisterCommonRoutes(t *testing.T) {
	router := &recordingRouter{}
	RegisterCommon(router, stubOnChain{})

	expected := []string{
		"POST " + ApproveTokenPath,
		"POST " + TransferPath,
		"POST " + AmendRequestPath,
		"DELETE " + CancelRequestPath,
		"DELETE " + CancelAllPath,
		"GET " + GetAllOpenRequestsPath,
	}
	for _, key := range expected {
		if _, ok := router.routes[key]; !ok {
			t.Fatalf("expected route %s to be registered", key)
		}
	}

	status, _ := router.routes["POST "+ApproveTokenPath](context.Background(), Request{})
	if status != http.StatusNotImplemented {
		t.Fatalf("expected approve to be unsupported, got %d", status)
	}
	status, body := router.routes["POST "+TransferPath](context.Background(), Request{})
	if status != http.StatusOK || body.(map[string]any)["id"] != "t-1" {
		t.Fatalf("unexpected transfer outcome %d %#v", status, body)
	}
}
