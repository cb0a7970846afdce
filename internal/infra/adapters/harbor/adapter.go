// Package harbor proxies Harbor's REST and xnode APIs behind the dex proxy's uniform route surface.
package harbor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/coachpo/dexproxy/errs"
	"github.com/coachpo/dexproxy/internal/app/dex"
	"github.com/coachpo/dexproxy/internal/infra/config"
)

var _ dex.Venue = (*Adapter)(nil)

// Adapter registers the Harbor routes on the host router and serves them through a Client created on
// Start. Between Stop and the next Start every route answers 503.
type Adapter struct {
	cfg    config.HarborConfig
	lookup config.LookupFunc
	logger *log.Logger

	mu        sync.RWMutex
	transport *http.Transport
	client    *Client
	settings  config.HarborSettings
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *log.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithEnvLookup replaces the environment reader used when resolving secrets on Start.
func WithEnvLookup(lookup config.LookupFunc) Option {
	return func(a *Adapter) {
		if lookup != nil {
			a.lookup = lookup
		}
	}
}

// NewAdapter builds the Harbor adapter and registers its routes on router.
func NewAdapter(cfg config.HarborConfig, router dex.Router, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		lookup: os.Getenv,
		logger: log.New(os.Stdout, "harbor ", log.LstdFlags|log.Lmicroseconds),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if router != nil {
		a.registerEndpoints(router)
	}
	return a
}

// Name returns the venue identifier.
func (a *Adapter) Name() string { return venueName }

type route struct {
	method  string
	path    string
	handler dex.Handler
	meta    dex.RouteMeta
}

func (a *Adapter) routes() []route {
	return []route{
		{http.MethodGet, "/public/harbor/markets", a.getMarkets,
			dex.RouteMeta{Summary: "List Harbor markets", Tags: []string{"public", "harbor"}}},
		{http.MethodGet, "/public/harbor/depth", a.getDepth,
			dex.RouteMeta{Summary: "Get order book depth for a symbol", Tags: []string{"public", "harbor"}}},
		{http.MethodGet, "/private/harbor/account", a.getAccount,
			dex.RouteMeta{Summary: "Fetch account balances", Tags: []string{"private", "harbor"}}},
		{http.MethodPost, "/private/harbor/order", a.createOrder,
			dex.RouteMeta{Summary: "Create Harbor order", Tags: []string{"private", "harbor", "orders"}}},
		{http.MethodPut, "/private/harbor/order", a.updateOrder,
			dex.RouteMeta{Summary: "Update Harbor order", Tags: []string{"private", "harbor", "orders"}}},
		{http.MethodDelete, "/private/harbor/order", a.cancelOrder,
			dex.RouteMeta{Summary: "Cancel Harbor order", Tags: []string{"private", "harbor", "orders"}}},
		{http.MethodGet, "/private/harbor/order", a.getOrder,
			dex.RouteMeta{Summary: "Get a specific Harbor order", Tags: []string{"private", "harbor", "orders"}}},
		{http.MethodGet, "/private/harbor/orders", a.getOrders,
			dex.RouteMeta{Summary: "List Harbor orders", Tags: []string{"private", "harbor", "orders"}}},
		{http.MethodPost, "/private/harbor/withdraw", a.withdraw,
			dex.RouteMeta{Summary: "Create Harbor withdraw request", Tags: []string{"private", "harbor", "funds"}}},
		{http.MethodGet, "/private/harbor/withdraw", a.getWithdraw,
			dex.RouteMeta{Summary: "Fetch Harbor withdrawal status", Tags: []string{"private", "harbor", "funds"}}},
		{http.MethodGet, "/public/harbor/inbound-addresses", a.getInboundAddresses,
			dex.RouteMeta{Summary: "Retrieve Harbor inbound vault addresses", Tags: []string{"public", "harbor", "funds"}}},
		{http.MethodGet, "/public/harbor/outbound-fees", a.getOutboundFees,
			dex.RouteMeta{Summary: "Retrieve Harbor outbound fee schedule", Tags: []string{"public", "harbor", "funds"}}},
		{http.MethodGet, "/public/harbor/tx-details", a.getTxDetails,
			dex.RouteMeta{Summary: "Fetch base layer transaction details for Harbor operations", Tags: []string{"public", "harbor"}}},
		{http.MethodGet, "/public/harbor/deposit-instructions", a.getDepositInstructions,
			dex.RouteMeta{Summary: "Provide Harbor deposit instructions including whitelisted from addresses", Tags: []string{"public", "harbor", "funds"}}},
	}
}

func (a *Adapter) registerEndpoints(router dex.Router) {
	for _, r := range a.routes() {
		router.Register(r.method, r.path, r.handler, r.meta)
	}
}

// Start resolves credentials once and builds a fresh connection pool and client, replacing any
// previous pair. Calls already running keep the client they started with.
func (a *Adapter) Start(ctx context.Context) error {
	_ = ctx
	settings := config.ResolveHarbor(a.cfg, a.lookup)
	if !settings.HasAPIKey() {
		a.logger.Printf("environment variable %s is not set; authenticated harbor requests will fail", settings.APIKeyEnv)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	httpClient := &http.Client{Transport: transport, Timeout: settings.SessionTimeout}
	client := NewClient(httpClient, ClientConfig{
		RESTBase:       settings.RESTBase,
		RESTAPIPath:    settings.RESTAPIPath,
		XnodeBase:      settings.XnodeBase,
		XnodeAPIPath:   settings.XnodeAPIPath,
		APIKey:         settings.APIKey,
		RequestTimeout: settings.RequestTimeout,
	})

	a.mu.Lock()
	a.closeLocked()
	a.transport = transport
	a.client = client
	a.settings = settings
	a.mu.Unlock()

	a.logger.Printf("harbor adapter started: rest=%s xnode=%t from_addresses=%v",
		composeURL(settings.RESTBase, settings.RESTAPIPath), settings.XnodeBase != "", settings.FromAddressAssets())
	return nil
}

// Stop closes the client and its pool. Stopping a stopped adapter is a no-op.
func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	a.closeLocked()
	a.logger.Printf("harbor adapter stopped")
	return nil
}

func (a *Adapter) closeLocked() {
	if a.client != nil {
		a.client.Close()
	}
	if a.transport != nil {
		a.transport.CloseIdleConnections()
	}
	a.client = nil
	a.transport = nil
}

// Started reports whether the adapter currently holds a client.
func (a *Adapter) Started() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client != nil
}

func (a *Adapter) snapshot() (*Client, config.HarborSettings) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client, a.settings
}

// execute runs op against the current client and normalises the outcome.
func (a *Adapter) execute(ctx context.Context, op Op, args opArgs) (status int, body any) {
	client, _ := a.snapshot()
	if client == nil {
		return http.StatusServiceUnavailable, errs.Body("Harbor API client not initialised")
	}
	fn, ok := dispatch[op]
	if !ok {
		return http.StatusInternalServerError, errs.Body(fmt.Sprintf("unknown harbor operation %s", op))
	}

	defer func() {
		if r := recover(); r != nil {
			err := dex.Recovered(r)
			a.logger.Printf("unexpected harbor integration error: op=%s err=%v", op, err)
			status, body = http.StatusInternalServerError, errs.Body(err.Error())
		}
	}()

	result, err := fn(ctx, client, args)
	if err == nil {
		return http.StatusOK, result
	}
	var e *errs.E
	if errors.As(err, &e) {
		a.logger.Printf("harbor api error: op=%s status=%d detail=%s", op, e.Status(), e.Message)
		return e.Status(), e.Response()
	}
	a.logger.Printf("unexpected harbor integration error: op=%s err=%v", op, err)
	return http.StatusInternalServerError, errs.Body(err.Error())
}

func badRequest(message string) (int, any) {
	return http.StatusBadRequest, errs.Body(message)
}

func (a *Adapter) getMarkets(ctx context.Context, _ dex.Request) (int, any) {
	return a.execute(ctx, OpGetMarkets, opArgs{})
}

func (a *Adapter) getDepth(ctx context.Context, req dex.Request) (int, any) {
	symbol := req.Params.FirstString("symbol")
	if symbol == "" {
		return badRequest(`Missing "symbol" query parameter`)
	}
	args := opArgs{symbol: symbol}
	if value, ok := req.Params["depth"]; ok && value != nil {
		depth, err := strconv.Atoi(strings.TrimSpace(req.Params.String("depth")))
		if err != nil {
			return badRequest(`"depth" query parameter must be an integer`)
		}
		args.depth = &depth
	}
	return a.execute(ctx, OpGetDepth, args)
}

func (a *Adapter) getAccount(ctx context.Context, _ dex.Request) (int, any) {
	return a.execute(ctx, OpGetAccount, opArgs{})
}

func (a *Adapter) createOrder(ctx context.Context, req dex.Request) (int, any) {
	if len(req.Params) == 0 {
		return badRequest("Order payload is required")
	}
	return a.execute(ctx, OpCreateOrder, opArgs{payload: req.Params.Clone()})
}

func (a *Adapter) updateOrder(ctx context.Context, req dex.Request) (int, any) {
	if len(req.Params) == 0 {
		return badRequest("Update payload is required")
	}
	return a.execute(ctx, OpUpdateOrder, opArgs{payload: req.Params.Clone()})
}

func (a *Adapter) cancelOrder(ctx context.Context, req dex.Request) (int, any) {
	if len(req.Params) == 0 {
		return badRequest("Query parameters are required to cancel an order")
	}
	return a.execute(ctx, OpCancelOrder, opArgs{query: queryFrom(req.Params)})
}

func (a *Adapter) getOrder(ctx context.Context, req dex.Request) (int, any) {
	if len(req.Params) == 0 {
		return badRequest("Order query parameters are required")
	}
	return a.execute(ctx, OpGetOrder, opArgs{query: queryFrom(req.Params)})
}

func (a *Adapter) getOrders(ctx context.Context, req dex.Request) (int, any) {
	return a.execute(ctx, OpGetOrders, opArgs{query: queryFrom(req.Params)})
}

var requiredWithdrawFields = []string{"destination", "asset", "amount", "gasAsset", "gasAmount"}

func (a *Adapter) withdraw(ctx context.Context, req dex.Request) (int, any) {
	var missing []string
	for _, field := range requiredWithdrawFields {
		if !req.Params.Has(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return badRequest("Missing required withdraw fields: " + strings.Join(missing, ", "))
	}
	return a.execute(ctx, OpWithdraw, opArgs{payload: req.Params.Clone()})
}

func (a *Adapter) getWithdraw(ctx context.Context, req dex.Request) (int, any) {
	id := req.Params.FirstString("withdrawId", "withdraw_id")
	if id == "" {
		return badRequest("withdrawId query parameter is required")
	}
	return a.execute(ctx, OpGetWithdraw, opArgs{id: id})
}

func (a *Adapter) getInboundAddresses(ctx context.Context, _ dex.Request) (int, any) {
	return a.execute(ctx, OpGetInboundAddresses, opArgs{})
}

func (a *Adapter) getOutboundFees(ctx context.Context, _ dex.Request) (int, any) {
	return a.execute(ctx, OpGetOutboundFees, opArgs{})
}

func (a *Adapter) getTxDetails(ctx context.Context, req dex.Request) (int, any) {
	txID := req.Params.FirstString("txId", "tx_id")
	if txID == "" {
		return badRequest("txId query parameter is required")
	}
	return a.execute(ctx, OpGetTxDetails, opArgs{id: txID})
}

// getDepositInstructions combines the xnode inbound addresses with the configured from-address table.
// A failed inbound lookup is returned unchanged.
func (a *Adapter) getDepositInstructions(ctx context.Context, _ dex.Request) (int, any) {
	status, data := a.execute(ctx, OpGetInboundAddresses, opArgs{})
	if status != http.StatusOK {
		return status, data
	}
	_, settings := a.snapshot()
	instructions := map[string]any{
		"inbound":       data,
		"fromAddresses": settings.FromAddresses(),
	}
	if settings.WebsocketURL != "" {
		instructions["websocketUrl"] = settings.WebsocketURL
	}
	return http.StatusOK, instructions
}

func queryFrom(params dex.Params) url.Values {
	query := make(url.Values, len(params))
	for key := range params {
		query.Set(key, params.String(key))
	}
	return query
}

// Approve is not offered by Harbor.
func (a *Adapter) Approve(context.Context, dex.Request) (any, error) {
	return nil, errs.NotSupported("Token approvals are not supported for Harbor integration")
}

// Transfer is not offered through the common route; withdrawals go through /private/harbor/withdraw.
func (a *Adapter) Transfer(context.Context, dex.Request) (any, error) {
	return nil, errs.NotSupported("Transfers through the common withdraw route are not supported for Harbor integration")
}

func (a *Adapter) AmendRequest(context.Context, dex.Request) (any, error) {
	return nil, errs.NotSupported("Transaction amendments are not supported for Harbor integration")
}

func (a *Adapter) CancelRequest(context.Context, dex.Request) (any, error) {
	return nil, errs.NotSupported("Transaction cancellation is not supported for Harbor integration")
}

func (a *Adapter) GasPrice(context.Context) (any, error) {
	return nil, errs.NotSupported("Gas price is not available for Harbor integration")
}

func (a *Adapter) TransactionReceipt(context.Context, string) (any, error) {
	return nil, errs.NotSupported("Transaction receipts are not available for Harbor integration")
}

// GetAllOpenRequests always reports no open requests. Harbor orders are tracked upstream and listed
// through /private/harbor/orders.
func (a *Adapter) GetAllOpenRequests(context.Context, dex.Request) (int, any) {
	return http.StatusOK, []any{}
}

// CancelAll reports an empty cancellation set.
func (a *Adapter) CancelAll(context.Context, dex.Request) (int, any) {
	return http.StatusOK, map[string]any{"result": []any{}}
}

// Channels returns no channels; Harbor publishes nothing over the proxy websocket.
func (a *Adapter) Channels() []string { return []string{} }

// ProcessRequest declines every websocket method.
func (a *Adapter) ProcessRequest(context.Context, dex.Replier, any, string, dex.Params) bool {
	return false
}
