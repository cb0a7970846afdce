package harbor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/coachpo/dexproxy/errs"
	"github.com/coachpo/dexproxy/internal/app/dex"
	"github.com/coachpo/dexproxy/internal/telemetry"
)

const (
	venueName = "harbor"

	headerAPIKey    = "X-API-KEY"
	headerRequestID = "X-Request-ID"

	maxResponseBytes = 16 << 20
)

type base uint8

const (
	baseREST base = iota
	baseXnode
)

func (b base) String() string {
	if b == baseXnode {
		return "xnode"
	}
	return "rest"
}

// ClientConfig holds the resolved endpoints and credentials for a Client.
type ClientConfig struct {
	RESTBase       string
	RESTAPIPath    string
	XnodeBase      string
	XnodeAPIPath   string
	APIKey         string
	RequestTimeout time.Duration
}

// Client issues calls against Harbor's primary REST API and its xnode service. Results are always
// JSON objects; failures are *errs.E carrying the status relayed to callers.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	metrics    *clientMetrics

	closeOnce sync.Once
}

// NewClient wraps httpClient. A nil httpClient gets a default client bounded by RequestTimeout.
func NewClient(httpClient *http.Client, cfg ClientConfig) *Client {
	cfg.RESTBase = strings.TrimSpace(cfg.RESTBase)
	cfg.RESTAPIPath = strings.TrimSpace(cfg.RESTAPIPath)
	cfg.XnodeBase = strings.TrimSpace(cfg.XnodeBase)
	cfg.XnodeAPIPath = strings.TrimSpace(cfg.XnodeAPIPath)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		metrics:    newClientMetrics(),
	}
}

// Close releases idle pooled connections. Repeated calls are no-ops.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.httpClient.CloseIdleConnections()
	})
}

func (c *Client) GetMarkets(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, OpGetMarkets, http.MethodGet, "/markets", nil, nil)
}

func (c *Client) GetAccount(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, OpGetAccount, http.MethodGet, "/account", nil, nil)
}

// GetDepth fetches the order book for symbol. A nil depth leaves the depth parameter off.
func (c *Client) GetDepth(ctx context.Context, symbol string, depth *int) (map[string]any, error) {
	var query url.Values
	if depth != nil {
		query = url.Values{"depth": []string{strconv.Itoa(*depth)}}
	}
	return c.request(ctx, OpGetDepth, http.MethodPost, "/depth/"+url.PathEscape(symbol), query, nil)
}

func (c *Client) CreateOrder(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return c.request(ctx, OpCreateOrder, http.MethodPost, "/order", nil, payload)
}

func (c *Client) UpdateOrder(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return c.request(ctx, OpUpdateOrder, http.MethodPut, "/order", nil, payload)
}

func (c *Client) CancelOrder(ctx context.Context, query url.Values) (map[string]any, error) {
	return c.request(ctx, OpCancelOrder, http.MethodDelete, "/order", query, nil)
}

func (c *Client) GetOrder(ctx context.Context, query url.Values) (map[string]any, error) {
	return c.request(ctx, OpGetOrder, http.MethodGet, "/order", query, nil)
}

func (c *Client) GetOrders(ctx context.Context, query url.Values) (map[string]any, error) {
	return c.request(ctx, OpGetOrders, http.MethodGet, "/orders", query, nil)
}

func (c *Client) Withdraw(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return c.request(ctx, OpWithdraw, http.MethodPost, "/withdraw", nil, payload)
}

func (c *Client) GetWithdraw(ctx context.Context, withdrawID string) (map[string]any, error) {
	return c.request(ctx, OpGetWithdraw, http.MethodGet, "/withdraw/"+url.PathEscape(withdrawID), nil, nil)
}

func (c *Client) GetInboundAddresses(ctx context.Context) (map[string]any, error) {
	return c.requestXnode(ctx, OpGetInboundAddresses, http.MethodGet, "/inbound_addresses", nil)
}

func (c *Client) GetOutboundFees(ctx context.Context) (map[string]any, error) {
	return c.requestXnode(ctx, OpGetOutboundFees, http.MethodGet, "/outbound_fees", nil)
}

func (c *Client) GetTxDetails(ctx context.Context, txID string) (map[string]any, error) {
	return c.requestXnode(ctx, OpGetTxDetails, http.MethodGet, "/tx/details/"+url.PathEscape(txID), nil)
}

func (c *Client) request(ctx context.Context, op Op, method, path string, query url.Values, payload map[string]any) (map[string]any, error) {
	endpoint := composeURL(c.cfg.RESTBase, c.cfg.RESTAPIPath, path)
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		headers.Set(headerAPIKey, c.cfg.APIKey)
	}
	return c.send(ctx, op, baseREST, method, endpoint, headers, query, payload)
}

func (c *Client) requestXnode(ctx context.Context, op Op, method, path string, query url.Values) (map[string]any, error) {
	if c.cfg.XnodeBase == "" {
		c.metrics.record(ctx, op, baseXnode, 0, 0, telemetry.ResultNotReady)
		return nil, errs.New(venueName, errs.CodeNotConfigured,
			errs.WithMessage("xnode base URL is not configured"),
			errs.WithHTTP(http.StatusInternalServerError))
	}
	endpoint := composeURL(c.cfg.XnodeBase, c.cfg.XnodeAPIPath, path)
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	return c.send(ctx, op, baseXnode, method, endpoint, headers, query, nil)
}

func (c *Client) send(ctx context.Context, op Op, b base, method, endpoint string, headers http.Header, query url.Values, payload map[string]any) (result map[string]any, err error) {
	start := time.Now()
	status := 0
	defer func() {
		c.metrics.record(ctx, op, b, status, time.Since(start), resultFor(status, err))
	}()

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return nil, fmt.Errorf("encode %s payload: %w", op, marshalErr)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header = headers
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := dex.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(headerRequestID, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.New(venueName, errs.CodeNetwork,
			errs.WithMessage("Network error: "+err.Error()),
			errs.WithHTTP(http.StatusServiceUnavailable),
			errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errs.New(venueName, errs.CodeNetwork,
			errs.WithMessage("Network error: "+err.Error()),
			errs.WithHTTP(http.StatusServiceUnavailable),
			errs.WithCause(err))
	}

	data, decodeErr := decodeBody(resp.Header.Get("Content-Type"), raw)
	if resp.StatusCode >= http.StatusBadRequest {
		if decodeErr != nil {
			data = string(raw)
		}
		return nil, errs.New(venueName, errs.CodeExchange,
			errs.WithMessage(fmt.Sprintf("Harbor request failed with status %d", resp.StatusCode)),
			errs.WithHTTP(resp.StatusCode),
			errs.WithPayload(data))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s response: %w", op, decodeErr)
	}
	if object, ok := data.(map[string]any); ok {
		return object, nil
	}
	return map[string]any{"result": data}, nil
}

// decodeBody parses JSON bodies and returns anything else as raw text. An empty JSON body is an empty
// object.
func decodeBody(contentType string, raw []byte) (any, error) {
	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		return string(raw), nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var data any
	if err := decoder.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// composeURL joins base, prefix and path with exactly one separator, ignoring leading and trailing
// slashes and empty segments.
func composeURL(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.Trim(strings.TrimSpace(part), "/"); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "/")
}
