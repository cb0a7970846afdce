package harbor

import (
	"context"
	"net/url"
)

// Op identifies one Harbor upstream capability.
type Op uint8

const (
	OpGetMarkets Op = iota + 1
	OpGetDepth
	OpGetAccount
	OpCreateOrder
	OpUpdateOrder
	OpCancelOrder
	OpGetOrder
	OpGetOrders
	OpWithdraw
	OpGetWithdraw
	OpGetInboundAddresses
	OpGetOutboundFees
	OpGetTxDetails
)

var opNames = map[Op]string{
	OpGetMarkets:          "get_markets",
	OpGetDepth:            "get_depth",
	OpGetAccount:          "get_account",
	OpCreateOrder:         "create_order",
	OpUpdateOrder:         "update_order",
	OpCancelOrder:         "cancel_order",
	OpGetOrder:            "get_order",
	OpGetOrders:           "get_orders",
	OpWithdraw:            "withdraw",
	OpGetWithdraw:         "get_withdraw",
	OpGetInboundAddresses: "get_inbound_addresses",
	OpGetOutboundFees:     "get_outbound_fees",
	OpGetTxDetails:        "get_tx_details",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "unknown"
}

// opArgs carries the already-validated inputs of one upstream call.
type opArgs struct {
	symbol  string
	depth   *int
	payload map[string]any
	query   url.Values
	id      string
}

type opFunc func(ctx context.Context, c *Client, args opArgs) (any, error)

// dispatch maps each Op to the Client method serving it.
var dispatch = map[Op]opFunc{
	OpGetMarkets: func(ctx context.Context, c *Client, _ opArgs) (any, error) {
		return c.GetMarkets(ctx)
	},
	OpGetDepth: func(ctx context.Context, c *Client, a opArgs) (any, error) {
		return c.GetDepth(ctx, a.symbol, a.depth)
	},
	OpGetAccount: func(ctx context.Context, c *Client, _ opArgs) (any, error) {
		return c.GetAccount(ctx)
	},
	OpCreateOrder: func(ctx context.Context, c *Client, a opArgs) (any, error) {
		return c.CreateOrder(ctx, a.payload)
	},
	OpUpdateOrder: func(ctx context.Context, c *Client, a opArgs) (any, error) {
		return c.UpdateOrder(ctx, a.payload)
	},
	OpCancelOrder: func(ctx context.Context, c *Client, a opArgs) (any, error) {
		return c.CancelOrder(ctx, a.query)
	},
	OpGetOrder: func(ctx context.Context, c *Client, a opArgs) (any, error) {
		return c.GetOrder(ctx, a.query)
	},
	OpGetOrders: func(ctx context.Context, c *Client, a opArgs) (any, error) {
		return c.GetOrders(ctx, a.query)
	},
	OpWithdraw: func(ctx context.Context, c *Client, a opArgs) (any, error) {
		return c.Withdraw(ctx, a.payload)
	},
	OpGetWithdraw: func(ctx context.Context, c *Client, a opArgs) (any, error) {
		return c.GetWithdraw(ctx, a.id)
	},
	OpGetInboundAddresses: func(ctx context.Context, c *Client, _ opArgs) (any, error) {
		return c.GetInboundAddresses(ctx)
	},
	OpGetOutboundFees: func(ctx context.Context, c *Client, _ opArgs) (any, error) {
		return c.GetOutboundFees(ctx)
	},
	OpGetTxDetails: func(ctx context.Context, c *Client, a opArgs) (any, error) {
		return c.GetTxDetails(ctx, a.id)
	},
}
