package dex

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coachpo/dexproxy/errs"
)

// Common routes served for every venue.
const (
	ApproveTokenPath       = "/private/approve-token"
	TransferPath           = "/private/withdraw"
	AmendRequestPath       = "/private/amend-request"
	CancelRequestPath      = "/private/cancel-request"
	CancelAllPath          = "/private/cancel-all"
	GetAllOpenRequestsPath = "/public/get-all-open-requests"
)

// RegisterCommon wires the venue's shared request surface onto router.
func RegisterCommon(router Router, venue OnChain) {
	router.Register(http.MethodPost, ApproveTokenPath, wrap(venue.Approve),
		RouteMeta{Summary: "Approve a token allowance", Tags: []string{"private", "common"}})
	router.Register(http.MethodPost, TransferPath, wrap(venue.Transfer),
		RouteMeta{Summary: "Transfer funds to a whitelisted address", Tags: []string{"private", "common"}})
	router.Register(http.MethodPost, AmendRequestPath, wrap(venue.AmendRequest),
		RouteMeta{Summary: "Amend an in-flight request", Tags: []string{"private", "common"}})
	router.Register(http.MethodDelete, CancelRequestPath, wrap(venue.CancelRequest),
		RouteMeta{Summary: "Cancel an in-flight request", Tags: []string{"private", "common"}})
	router.Register(http.MethodDelete, CancelAllPath, venue.CancelAll,
		RouteMeta{Summary: "Cancel all open requests", Tags: []string{"private", "common"}})
	router.Register(http.MethodGet, GetAllOpenRequestsPath, venue.GetAllOpenRequests,
		RouteMeta{Summary: "List open requests", Tags: []string{"public", "common"}})
}

func wrap(fn func(context.Context, Request) (any, error)) Handler {
	return func(ctx context.Context, req Request) (int, any) {
		return Outcome(fn(ctx, req))
	}
}

// Outcome converts a call result into the caller-facing (status, body) pair. Structured errors keep
// their status and payload; any other error becomes a 500.
func Outcome(result any, err error) (int, any) {
	if err == nil {
		return http.StatusOK, result
	}
	var e *errs.E
	if errors.As(err, &e) {
		return e.Status(), e.Response()
	}
	return http.StatusInternalServerError, errs.Body(err.Error())
}

// Recovered converts a recovered panic value into an error.
func Recovered(value any) error {
	if err, ok := value.(error); ok {
		return err
	}
	return fmt.Errorf("%v", value)
}
