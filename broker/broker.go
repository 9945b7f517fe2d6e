package broker

import (
	"context"
	"errors"
)

// Broker is the collaborator that owns order matching. Every answer it gives
// may be stale or incomplete; callers only trust its raw order and position
// facts, never its running totals.
type Broker interface {
	QueryOrders(ctx context.Context) ([]Order, error)
	QueryPositions(ctx context.Context) ([]Position, error)
	QueryAccount(ctx context.Context) (Account, error)

	// PlaceOrder returns the broker-assigned order id.
	PlaceOrder(ctx context.Context, o Order) (string, error)
	CancelOrder(ctx context.Context, id string) error
}

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrRejected      = errors.New("order rejected")
)
