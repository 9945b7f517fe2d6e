package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuyFillsWhenMarkCrosses(t *testing.T) {
	ctx := context.Background()
	b := New(10_000)

	oid, err := b.PlaceOrder(ctx, broker.Order{Code: "AAA", Direction: broker.Buy, Price: 10, Volume: 500})
	require.NoError(t, err)
	require.NotEmpty(t, oid)

	acct, _ := b.QueryAccount(ctx)
	assert.InDelta(t, 5_000.0, acct.FreeCash, 1e-9)
	assert.InDelta(t, 5_000.0, acct.FrozenCash, 1e-9)

	b.Mark("AAA", 10.5)
	orders, _ := b.QueryOrders(ctx)
	require.Len(t, orders, 1)
	assert.Equal(t, broker.StatusPending, orders[0].Status)

	b.Mark("AAA", 9.9)
	orders, _ = b.QueryOrders(ctx)
	assert.Equal(t, broker.StatusFilled, orders[0].Status)
	assert.Equal(t, int64(500), orders[0].FilledVolume)

	positions, _ := b.QueryPositions(ctx)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(500), positions[0].Volume)
	assert.Equal(t, int64(500), positions[0].AvailableVolume)

	acct, _ = b.QueryAccount(ctx)
	assert.InDelta(t, 0.0, acct.FrozenCash, 1e-9)
	assert.InDelta(t, 9.9*500, acct.MarketValue, 1e-9)
}

func TestSellReservesAvailableVolume(t *testing.T) {
	ctx := context.Background()
	b := New(0)
	b.Seed(broker.Position{Code: "AAA", EntryPrice: 10, Volume: 300, AvailableVolume: 300, LatestPrice: 10})

	_, err := b.PlaceOrder(ctx, broker.Order{Code: "AAA", Direction: broker.Sell, Price: 12, Volume: 200})
	require.NoError(t, err)

	positions, _ := b.QueryPositions(ctx)
	assert.Equal(t, int64(100), positions[0].AvailableVolume)

	_, err = b.PlaceOrder(ctx, broker.Order{Code: "AAA", Direction: broker.Sell, Price: 12, Volume: 200})
	assert.True(t, errors.Is(err, broker.ErrRejected))

	b.Mark("AAA", 12)
	positions, _ = b.QueryPositions(ctx)
	assert.Equal(t, int64(100), positions[0].Volume)

	acct, _ := b.QueryAccount(ctx)
	assert.InDelta(t, 2_400.0, acct.FreeCash, 1e-9)
}

func TestCancelReleasesReservation(t *testing.T) {
	ctx := context.Background()
	b := New(1_000)

	oid, err := b.PlaceOrder(ctx, broker.Order{Code: "AAA", Direction: broker.Buy, Price: 5, Volume: 100})
	require.NoError(t, err)
	require.NoError(t, b.CancelOrder(ctx, oid))

	acct, _ := b.QueryAccount(ctx)
	assert.InDelta(t, 1_000.0, acct.FreeCash, 1e-9)
	assert.Zero(t, acct.FrozenCash)

	err = b.CancelOrder(ctx, oid)
	assert.Error(t, err)
	assert.True(t, errors.Is(b.CancelOrder(ctx, "nope"), broker.ErrOrderNotFound))
}

func TestRejectsUncoveredBuy(t *testing.T) {
	b := New(100)
	_, err := b.PlaceOrder(context.Background(), broker.Order{Code: "AAA", Direction: broker.Buy, Price: 5, Volume: 100})
	assert.True(t, errors.Is(err, broker.ErrRejected))
}
