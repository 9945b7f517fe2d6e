package recon

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rustyeddy/tradesim/broker"
)

type mockBroker struct {
	mock.Mock
}

var _ broker.Broker = (*mockBroker)(nil)

func (m *mockBroker) QueryOrders(ctx context.Context) ([]broker.Order, error) {
	args := m.Called(ctx)
	orders, _ := args.Get(0).([]broker.Order)
	return orders, args.Error(1)
}

func (m *mockBroker) QueryPositions(ctx context.Context) ([]broker.Position, error) {
	args := m.Called(ctx)
	positions, _ := args.Get(0).([]broker.Position)
	return positions, args.Error(1)
}

func (m *mockBroker) QueryAccount(ctx context.Context) (broker.Account, error) {
	args := m.Called(ctx)
	acct, _ := args.Get(0).(broker.Account)
	return acct, args.Error(1)
}

func (m *mockBroker) PlaceOrder(ctx context.Context, o broker.Order) (string, error) {
	args := m.Called(ctx, o)
	return args.String(0), args.Error(1)
}

func (m *mockBroker) CancelOrder(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}
