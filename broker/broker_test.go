package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderKeyAndCreatedAt(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	o := Order{ClientID: "c1", Tags: map[string]string{TagCreatedAt: ts.Format(time.RFC3339Nano)}}
	assert.Equal(t, "c1", o.Key())
	assert.True(t, o.CreatedAt().Equal(ts))

	o.ID = "b1"
	assert.Equal(t, "b1", o.Key())

	o.Tags[TagCreatedAt] = "garbage"
	assert.True(t, o.CreatedAt().IsZero())
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		want   bool
	}{
		{StatusCreated, false},
		{StatusPending, false},
		{StatusUnknown, false},
		{StatusFilled, true},
		{StatusCancelled, true},
		{StatusInvalid, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Terminal(), string(tt.status))
	}
}

func TestPositionValid(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Position{Code: "A", Volume: 100, AvailableVolume: 100}.Valid())
	assert.Error(t, Position{Code: "A", Volume: -1}.Valid())
	assert.Error(t, Position{Code: "A", Volume: 100, AvailableVolume: 200}.Valid())
	assert.Error(t, Position{Code: "A", Volume: 100, AvailableVolume: -1}.Valid())

	acct := Account{FreeCash: 1, FrozenCash: 2, MarketValue: 3}
	assert.InDelta(t, 6.0, acct.TotalAssetValue(), 1e-9)
}
