// Package paper is an in-process broker that fills limit orders against
// marks pushed in by the caller. It is used by the recon command and tests.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/pkg/id"
)

type Broker struct {
	mu        sync.Mutex
	acct      broker.Account
	orders    map[string]*broker.Order
	positions map[string]*broker.Position
	marks     map[string]float64
	now       func() time.Time
}

var _ broker.Broker = (*Broker)(nil)

func New(cash float64) *Broker {
	return &Broker{
		acct:      broker.Account{FreeCash: cash},
		orders:    make(map[string]*broker.Order),
		positions: make(map[string]*broker.Position),
		marks:     make(map[string]float64),
		now:       time.Now,
	}
}

// WithClock replaces the clock used for fill timestamps.
func (b *Broker) WithClock(now func() time.Time) *Broker {
	b.now = now
	return b
}

// Seed installs an existing position, e.g. carried over from yesterday.
func (b *Broker) Seed(p broker.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := p
	if cp.ID == "" {
		cp.ID = id.New()
	}
	b.positions[p.Code] = &cp
	b.revalueLocked()
}

func (b *Broker) QueryOrders(ctx context.Context) ([]broker.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]broker.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, cloneOrder(*o))
	}
	// ULIDs sort chronologically.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *Broker) QueryPositions(ctx context.Context) ([]broker.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]broker.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (b *Broker) QueryAccount(ctx context.Context) (broker.Account, error) {
	if err := ctx.Err(); err != nil {
		return broker.Account{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acct, nil
}

// PlaceOrder accepts a limit order, reserving cash for buys and available
// volume for sells. Orders the account cannot cover are rejected.
func (b *Broker) PlaceOrder(ctx context.Context, o broker.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if o.Volume <= 0 || o.Price <= 0 {
		return "", fmt.Errorf("%w: %s: volume %d price %.4f", broker.ErrRejected, o.Code, o.Volume, o.Price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch o.Direction {
	case broker.Buy:
		if o.Amount() > b.acct.FreeCash {
			return "", fmt.Errorf("%w: %s: insufficient cash %.2f for %.2f",
				broker.ErrRejected, o.Code, b.acct.FreeCash, o.Amount())
		}
		b.acct.FreeCash -= o.Amount()
		b.acct.FrozenCash += o.Amount()
	case broker.Sell:
		p, ok := b.positions[o.Code]
		if !ok || p.AvailableVolume < o.Volume {
			return "", fmt.Errorf("%w: %s: insufficient available volume", broker.ErrRejected, o.Code)
		}
		p.AvailableVolume -= o.Volume
	default:
		return "", fmt.Errorf("%w: unknown direction %q", broker.ErrRejected, o.Direction)
	}

	placed := cloneOrder(o)
	placed.ID = id.New()
	placed.Status = broker.StatusPending
	b.orders[placed.ID] = &placed

	if mark, ok := b.marks[o.Code]; ok {
		b.tryFillLocked(&placed, mark)
	}
	return placed.ID, nil
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel %q: %w", orderID, broker.ErrOrderNotFound)
	}
	if o.Status.Terminal() {
		return fmt.Errorf("cancel %q: order is %s", orderID, o.Status)
	}
	b.releaseLocked(o)
	o.Status = broker.StatusCancelled
	return nil
}

// Mark records a new price for code and fills any pending order it crosses:
// buys at or above the mark, sells at or below it.
func (b *Broker) Mark(code string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.marks[code] = price
	if p, ok := b.positions[code]; ok {
		p.LatestPrice = price
	}

	ids := make([]string, 0, len(b.orders))
	for oid := range b.orders {
		ids = append(ids, oid)
	}
	sort.Strings(ids)
	for _, oid := range ids {
		o := b.orders[oid]
		if o.Code == code {
			b.tryFillLocked(o, price)
		}
	}
	b.revalueLocked()
}

func (b *Broker) tryFillLocked(o *broker.Order, mark float64) {
	if o.Status != broker.StatusPending {
		return
	}
	switch o.Direction {
	case broker.Buy:
		if mark > o.Price {
			return
		}
		// Reserved at the limit, filled at the limit.
		b.acct.FrozenCash -= o.Amount()
		p, ok := b.positions[o.Code]
		if !ok {
			p = &broker.Position{ID: id.New(), Code: o.Code, OpenTime: b.now()}
			b.positions[o.Code] = p
		}
		total := p.EntryPrice*float64(p.Volume) + o.Amount()
		p.Volume += o.Volume
		p.AvailableVolume += o.Volume
		p.EntryPrice = total / float64(p.Volume)
		p.LatestPrice = mark
	case broker.Sell:
		if mark < o.Price {
			return
		}
		p := b.positions[o.Code]
		p.Volume -= o.Volume
		b.acct.FreeCash += o.Amount()
		if p.Volume == 0 {
			delete(b.positions, o.Code)
		}
	}
	o.Status = broker.StatusFilled
	o.FilledPrice = o.Price
	o.FilledVolume = o.Volume
}

func (b *Broker) releaseLocked(o *broker.Order) {
	switch o.Direction {
	case broker.Buy:
		b.acct.FrozenCash -= o.Amount()
		b.acct.FreeCash += o.Amount()
	case broker.Sell:
		if p, ok := b.positions[o.Code]; ok {
			p.AvailableVolume += o.Volume
		}
	}
}

func (b *Broker) revalueLocked() {
	mv := 0.0
	for _, p := range b.positions {
		mv += p.MarketValue()
	}
	b.acct.MarketValue = mv
}

func cloneOrder(o broker.Order) broker.Order {
	if o.Tags != nil {
		tags := make(map[string]string, len(o.Tags))
		for k, v := range o.Tags {
			tags[k] = v
		}
		o.Tags = tags
	}
	return o
}
