// Package ledger keeps the simulated account: free and frozen cash plus one
// position per instrument. Every mutation is validated as a whole batch and
// either applied completely or not at all.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/pkg/id"
)

// Holdings maps instrument code to its position.
type Holdings map[string]*broker.Position

func (h Holdings) MarketValue() float64 {
	mv := 0.0
	for _, p := range h {
		mv += p.MarketValue()
	}
	return mv
}

// Fill closes a whole position at Price.
type Fill struct {
	Code  string
	Price float64
}

// Closed describes a position removed by Sell.
type Closed struct {
	Position   broker.Position
	Time       time.Time
	ExitPrice  float64
	Proceeds   float64
	Commission float64
	StampDuty  float64

	PriceDelta   float64 // exit - entry
	PercentDelta float64 // raw price return
	NetReturn    float64 // after every fee
}

type Option func(*Ledger)

// WithT1Settlement makes new positions unavailable for sale until Settle.
func WithT1Settlement() Option {
	return func(l *Ledger) { l.settleT1 = true }
}

// Ledger is not safe for concurrent use; the backtest loop owns it.
type Ledger struct {
	fees     Fees
	free     float64
	frozen   float64
	holdings Holdings
	settleT1 bool
}

func New(cash float64, fees Fees, opts ...Option) (*Ledger, error) {
	if cash < 0 {
		return nil, &InvariantError{Op: "new", Field: "free cash", Value: cash}
	}
	l := &Ledger{
		fees:     fees,
		free:     cash,
		holdings: make(Holdings),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Ledger) Fees() Fees         { return l.fees }
func (l *Ledger) FreeCash() float64   { return l.free }
func (l *Ledger) FrozenCash() float64 { return l.frozen }

func (l *Ledger) Account() broker.Account {
	return broker.Account{
		FreeCash:    l.free,
		FrozenCash:  l.frozen,
		MarketValue: l.holdings.MarketValue(),
	}
}

func (l *Ledger) TotalAssetValue() float64 {
	return l.Account().TotalAssetValue()
}

func (l *Ledger) Holds(code string) bool {
	_, ok := l.holdings[code]
	return ok
}

func (l *Ledger) Len() int { return len(l.holdings) }

// Position returns a copy of the position in code.
func (l *Ledger) Position(code string) (broker.Position, bool) {
	p, ok := l.holdings[code]
	if !ok {
		return broker.Position{}, false
	}
	return *p, true
}

// Positions returns copies of all positions ordered by code.
func (l *Ledger) Positions() []broker.Position {
	out := make([]broker.Position, 0, len(l.holdings))
	for _, p := range l.holdings {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Buy opens every position in the batch and deducts cost plus commission for
// each. Instruments already held, or repeated within the batch, fail the whole
// batch with ErrDuplicatePosition.
func (l *Ledger) Buy(ts time.Time, positions []broker.Position) error {
	seen := make(map[string]struct{}, len(positions))
	total := 0.0
	for _, p := range positions {
		if _, ok := l.holdings[p.Code]; ok {
			return fmt.Errorf("buy %s: %w", p.Code, ErrDuplicatePosition)
		}
		if _, ok := seen[p.Code]; ok {
			return fmt.Errorf("buy %s: %w", p.Code, ErrDuplicatePosition)
		}
		seen[p.Code] = struct{}{}
		if p.Volume <= 0 || p.EntryPrice <= 0 {
			return &InvariantError{Op: "buy", Field: "volume", Code: p.Code, Value: float64(p.Volume)}
		}
		total += p.Cost() + l.fees.BrokerCommission(p.Cost())
	}
	if l.free-total < 0 {
		return &InvariantError{Op: "buy", Field: "free cash", Value: l.free - total}
	}

	for _, p := range positions {
		cp := p
		if cp.ID == "" {
			cp.ID = id.NewAt(ts)
		}
		if cp.OpenTime.IsZero() {
			cp.OpenTime = ts
		}
		if cp.LatestPrice == 0 {
			cp.LatestPrice = cp.EntryPrice
		}
		cp.BuyCommission = l.fees.BrokerCommission(cp.Cost())
		cp.AvailableVolume = cp.Volume
		if l.settleT1 {
			cp.AvailableVolume = 0
		}
		l.holdings[cp.Code] = &cp
		l.free -= cp.Cost() + cp.BuyCommission
	}
	return nil
}

// Sell closes every position named in fills at the fill price and credits
// proceeds less commission and stamp duty.
func (l *Ledger) Sell(ts time.Time, fills []Fill) ([]Closed, error) {
	seen := make(map[string]struct{}, len(fills))
	for _, f := range fills {
		p, ok := l.holdings[f.Code]
		if !ok {
			return nil, fmt.Errorf("sell %s: %w", f.Code, ErrPositionNotFound)
		}
		if _, dup := seen[f.Code]; dup {
			return nil, fmt.Errorf("sell %s: %w", f.Code, ErrPositionNotFound)
		}
		seen[f.Code] = struct{}{}
		if p.AvailableVolume < p.Volume {
			return nil, &InvariantError{Op: "sell", Field: "available volume", Code: f.Code,
				Value: float64(p.AvailableVolume - p.Volume)}
		}
	}

	closed := make([]Closed, 0, len(fills))
	for _, f := range fills {
		p := l.holdings[f.Code]
		proceeds := f.Price * float64(p.Volume)
		c := Closed{
			Position:   *p,
			Time:       ts,
			ExitPrice:  f.Price,
			Proceeds:   proceeds,
			Commission: l.fees.BrokerCommission(proceeds),
			StampDuty:  l.fees.StampDuty(proceeds),
			PriceDelta: f.Price - p.EntryPrice,
			NetReturn:  l.fees.NetReturn(p.Cost(), proceeds),
		}
		c.Position.LatestPrice = f.Price
		if p.EntryPrice > 0 {
			c.PercentDelta = c.PriceDelta / p.EntryPrice
		}
		closed = append(closed, c)
	}

	// Proceeds can fall below fees on tiny positions.
	free := l.free
	for _, c := range closed {
		free += c.Proceeds - c.Commission - c.StampDuty
	}
	if free < 0 {
		return nil, &InvariantError{Op: "sell", Field: "free cash", Value: free}
	}

	for _, c := range closed {
		delete(l.holdings, c.Position.Code)
	}
	l.free = free
	return closed, nil
}

// UpdateMarks sets the latest price of every held position the lookup knows.
func (l *Ledger) UpdateMarks(lookup func(code string) (float64, bool)) {
	for code, p := range l.holdings {
		if price, ok := lookup(code); ok && price > 0 {
			p.LatestPrice = price
		}
	}
}

// Settle makes the full volume of every position available for sale.
func (l *Ledger) Settle() {
	for _, p := range l.holdings {
		p.AvailableVolume = p.Volume
	}
}

// Check validates the cash and volume invariants.
func (l *Ledger) Check() error {
	if l.free < 0 {
		return &InvariantError{Op: "check", Field: "free cash", Value: l.free}
	}
	if l.frozen < 0 {
		return &InvariantError{Op: "check", Field: "frozen cash", Value: l.frozen}
	}
	for code, p := range l.holdings {
		if err := p.Valid(); err != nil {
			return &InvariantError{Op: "check", Field: "volume", Code: code, Value: float64(p.Volume)}
		}
	}
	return nil
}
