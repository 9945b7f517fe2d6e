package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/cache"
	"github.com/rustyeddy/tradesim/journal"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/pkg/id"
)

// OpenDay snapshots the broker at the start of the trading day: the
// positions become the day's baseline and the account is logged as the
// opening capitals. Once the opening capitals exist the call does nothing.
func (e *Engine) OpenDay(ctx context.Context) (Report, error) {
	now := e.now()
	rep := Report{Date: market.DateKey(now)}

	l, err := e.lock(ctx)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return rep, fmt.Errorf("open day: %w", ErrLockContention)
		}
		return rep, err
	}
	defer e.release(ctx, l)

	if opening, err := e.book.GetOpening(ctx, now); err == nil {
		rep.Status = StatusSkipped
		rep.Account = broker.Account{
			FreeCash:    opening.FreeCash,
			FrozenCash:  opening.FrozenCash,
			MarketValue: opening.MarketValue,
		}
		e.log.Debug("day already open", zap.String("date", rep.Date))
		return rep, nil
	} else if !errors.Is(err, journal.ErrNotFound) {
		return rep, err
	}

	held, err := phase(ctx, e.opts.PhaseTimeout, "query positions", e.broker.QueryPositions)
	if err != nil {
		return rep, err
	}
	acct, err := phase(ctx, e.opts.PhaseTimeout, "query account", e.broker.QueryAccount)
	if err != nil {
		return rep, err
	}

	base := make(map[string]broker.Position, len(held))
	for _, p := range held {
		if p.Volume <= 0 {
			continue
		}
		p.AvailableVolume = p.Volume
		base[p.Code] = p
	}
	encoded, err := encodePositions(base)
	if err != nil {
		return rep, err
	}
	acctJSON, err := encodeAccount(acct)
	if err != nil {
		return rep, err
	}

	err = e.cache.Batch(ctx, func(b cache.Batch) error {
		b.Del(baselineKey(rep.Date), keyPositions)
		b.HSet(baselineKey(rep.Date), encoded)
		b.HSet(keyPositions, encoded)
		b.Set(keyAccount, acctJSON, 0)
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("open day: %w", err)
	}

	// Written last so a failed cache write is retried on the next call.
	if err := e.book.LogOpeningCapitals(ctx, now, acct); err != nil {
		return rep, err
	}

	rep.Status = StatusOK
	rep.Positions = len(base)
	rep.Account = acct
	e.log.Info("day opened",
		zap.String("date", rep.Date),
		zap.Int("positions", rep.Positions),
		zap.Float64("free_cash", acct.FreeCash))
	return rep, nil
}

// PlaceOrders sends orders to the broker under the reconcile lock. Orders
// the cached account or positions cannot cover are marked invalid without
// reaching the broker, as are orders the broker rejects. Accepted orders
// reserve cash or volume in the cache right away.
func (e *Engine) PlaceOrders(ctx context.Context, orders []broker.Order) ([]broker.Order, error) {
	now := e.now()
	date := market.DateKey(now)

	l, err := e.lock(ctx)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return nil, fmt.Errorf("place orders: %w", ErrLockContention)
		}
		return nil, err
	}
	defer e.release(ctx, l)

	st, err := e.current(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("place orders: %w", err)
	}

	out := make([]broker.Order, len(orders))
	for i, o := range orders {
		o = e.prepare(o, now)
		o = e.place(ctx, &st, o)
		st.orders[o.Key()] = o
		out[i] = o
	}

	if err := st.write(ctx, e.cache, date); err != nil {
		return out, fmt.Errorf("place orders: %w", err)
	}
	return out, nil
}

// current loads the cached state for today. Without a cached account the
// opening capitals stand in for it.
func (e *Engine) current(ctx context.Context, now time.Time) (state, error) {
	date := market.DateKey(now)
	orders, err := loadOrders(ctx, e.cache, date)
	if err != nil {
		return state{}, err
	}
	positions, err := loadPositions(ctx, e.cache, keyPositions)
	if err != nil {
		return state{}, err
	}
	acct, ok, err := loadAccount(ctx, e.cache)
	if err != nil {
		return state{}, err
	}
	if !ok {
		opening, err := e.book.GetOpening(ctx, now)
		if errors.Is(err, journal.ErrNotFound) {
			return state{}, ErrMissingOpeningCapitals
		}
		if err != nil {
			return state{}, err
		}
		acct = broker.Account{FreeCash: opening.FreeCash, MarketValue: opening.MarketValue}
	}
	return state{orders: orders, positions: positions, account: acct}, nil
}

func (e *Engine) prepare(o broker.Order, now time.Time) broker.Order {
	tags := make(map[string]string, len(o.Tags)+1)
	for k, v := range o.Tags {
		tags[k] = v
	}
	if _, ok := tags[broker.TagCreatedAt]; !ok {
		tags[broker.TagCreatedAt] = now.UTC().Format(time.RFC3339Nano)
	}
	o.Tags = tags
	if o.ClientID == "" {
		o.ClientID = id.NewAt(now)
	}
	o.ID = ""
	o.Status = broker.StatusCreated
	o.FilledPrice, o.FilledVolume = 0, 0
	return o
}

func (e *Engine) invalid(o broker.Order, reason string, err error) broker.Order {
	o.Status = broker.StatusInvalid
	o.Tags[broker.TagReason] = reason
	e.log.Warn("order invalid",
		zap.String("client_id", o.ClientID),
		zap.Stringer("order", o),
		zap.String("reason", reason),
		zap.Error(err))
	return o
}

// place checks the reservation, calls the broker and applies the
// reservation to st when the order is live.
func (e *Engine) place(ctx context.Context, st *state, o broker.Order) broker.Order {
	if o.Volume <= 0 || o.Price <= 0 || o.Code == "" {
		return e.invalid(o, "malformed order", nil)
	}
	switch o.Direction {
	case broker.Buy:
		if st.account.FreeCash < e.hold(o) {
			return e.invalid(o, "insufficient free cash", nil)
		}
	case broker.Sell:
		p, ok := st.positions[o.Code]
		if !ok || p.AvailableVolume < o.Volume {
			return e.invalid(o, "insufficient available volume", nil)
		}
	default:
		return e.invalid(o, "unknown direction", nil)
	}

	orderID, err := phase(ctx, e.opts.PhaseTimeout, "place order", func(ctx context.Context) (string, error) {
		return e.broker.PlaceOrder(ctx, o)
	})
	switch {
	case errors.Is(err, ErrPhaseTimeout):
		// The broker may still have taken it; keep the reservation and let
		// the next pass match it by client id.
		o.Status = broker.StatusUnknown
		e.log.Warn("order placement timed out", zap.String("client_id", o.ClientID), zap.Error(err))
	case err != nil:
		return e.invalid(o, err.Error(), fmt.Errorf("%w: %w", ErrPlacementRejected, err))
	default:
		o.ID = orderID
		o.Status = broker.StatusPending
	}

	switch o.Direction {
	case broker.Buy:
		st.account.FreeCash -= e.hold(o)
		st.account.FrozenCash += e.hold(o)
	case broker.Sell:
		p := st.positions[o.Code]
		p.AvailableVolume -= o.Volume
		st.positions[o.Code] = p
	}
	e.log.Info("order placed",
		zap.String("client_id", o.ClientID),
		zap.String("id", o.ID),
		zap.Stringer("order", o))
	return o
}
