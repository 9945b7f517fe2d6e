// Package recon merges broker-reported orders and positions into the shared
// cache. Every pass runs under one named lock and recomputes the cached
// state from the day's opening capitals, so repeating a pass with the same
// broker data writes the same cache content.
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
	"github.com/rustyeddy/tradesim/ledger"
	"github.com/rustyeddy/tradesim/market"
)

type Options struct {
	LockKey  string        `yaml:"lock_key" mapstructure:"lock_key"`
	LockTTL  time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
	LockWait time.Duration `yaml:"lock_wait" mapstructure:"lock_wait"`
	LockPoll time.Duration `yaml:"lock_poll" mapstructure:"lock_poll"`

	// PhaseTimeout bounds every broker call.
	PhaseTimeout time.Duration `yaml:"phase_timeout" mapstructure:"phase_timeout"`

	// Orders still in created status after this long never reached the
	// broker and are dropped.
	CreatedExpiry time.Duration `yaml:"created_expiry" mapstructure:"created_expiry"`

	// SettleT1 keeps shares bought today out of the available volume.
	SettleT1 bool `yaml:"-" mapstructure:"-"`

	Fees ledger.Fees `yaml:"-" mapstructure:"-"`
}

func DefaultOptions() Options {
	return Options{
		LockKey:       "lock:reconcile",
		LockTTL:       30 * time.Second,
		LockWait:      200 * time.Millisecond,
		LockPoll:      20 * time.Millisecond,
		PhaseTimeout:  10 * time.Second,
		CreatedExpiry: time.Minute,
	}
}

type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusAborted Status = "aborted"
	StatusFailed  Status = "failed"
)

// Report describes one pass. Err carries the reason for anything but ok.
type Report struct {
	Status    Status
	Err       error
	Date      string
	Orders    int
	Adopted   int
	Expired   int
	Positions int
	Account   broker.Account
}

type Engine struct {
	opts   Options
	broker broker.Broker
	cache  cache.Store
	book   *journal.TradeBook
	log    *zap.Logger
	now    func() time.Time
}

func New(opts Options, b broker.Broker, c cache.Store, book *journal.TradeBook, log *zap.Logger) (*Engine, error) {
	if b == nil {
		return nil, errors.New("recon: Broker is required")
	}
	if c == nil {
		return nil, errors.New("recon: Cache is required")
	}
	if book == nil {
		return nil, errors.New("recon: TradeBook is required")
	}
	if opts.LockKey == "" {
		return nil, errors.New("recon: LockKey is required")
	}
	if opts.PhaseTimeout <= 0 {
		return nil, errors.New("recon: PhaseTimeout must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		opts:   opts,
		broker: b,
		cache:  c,
		book:   book,
		log:    log.Named("recon"),
		now:    time.Now,
	}, nil
}

// WithClock replaces the clock that decides the trading date and order age.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) lock(ctx context.Context) (cache.Lock, error) {
	return e.cache.Lock(ctx, e.opts.LockKey, cache.LockOptions{
		TTL:  e.opts.LockTTL,
		Wait: e.opts.LockWait,
		Poll: e.opts.LockPoll,
	})
}

func (e *Engine) release(ctx context.Context, l cache.Lock) {
	if err := l.Release(context.WithoutCancel(ctx)); err != nil {
		e.log.Warn("lock release failed", zap.Error(err))
	}
}

// phase runs one broker call under the phase timeout. A call that does not
// honor its context is abandoned once the timeout expires.
func phase[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(pctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return r.v, fmt.Errorf("%s: %w", name, ErrPhaseTimeout)
		}
		if r.err != nil {
			return r.v, fmt.Errorf("%s: %w", name, r.err)
		}
		return r.v, nil
	case <-pctx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%s: %w", name, ErrPhaseTimeout)
	}
}

func (e *Engine) abort(rep Report, err error) Report {
	rep.Status = StatusAborted
	rep.Err = err
	e.log.Warn("reconcile aborted", zap.String("date", rep.Date), zap.Error(err))
	return rep
}

func (e *Engine) fail(rep Report, err error) Report {
	if errors.Is(err, ErrPhaseTimeout) {
		return e.abort(rep, err)
	}
	rep.Status = StatusFailed
	rep.Err = err
	e.log.Error("reconcile failed", zap.String("date", rep.Date), zap.Error(err))
	return rep
}

// Tick runs one reconciliation pass. Lock contention skips the pass. Only
// invariant violations are returned as errors; every other problem is in
// the report and leaves the cache untouched.
func (e *Engine) Tick(ctx context.Context) (Report, error) {
	now := e.now()
	rep := Report{Date: market.DateKey(now)}

	l, err := e.lock(ctx)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			rep.Status = StatusSkipped
			rep.Err = ErrLockContention
			e.log.Debug("reconcile skipped, lock held", zap.String("date", rep.Date))
			return rep, nil
		}
		return e.fail(rep, err), nil
	}
	defer e.release(ctx, l)

	rep, err = e.reconcile(ctx, now, rep)
	if err != nil {
		e.log.Error("reconcile invariant violated", zap.String("date", rep.Date), zap.Error(err))
	}
	return rep, err
}

func (e *Engine) reconcile(ctx context.Context, now time.Time, rep Report) (Report, error) {
	date := rep.Date

	opening, err := e.book.GetOpening(ctx, now)
	if errors.Is(err, journal.ErrNotFound) {
		return e.abort(rep, ErrMissingOpeningCapitals), nil
	}
	if err != nil {
		return e.fail(rep, err), nil
	}

	orders, err := loadOrders(ctx, e.cache, date)
	if err != nil {
		return e.fail(rep, err), nil
	}
	if len(orders) == 0 {
		return e.abort(rep, ErrNoCachedOrders), nil
	}

	rep.Expired = e.expire(orders, now, broker.StatusCreated)

	reported, err := phase(ctx, e.opts.PhaseTimeout, "query orders", e.broker.QueryOrders)
	if err != nil {
		return e.fail(rep, err), nil
	}
	rep.Adopted = e.merge(orders, reported)
	// A timed-out placement the broker still does not report never reached it.
	rep.Expired += e.expire(orders, now, broker.StatusUnknown)

	marks, err := phase(ctx, e.opts.PhaseTimeout, "query positions", e.broker.QueryPositions)
	if err != nil {
		return e.fail(rep, err), nil
	}
	base, err := loadPositions(ctx, e.cache, baselineKey(date))
	if err != nil {
		return e.fail(rep, err), nil
	}

	positions, err := e.positions(base, marks, orders)
	if err != nil {
		rep.Status, rep.Err = StatusFailed, err
		return rep, err
	}
	acct, err := e.account(opening, orders, positions)
	if err != nil {
		rep.Status, rep.Err = StatusFailed, err
		return rep, err
	}

	st := state{orders: orders, positions: positions, account: acct}
	if err := st.write(ctx, e.cache, date); err != nil {
		return e.fail(rep, err), nil
	}

	rep.Status = StatusOK
	rep.Orders = len(orders)
	rep.Positions = len(positions)
	rep.Account = acct
	e.log.Info("reconciled",
		zap.String("date", date),
		zap.Int("orders", rep.Orders),
		zap.Int("adopted", rep.Adopted),
		zap.Int("expired", rep.Expired),
		zap.Int("positions", rep.Positions),
		zap.Float64("free_cash", acct.FreeCash),
		zap.Float64("frozen_cash", acct.FrozenCash))
	return rep, nil
}

// expire drops orders in status s that never got a broker id and are older
// than the expiry window. An order with no usable creation time counts as
// expired.
func (e *Engine) expire(orders map[string]broker.Order, now time.Time, s broker.Status) int {
	n := 0
	for _, k := range sortedKeys(orders) {
		o := orders[k]
		if o.Status != s || o.ID != "" {
			continue
		}
		created := o.CreatedAt()
		if created.IsZero() || now.Sub(created) > e.opts.CreatedExpiry {
			delete(orders, k)
			n++
		}
	}
	return n
}

// merge folds broker orders into the cached set, matching by broker id and
// then by client id. Orders the cache never saw are adopted.
func (e *Engine) merge(orders map[string]broker.Order, reported []broker.Order) int {
	byClient := make(map[string]string, len(orders))
	for k, o := range orders {
		if o.ClientID != "" {
			byClient[o.ClientID] = k
		}
	}

	adopted := 0
	for _, r := range reported {
		if r.ID == "" {
			continue
		}
		key := ""
		if _, ok := orders[r.ID]; ok {
			key = r.ID
		} else if k, ok := byClient[r.ClientID]; ok && r.ClientID != "" {
			key = k
		}

		if key == "" {
			adopted++
			e.log.Warn("adopting broker order",
				zap.String("id", r.ID),
				zap.String("code", r.Code),
				zap.Error(ErrStaleData))
			orders[r.ID] = r
			continue
		}

		o := orders[key]
		o.ID = r.ID
		o.Status = r.Status
		o.FilledPrice = r.FilledPrice
		o.FilledVolume = r.FilledVolume
		delete(orders, key)
		orders[r.ID] = o
	}
	return adopted
}

// reserves reports whether an order still holds cash or volume.
func reserves(s broker.Status) bool {
	return !s.Terminal()
}

// positions recomputes holdings from the day's baseline plus every merged
// order. Marks and ids come from the broker's positions when it has them.
func (e *Engine) positions(base map[string]broker.Position, marks []broker.Position, orders map[string]broker.Order) (map[string]broker.Position, error) {
	reported := make(map[string]broker.Position, len(marks))
	for _, p := range marks {
		reported[p.Code] = p
	}

	out := make(map[string]broker.Position, len(base))
	for code, p := range base {
		p.AvailableVolume = p.Volume
		out[code] = p
	}

	for _, k := range sortedKeys(orders) {
		o := orders[k]
		p, held := out[o.Code]
		switch {
		case o.Direction == broker.Buy && o.Status == broker.StatusFilled:
			if !held {
				p = broker.Position{ID: o.Key(), Code: o.Code, OpenTime: o.CreatedAt()}
				if r, ok := reported[o.Code]; ok {
					p.ID, p.OpenTime = r.ID, r.OpenTime
				}
			}
			cost := p.EntryPrice*float64(p.Volume) + o.FilledPrice*float64(o.FilledVolume)
			p.Volume += o.FilledVolume
			if p.Volume > 0 {
				p.EntryPrice = cost / float64(p.Volume)
			}
			p.BuyCommission += e.opts.Fees.BrokerCommission(o.FilledPrice * float64(o.FilledVolume))
			if !e.opts.SettleT1 {
				p.AvailableVolume += o.FilledVolume
			}
		case o.Direction == broker.Sell && o.Status == broker.StatusFilled:
			p.Code = o.Code
			p.Volume -= o.FilledVolume
			p.AvailableVolume -= o.FilledVolume
		case o.Direction == broker.Sell && reserves(o.Status):
			p.Code = o.Code
			p.AvailableVolume -= o.Volume
		default:
			continue
		}
		out[o.Code] = p
	}

	for _, code := range sortedKeys(out) {
		p := out[code]
		if p.Volume < 0 {
			return nil, &ledger.InvariantError{Op: "reconcile", Field: "volume", Code: code, Value: float64(p.Volume)}
		}
		if p.AvailableVolume < 0 || p.AvailableVolume > p.Volume {
			return nil, &ledger.InvariantError{Op: "reconcile", Field: "available volume", Code: code, Value: float64(p.AvailableVolume)}
		}
		if p.Volume == 0 {
			delete(out, code)
			continue
		}
		if r, ok := reported[code]; ok && r.LatestPrice > 0 {
			p.LatestPrice = r.LatestPrice
		}
		if p.LatestPrice == 0 {
			p.LatestPrice = p.EntryPrice
		}
		out[code] = p
	}
	return out, nil
}

// hold is the cash an open buy keeps frozen: its amount plus the commission
// a fill at the limit price would be charged.
func (e *Engine) hold(o broker.Order) float64 {
	amount := o.Amount()
	return amount + e.opts.Fees.BrokerCommission(amount)
}

// account recomputes cash from the opening free cash. Open buys move cash
// from free to frozen; fills settle at the filled price net of fees.
func (e *Engine) account(opening journal.CapitalsLogEntry, orders map[string]broker.Order, positions map[string]broker.Position) (broker.Account, error) {
	fees := e.opts.Fees
	acct := broker.Account{FreeCash: opening.FreeCash}

	for _, k := range sortedKeys(orders) {
		o := orders[k]
		filled := o.FilledPrice * float64(o.FilledVolume)
		switch {
		case o.Direction == broker.Buy && o.Status == broker.StatusFilled:
			acct.FreeCash -= filled + fees.BrokerCommission(filled)
		case o.Direction == broker.Buy && reserves(o.Status):
			acct.FreeCash -= e.hold(o)
			acct.FrozenCash += e.hold(o)
		case o.Direction == broker.Sell && o.Status == broker.StatusFilled:
			acct.FreeCash += filled - fees.SellCosts(filled)
		}
	}
	if acct.FreeCash < 0 {
		return acct, &ledger.InvariantError{Op: "reconcile", Field: "free cash", Value: acct.FreeCash}
	}
	if acct.FrozenCash < 0 {
		return acct, &ledger.InvariantError{Op: "reconcile", Field: "frozen cash", Value: acct.FrozenCash}
	}

	for _, code := range sortedKeys(positions) {
		acct.MarketValue += positions[code].MarketValue()
	}
	return acct, nil
}

// Run ticks every interval until ctx is done or a pass reports an invariant
// violation.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("reconcile loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.Tick(ctx); err != nil {
				return err
			}
		}
	}
}
