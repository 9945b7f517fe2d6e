package journal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/ledger"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/pkg/id"
)

// TradeBook mirrors ledger activity into a Store.
type TradeBook struct {
	store Store
	log   *zap.Logger
}

func NewTradeBook(store Store, log *zap.Logger) *TradeBook {
	if log == nil {
		log = zap.NewNop()
	}
	return &TradeBook{store: store, log: log.Named("tradebook")}
}

func (b *TradeBook) Store() Store { return b.store }

// Open records a new position.
func (b *TradeBook) Open(ctx context.Context, ts time.Time, p broker.Position) error {
	e := TradeLogEntry{
		ID:         id.NewAt(ts),
		Time:       ts,
		Action:     ActionOpen,
		Code:       p.Code,
		Volume:     p.Volume,
		Price:      p.EntryPrice,
		TotalValue: p.Cost(),
	}
	if err := b.store.AppendTrade(ctx, e); err != nil {
		return fmt.Errorf("log open %s: %w", p.Code, err)
	}
	return nil
}

// Close records a position removed from the ledger.
func (b *TradeBook) Close(ctx context.Context, c ledger.Closed, action Action) error {
	if !action.Exit() {
		return fmt.Errorf("log close %s: %q is not an exit action", c.Position.Code, action)
	}
	e := TradeLogEntry{
		ID:             id.NewAt(c.Time),
		Time:           c.Time,
		Action:         action,
		Code:           c.Position.Code,
		Volume:         c.Position.Volume,
		Price:          c.ExitPrice,
		TotalValue:     c.Proceeds,
		PriceDelta:     c.PriceDelta,
		PercentDelta:   c.PercentDelta,
		RealizedReturn: c.NetReturn,
	}
	if err := b.store.AppendTrade(ctx, e); err != nil {
		return fmt.Errorf("log close %s: %w", c.Position.Code, err)
	}
	return nil
}

func snapshot(ts time.Time, kind Kind, acct broker.Account) CapitalsLogEntry {
	return CapitalsLogEntry{
		Date:        market.DateKey(ts),
		Kind:        kind,
		Time:        ts,
		MarketValue: acct.MarketValue,
		FreeCash:    acct.FreeCash,
		FrozenCash:  acct.FrozenCash,
	}
}

// LogOpeningCapitals writes the day's opening snapshot once. A second call for
// the same date is ignored with a warning.
func (b *TradeBook) LogOpeningCapitals(ctx context.Context, ts time.Time, acct broker.Account) error {
	e := snapshot(ts, Opening, acct)
	inserted, err := b.store.InsertOpening(ctx, e)
	if err != nil {
		return fmt.Errorf("log opening capitals %s: %w", e.Date, err)
	}
	if !inserted {
		b.log.Warn("opening capitals already recorded", zap.String("date", e.Date))
	}
	return nil
}

// LogClosingCapitals overwrites the day's closing snapshot.
func (b *TradeBook) LogClosingCapitals(ctx context.Context, ts time.Time, acct broker.Account) error {
	e := snapshot(ts, Closing, acct)
	if err := b.store.UpsertClosing(ctx, e); err != nil {
		return fmt.Errorf("log closing capitals %s: %w", e.Date, err)
	}
	return nil
}

func (b *TradeBook) FetchTrades(ctx context.Context, r Range) ([]TradeLogEntry, error) {
	return b.store.Trades(ctx, r)
}

// FetchCapitals returns the snapshots of one kind with the running capital and
// its percent change against the previous snapshot.
func (b *TradeBook) FetchCapitals(ctx context.Context, kind Kind, r Range) ([]CapitalPoint, error) {
	entries, err := b.store.Capitals(ctx, kind, r)
	if err != nil {
		return nil, err
	}
	out := make([]CapitalPoint, len(entries))
	for i, e := range entries {
		out[i] = CapitalPoint{CapitalsLogEntry: e, Capital: e.Capital()}
		if i > 0 && out[i-1].Capital != 0 {
			out[i].PctChange = out[i].Capital/out[i-1].Capital - 1
		}
	}
	return out, nil
}

// GetOpening returns the opening snapshot for the day containing t, or an
// error matching ErrNotFound.
func (b *TradeBook) GetOpening(ctx context.Context, t time.Time) (CapitalsLogEntry, error) {
	return b.store.Opening(ctx, market.DateKey(t))
}
