// Package journal records trade events and daily capital snapshots.
package journal

import (
	"context"
	"errors"
	"time"
)

type Action string

const (
	ActionOpen       Action = "open"
	ActionClose      Action = "close"
	ActionStopLoss   Action = "stop_loss"
	ActionTakeProfit Action = "take_profit"
)

// Exit reports whether the action closes a position.
func (a Action) Exit() bool { return a != ActionOpen }

type Kind string

const (
	Opening Kind = "opening"
	Closing Kind = "closing"
)

var ErrNotFound = errors.New("journal: not found")

// TradeLogEntry is one immutable trade event. The delta and return fields are
// only set for exits.
type TradeLogEntry struct {
	ID             string
	Time           time.Time
	Action         Action
	Code           string
	Volume         int64
	Price          float64
	TotalValue     float64
	PriceDelta     float64
	PercentDelta   float64
	RealizedReturn float64
}

// CapitalsLogEntry is the account snapshot for one date. Each date has at most
// one opening and one closing entry.
type CapitalsLogEntry struct {
	Date        string // 2006-01-02
	Kind        Kind
	Time        time.Time
	MarketValue float64
	FreeCash    float64
	FrozenCash  float64
}

// Capital is the total asset value of the snapshot.
func (e CapitalsLogEntry) Capital() float64 {
	return e.MarketValue + e.FreeCash + e.FrozenCash
}

// CapitalPoint is a capitals entry with the series derived on read.
type CapitalPoint struct {
	CapitalsLogEntry
	Capital   float64
	PctChange float64
}

// Range bounds a query by time, [From, To). Zero bounds are open.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Store persists the trade book. Reads return entries sorted by time, ties
// in insertion order.
type Store interface {
	AppendTrade(ctx context.Context, e TradeLogEntry) error

	// InsertOpening writes the opening entry unless one exists for the date.
	InsertOpening(ctx context.Context, e CapitalsLogEntry) (bool, error)
	UpsertClosing(ctx context.Context, e CapitalsLogEntry) error

	Trades(ctx context.Context, r Range) ([]TradeLogEntry, error)
	Capitals(ctx context.Context, kind Kind, r Range) ([]CapitalsLogEntry, error)

	// Opening returns ErrNotFound when the date has no opening entry.
	Opening(ctx context.Context, date string) (CapitalsLogEntry, error)

	Close() error
}
