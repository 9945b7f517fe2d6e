package sim

import (
	"fmt"
	"math/rand"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/journal"
	"github.com/rustyeddy/tradesim/market"
)

// TieBreak picks the exit when one bar spans both the stop-loss and the
// take-profit level.
type TieBreak string

const (
	TakeProfitFirst TieBreak = "take_profit_first"
	StopLossFirst   TieBreak = "stop_loss_first"
	RandomTieBreak  TieBreak = "random"
)

func (t TieBreak) Validate() error {
	switch t {
	case TakeProfitFirst, StopLossFirst, RandomTieBreak:
		return nil
	}
	return fmt.Errorf("unknown tie break %q", t)
}

// Exits are fractional distances from the entry price. Zero disables a level.
type Exits struct {
	StopLoss   float64  `yaml:"stop_loss" mapstructure:"stop_loss"`
	TakeProfit float64  `yaml:"take_profit" mapstructure:"take_profit"`
	TieBreak   TieBreak `yaml:"tie_break" mapstructure:"tie_break"`
}

func (x Exits) levels(entry float64) (stop, take float64) {
	if x.StopLoss > 0 {
		stop = entry * (1 - x.StopLoss)
	}
	if x.TakeProfit > 0 {
		take = entry * (1 + x.TakeProfit)
	}
	return stop, take
}

// Check evaluates the stop-loss and take-profit levels of p against bar b.
// The returned price is the boundary, or the open when the bar gapped
// through it. ok is false when neither level was reached.
func (x Exits) Check(p broker.Position, b market.Bar, rng *rand.Rand) (action journal.Action, price float64, ok bool) {
	stop, take := x.levels(p.EntryPrice)
	stopHit := stop > 0 && b.Low <= stop
	takeHit := take > 0 && b.High >= take

	if stopHit && takeHit {
		switch x.TieBreak {
		case StopLossFirst:
			takeHit = false
		case RandomTieBreak:
			if rng.Intn(2) == 0 {
				takeHit = false
			} else {
				stopHit = false
			}
		default:
			stopHit = false
		}
	}

	switch {
	case takeHit:
		if b.Open >= take {
			return journal.ActionTakeProfit, b.Open, true
		}
		return journal.ActionTakeProfit, take, true
	case stopHit:
		if b.Open <= stop {
			return journal.ActionStopLoss, b.Open, true
		}
		return journal.ActionStopLoss, stop, true
	}
	return "", 0, false
}
