package strategies

import (
	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/sim"
)

// NoopStrategy never trades.
type NoopStrategy struct{}

func (NoopStrategy) Name() string                        { return "noop" }
func (NoopStrategy) Indicators() []string                { return nil }
func (NoopStrategy) Buy(sim.Row) (float64, bool)         { return 0, false }
func (NoopStrategy) Close(sim.Row, broker.Position) bool { return false }
