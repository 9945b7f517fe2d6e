package sim

import (
	"math"
	"time"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/market"
)

// Row is what a strategy sees for one instrument at one step: the bar being
// traded and the indicator values known at that point.
type Row struct {
	Code   string
	Time   time.Time
	Bar    market.Bar
	Values map[string]float64
}

// Value returns an indicator value, NaN when absent.
func (r Row) Value(name string) float64 {
	v, ok := r.Values[name]
	if !ok {
		return math.NaN()
	}
	return v
}

// Strategy turns indicator rows into entry and exit signals.
type Strategy interface {
	Name() string

	// Indicators names the registry entries the strategy reads.
	Indicators() []string

	// Buy reports whether r qualifies for entry, with a weight used when
	// candidates have to be down-sampled.
	Buy(r Row) (weight float64, ok bool)

	// Close reports whether the held position should be closed at r's close.
	// Only consulted when neither stop-loss nor take-profit triggered.
	Close(r Row, p broker.Position) bool
}
