package strategies

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rustyeddy/tradesim/indicators"
	"github.com/rustyeddy/tradesim/sim"
)

// Params are the numeric knobs a strategy reads from configuration.
type Params map[string]float64

// Int returns p[key] as an int, or def when absent.
func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

type Factory func(Params) (sim.Strategy, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = f
}

// New builds the named strategy.
func New(name string, params Params) (sim.Strategy, error) {
	mu.RLock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(params)
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("noop", func(Params) (sim.Strategy, error) { return NoopStrategy{}, nil })
	Register("ma-cross", func(p Params) (sim.Strategy, error) {
		s, err := NewMACross(p.Int("fast", 5), p.Int("slow", 20))
		if err != nil {
			return nil, err
		}
		return s.WithTrendFilter(p.Int("adx_period", 14), p["min_adx"])
	})
}

// DefaultIndicators is the set the CLI builds its registry from.
func DefaultIndicators() []indicators.Definition {
	defs := []indicators.Definition{
		indicators.EMA(12),
		indicators.EMA(26),
		indicators.Spread("macd", "ema12", "ema26"),
		indicators.ATR(14),
		indicators.ADX(14),
	}
	for _, p := range []int{5, 10, 20, 30, 60} {
		defs = append(defs, indicators.MA(p))
	}
	return defs
}
