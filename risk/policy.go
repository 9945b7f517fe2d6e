package risk

import (
	"math"
	"math/rand"
	"sort"
)

// Policy holds the entry constraints applied before allocation.
type Policy struct {
	LotSize      int64   `yaml:"lot_size" mapstructure:"lot_size"`             // shares per lot, e.g. 100
	MinTradeCost float64 `yaml:"min_trade_cost" mapstructure:"min_trade_cost"` // minimum ticket per instrument

	// Exposure limits
	MaxOpen             int     `yaml:"max_open" mapstructure:"max_open"`                           // 0 = unlimited open positions
	MaxPositionFraction float64 `yaml:"max_position_fraction" mapstructure:"max_position_fraction"` // 0 = no per-position cap, else fraction of total asset value
}

// Slots returns how many new positions may be opened when held are open.
func (p Policy) Slots(held int) int {
	if p.MaxOpen <= 0 {
		return math.MaxInt32
	}
	if held >= p.MaxOpen {
		return 0
	}
	return p.MaxOpen - held
}

// PositionCap returns the per-position cost cap for the given total asset
// value. Zero means uncapped.
func (p Policy) PositionCap(totalAsset float64) float64 {
	if p.MaxPositionFraction <= 0 {
		return 0
	}
	return p.MaxPositionFraction * totalAsset
}

// Candidate is an instrument with an entry signal.
type Candidate struct {
	Code   string
	Price  float64
	Weight float64
}

// Sample picks k candidates without replacement, favoring larger weights.
// Non-positive weights are treated as a very small weight. The survivors keep
// their input order. When k covers every candidate the input is returned as is.
func Sample(cands []Candidate, k int, rng *rand.Rand) []Candidate {
	if k >= len(cands) {
		return cands
	}
	if k <= 0 {
		return nil
	}

	// Efraimidis-Spirakis: key = u^(1/w), keep the k largest keys.
	type keyed struct {
		idx int
		key float64
	}
	keys := make([]keyed, len(cands))
	for i, c := range cands {
		w := c.Weight
		if w <= 0 || math.IsNaN(w) {
			w = 1e-9
		}
		u := 0.5
		if rng != nil {
			u = rng.Float64()
		}
		keys[i] = keyed{idx: i, key: math.Pow(u, 1/w)}
	}
	sort.SliceStable(keys, func(a, b int) bool { return keys[a].key > keys[b].key })

	picked := make([]int, k)
	for i := 0; i < k; i++ {
		picked[i] = keys[i].idx
	}
	sort.Ints(picked)

	out := make([]Candidate, k)
	for i, idx := range picked {
		out[i] = cands[idx]
	}
	return out
}

// Quotes converts candidates into allocator input.
func Quotes(cands []Candidate) []Quote {
	out := make([]Quote, len(cands))
	for i, c := range cands {
		out[i] = Quote{Code: c.Code, Price: c.Price}
	}
	return out
}
