package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/sim"
)

// MACross is long while the fast moving average is above the slow one.
// The entry weight is the relative gap between the two. With a trend filter,
// entries also need ADX at or above the minimum.
type MACross struct {
	fast, slow string

	adx    string
	minADX float64
}

func NewMACross(fast, slow int) (*MACross, error) {
	if fast <= 0 || slow <= 0 || fast >= slow {
		return nil, fmt.Errorf("ma-cross: need 0 < fast < slow, got %d/%d", fast, slow)
	}
	return &MACross{
		fast: fmt.Sprintf("ma%d", fast),
		slow: fmt.Sprintf("ma%d", slow),
	}, nil
}

// WithTrendFilter gates entries on adx<period> >= min. A non-positive min
// leaves the strategy unfiltered.
func (s *MACross) WithTrendFilter(period int, min float64) (*MACross, error) {
	if min <= 0 {
		return s, nil
	}
	if period <= 0 {
		return nil, fmt.Errorf("ma-cross: adx period must be positive, got %d", period)
	}
	s.adx = fmt.Sprintf("adx%d", period)
	s.minADX = min
	return s, nil
}

func (s *MACross) Name() string { return "ma-cross" }

func (s *MACross) Indicators() []string {
	if s.adx != "" {
		return []string{s.fast, s.slow, s.adx}
	}
	return []string{s.fast, s.slow}
}

func (s *MACross) Buy(r sim.Row) (float64, bool) {
	fast, slow := r.Value(s.fast), r.Value(s.slow)
	if math.IsNaN(fast) || math.IsNaN(slow) || slow <= 0 {
		return 0, false
	}
	if fast <= slow {
		return 0, false
	}
	if s.adx != "" {
		adx := r.Value(s.adx)
		if math.IsNaN(adx) || adx < s.minADX {
			return 0, false
		}
	}
	return (fast - slow) / slow, true
}

func (s *MACross) Close(r sim.Row, _ broker.Position) bool {
	fast, slow := r.Value(s.fast), r.Value(s.slow)
	if math.IsNaN(fast) || math.IsNaN(slow) {
		return false
	}
	return fast < slow
}
