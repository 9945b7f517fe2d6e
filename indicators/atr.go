package indicators

import (
	"fmt"
	"math"
)

// trueRange is the largest of the bar's range and its gaps to the previous
// close. The first bar has no previous close and uses its range.
func trueRange(high, low, prevClose []float64, i int) float64 {
	hl := high[i] - low[i]
	if i == 0 {
		return hl
	}
	hc := math.Abs(high[i] - prevClose[i-1])
	lc := math.Abs(low[i] - prevClose[i-1])
	return math.Max(hl, math.Max(hc, lc))
}

// ATRSeries is Wilder's Average True Range. The first value, at index period,
// is the mean of the true ranges of bars 1..period; later values are
// smoothed as (atr*(period-1) + tr) / period.
func ATRSeries(high, low, cls []float64, period int) []float64 {
	out := nanSeries(len(cls))
	if period <= 0 || len(cls) < period+1 {
		return out
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(high, low, cls, i)
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < len(cls); i++ {
		atr = (atr*float64(period-1) + trueRange(high, low, cls, i)) / float64(period)
		out[i] = atr
	}
	return out
}

// ATR declares "atr<period>" over high, low and close.
func ATR(period int) Definition {
	name := fmt.Sprintf("atr%d", period)
	return Definition{
		Name:         name,
		Predecessors: []string{"high", "low", "close"},
		DropIfNull:   true,
		Compute: func(f *Frame) (map[string][]float64, error) {
			if period <= 0 {
				return nil, fmt.Errorf("period must be positive, got %d", period)
			}
			atr := ATRSeries(f.MustColumn("high"), f.MustColumn("low"), f.MustColumn("close"), period)
			return map[string][]float64{name: atr}, nil
		},
	}
}
