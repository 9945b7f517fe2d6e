package market

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidAdjustment reports a factor series that cannot be applied.
var ErrInvalidAdjustment = errors.New("invalid price adjustment")

// Factor is one point of a piecewise-constant adjustment series. The value
// holds from Time until the next factor.
type Factor struct {
	Time  time.Time
	Value float64
}

// Adjust rewrites a price series with backward adjustment factors
// (splits/dividends). Each bar is scaled by the latest factor at or before its
// timestamp. Bars that precede the first factor have no known factor and are
// dropped.
//
// An empty factor series or a non-positive/NaN factor is an
// ErrInvalidAdjustment; callers drop the whole instrument on that error.
func Adjust(bars []Bar, factors []Factor) ([]Bar, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	if len(factors) == 0 {
		return nil, fmt.Errorf("%w: %s: no factors", ErrInvalidAdjustment, bars[0].Code)
	}

	fs := make([]Factor, len(factors))
	copy(fs, factors)
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Time.Before(fs[j].Time) })

	for _, f := range fs {
		if math.IsNaN(f.Value) || math.IsInf(f.Value, 0) || f.Value <= 0 {
			return nil, fmt.Errorf("%w: %s: factor %v at %s",
				ErrInvalidAdjustment, bars[0].Code, f.Value, f.Time.Format(time.RFC3339))
		}
	}

	series := make([]Bar, len(bars))
	copy(series, bars)
	SortBars(series)

	out := make([]Bar, 0, len(series))
	fi := -1
	for _, b := range series {
		for fi+1 < len(fs) && !fs[fi+1].Time.After(b.Time) {
			fi++
		}
		if fi < 0 {
			continue
		}
		out = append(out, b.Scale(fs[fi].Value))
	}
	return out, nil
}
