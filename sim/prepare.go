package sim

import (
	"sort"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/indicators"
	"github.com/rustyeddy/tradesim/market"
)

// Adjust applies backward adjustment per instrument. With a nil factor map
// the bars are used as they are. An instrument whose factors are missing or
// invalid is dropped with a warning; the rest of the run goes ahead.
func Adjust(bars map[string][]market.Bar, factors map[string][]market.Factor, log *zap.Logger) map[string][]market.Bar {
	if log == nil {
		log = zap.NewNop()
	}
	if factors == nil {
		return bars
	}
	out := make(map[string][]market.Bar, len(bars))
	for code, series := range bars {
		fs, ok := factors[code]
		if !ok {
			log.Warn("no adjustment factors, instrument dropped", zap.String("code", code))
			continue
		}
		adj, err := market.Adjust(series, fs)
		if err != nil {
			log.Warn("invalid adjustment factors, instrument dropped", zap.String("code", code), zap.Error(err))
			continue
		}
		if len(adj) == 0 {
			log.Warn("no bars after adjustment, instrument dropped", zap.String("code", code))
			continue
		}
		out[code] = adj
	}
	return out
}

// Prepare adjusts daily bars and computes defs on each instrument. Frames
// come back ordered by code. An indicator failure is a configuration error
// and fails the whole call.
func Prepare(bars map[string][]market.Bar, factors map[string][]market.Factor, defs []indicators.Definition, log *zap.Logger) ([]*indicators.Frame, error) {
	adjusted := Adjust(bars, factors, log)

	codes := make([]string, 0, len(adjusted))
	for code := range adjusted {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	frames := make([]*indicators.Frame, 0, len(codes))
	for _, code := range codes {
		series := append([]market.Bar(nil), adjusted[code]...)
		market.SortBars(series)
		f := indicators.NewFrame(code, series)
		if err := f.Apply(defs); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// PrepareIntraday adjusts intraday bars with the same factors as the daily
// series, so fills happen on the price scale the signals were computed on.
// An instrument dropped here has no intraday bars and is suspended for the
// whole run.
func PrepareIntraday(bars map[string][]market.Bar, factors map[string][]market.Factor, log *zap.Logger) map[string][]market.Bar {
	adjusted := Adjust(bars, factors, log)
	out := make(map[string][]market.Bar, len(adjusted))
	for code, series := range adjusted {
		series = append([]market.Bar(nil), series...)
		market.SortBars(series)
		out[code] = series
	}
	return out
}
