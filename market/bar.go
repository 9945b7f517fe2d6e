package market

import (
	"sort"
	"time"
)

// Bar is one OHLCV row for a single instrument.
type Bar struct {
	Code   string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Scale returns a copy of the bar with every price multiplied by f.
// Volume is left alone.
func (b Bar) Scale(f float64) Bar {
	b.Open *= f
	b.High *= f
	b.Low *= f
	b.Close *= f
	return b
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateKey formats t as the YYYY-MM-DD key used by daily records.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SortBars orders bars by time, then by code.
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		if !bars[i].Time.Equal(bars[j].Time) {
			return bars[i].Time.Before(bars[j].Time)
		}
		return bars[i].Code < bars[j].Code
	})
}

// GroupByCode splits bars into per-instrument series, each sorted by time.
func GroupByCode(bars []Bar) map[string][]Bar {
	out := make(map[string][]Bar)
	for _, b := range bars {
		out[b.Code] = append(out[b.Code], b)
	}
	for _, series := range out {
		SortBars(series)
	}
	return out
}
