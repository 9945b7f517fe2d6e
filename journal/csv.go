package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var (
	tradesHeader   = []string{"id", "time", "action", "code", "volume", "price", "total_value", "price_delta", "percent_delta", "realized_return"}
	capitalsHeader = []string{"date", "kind", "time", "market_value", "free_cash", "frozen_cash", "capital", "pct_change"}
)

// WriteTradesCSV writes trade entries with a header row.
func WriteTradesCSV(w io.Writer, entries []TradeLogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradesHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.ID,
			e.Time.Format(time.RFC3339),
			string(e.Action),
			e.Code,
			strconv.FormatInt(e.Volume, 10),
			f(e.Price),
			f(e.TotalValue),
			f(e.PriceDelta),
			f(e.PercentDelta),
			f(e.RealizedReturn),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCapitalsCSV writes the derived capital series with a header row.
func WriteCapitalsCSV(w io.Writer, points []CapitalPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(capitalsHeader); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write([]string{
			p.Date,
			string(p.Kind),
			p.Time.Format(time.RFC3339),
			f(p.MarketValue),
			f(p.FreeCash),
			f(p.FrozenCash),
			f(p.Capital),
			f(p.PctChange),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
