package journal

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rustyeddy/tradesim/broker"
	"github.com/rustyeddy/tradesim/ledger"
)

var day1 = time.Date(2024, 4, 10, 9, 30, 0, 0, time.UTC)

func newTestSQLite(t *testing.T) (*SQLiteStore, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

// stores returns a fresh instance of every backend.
func stores(t *testing.T) map[string]Store {
	sq, _ := newTestSQLite(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func assertTradeEqual(t *testing.T, want, got TradeLogEntry) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, want.Time.Equal(got.Time), "time %v != %v", want.Time, got.Time)
	assert.Equal(t, want.Action, got.Action)
	assert.Equal(t, want.Code, got.Code)
	assert.Equal(t, want.Volume, got.Volume)
	assert.InDelta(t, want.Price, got.Price, 1e-9)
	assert.InDelta(t, want.TotalValue, got.TotalValue, 1e-9)
	assert.InDelta(t, want.PriceDelta, got.PriceDelta, 1e-9)
	assert.InDelta(t, want.PercentDelta, got.PercentDelta, 1e-12)
	assert.InDelta(t, want.RealizedReturn, got.RealizedReturn, 1e-12)
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','capitals')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["capitals"])
}

func TestTradeRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			want := TradeLogEntry{
				ID:             "T1",
				Time:           day1.Add(123456789 * time.Nanosecond),
				Action:         ActionTakeProfit,
				Code:           "600000",
				Volume:         1500,
				Price:          10.875,
				TotalValue:     16312.5,
				PriceDelta:     0.25,
				PercentDelta:   0.0235294,
				RealizedReturn: -0.0061,
			}
			require.NoError(t, store.AppendTrade(ctx, want))

			got, err := store.Trades(ctx, Range{})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assertTradeEqual(t, want, got[0])
		})
	}
}

func TestTradesSortedAndRanged(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i, off := range []int{3, 1, 2, 1} {
				require.NoError(t, store.AppendTrade(ctx, TradeLogEntry{
					ID:     string(rune('a' + i)),
					Time:   day1.Add(time.Duration(off) * time.Hour),
					Action: ActionOpen,
					Code:   "X",
				}))
			}

			all, err := store.Trades(ctx, Range{})
			require.NoError(t, err)
			ids := make([]string, len(all))
			for i, e := range all {
				ids[i] = e.ID
			}
			// ties keep insertion order
			assert.Equal(t, []string{"b", "d", "c", "a"}, ids)

			some, err := store.Trades(ctx, Range{From: day1.Add(2 * time.Hour), To: day1.Add(3 * time.Hour)})
			require.NoError(t, err)
			require.Len(t, some, 1)
			assert.Equal(t, "c", some[0].ID)
		})
	}
}

func TestOpeningWrittenOnce(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			book := NewTradeBook(store, zaptest.NewLogger(t))

			_, err := book.GetOpening(ctx, day1)
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, book.LogOpeningCapitals(ctx, day1, broker.Account{FreeCash: 100}))
			require.NoError(t, book.LogOpeningCapitals(ctx, day1.Add(time.Hour), broker.Account{FreeCash: 999}))

			got, err := book.GetOpening(ctx, day1.Add(5*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, "2024-04-10", got.Date)
			assert.Equal(t, Opening, got.Kind)
			assert.InDelta(t, 100.0, got.FreeCash, 1e-9)
			assert.True(t, got.Time.Equal(day1))
		})
	}
}

func TestClosingUpsertAndDerivedSeries(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			book := NewTradeBook(store, nil)

			day2 := day1.AddDate(0, 0, 1)
			require.NoError(t, book.LogClosingCapitals(ctx, day1, broker.Account{FreeCash: 50, MarketValue: 50}))
			require.NoError(t, book.LogClosingCapitals(ctx, day1.Add(time.Hour), broker.Account{FreeCash: 60, MarketValue: 40, FrozenCash: 0}))
			require.NoError(t, book.LogClosingCapitals(ctx, day2, broker.Account{FreeCash: 10, MarketValue: 100, FrozenCash: 10}))
			require.NoError(t, book.LogOpeningCapitals(ctx, day1, broker.Account{FreeCash: 1}))

			points, err := book.FetchCapitals(ctx, Closing, Range{})
			require.NoError(t, err)
			require.Len(t, points, 2)

			assert.InDelta(t, 60.0, points[0].FreeCash, 1e-9)
			assert.InDelta(t, 100.0, points[0].Capital, 1e-9)
			assert.Zero(t, points[0].PctChange)
			assert.InDelta(t, 120.0, points[1].Capital, 1e-9)
			assert.InDelta(t, 0.2, points[1].PctChange, 1e-9)

			openings, err := book.FetchCapitals(ctx, Opening, Range{})
			require.NoError(t, err)
			assert.Len(t, openings, 1)
		})
	}
}

func TestBookOpenAndClose(t *testing.T) {
	ctx := context.Background()
	book := NewTradeBook(NewMemoryStore(), nil)

	p := broker.Position{Code: "AAA", EntryPrice: 100, Volume: 100}
	require.NoError(t, book.Open(ctx, day1, p))

	closed := ledger.Closed{
		Position:     p,
		Time:         day1.Add(24 * time.Hour),
		ExitPrice:    110,
		Proceeds:     11_000,
		PriceDelta:   10,
		PercentDelta: 0.1,
		NetReturn:    -0.0061,
	}
	require.NoError(t, book.Close(ctx, closed, ActionStopLoss))
	assert.Error(t, book.Close(ctx, closed, ActionOpen))

	trades, err := book.FetchTrades(ctx, Range{})
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, ActionOpen, trades[0].Action)
	assert.InDelta(t, 10_000.0, trades[0].TotalValue, 1e-9)
	assert.Equal(t, ActionStopLoss, trades[1].Action)
	assert.InDelta(t, 110.0, trades[1].Price, 1e-9)
	assert.InDelta(t, -0.0061, trades[1].RealizedReturn, 1e-12)
	assert.NotEqual(t, trades[0].ID, trades[1].ID)
}

func TestGetTradeNotFound(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	_, err := j.GetTrade(context.Background(), "nonexistent")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, []TradeLogEntry{{ID: "T1", Time: day1, Action: ActionOpen, Code: "AAA", Volume: 100, Price: 1.5}}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, tradesHeader, rows[0])
	assert.Equal(t, "T1", rows[1][0])
	assert.Equal(t, "100", rows[1][4])
	assert.Equal(t, "1.500000", rows[1][5])

	buf.Reset()
	require.NoError(t, WriteCapitalsCSV(&buf, []CapitalPoint{{CapitalsLogEntry: CapitalsLogEntry{Date: "2024-04-10", Kind: Closing, Time: day1}, Capital: 5}}))
	rows, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, capitalsHeader, rows[0])
	assert.Equal(t, "5.000000", rows[1][6])
}
