package journal

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the durable book used for live trading.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (j *SQLiteStore) AppendTrade(ctx context.Context, e TradeLogEntry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades
		(id, time, action, code, volume, price, total_value, price_delta, percent_delta, realized_return)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UTC(), string(e.Action), e.Code, e.Volume, e.Price,
		e.TotalValue, e.PriceDelta, e.PercentDelta, e.RealizedReturn,
	)
	return err
}

func (j *SQLiteStore) InsertOpening(ctx context.Context, e CapitalsLogEntry) (bool, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO capitals
		(date, kind, time, market_value, free_cash, frozen_cash)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Date, string(Opening), e.Time.UTC(), e.MarketValue, e.FreeCash, e.FrozenCash,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (j *SQLiteStore) UpsertClosing(ctx context.Context, e CapitalsLogEntry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO capitals
		(date, kind, time, market_value, free_cash, frozen_cash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, kind) DO UPDATE SET
			time = excluded.time,
			market_value = excluded.market_value,
			free_cash = excluded.free_cash,
			frozen_cash = excluded.frozen_cash`,
		e.Date, string(Closing), e.Time.UTC(), e.MarketValue, e.FreeCash, e.FrozenCash,
	)
	return err
}

func (j *SQLiteStore) Close() error {
	return j.db.Close()
}
