package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	tradeColumns   = `id, time, action, code, volume, price, total_value, price_delta, percent_delta, realized_return`
	capitalColumns = `date, kind, time, market_value, free_cash, frozen_cash`
)

// rangeClause appends time bounds to a WHERE clause.
func rangeClause(where []string, args []any, r Range) ([]string, []any) {
	if !r.From.IsZero() {
		where = append(where, "time >= ?")
		args = append(args, r.From.UTC())
	}
	if !r.To.IsZero() {
		where = append(where, "time < ?")
		args = append(args, r.To.UTC())
	}
	return where, args
}

func whereSQL(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

// GetTrade returns a single trade entry by ID.
func (j *SQLiteStore) GetTrade(ctx context.Context, tradeID string) (TradeLogEntry, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, tradeID)
	e, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeLogEntry{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
		}
		return TradeLogEntry{}, err
	}
	return e, nil
}

func (j *SQLiteStore) Trades(ctx context.Context, r Range) ([]TradeLogEntry, error) {
	where, args := rangeClause(nil, nil, r)
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades`+whereSQL(where)+` ORDER BY time ASC, rowid ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeLogEntry
	for rows.Next() {
		e, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLiteStore) Capitals(ctx context.Context, kind Kind, r Range) ([]CapitalsLogEntry, error) {
	where, args := rangeClause([]string{"kind = ?"}, []any{string(kind)}, r)
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+capitalColumns+` FROM capitals`+whereSQL(where)+` ORDER BY time ASC, rowid ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CapitalsLogEntry
	for rows.Next() {
		e, err := scanCapital(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLiteStore) Opening(ctx context.Context, date string) (CapitalsLogEntry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT `+capitalColumns+` FROM capitals WHERE date = ? AND kind = ?`, date, string(Opening))
	e, err := scanCapital(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CapitalsLogEntry{}, fmt.Errorf("opening capitals %s: %w", date, ErrNotFound)
		}
		return CapitalsLogEntry{}, err
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeLogEntry, error) {
	var (
		e      TradeLogEntry
		action string
	)
	err := s.Scan(
		&e.ID,
		&e.Time,
		&action,
		&e.Code,
		&e.Volume,
		&e.Price,
		&e.TotalValue,
		&e.PriceDelta,
		&e.PercentDelta,
		&e.RealizedReturn,
	)
	e.Action = Action(action)
	return e, err
}

func scanCapital(s scanner) (CapitalsLogEntry, error) {
	var (
		e    CapitalsLogEntry
		kind string
	)
	err := s.Scan(&e.Date, &kind, &e.Time, &e.MarketValue, &e.FreeCash, &e.FrozenCash)
	e.Kind = Kind(kind)
	return e, err
}
