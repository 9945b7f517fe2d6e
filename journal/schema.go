package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	action TEXT NOT NULL,
	code TEXT NOT NULL,
	volume INTEGER NOT NULL,
	price REAL NOT NULL,
	total_value REAL NOT NULL,
	price_delta REAL NOT NULL DEFAULT 0,
	percent_delta REAL NOT NULL DEFAULT 0,
	realized_return REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(time);

CREATE TABLE IF NOT EXISTS capitals (
	date TEXT NOT NULL,
	kind TEXT NOT NULL,
	time DATETIME NOT NULL,
	market_value REAL NOT NULL,
	free_cash REAL NOT NULL,
	frozen_cash REAL NOT NULL,
	PRIMARY KEY (date, kind)
);

CREATE INDEX IF NOT EXISTS idx_capitals_time ON capitals(time);
`
