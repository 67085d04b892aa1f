package columnar

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bars (
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL,
	tier INTEGER NOT NULL,
	spread_bps REAL,
	survivorship_bias INTEGER NOT NULL DEFAULT 0,
	adjusted_prices INTEGER NOT NULL DEFAULT 0,
	delayed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, timeframe, timestamp)
);
CREATE INDEX IF NOT EXISTS idx_bars_symbol_ts ON bars(symbol, timestamp);

CREATE TABLE IF NOT EXISTS sentiment (
	symbol TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	source TEXT NOT NULL,
	score REAL NOT NULL,
	PRIMARY KEY (symbol, timestamp, source)
);

CREATE TABLE IF NOT EXISTS trades (
	client_order_id TEXT NOT NULL,
	fill_seq INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	timestamp TEXT NOT NULL,
	strategy_tag TEXT,
	PRIMARY KEY (client_order_id, fill_seq)
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, timestamp);

CREATE TABLE IF NOT EXISTS regimes (
	symbol TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	trend TEXT NOT NULL,
	volatility TEXT NOT NULL,
	adx REAL NOT NULL,
	fast_atr REAL NOT NULL,
	slow_realized_vol REAL NOT NULL,
	ratio REAL NOT NULL,
	momentum_enabled INTEGER NOT NULL,
	position_scale REAL NOT NULL,
	PRIMARY KEY (symbol, timestamp)
);

CREATE TABLE IF NOT EXISTS daily_performance (
	date TEXT NOT NULL PRIMARY KEY,
	equity REAL NOT NULL,
	pnl REAL NOT NULL,
	pnl_pct REAL NOT NULL,
	drawdown_pct REAL NOT NULL
);
`
