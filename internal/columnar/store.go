// Package columnar implements the read-optimized analytical store (C2):
// bars, sentiment, trades, regimes and daily performance, upserted by
// natural composite key, with a hard tier-0 guard on backtest reads.
package columnar

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/paperloop/internal/database"
	"github.com/aristath/paperloop/internal/domain"
)

// ErrTierViolation is returned when a backtest-mode read would surface a
// tier-0 row, or a read mixes tiers. This is always a bug, never a retryable
// condition.
var ErrTierViolation = errors.New("columnar: tier-0 or mixed-tier row in backtest read")

// ErrReadOnly is returned by every write method when the Store was opened
// in read-only mode.
var ErrReadOnly = errors.New("columnar: write attempted on read-only store")

// Store wraps the columnar sqlite database.
type Store struct {
	db       *database.DB
	readOnly bool
	log      zerolog.Logger
}

// Open opens (and migrates) the columnar store at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileStandard, Name: "columnar"})
	if err != nil {
		return nil, fmt.Errorf("columnar: open: %w", err)
	}
	if err := db.Migrate(schemaSQL); err != nil {
		return nil, fmt.Errorf("columnar: migrate: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "columnar").Logger()}, nil
}

// OpenReadOnly opens the same database file in a read-only Store: every
// upsert returns ErrReadOnly without touching the connection, and the
// connection itself is pragma'd into query-only mode as a second guard.
func OpenReadOnly(path string, log zerolog.Logger) (*Store, error) {
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileStandard, Name: "columnar-ro"})
	if err != nil {
		return nil, fmt.Errorf("columnar: open read-only: %w", err)
	}
	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("columnar: set query_only: %w", err)
	}
	return &Store{db: db, readOnly: true, log: log.With().Str("component", "columnar-ro").Logger()}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

const iso = time.RFC3339Nano

// UpsertBar inserts or updates a bar keyed by (symbol, timeframe, timestamp).
func (s *Store) UpsertBar(b domain.Bar) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("columnar: upsert bar: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT INTO bars (symbol, timeframe, timestamp, open, high, low, close, volume, tier, spread_bps, survivorship_bias, adjusted_prices, delayed)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, timeframe, timestamp) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
			volume=excluded.volume, tier=excluded.tier, spread_bps=excluded.spread_bps,
			survivorship_bias=excluded.survivorship_bias, adjusted_prices=excluded.adjusted_prices, delayed=excluded.delayed
	`, b.Symbol, b.Timeframe, b.Timestamp.UTC().Format(iso), b.Open, b.High, b.Low, b.Close, b.Volume,
		int(b.Tier), b.SpreadBps, boolToInt(b.Survivorship), boolToInt(b.Adjusted), boolToInt(b.Delayed))
	if err != nil {
		return fmt.Errorf("columnar: upsert bar: %w", err)
	}
	return nil
}

// UpsertBars upserts a batch of bars.
func (s *Store) UpsertBars(bars []domain.Bar) error {
	for _, b := range bars {
		if err := s.UpsertBar(b); err != nil {
			return err
		}
	}
	return nil
}

// BarsRange returns bars for symbol+timeframe within [from, to), excluding
// tier-0 rows by default (the live/analytical read path).
func (s *Store) BarsRange(symbol, timeframe string, from, to time.Time) ([]domain.Bar, error) {
	rows, err := s.db.Query(`
		SELECT symbol, timeframe, timestamp, open, high, low, close, volume, tier, spread_bps, survivorship_bias, adjusted_prices, delayed
		FROM bars WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp < ? AND tier > 0
		ORDER BY timestamp ASC
	`, symbol, timeframe, from.UTC().Format(iso), to.UTC().Format(iso))
	if err != nil {
		return nil, fmt.Errorf("columnar: bars range: %w", err)
	}
	defer rows.Close()
	return scanBars(rows)
}

// BarsRangeMulti returns bars across several symbols for the same window,
// still excluding tier-0.
func (s *Store) BarsRangeMulti(symbols []string, timeframe string, from, to time.Time) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		bars, err := s.BarsRange(sym, timeframe, from, to)
		if err != nil {
			return nil, err
		}
		out[sym] = bars
	}
	return out, nil
}

// ForBacktestBars returns bars for symbol+timeframe within [from, to),
// hard-failing with ErrTierViolation if any tier-0 row would be returned or
// rows mix tiers — backtests must read a single, explicit, non-universe
// tier.
func (s *Store) ForBacktestBars(symbol, timeframe string, from, to time.Time) ([]domain.Bar, error) {
	rows, err := s.db.Query(`
		SELECT symbol, timeframe, timestamp, open, high, low, close, volume, tier, spread_bps, survivorship_bias, adjusted_prices, delayed
		FROM bars WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, symbol, timeframe, from.UTC().Format(iso), to.UTC().Format(iso))
	if err != nil {
		return nil, fmt.Errorf("columnar: backtest bars: %w", err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}

	seenTier := -1
	for _, b := range bars {
		if b.Tier == domain.Tier0Universe {
			return nil, fmt.Errorf("%w: symbol=%s tier=0-universe", ErrTierViolation, symbol)
		}
		if seenTier == -1 {
			seenTier = int(b.Tier)
		} else if int(b.Tier) != seenTier {
			return nil, fmt.Errorf("%w: symbol=%s mixed tiers %d and %d", ErrTierViolation, symbol, seenTier, int(b.Tier))
		}
	}
	return bars, nil
}

func scanBars(rows *sql.Rows) ([]domain.Bar, error) {
	var out []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var ts string
		var tier int
		var spreadBps sql.NullFloat64
		var survivorship, adjusted, delayed int
		if err := rows.Scan(&b.Symbol, &b.Timeframe, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&tier, &spreadBps, &survivorship, &adjusted, &delayed); err != nil {
			return nil, fmt.Errorf("columnar: scan bar: %w", err)
		}
		parsed, err := time.Parse(iso, ts)
		if err != nil {
			return nil, fmt.Errorf("columnar: parse bar timestamp: %w", err)
		}
		b.Timestamp = parsed
		b.Tier = domain.Tier(tier)
		if spreadBps.Valid {
			v := spreadBps.Float64
			b.SpreadBps = &v
		}
		b.Survivorship = survivorship != 0
		b.Adjusted = adjusted != 0
		b.Delayed = delayed != 0
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columnar: iterate bars: %w", err)
	}
	return out, nil
}

// UpsertSentiment inserts or updates a sentiment score keyed by (symbol, timestamp, source).
func (s *Store) UpsertSentiment(symbol string, ts time.Time, source string, score float64) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.db.Exec(`
		INSERT INTO sentiment (symbol, timestamp, source, score) VALUES (?,?,?,?)
		ON CONFLICT(symbol, timestamp, source) DO UPDATE SET score = excluded.score
	`, symbol, ts.UTC().Format(iso), source, score)
	if err != nil {
		return fmt.Errorf("columnar: upsert sentiment: %w", err)
	}
	return nil
}

// UpsertTrade inserts or updates a fill row keyed by (client_order_id, fill_seq).
func (s *Store) UpsertTrade(clientOrderID string, fillSeq int, symbol string, side domain.Side, qty, price float64, ts time.Time, strategyTag string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.db.Exec(`
		INSERT INTO trades (client_order_id, fill_seq, symbol, side, quantity, price, timestamp, strategy_tag)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(client_order_id, fill_seq) DO UPDATE SET
			symbol=excluded.symbol, side=excluded.side, quantity=excluded.quantity,
			price=excluded.price, timestamp=excluded.timestamp, strategy_tag=excluded.strategy_tag
	`, clientOrderID, fillSeq, symbol, string(side), qty, price, ts.UTC().Format(iso), strategyTag)
	if err != nil {
		return fmt.Errorf("columnar: upsert trade: %w", err)
	}
	return nil
}

// UpsertRegime inserts or updates a regime classification keyed by (symbol, timestamp).
func (s *Store) UpsertRegime(symbol string, r domain.MarketRegime) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.db.Exec(`
		INSERT INTO regimes (symbol, timestamp, trend, volatility, adx, fast_atr, slow_realized_vol, ratio, momentum_enabled, position_scale)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, timestamp) DO UPDATE SET
			trend=excluded.trend, volatility=excluded.volatility, adx=excluded.adx, fast_atr=excluded.fast_atr,
			slow_realized_vol=excluded.slow_realized_vol, ratio=excluded.ratio,
			momentum_enabled=excluded.momentum_enabled, position_scale=excluded.position_scale
	`, symbol, r.Timestamp.UTC().Format(iso), string(r.Trend), string(r.Volatility), r.ADX, r.FastATR,
		r.SlowRealizedVol, r.Ratio, boolToInt(r.MomentumEnabled), r.PositionScale)
	if err != nil {
		return fmt.Errorf("columnar: upsert regime: %w", err)
	}
	return nil
}

// UpsertDailyPerformance inserts or updates the daily performance row keyed by date (YYYY-MM-DD).
func (s *Store) UpsertDailyPerformance(date string, equity, pnl, pnlPct, drawdownPct float64) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.db.Exec(`
		INSERT INTO daily_performance (date, equity, pnl, pnl_pct, drawdown_pct) VALUES (?,?,?,?,?)
		ON CONFLICT(date) DO UPDATE SET equity=excluded.equity, pnl=excluded.pnl, pnl_pct=excluded.pnl_pct, drawdown_pct=excluded.drawdown_pct
	`, date, equity, pnl, pnlPct, drawdownPct)
	if err != nil {
		return fmt.Errorf("columnar: upsert daily performance: %w", err)
	}
	return nil
}

// GetDailyPerformance reads the row for date (YYYY-MM-DD), if any. The
// watchdog uses this to evaluate the daily-loss kill rule without needing
// a broker handle of its own.
func (s *Store) GetDailyPerformance(date string) (pnlPct float64, found bool, err error) {
	row := s.db.QueryRow(`SELECT pnl_pct FROM daily_performance WHERE date = ?`, date)
	if scanErr := row.Scan(&pnlPct); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("columnar: get daily performance: %w", scanErr)
	}
	return pnlPct, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
