package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable, append-only record. Produced by any component,
// never mutated, read once by the ETL pipeline.
type Event struct {
	ID            string                 `json:"event_id"`
	Type          EventKind              `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	Symbol        *string                `json:"symbol,omitempty"`
	Source        string                 `json:"source"`
	CorrelationID *string                `json:"correlation_id,omitempty"`
	Data          map[string]interface{} `json:"data"`
}

// NewEvent builds an Event with a monotone-ordered id (timestamp + type +
// random suffix), per spec.md §3.
func NewEvent(kind EventKind, source string, symbol *string, data map[string]interface{}) (Event, error) {
	if !kind.Valid() {
		return Event{}, fmt.Errorf("domain: invalid event kind %q", kind)
	}
	now := time.Now().UTC()
	id := fmt.Sprintf("%d_%s_%s", now.UnixNano(), kind, uuid.NewString()[:8])
	return Event{
		ID:        id,
		Type:      kind,
		Timestamp: now,
		Symbol:    symbol,
		Source:    source,
		Data:      data,
	}, nil
}

// Bar is an OHLCV sample over a fixed timeframe.
type Bar struct {
	Timestamp      time.Time `json:"timestamp"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         float64   `json:"volume"`
	Tier           Tier      `json:"tier"`
	SpreadBps      *float64  `json:"spread_bps,omitempty"`
	Survivorship   bool      `json:"survivorship_bias"`
	Adjusted       bool      `json:"adjusted_prices"`
	Delayed        bool      `json:"delayed"`
}

// Validate enforces the invariants from spec.md §3: high >= max(open, close,
// low); low <= min(open, close, high); volume >= 0; prices > 0.
func (b Bar) Validate() error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("domain: bar %s@%s has non-positive price", b.Symbol, b.Timestamp)
	}
	if b.Volume < 0 {
		return fmt.Errorf("domain: bar %s@%s has negative volume", b.Symbol, b.Timestamp)
	}
	maxOCL := max3(b.Open, b.Close, b.Low)
	if b.High < maxOCL {
		return fmt.Errorf("domain: bar %s@%s: high %.4f < max(open,close,low) %.4f", b.Symbol, b.Timestamp, b.High, maxOCL)
	}
	minOCH := min3(b.Open, b.Close, b.High)
	if b.Low > minOCH {
		return fmt.Errorf("domain: bar %s@%s: low %.4f > min(open,close,high) %.4f", b.Symbol, b.Timestamp, b.Low, minOCH)
	}
	return nil
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Order is owned exclusively by the Order Manager (internal/orders).
type Order struct {
	ClientOrderID string      `json:"client_order_id"`
	BrokerOrderID *string     `json:"broker_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Quantity      float64     `json:"quantity"`
	Type          OrderType   `json:"type"`
	LimitPrice    *float64    `json:"limit_price,omitempty"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	FilledQty     float64     `json:"filled_qty"`
	LastFillPrice float64     `json:"last_fill_price"`
	StrategyTag   string      `json:"strategy_tag"`
	SignalTag     string      `json:"signal_tag"`
}

// Position is a borrowed view of broker truth, replaced wholesale on each
// broker sync.
type Position struct {
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	AvgPrice     float64   `json:"average_entry_price"`
	MarketValue  float64   `json:"market_value"`
	UnrealizedPL float64   `json:"unrealized_pl"`
	Side         Side      `json:"side"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MarketRegime is the classification produced by the Regime Detector.
type MarketRegime struct {
	Timestamp       time.Time  `json:"timestamp"`
	Symbol          *string    `json:"symbol,omitempty"`
	Trend           Trend      `json:"trend"`
	Volatility      Volatility `json:"volatility"`
	ADX             float64    `json:"adx"`
	FastATR         float64    `json:"fast_atr"`
	SlowRealizedVol float64    `json:"slow_realized_vol"`
	Ratio           float64    `json:"ratio"`
	MomentumEnabled bool       `json:"momentum_enabled"`
	PositionScale   float64    `json:"position_scale"`
}

// KillViolation records a watchdog kill-rule breach.
type KillViolation struct {
	RuleID    string       `json:"rule_id"`
	Severity  KillSeverity `json:"severity"`
	Action    KillAction   `json:"action"`
	Reason    string       `json:"reason"`
	Timestamp time.Time    `json:"timestamp"`
}

// HeartBeat records process liveness in the Live State Cache.
type HeartBeat struct {
	Process  string    `json:"process"`
	LastSeen time.Time `json:"last_seen"`
}

// Signal is the common record every Strategy emits.
type Signal struct {
	Symbol     string             `json:"symbol"`
	Type       SignalType         `json:"type"`
	Timestamp  time.Time          `json:"timestamp"`
	StrategyID string             `json:"strategy_id"`
	SignalID   string             `json:"signal_id"`
	Confidence float64            `json:"confidence"`
	EntryPrice *float64           `json:"entry_price,omitempty"`
	Metadata   map[string]float64 `json:"metadata,omitempty"`
}
