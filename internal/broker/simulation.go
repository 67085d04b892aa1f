package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/paperloop/internal/columnar"
	"github.com/aristath/paperloop/internal/domain"
)

// Simulation is a frozen-fixture broker that replays historical bars from
// the Columnar Store instead of live prices. It embeds a Paper broker for
// the order/cash bookkeeping and advances a single simulated clock by
// replaying bars in timestamp order.
type Simulation struct {
	*Paper
	store     *columnar.Store
	timeframe string
	cursor    map[string]int
	bars      map[string][]domain.Bar
	now       time.Time
}

// NewSimulation builds a Simulation over the given symbols' historical bars
// for timeframe, starting at fromInclusive.
func NewSimulation(store *columnar.Store, initialCash float64, loc *time.Location, symbols []string, timeframe string, fromInclusive, toExclusive time.Time) (*Simulation, error) {
	bars, err := store.BarsRangeMulti(symbols, timeframe, fromInclusive, toExclusive)
	if err != nil {
		return nil, fmt.Errorf("broker: simulation load bars: %w", err)
	}
	s := &Simulation{
		Paper:     NewPaper(initialCash, loc),
		store:     store,
		timeframe: timeframe,
		cursor:    make(map[string]int, len(symbols)),
		bars:      bars,
		now:       fromInclusive,
	}
	return s, nil
}

// Advance moves every symbol's cursor forward one bar (if available),
// feeding the new close price into the embedded Paper broker and advancing
// the simulated clock to the latest bar timestamp seen.
func (s *Simulation) Advance() (more bool) {
	more = false
	for symbol, series := range s.bars {
		idx := s.cursor[symbol]
		if idx >= len(series) {
			continue
		}
		bar := series[idx]
		s.SetPrice(symbol, bar.Close)
		if bar.Timestamp.After(s.now) {
			s.now = bar.Timestamp
		}
		s.cursor[symbol] = idx + 1
		if idx+1 < len(series) {
			more = true
		}
	}
	return more
}

// GetClock returns the simulated clock's current position instead of wall
// time; the fixture is frozen (always "open") so a backtest replay is not
// gated on real calendar hours.
func (s *Simulation) GetClock(ctx context.Context) (Clock, error) {
	return Clock{Timestamp: s.now, IsOpen: true, NextOpen: s.now, NextClose: s.now.Add(24 * time.Hour)}, nil
}
