package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/paperloop/internal/cache"
)

// Sampler periodically reads live state from the cache and republishes it
// on the fabric's well-known channels, so subscribers see fresh state even
// between trading-loop-driven events.
type Sampler struct {
	cache    *cache.Cache
	fabric   *Fabric
	interval time.Duration
	symbols  []string
	log      zerolog.Logger
}

// NewSampler builds a Sampler over the given symbols.
func NewSampler(c *cache.Cache, fabric *Fabric, symbols []string, interval time.Duration, log zerolog.Logger) *Sampler {
	return &Sampler{cache: c, fabric: fabric, interval: interval, symbols: symbols, log: log.With().Str("component", "broadcast-sampler").Logger()}
}

// Run blocks, sampling on interval until ctx is cancelled. A sample error
// backs off to 5s before the next attempt rather than busy-looping.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sampleOnce(); err != nil {
				s.log.Warn().Err(err).Msg("sample failed, backing off")
				ticker.Reset(5 * time.Second)
				continue
			}
			ticker.Reset(s.interval)
		}
	}
}

func (s *Sampler) sampleOnce() error {
	for _, symbol := range s.symbols {
		pos, err := s.cache.GetPosition(symbol)
		if err == nil && pos != nil {
			s.fabric.Broadcast("positions", pos)
		} else if err != nil && !errors.Is(err, cache.ErrNotFound) {
			return err
		}
	}

	if equity, err := s.cache.GetEquityHistory(); err == nil && len(equity) > 0 {
		s.fabric.Broadcast("equity", equity[len(equity)-1])
	} else if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return err
	}

	if regime, err := s.cache.GetCurrentRegime(); err == nil && regime != nil {
		s.fabric.Broadcast("regime", regime)
	} else if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return err
	}

	if hb, err := s.cache.GetHeartbeat("trader"); err == nil && hb != nil {
		s.fabric.Broadcast("health", hb)
	} else if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return err
	}

	return nil
}
