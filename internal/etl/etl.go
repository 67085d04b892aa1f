// Package etl implements the batch ETL pipeline (C4): draining the Append
// Log into the Columnar Store via a closed dispatch table keyed by event
// kind.
package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/paperloop/internal/appendlog"
	"github.com/aristath/paperloop/internal/columnar"
	"github.com/aristath/paperloop/internal/domain"
)

// Summary reports the outcome of a single batch drain.
type Summary struct {
	EventsProcessed int
	BarsInserted    int
	SentimentInsert int
	TradesInserted  int
	UnknownKinds    int
	Errors          int
}

// Pipeline drains events from the Append Log into the Columnar Store.
type Pipeline struct {
	log   *appendlog.Log
	store *columnar.Store
	lg    zerolog.Logger

	dispatch map[domain.EventKind]func(*columnar.Store, domain.Event) error
}

// New builds a Pipeline with the closed event-kind dispatch table.
func New(log *appendlog.Log, store *columnar.Store, lg zerolog.Logger) *Pipeline {
	p := &Pipeline{log: log, store: store, lg: lg.With().Str("component", "etl").Logger()}
	p.dispatch = map[domain.EventKind]func(*columnar.Store, domain.Event) error{
		domain.EventBar:       insertBar,
		domain.EventSentiment: insertSentiment,
		domain.EventTrade:     insertTrade,
	}
	return p
}

// RunOnce drains all currently-readable events in a single batch. Exactly-
// once delivery is not guaranteed by the Append Log; upsert semantics in the
// Columnar Store make replays idempotent.
func (p *Pipeline) RunOnce() (Summary, error) {
	events, err := p.log.ReadAll()
	if err != nil {
		return Summary{}, fmt.Errorf("etl: read events: %w", err)
	}

	var s Summary
	for _, evt := range events {
		s.EventsProcessed++
		handler, ok := p.dispatch[evt.Type]
		if !ok {
			s.UnknownKinds++
			continue
		}
		if err := handler(p.store, evt); err != nil {
			s.Errors++
			p.lg.Warn().Err(err).Str("event_id", evt.ID).Str("event_type", string(evt.Type)).Msg("etl: row insert failed")
			continue
		}
		switch evt.Type {
		case domain.EventBar:
			s.BarsInserted++
		case domain.EventSentiment:
			s.SentimentInsert++
		case domain.EventTrade:
			s.TradesInserted++
		}
	}
	return s, nil
}

// RunContinuously runs RunOnce on interval until ctx is cancelled.
func (p *Pipeline) RunContinuously(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := p.RunOnce()
			if err != nil {
				p.lg.Error().Err(err).Msg("etl: batch failed, will retry next interval")
				continue
			}
			p.lg.Debug().
				Int("events", summary.EventsProcessed).
				Int("bars", summary.BarsInserted).
				Int("unknown_kinds", summary.UnknownKinds).
				Int("errors", summary.Errors).
				Msg("etl: batch complete")
		}
	}
}

func insertBar(store *columnar.Store, evt domain.Event) error {
	bar, err := decodeBar(evt)
	if err != nil {
		return err
	}
	return store.UpsertBar(bar)
}

func insertSentiment(store *columnar.Store, evt domain.Event) error {
	symbol, score, source, err := decodeSentiment(evt)
	if err != nil {
		return err
	}
	return store.UpsertSentiment(symbol, evt.Timestamp, source, score)
}

func insertTrade(store *columnar.Store, evt domain.Event) error {
	clientOrderID, fillSeq, symbol, side, qty, price, strategyTag, err := decodeTrade(evt)
	if err != nil {
		return err
	}
	return store.UpsertTrade(clientOrderID, fillSeq, symbol, side, qty, price, evt.Timestamp, strategyTag)
}
