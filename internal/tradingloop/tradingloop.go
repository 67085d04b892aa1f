// Package tradingloop implements the Trading Loop (C11): the single
// goroutine that ticks the whole system end to end, from clock probe
// through signal generation to order submission and heartbeat.
package tradingloop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/paperloop/internal/broker"
	"github.com/aristath/paperloop/internal/cache"
	"github.com/aristath/paperloop/internal/columnar"
	"github.com/aristath/paperloop/internal/domain"
	"github.com/aristath/paperloop/internal/etl"
	"github.com/aristath/paperloop/internal/events"
	"github.com/aristath/paperloop/internal/orders"
	"github.com/aristath/paperloop/internal/reconcile"
	"github.com/aristath/paperloop/internal/regime"
	"github.com/aristath/paperloop/internal/risk"
	"github.com/aristath/paperloop/internal/strategy"
)

// Config holds the loop's own tunables, sourced from internal/config.
type Config struct {
	TickInterval     time.Duration
	ETLInterval      time.Duration
	ReconcileInterval time.Duration
	FridayCutoff     string // "HH:MM" in ExchangeLocation
	ExchangeLocation *time.Location
	Symbols          []string
	Timeframe        string
	BarsLookback     int
}

// Loop owns the single goroutine that drives every tick.
type Loop struct {
	cfg       Config
	broker    broker.Broker
	store     *columnar.Store
	cache     *cache.Cache
	etl       *etl.Pipeline
	reconcile *reconcile.Reconciler
	regime    *regime.Detector
	registry  *strategy.Registry
	sizing    risk.SizingConfig
	drawdown  risk.DrawdownConfig
	orders    *orders.Manager
	bus       *events.Bus
	log       zerolog.Logger

	lastETL       time.Time
	lastReconcile time.Time
	ddState       risk.DrawdownState
	haltedToday   bool
}

// Deps bundles the already-constructed components the loop orchestrates,
// keeping New's signature from sprawling.
type Deps struct {
	Broker    broker.Broker
	Store     *columnar.Store
	Cache     *cache.Cache
	ETL       *etl.Pipeline
	Reconcile *reconcile.Reconciler
	Regime    *regime.Detector
	Registry  *strategy.Registry
	Sizing    risk.SizingConfig
	Drawdown  risk.DrawdownConfig
	Orders    *orders.Manager
	Bus       *events.Bus
}

// New builds a Loop. initialEquity seeds the drawdown monitor as both peak
// and initial equity; no peak or initial equity from a prior run is restored.
func New(cfg Config, d Deps, initialEquity float64, log zerolog.Logger) *Loop {
	return &Loop{
		cfg: cfg, broker: d.Broker, store: d.Store, cache: d.Cache, etl: d.ETL,
		reconcile: d.Reconcile, regime: d.Regime, registry: d.Registry,
		sizing: d.Sizing, drawdown: d.Drawdown, orders: d.Orders, bus: d.Bus,
		log:     log.With().Str("component", "tradingloop").Logger(),
		ddState: risk.NewDrawdownState(initialEquity, time.Now().UTC()),
	}
}

// Run blocks, ticking until ctx is cancelled. Each tick is wrapped in its
// own recover so one bad tick never takes the process down; the graceful
// stop signal (ctx cancellation) is the only clean exit.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("trading loop stopping on context cancellation")
			return
		case now := <-ticker.C:
			l.tickSafely(ctx, now)
		}
	}
}

func (l *Loop) tickSafely(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("recovered from panic in trading loop tick")
		}
	}()
	if err := l.tick(ctx, now); err != nil {
		l.log.Error().Err(err).Msg("tick error, continuing")
	}
}

// tick runs the 9-step per-tick orchestration.
func (l *Loop) tick(ctx context.Context, now time.Time) error {
	// 1. clock probe
	clock, err := l.broker.GetClock(ctx)
	if err != nil {
		return fmt.Errorf("clock probe: %w", err)
	}

	// 2. position sync
	if err := l.reconcile.ReconcilePositions(ctx); err != nil {
		l.log.Warn().Err(err).Msg("position sync failed")
	}

	// 3. Friday cutoff: force-close everything ahead of the weekend gap
	if clock.IsOpen && l.pastFridayCutoff(now) {
		l.log.Warn().Msg("friday cutoff reached, cancelling open orders and closing all positions")
		if err := l.broker.CancelAllOrders(ctx); err != nil {
			l.log.Error().Err(err).Msg("friday cancel-all failed")
		}
		if err := l.broker.CloseAllPositions(ctx); err != nil {
			l.log.Error().Err(err).Msg("friday close-all failed")
		}
		return l.heartbeat()
	}
	if !clock.IsOpen {
		return l.heartbeat()
	}

	// 4. periodic ETL
	if l.lastETL.IsZero() || now.Sub(l.lastETL) >= l.cfg.ETLInterval {
		if _, err := l.etl.RunOnce(); err != nil {
			l.log.Warn().Err(err).Msg("etl run failed")
		}
		l.lastETL = now
	}

	// 5. periodic reconcile of UNKNOWN orders
	if l.lastReconcile.IsZero() || now.Sub(l.lastReconcile) >= l.cfg.ReconcileInterval {
		for _, err := range l.reconcile.ReconcileAll(ctx) {
			l.log.Warn().Err(err).Msg("order reconcile failed")
		}
		l.lastReconcile = now
	}

	// 7. drawdown update / halt check (account-level, ahead of per-symbol work
	// so a halt this tick suppresses every signal below)
	account, err := l.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	var metrics risk.DrawdownMetrics
	l.ddState, metrics = risk.Update(l.ddState, account.Equity, now)
	halted := risk.ShouldHaltTrading(l.drawdown, metrics)
	scale := risk.GetPositionScale(l.drawdown, metrics)
	if halted && !l.haltedToday {
		l.log.Error().Float64("total_dd_pct", metrics.TotalDDPctFromInitial).Msg("trading halted: total drawdown limit breached")
	}
	l.haltedToday = halted

	// 6+8. per-symbol regime -> strategies -> signals -> sizing -> orders
	if !halted {
		for _, symbol := range l.cfg.Symbols {
			if err := l.processSymbol(ctx, symbol, now, account, scale); err != nil {
				l.log.Warn().Err(err).Str("symbol", symbol).Msg("symbol processing failed")
			}
		}
	}

	// 9. heartbeat
	return l.heartbeat()
}

func (l *Loop) processSymbol(ctx context.Context, symbol string, now time.Time, account broker.Account, ddScale float64) error {
	from := now.AddDate(0, 0, -l.cfg.BarsLookback)
	bars, err := l.store.BarsRange(symbol, l.cfg.Timeframe, from, now)
	if err != nil {
		return fmt.Errorf("bars range: %w", err)
	}
	if len(bars) == 0 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	volHistory := l.regime.BuildVolHistory(closes)

	symPtr := symbol
	mr := l.regime.Detect(bars, &symPtr, volHistory)
	if err := l.store.UpsertRegime(symbol, mr); err != nil {
		l.log.Warn().Err(err).Msg("persist regime failed")
	}
	if err := l.cache.SetCurrentRegime(mr); err != nil {
		l.log.Warn().Err(err).Msg("cache regime failed")
	}
	l.bus.Publish("regime."+symbol, mr)

	var currentPosition *domain.Position
	if pos, err := l.cache.GetPosition(symbol); err == nil {
		currentPosition = pos
	}

	var signals []domain.Signal
	for _, s := range l.registry.Enabled() {
		signals = append(signals, s.Generate(symbol, bars, &mr, currentPosition)...)
	}

	for _, sig := range signals {
		l.bus.Publish("signal."+symbol, sig)
		if err := l.actOnSignal(ctx, sig, account, mr, ddScale); err != nil {
			l.log.Warn().Err(err).Str("signal_id", sig.SignalID).Msg("acting on signal failed")
		}
	}
	return nil
}

func (l *Loop) actOnSignal(ctx context.Context, sig domain.Signal, account broker.Account, mr domain.MarketRegime, ddScale float64) error {
	clientID := uuid.NewString()

	if sig.Type == domain.SignalClose {
		if err := l.broker.ClosePosition(ctx, sig.Symbol); err != nil {
			return fmt.Errorf("close position: %w", err)
		}
		return nil
	}
	if sig.Type != domain.SignalBuy && sig.Type != domain.SignalSell {
		return nil
	}
	if sig.EntryPrice == nil {
		return fmt.Errorf("signal %s missing entry price", sig.SignalID)
	}

	decision, err := risk.Size(l.sizing, account.Equity, *sig.EntryPrice, mr.PositionScale*ddScale, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("size position: %w", err)
	}
	if decision.Shares <= 0 {
		return nil
	}

	side := domain.SideBuy
	if sig.Type == domain.SignalSell {
		side = domain.SideSell
	}

	l.orders.Create(domain.Order{
		ClientOrderID: clientID, Symbol: sig.Symbol, Side: side, Quantity: decision.Shares,
		Type: domain.OrderTypeMarket, StrategyTag: sig.StrategyID, SignalTag: sig.SignalID,
	})

	bo, err := l.broker.SubmitMarketOrder(ctx, sig.Symbol, decision.Shares, side, clientID)
	if err != nil {
		if terr := l.orders.Transition(clientID, domain.OrderFailed, 0, 0); terr != nil {
			l.log.Warn().Err(terr).Msg("mark failed after submit error")
		}
		return fmt.Errorf("submit order: %w", err)
	}
	if terr := l.orders.AttachBrokerID(clientID, bo.ID); terr != nil {
		l.log.Warn().Err(terr).Msg("attach broker id failed")
	}
	if terr := l.orders.Transition(clientID, domain.OrderSubmitted, 0, 0); terr != nil {
		l.log.Warn().Err(terr).Msg("mark submitted failed")
	} else if terr := l.cache.RecordOrderSubmission(time.Now().UTC()); terr != nil {
		l.log.Warn().Err(terr).Msg("record order submission failed")
	}
	if bo.Status == broker.StatusFilled {
		if terr := l.orders.Transition(clientID, domain.OrderFilled, bo.FilledQty, bo.FilledAvgPrice); terr != nil {
			l.log.Warn().Err(terr).Msg("mark filled failed")
		}
	}
	return nil
}

func (l *Loop) heartbeat() error {
	return l.cache.SetHeartbeat("trader", 2*l.cfg.TickInterval)
}

func (l *Loop) pastFridayCutoff(now time.Time) bool {
	local := now.In(l.cfg.ExchangeLocation)
	if local.Weekday() != time.Friday {
		return false
	}
	cutoff, err := time.ParseInLocation("15:04", l.cfg.FridayCutoff, l.cfg.ExchangeLocation)
	if err != nil {
		return false
	}
	localCutoff := time.Date(local.Year(), local.Month(), local.Day(), cutoff.Hour(), cutoff.Minute(), 0, 0, l.cfg.ExchangeLocation)
	return !local.Before(localCutoff)
}
