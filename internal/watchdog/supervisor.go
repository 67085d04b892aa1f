package watchdog

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	gpprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/aristath/paperloop/internal/broker"
	"github.com/aristath/paperloop/internal/cache"
	"github.com/aristath/paperloop/internal/columnar"
	"github.com/aristath/paperloop/internal/domain"
	"github.com/aristath/paperloop/internal/pidfile"
)

const (
	cooldownPeriod      = 300 * time.Second
	maxRestartAttempts  = 3
	gracefulStopTimeout = 30 * time.Second
)

// Config holds the watchdog's own tunables. It deliberately does not share
// a config source with the trading process: the watchdog must keep working
// even if the trading process's configuration is corrupt.
type Config struct {
	PIDFilePath    string
	MarkerFilePath string
	PollInterval   time.Duration
	Thresholds     Thresholds
}

// Supervisor is the watchdog's main control loop. It never holds a Broker
// handle into the trading process's in-memory state — the two are separate
// OS processes and the only safe cross-process channels are the Live State
// Cache (SQLite), the Columnar Store, the PID file and OS signals. Broker
// is held only to probe API latency for the heartbeat-miss defence, using
// its own credentials; it may be nil, in which case the probe is skipped.
type Supervisor struct {
	cfg             Config
	healthProbe     broker.Broker
	cache           *cache.Cache
	store           *columnar.Store
	log             zerolog.Logger
	restartAttempts int
	cooldownUntil   time.Time
}

// New builds a Supervisor. healthProbe may be nil to skip the broker API
// latency check entirely (acceptable in paper mode, where there is no real
// upstream to go slow).
func New(cfg Config, healthProbe broker.Broker, c *cache.Cache, store *columnar.Store, log zerolog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, healthProbe: healthProbe, cache: c, store: store, log: log.With().Str("component", "watchdog").Logger()}
}

// Run blocks, polling until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	if pidfile.MarkerExists(s.cfg.MarkerFilePath) {
		s.log.Error().Msg("permanent shutdown marker present, refusing to evaluate or restart")
		return
	}

	snap, err := s.gather(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not gather watchdog snapshot this tick, deferring")
		return
	}

	violations := Evaluate(s.cfg.Thresholds, snap)
	for _, v := range violations {
		if v.Severity == domain.SeverityWarning {
			s.log.Warn().Str("rule", v.RuleID).Str("reason", v.Reason).Msg("kill rule warning")
		}
	}

	if !AnyCritical(violations) {
		return
	}
	for _, v := range violations {
		if v.Severity == domain.SeverityCritical {
			s.log.Error().Str("rule", v.RuleID).Str("action", string(v.Action)).Str("reason", v.Reason).Msg("kill rule breached")
		}
	}

	if AnyPermanent(violations) {
		s.permanentShutdown(violations)
		return
	}
	s.emergencyShutdown()
}

// gather reads every rule input from the cache and columnar store — the
// cross-process-safe state the trading process has already written — and,
// if a health probe broker is configured, defends against a false
// heartbeat-miss verdict by checking the broker's own API latency first: a
// slow upstream can look like a dead process, so an inconclusive probe
// defers the whole tick rather than acting on a stale heartbeat.
func (s *Supervisor) gather(ctx context.Context) (Snapshot, error) {
	if s.healthProbe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		probeStart := time.Now()
		_, err := s.healthProbe.GetClock(probeCtx)
		cancel()
		if err != nil || time.Since(probeStart) > 5*time.Second {
			return Snapshot{}, fmt.Errorf("watchdog: broker API health probe inconclusive, deferring this tick: %w", err)
		}
	}

	hb, err := s.cache.GetHeartbeat("trader")
	var heartbeatAge time.Duration
	if err == nil && hb != nil {
		heartbeatAge = time.Since(hb.LastSeen)
	} else {
		heartbeatAge = time.Hour // no heartbeat ever recorded: treat as maximally stale
	}

	initialEquity, _ := s.cache.GetInitialEquity()
	equityHistory, _ := s.cache.GetEquityHistory()
	totalDD := 0.0
	if initialEquity > 0 && len(equityHistory) > 0 {
		current := equityHistory[len(equityHistory)-1]
		totalDD = (initialEquity - current) / initialEquity * 100
	}

	dailyPnLPct := 0.0
	if s.store != nil {
		today := time.Now().UTC().Format("2006-01-02")
		if pct, found, err := s.store.GetDailyPerformance(today); err == nil && found {
			dailyPnLPct = pct
		}
	}

	positions, err := s.cache.GetAllPositions()
	if err != nil {
		return Snapshot{}, fmt.Errorf("watchdog: get positions: %w", err)
	}
	maxConcentration := 0.0
	if len(equityHistory) > 0 && equityHistory[len(equityHistory)-1] > 0 {
		currentEquity := equityHistory[len(equityHistory)-1]
		for _, p := range positions {
			pct := p.MarketValue / currentEquity * 100
			if pct > maxConcentration {
				maxConcentration = pct
			}
		}
	}

	zombies, err := s.cache.GetZombieOrders(90 * time.Second)
	oldestZombieSec := 0.0
	openCount := 0
	if open, err := s.cache.GetZombieOrders(0); err == nil {
		openCount = len(open)
	}
	if err == nil {
		for _, z := range zombies {
			age := time.Since(z.CreatedAt).Seconds()
			if age > oldestZombieSec {
				oldestZombieSec = age
			}
		}
	}

	submittedLastMin, err := s.cache.CountOrderSubmissionsSince(time.Now().UTC().Add(-time.Minute))
	if err != nil {
		s.log.Warn().Err(err).Msg("could not read order submission count")
	}

	return Snapshot{
		DailyPnLPct:            dailyPnLPct,
		TotalDDFromInitialPct:  totalDD,
		MaxConcentrationPct:    maxConcentration,
		OpenOrderCount:         openCount,
		OrdersSubmittedLastMin: submittedLastMin,
		OldestZombieOrderSec:   oldestZombieSec,
		HeartbeatAgeSec:        heartbeatAge.Seconds(),
	}, nil
}

// emergencyShutdown signals the trading process to stop gracefully — its
// own shutdown hook cancels open orders and flattens positions before
// exiting — force-kills it if it doesn't exit within the timeout, and
// enters a cooldown before a supervising process script may restart it.
func (s *Supervisor) emergencyShutdown() {
	s.log.Error().Msg("emergency shutdown: signalling trading process to stop")
	s.stopTradingProcess()
	s.restartAttempts++
	s.cooldownUntil = time.Now().Add(cooldownPeriod)

	if s.restartAttempts > maxRestartAttempts {
		s.log.Error().Int("attempts", s.restartAttempts).Msg("max restart attempts exceeded, writing permanent shutdown marker")
		if err := pidfile.WriteMarker(s.cfg.MarkerFilePath, "max restart attempts exceeded after repeated emergency shutdowns"); err != nil {
			s.log.Error().Err(err).Msg("failed to write permanent shutdown marker")
		}
	}
}

// permanentShutdown performs the same stop sequence but writes the sticky
// marker immediately, regardless of restart attempt count: these
// violations (e.g. near-total capital loss) must never auto-restart.
func (s *Supervisor) permanentShutdown(violations []domain.KillViolation) {
	s.log.Error().Msg("permanent shutdown: signalling trading process to stop")
	s.stopTradingProcess()

	reason := "permanent shutdown rule breached"
	for _, v := range violations {
		if v.Action == domain.ActionPermanentShutdown {
			reason = v.Reason
			break
		}
	}
	if err := pidfile.WriteMarker(s.cfg.MarkerFilePath, reason); err != nil {
		s.log.Error().Err(err).Msg("failed to write permanent shutdown marker")
	}
}

// stopTradingProcess sends a graceful SIGTERM, waits gracefulStopTimeout,
// and force-kills with SIGKILL if the process is still alive, confirming
// liveness via gopsutil rather than assuming the PID file is accurate.
func (s *Supervisor) stopTradingProcess() {
	pid, err := pidfile.Read(s.cfg.PIDFilePath)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not read trader pid file")
		return
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		s.log.Warn().Err(err).Int("pid", pid).Msg("could not find trader process")
		return
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.log.Warn().Err(err).Int("pid", pid).Msg("SIGTERM failed")
	}

	deadline := time.Now().Add(gracefulStopTimeout)
	for time.Now().Before(deadline) {
		alive, _ := gpprocess.PidExists(int32(pid))
		if !alive {
			_ = pidfile.Remove(s.cfg.PIDFilePath)
			return
		}
		time.Sleep(time.Second)
	}

	s.log.Warn().Int("pid", pid).Msg("graceful stop timed out, force-killing")
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		s.log.Error().Err(err).Int("pid", pid).Msg("SIGKILL failed")
	}
	_ = pidfile.Remove(s.cfg.PIDFilePath)
}

// CanRestart reports whether the cooldown has elapsed and the restart
// budget has not been exhausted.
func (s *Supervisor) CanRestart() bool {
	return time.Now().After(s.cooldownUntil) && s.restartAttempts <= maxRestartAttempts
}
