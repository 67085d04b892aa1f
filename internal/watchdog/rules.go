// Package watchdog implements the Watchdog (C13): a wholly separate
// process that monitors the trading process via the broker, the Live
// State Cache heartbeat, the PID file and OS signals, and enforces a
// closed table of kill rules.
package watchdog

import (
	"time"

	"github.com/aristath/paperloop/internal/domain"
)

// RuleID names one of the closed set of kill rules.
type RuleID string

const (
	RuleDailyLoss     RuleID = "daily_loss"
	RulePermanentDD   RuleID = "permanent_drawdown"
	RuleConcentration RuleID = "concentration"
	RuleOpenOrders    RuleID = "open_orders"
	RuleOrderRate     RuleID = "order_rate"
	RuleZombieOrder   RuleID = "zombie_order"
	RuleHeartbeatMiss RuleID = "heartbeat_miss"
)

// Thresholds holds both the warning and critical bound for each rule, plus
// the resulting action at critical severity.
type Thresholds struct {
	DailyLossWarnPct     float64 // -3%
	DailyLossCriticalPct float64 // -5%, action emergency-shutdown

	PermanentDDWarnPct     float64 // 10% of initial equity lost
	PermanentDDCriticalPct float64 // 85% of initial equity remaining breached -> permanent-shutdown

	ConcentrationWarnPct     float64 // 20%
	ConcentrationCriticalPct float64 // 25%, emergency-shutdown

	OpenOrdersWarn     int // 30
	OpenOrdersCritical int // 50, emergency-shutdown

	OrderRateWarnPerMin     int // 10
	OrderRateCriticalPerMin int // 20, emergency-shutdown

	ZombieOrderWarnSec     int // 90
	ZombieOrderCriticalSec int // 300, emergency-shutdown

	HeartbeatWarnSec     int // 90
	HeartbeatCriticalSec int // 120, emergency-shutdown
}

// DefaultThresholds returns the spec's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DailyLossWarnPct: 3, DailyLossCriticalPct: 5,
		PermanentDDWarnPct: 10, PermanentDDCriticalPct: 15, // 15% of initial remaining lost == 85% equity remaining
		ConcentrationWarnPct: 20, ConcentrationCriticalPct: 25,
		OpenOrdersWarn: 30, OpenOrdersCritical: 50,
		OrderRateWarnPerMin: 10, OrderRateCriticalPerMin: 20,
		ZombieOrderWarnSec: 90, ZombieOrderCriticalSec: 300,
		HeartbeatWarnSec: 90, HeartbeatCriticalSec: 120,
	}
}

// Snapshot is the state the rules evaluate against, gathered fresh each
// watchdog tick.
type Snapshot struct {
	DailyPnLPct            float64
	TotalDDFromInitialPct  float64
	MaxConcentrationPct    float64
	OpenOrderCount         int
	OrdersSubmittedLastMin int
	OldestZombieOrderSec   float64
	HeartbeatAgeSec        float64
}

// Evaluate runs every rule against snap and returns every breach found,
// most severe action first is not guaranteed; callers should scan for any
// critical breach before acting on warnings.
func Evaluate(t Thresholds, snap Snapshot) []domain.KillViolation {
	var out []domain.KillViolation

	if -snap.DailyPnLPct >= t.DailyLossCriticalPct {
		out = append(out, violation(RuleDailyLoss, domain.SeverityCritical, domain.ActionEmergencyShutdown, "daily loss breached critical threshold"))
	} else if -snap.DailyPnLPct >= t.DailyLossWarnPct {
		out = append(out, violation(RuleDailyLoss, domain.SeverityWarning, domain.ActionAlert, "daily loss approaching critical threshold"))
	}

	if snap.TotalDDFromInitialPct >= t.PermanentDDCriticalPct {
		out = append(out, violation(RulePermanentDD, domain.SeverityCritical, domain.ActionPermanentShutdown, "total drawdown breached permanent-shutdown threshold"))
	} else if snap.TotalDDFromInitialPct >= t.PermanentDDWarnPct {
		out = append(out, violation(RulePermanentDD, domain.SeverityWarning, domain.ActionAlert, "total drawdown approaching permanent-shutdown threshold"))
	}

	if snap.MaxConcentrationPct >= t.ConcentrationCriticalPct {
		out = append(out, violation(RuleConcentration, domain.SeverityCritical, domain.ActionEmergencyShutdown, "position concentration breached critical threshold"))
	} else if snap.MaxConcentrationPct >= t.ConcentrationWarnPct {
		out = append(out, violation(RuleConcentration, domain.SeverityWarning, domain.ActionAlert, "position concentration approaching critical threshold"))
	}

	if snap.OpenOrderCount >= t.OpenOrdersCritical {
		out = append(out, violation(RuleOpenOrders, domain.SeverityCritical, domain.ActionEmergencyShutdown, "open order count breached critical threshold"))
	} else if snap.OpenOrderCount >= t.OpenOrdersWarn {
		out = append(out, violation(RuleOpenOrders, domain.SeverityWarning, domain.ActionAlert, "open order count approaching critical threshold"))
	}

	if snap.OrdersSubmittedLastMin >= t.OrderRateCriticalPerMin {
		out = append(out, violation(RuleOrderRate, domain.SeverityCritical, domain.ActionEmergencyShutdown, "order rate breached critical threshold"))
	} else if snap.OrdersSubmittedLastMin >= t.OrderRateWarnPerMin {
		out = append(out, violation(RuleOrderRate, domain.SeverityWarning, domain.ActionAlert, "order rate approaching critical threshold"))
	}

	if snap.OldestZombieOrderSec >= float64(t.ZombieOrderCriticalSec) {
		out = append(out, violation(RuleZombieOrder, domain.SeverityCritical, domain.ActionEmergencyShutdown, "zombie order age breached critical threshold"))
	} else if snap.OldestZombieOrderSec >= float64(t.ZombieOrderWarnSec) {
		out = append(out, violation(RuleZombieOrder, domain.SeverityWarning, domain.ActionAlert, "zombie order age approaching critical threshold"))
	}

	if snap.HeartbeatAgeSec >= float64(t.HeartbeatCriticalSec) {
		out = append(out, violation(RuleHeartbeatMiss, domain.SeverityCritical, domain.ActionEmergencyShutdown, "heartbeat miss breached critical threshold"))
	} else if snap.HeartbeatAgeSec >= float64(t.HeartbeatWarnSec) {
		out = append(out, violation(RuleHeartbeatMiss, domain.SeverityWarning, domain.ActionAlert, "heartbeat miss approaching critical threshold"))
	}

	return out
}

func violation(rule RuleID, sev domain.KillSeverity, action domain.KillAction, reason string) domain.KillViolation {
	return domain.KillViolation{RuleID: string(rule), Severity: sev, Action: action, Reason: reason, Timestamp: time.Now().UTC()}
}

// AnyCritical reports whether violations contains at least one critical
// breach.
func AnyCritical(violations []domain.KillViolation) bool {
	for _, v := range violations {
		if v.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}

// AnyPermanent reports whether violations calls for a permanent (sticky)
// shutdown rather than a restart-eligible emergency one.
func AnyPermanent(violations []domain.KillViolation) bool {
	for _, v := range violations {
		if v.Action == domain.ActionPermanentShutdown {
			return true
		}
	}
	return false
}
