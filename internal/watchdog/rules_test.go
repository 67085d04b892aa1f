package watchdog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/paperloop/internal/domain"
)

func TestEvaluateDailyLossCriticalTriggersEmergencyShutdown(t *testing.T) {
	t_ := DefaultThresholds()
	snap := Snapshot{DailyPnLPct: -6}

	violations := Evaluate(t_, snap)
	require.True(t, AnyCritical(violations))
	found := false
	for _, v := range violations {
		if v.RuleID == string(RuleDailyLoss) {
			found = true
			require.Equal(t, domain.ActionEmergencyShutdown, v.Action)
		}
	}
	require.True(t, found)
}

func TestEvaluateWarningDoesNotTriggerCritical(t *testing.T) {
	cfg := DefaultThresholds()
	snap := Snapshot{DailyPnLPct: -3.5}

	violations := Evaluate(cfg, snap)
	require.False(t, AnyCritical(violations))
	require.NotEmpty(t, violations)
}

func TestEvaluatePermanentDrawdownSetsPermanentAction(t *testing.T) {
	cfg := DefaultThresholds()
	snap := Snapshot{TotalDDFromInitialPct: 16}

	violations := Evaluate(cfg, snap)
	require.True(t, AnyPermanent(violations))
}

func TestEvaluatePermanentDrawdownWarnBelowCriticalStaysWarning(t *testing.T) {
	cfg := DefaultThresholds()
	snap := Snapshot{TotalDDFromInitialPct: 12}

	violations := Evaluate(cfg, snap)
	require.False(t, AnyCritical(violations))
	require.False(t, AnyPermanent(violations))

	found := false
	for _, v := range violations {
		if v.RuleID == string(RulePermanentDD) {
			found = true
			require.Equal(t, domain.SeverityWarning, v.Severity)
		}
	}
	require.True(t, found)
}

func TestEvaluateNoBreachReturnsEmpty(t *testing.T) {
	cfg := DefaultThresholds()
	snap := Snapshot{
		DailyPnLPct: 1, TotalDDFromInitialPct: 1, MaxConcentrationPct: 5,
		OpenOrderCount: 2, OrdersSubmittedLastMin: 1, OldestZombieOrderSec: 0, HeartbeatAgeSec: 1,
	}
	require.Empty(t, Evaluate(cfg, snap))
}

func TestEvaluateHeartbeatMissCritical(t *testing.T) {
	cfg := DefaultThresholds()
	snap := Snapshot{HeartbeatAgeSec: 130}
	violations := Evaluate(cfg, snap)
	require.True(t, AnyCritical(violations))
}
