package biz

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEvents captures journaled alert lifecycle events.
type recordingEvents struct {
	mu         sync.Mutex
	raised     []*model.Alert
	resolved   []*model.Alert
	recoveries []string
}

func (e *recordingEvents) LogAlertRaised(ctx context.Context, alert *model.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raised = append(e.raised, alert)
}

func (e *recordingEvents) LogAlertResolved(ctx context.Context, alert *model.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolved = append(e.resolved, alert)
}

func (e *recordingEvents) LogRecoveryRun(ctx context.Context, metricName, action string, runErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recoveries = append(e.recoveries, action)
}

// recordingRecovery captures triggered recovery actions.
type recordingRecovery struct {
	mu      sync.Mutex
	actions []string
	err     error
}

func (r *recordingRecovery) TriggerRecovery(ctx context.Context, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return r.err
}

func snapshotWithErrorRate(rate float64) *model.HealthStatus {
	return &model.HealthStatus{
		Overall: model.HealthHealthy,
		Metrics: model.HealthMetrics{
			ErrorRate:    rate,
			SuccessRate:  100 - rate,
			CacheHitRate: 90,
		},
	}
}

func newTestAlertManager(t *testing.T) (*AlertManager, *recordingEvents, *recordingRecovery, *fakeClock) {
	t.Helper()
	events := &recordingEvents{}
	recovery := &recordingRecovery{}
	m := NewAlertManager(&conf.Alerting{DefaultCooldown: 5 * time.Minute}, recovery, events, nil, log.NewStdLogger(io.Discard))
	clock := newFakeClock()
	m.now = clock.now
	return m, events, recovery, clock
}

func TestAlertManager_DefaultRulesRegistered(t *testing.T) {
	m, _, _, _ := newTestAlertManager(t)

	rules := m.Rules()
	assert.Len(t, rules, 4)

	ids := make(map[string]bool, len(rules))
	for _, r := range rules {
		ids[r.ID] = true
		assert.True(t, r.Enabled)
		assert.Equal(t, 5*time.Minute, r.Cooldown)
	}
	assert.True(t, ids["error-rate-critical"])
	assert.True(t, ids["error-rate-warning"])
}

func TestAlertManager_BreachRaisesAlert(t *testing.T) {
	m, events, _, _ := newTestAlertManager(t)

	m.Evaluate(context.Background(), snapshotWithErrorRate(12))

	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, "error-rate-warning", active[0].RuleID)
	assert.Equal(t, model.SeverityWarning, active[0].Severity)
	assert.Equal(t, float64(12), active[0].Value)
	assert.Len(t, events.raised, 1)
}

func TestAlertManager_CooldownSuppressesRepeat(t *testing.T) {
	m, events, _, clock := newTestAlertManager(t)

	m.Evaluate(context.Background(), snapshotWithErrorRate(12))
	require.Len(t, m.ActiveAlerts(), 1)

	// Within the cooldown nothing new fires
	clock.advance(time.Minute)
	m.Evaluate(context.Background(), snapshotWithErrorRate(13))
	assert.Len(t, m.ActiveAlerts(), 1)
	assert.Len(t, events.raised, 1)

	// Past the cooldown the still-breaching rule fires again
	clock.advance(5 * time.Minute)
	m.Evaluate(context.Background(), snapshotWithErrorRate(13))
	assert.Len(t, m.ActiveAlerts(), 2)
	assert.Len(t, events.raised, 2)
}

func TestAlertManager_CriticalBreachRunsRecovery(t *testing.T) {
	m, events, recovery, _ := newTestAlertManager(t)

	m.Evaluate(context.Background(), snapshotWithErrorRate(30))

	// Both the warning and critical error-rate rules fire
	assert.Len(t, m.ActiveAlerts(), 2)

	recovery.mu.Lock()
	actions := append([]string(nil), recovery.actions...)
	recovery.mu.Unlock()
	assert.Equal(t, []string{model.RecoveryResetCircuits}, actions)

	events.mu.Lock()
	journaled := append([]string(nil), events.recoveries...)
	events.mu.Unlock()
	assert.Equal(t, []string{model.RecoveryResetCircuits}, journaled)
}

func TestAlertManager_WarningBreachSkipsRecovery(t *testing.T) {
	m, _, recovery, _ := newTestAlertManager(t)

	m.Evaluate(context.Background(), snapshotWithErrorRate(12))

	recovery.mu.Lock()
	defer recovery.mu.Unlock()
	assert.Empty(t, recovery.actions)
}

func TestAlertManager_BackInBoundsAutoResolves(t *testing.T) {
	m, events, _, _ := newTestAlertManager(t)

	m.Evaluate(context.Background(), snapshotWithErrorRate(12))
	require.Len(t, m.ActiveAlerts(), 1)

	m.Evaluate(context.Background(), snapshotWithErrorRate(2))

	assert.Empty(t, m.ActiveAlerts())
	assert.Len(t, events.resolved, 1)
}

func TestAlertManager_ResolveAlertIdempotent(t *testing.T) {
	m, _, _, _ := newTestAlertManager(t)

	m.Evaluate(context.Background(), snapshotWithErrorRate(12))
	active := m.ActiveAlerts()
	require.Len(t, active, 1)

	assert.True(t, m.ResolveAlert(context.Background(), active[0].ID))
	// Second resolve changes nothing
	assert.False(t, m.ResolveAlert(context.Background(), active[0].ID))
	// Unknown alerts resolve to a no-op as well
	assert.False(t, m.ResolveAlert(context.Background(), "no-such-alert"))

	assert.Empty(t, m.ActiveAlerts())
}

func TestAlertManager_AddRuleValidation(t *testing.T) {
	m, _, _, _ := newTestAlertManager(t)

	err := m.AddRule(&model.AlertRule{MetricName: model.MetricErrorRate})
	assert.Error(t, err, "rule without id must be rejected")

	err = m.AddRule(&model.AlertRule{
		ID:         "weird",
		MetricName: model.MetricErrorRate,
		Comparator: "between",
	})
	assert.Error(t, err, "unknown comparator must be rejected")
}

func TestAlertManager_AddRuleInheritsDefaultCooldown(t *testing.T) {
	m, _, _, _ := newTestAlertManager(t)

	rule := &model.AlertRule{
		ID:         "p99-critical",
		MetricName: model.MetricP99Latency,
		Threshold:  10000,
		Comparator: model.CompareGT,
		Severity:   model.SeverityCritical,
		Enabled:    true,
	}
	require.NoError(t, m.AddRule(rule))

	assert.Equal(t, 5*time.Minute, rule.Cooldown)
}

func TestAlertManager_RemoveRule(t *testing.T) {
	m, _, _, _ := newTestAlertManager(t)

	assert.True(t, m.RemoveRule("error-rate-warning"))
	assert.False(t, m.RemoveRule("error-rate-warning"))

	m.Evaluate(context.Background(), snapshotWithErrorRate(12))
	assert.Empty(t, m.ActiveAlerts(), "removed rule must not raise alerts")
}

func TestAlertManager_DisabledRuleDoesNotFire(t *testing.T) {
	m, _, _, _ := newTestAlertManager(t)

	require.NoError(t, m.AddRule(&model.AlertRule{
		ID:         "error-rate-warning",
		MetricName: model.MetricErrorRate,
		Threshold:  10,
		Comparator: model.CompareGTE,
		Severity:   model.SeverityWarning,
		Enabled:    false,
	}))
	require.True(t, m.RemoveRule("error-rate-critical"))
	require.True(t, m.RemoveRule("p95-latency-warning"))
	require.True(t, m.RemoveRule("cache-hit-rate-warning"))

	m.Evaluate(context.Background(), snapshotWithErrorRate(50))
	assert.Empty(t, m.ActiveAlerts())
}

func TestAlertManager_LowCacheHitRateFires(t *testing.T) {
	m, _, _, _ := newTestAlertManager(t)

	snapshot := &model.HealthStatus{
		Overall: model.HealthHealthy,
		Metrics: model.HealthMetrics{SuccessRate: 100, CacheHitRate: 20},
	}
	m.Evaluate(context.Background(), snapshot)

	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, "cache-hit-rate-warning", active[0].RuleID)
}
