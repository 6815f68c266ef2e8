package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// RecoveryRunner executes named recovery actions. Implemented by the
// orchestrator; abstracted so alert tests can observe actions without a
// full pipeline.
type RecoveryRunner interface {
	TriggerRecovery(ctx context.Context, action string) error
}

// recoveryActions maps a breached metric to the action most likely to help.
// Only critical-severity breaches trigger these.
var recoveryActions = map[string]string{
	model.MetricErrorRate:    model.RecoveryResetCircuits,
	model.MetricSuccessRate:  model.RecoveryResetCircuits,
	model.MetricCacheHitRate: model.RecoveryWarmCache,
	model.MetricP95Latency:   model.RecoveryClearCache,
	model.MetricP99Latency:   model.RecoveryClearCache,
}

// AlertManager evaluates threshold rules against health snapshots. The
// in-memory rule and alert maps are authoritative; the event logger journals
// lifecycle events asynchronously as an audit trail.
type AlertManager struct {
	cfg      *conf.Alerting
	recovery RecoveryRunner
	events   AlertEventLogger
	sink     MetricsSink
	logger   *log.Helper

	mu     sync.Mutex
	rules  map[string]*model.AlertRule
	alerts map[string]*model.Alert
	seq    int64

	// now is injectable for deterministic cooldown tests.
	now func() time.Time
}

// NewAlertManager creates an alert manager preloaded with the default rules.
func NewAlertManager(cfg *conf.Alerting, recovery RecoveryRunner, events AlertEventLogger, sink MetricsSink, logger log.Logger) *AlertManager {
	m := &AlertManager{
		cfg:      cfg,
		recovery: recovery,
		events:   events,
		sink:     sink,
		logger:   log.NewHelper(logger),
		rules:    make(map[string]*model.AlertRule),
		alerts:   make(map[string]*model.Alert),
		now:      time.Now,
	}
	for _, r := range defaultRules(cfg.DefaultCooldown) {
		m.rules[r.ID] = r
	}
	return m
}

// defaultRules is the built-in rule set watching the aggregate snapshot.
func defaultRules(cooldown time.Duration) []*model.AlertRule {
	return []*model.AlertRule{
		{
			ID:         "error-rate-critical",
			MetricName: model.MetricErrorRate,
			Threshold:  25,
			Comparator: model.CompareGTE,
			Severity:   model.SeverityCritical,
			Cooldown:   cooldown,
			Enabled:    true,
		},
		{
			ID:         "error-rate-warning",
			MetricName: model.MetricErrorRate,
			Threshold:  10,
			Comparator: model.CompareGTE,
			Severity:   model.SeverityWarning,
			Cooldown:   cooldown,
			Enabled:    true,
		},
		{
			ID:         "p95-latency-warning",
			MetricName: model.MetricP95Latency,
			Threshold:  5000,
			Comparator: model.CompareGT,
			Severity:   model.SeverityWarning,
			Cooldown:   cooldown,
			Enabled:    true,
		},
		{
			ID:         "cache-hit-rate-warning",
			MetricName: model.MetricCacheHitRate,
			Threshold:  30,
			Comparator: model.CompareLT,
			Severity:   model.SeverityWarning,
			Cooldown:   cooldown,
			Enabled:    true,
		},
	}
}

// AddRule registers or replaces a rule. An empty cooldown inherits the
// configured default.
func (m *AlertManager) AddRule(rule *model.AlertRule) error {
	if rule.ID == "" || rule.MetricName == "" {
		return fmt.Errorf("alert rule needs id and metric_name")
	}
	switch rule.Comparator {
	case model.CompareGT, model.CompareGTE, model.CompareLT, model.CompareLTE, model.CompareEQ:
	default:
		return fmt.Errorf("unknown comparator %q", rule.Comparator)
	}
	if rule.Cooldown <= 0 {
		rule.Cooldown = m.cfg.DefaultCooldown
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	m.logger.Infow("alert rule registered",
		"rule_id", rule.ID,
		"metric", rule.MetricName,
		"threshold", rule.Threshold,
		"severity", rule.Severity)
	return nil
}

// RemoveRule deletes a rule. Existing alerts raised by it stay until
// resolved.
func (m *AlertManager) RemoveRule(ruleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[ruleID]; !ok {
		return false
	}
	delete(m.rules, ruleID)
	return true
}

// Rules returns a copy of the registered rules.
func (m *AlertManager) Rules() []*model.AlertRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		c := *r
		out = append(out, &c)
	}
	return out
}

// ActiveAlerts returns the unresolved alerts.
func (m *AlertManager) ActiveAlerts() []*model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !a.Resolved {
			c := *a
			out = append(out, &c)
		}
	}
	return out
}

// Evaluate checks every enabled rule against the snapshot. A breach outside
// the rule's cooldown raises an alert; a critical breach also runs the
// metric's recovery action. A rule back within bounds auto-resolves its
// open alerts.
func (m *AlertManager) Evaluate(ctx context.Context, snapshot *model.HealthStatus) {
	type firing struct {
		alert  *model.Alert
		metric string
	}
	var raised []firing
	var resolved []*model.Alert

	m.mu.Lock()
	now := m.now()
	for _, rule := range m.rules {
		if !rule.Enabled {
			continue
		}
		value, ok := snapshot.Metric(rule.MetricName)
		if !ok {
			continue
		}

		if !breaches(value, rule.Threshold, rule.Comparator) {
			for _, a := range m.alerts {
				if a.RuleID == rule.ID && !a.Resolved {
					m.resolveLocked(a, now)
					c := *a
					resolved = append(resolved, &c)
				}
			}
			continue
		}

		if rule.LastTriggeredAt != nil && now.Sub(*rule.LastTriggeredAt) < rule.Cooldown {
			continue
		}
		triggered := now
		rule.LastTriggeredAt = &triggered

		m.seq++
		alert := &model.Alert{
			ID:       fmt.Sprintf("%s-%d", rule.ID, m.seq),
			RuleID:   rule.ID,
			Severity: rule.Severity,
			Message: fmt.Sprintf("%s %s %.2f (observed %.2f)",
				rule.MetricName, rule.Comparator, rule.Threshold, value),
			Value:     value,
			CreatedAt: now,
		}
		m.alerts[alert.ID] = alert
		c := *alert
		raised = append(raised, firing{alert: &c, metric: rule.MetricName})
	}
	m.mu.Unlock()

	for _, a := range resolved {
		m.logger.Infow("alert auto-resolved", "alert_id", a.ID, "rule_id", a.RuleID)
		if m.events != nil {
			m.events.LogAlertResolved(ctx, a)
		}
	}

	for _, f := range raised {
		m.logger.Warnw("alert raised",
			"alert_id", f.alert.ID,
			"rule_id", f.alert.RuleID,
			"severity", f.alert.Severity,
			"value", f.alert.Value)
		if m.events != nil {
			m.events.LogAlertRaised(ctx, f.alert)
		}
		if m.sink != nil {
			m.sink.RecordMetric("alert_raised", 1, "count", map[string]string{
				"rule_id":  f.alert.RuleID,
				"severity": string(f.alert.Severity),
			})
		}

		if f.alert.Severity == model.SeverityCritical {
			m.runRecovery(ctx, f.metric)
		}
	}
}

// ResolveAlert marks one alert resolved. Resolving an already-resolved or
// unknown alert is a no-op; the bool reports whether state changed.
func (m *AlertManager) ResolveAlert(ctx context.Context, alertID string) bool {
	m.mu.Lock()
	a, ok := m.alerts[alertID]
	if !ok || a.Resolved {
		m.mu.Unlock()
		return false
	}
	m.resolveLocked(a, m.now())
	c := *a
	m.mu.Unlock()

	m.logger.Infow("alert resolved", "alert_id", alertID)
	if m.events != nil {
		m.events.LogAlertResolved(ctx, &c)
	}
	return true
}

// resolveLocked flips one alert to resolved. Caller holds the mutex.
func (m *AlertManager) resolveLocked(a *model.Alert, at time.Time) {
	a.Resolved = true
	a.ResolvedAt = &at
}

// runRecovery executes the recovery action registered for a metric.
// Best effort: a failed action is journaled and logged, never retried here.
func (m *AlertManager) runRecovery(ctx context.Context, metric string) {
	action, ok := recoveryActions[metric]
	if !ok || m.recovery == nil {
		return
	}

	err := m.recovery.TriggerRecovery(ctx, action)
	if err != nil {
		m.logger.Errorw("auto recovery failed",
			"metric", metric,
			"action", action,
			"error", err)
	} else {
		m.logger.Infow("auto recovery completed",
			"metric", metric,
			"action", action)
	}
	if m.events != nil {
		m.events.LogRecoveryRun(ctx, metric, action, err)
	}
}

// breaches applies one comparator.
func breaches(value, threshold float64, cmp model.Comparator) bool {
	switch cmp {
	case model.CompareGT:
		return value > threshold
	case model.CompareGTE:
		return value >= threshold
	case model.CompareLT:
		return value < threshold
	case model.CompareLTE:
		return value <= threshold
	case model.CompareEQ:
		return value == threshold
	}
	return false
}
