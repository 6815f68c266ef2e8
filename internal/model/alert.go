package model

import "time"

// Comparator is the comparison operator of an alert rule.
type Comparator string

const (
	CompareGT  Comparator = "gt"
	CompareGTE Comparator = "gte"
	CompareLT  Comparator = "lt"
	CompareLTE Comparator = "lte"
	CompareEQ  Comparator = "eq"
)

// Severity is the alert severity level. Critical rules trigger registered
// auto-recovery actions on breach.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertRule is a threshold watch over one snapshot metric.
type AlertRule struct {
	ID              string        `json:"id"`
	MetricName      string        `json:"metric_name"`
	Threshold       float64       `json:"threshold"`
	Comparator      Comparator    `json:"comparator"`
	Severity        Severity      `json:"severity"`
	Cooldown        time.Duration `json:"cooldown"`
	Enabled         bool          `json:"enabled"`
	LastTriggeredAt *time.Time    `json:"last_triggered_at,omitempty"`
}

// Alert is one raised alert. Mutated only to flip Resolved; retained until
// explicitly cleared or process restart.
type Alert struct {
	ID         string     `json:"id"`
	RuleID     string     `json:"rule_id"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	CreatedAt  time.Time  `json:"created_at"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Alert event type constants, journaled to the alert event log.
const (
	AlertEventRaised   = "ALERT_RAISED"
	AlertEventResolved = "ALERT_RESOLVED"
	AlertEventRecovery = "AUTO_RECOVERY_RUN"
)

// RecoveryAction names accepted by the manual recovery hook.
const (
	RecoveryClearCache    = "clear_cache"
	RecoveryResetCircuits = "reset_circuits"
	RecoveryWarmCache     = "warm_cache"
)
