package model

import "time"

// OverallHealth is the tri-state system verdict.
type OverallHealth string

const (
	HealthHealthy  OverallHealth = "healthy"
	HealthDegraded OverallHealth = "degraded"
	HealthCritical OverallHealth = "critical"
)

// ServiceStatus is the per-dependency verdict, mirroring the owning breaker.
type ServiceStatus string

const (
	ServiceUp       ServiceStatus = "up"
	ServiceDegraded ServiceStatus = "degraded"
	ServiceDown     ServiceStatus = "down"
)

// Metric names exposed in health snapshots and referenced by alert rules.
const (
	MetricErrorRate    = "error_rate"
	MetricSuccessRate  = "success_rate"
	MetricAvgLatency   = "avg_latency_ms"
	MetricP95Latency   = "p95_latency_ms"
	MetricP99Latency   = "p99_latency_ms"
	MetricCacheHitRate = "cache_hit_rate"
)

// HealthMetrics holds the aggregate rates of one snapshot. Rates are
// percentages in [0,100], latencies in milliseconds.
type HealthMetrics struct {
	SuccessRate  float64 `json:"success_rate"`
	ErrorRate    float64 `json:"error_rate"`
	AvgLatency   float64 `json:"avg_latency_ms"`
	P95Latency   float64 `json:"p95_latency_ms"`
	P99Latency   float64 `json:"p99_latency_ms"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// ServiceHealth describes one dependency inside a snapshot.
type ServiceHealth struct {
	Name         string        `json:"name"`
	Status       ServiceStatus `json:"status"`
	CircuitState CircuitState  `json:"circuit_state"`
	ErrorRate    float64       `json:"error_rate"`
	AvgLatency   float64       `json:"avg_latency_ms"`
}

// HealthStatus is an immutable snapshot of system health. Once produced it
// is never mutated; new snapshots replace it wholesale.
type HealthStatus struct {
	Overall   OverallHealth             `json:"overall"`
	Services  map[string]*ServiceHealth `json:"services"`
	Metrics   HealthMetrics             `json:"metrics"`
	Window    time.Duration             `json:"window"`
	LastCheck time.Time                 `json:"last_check"`
}

// Metric returns the named aggregate metric for alert rule evaluation.
// Unknown names report false.
func (h *HealthStatus) Metric(name string) (float64, bool) {
	switch name {
	case MetricErrorRate:
		return h.Metrics.ErrorRate, true
	case MetricSuccessRate:
		return h.Metrics.SuccessRate, true
	case MetricAvgLatency:
		return h.Metrics.AvgLatency, true
	case MetricP95Latency:
		return h.Metrics.P95Latency, true
	case MetricP99Latency:
		return h.Metrics.P99Latency, true
	case MetricCacheHitRate:
		return h.Metrics.CacheHitRate, true
	}
	return 0, false
}
