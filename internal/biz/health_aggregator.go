package biz

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// callSample is one observed dependency call.
type callSample struct {
	at      time.Time
	latency time.Duration
	success bool
}

// cacheSample is one observed cache lookup.
type cacheSample struct {
	at  time.Time
	hit bool
}

// HealthAggregator collects rolling per-dependency samples recorded by the
// circuit breakers and the cache layer, and computes tri-state health
// snapshots. A background tick refreshes the latest snapshot so a health
// verdict is always available even under zero load.
type HealthAggregator struct {
	cfg      *conf.Health
	registry *CircuitRegistry
	logger   *log.Helper

	mu           sync.Mutex
	samples      map[string][]callSample
	cacheLookups []cacheSample

	latest atomic.Pointer[model.HealthStatus]

	// now is injectable for deterministic window tests.
	now func() time.Time
}

// NewHealthAggregator creates a health aggregator over the given registry.
// It registers itself as the registry's sample recorder.
func NewHealthAggregator(cfg *conf.Health, registry *CircuitRegistry, logger log.Logger) *HealthAggregator {
	h := &HealthAggregator{
		cfg:      cfg,
		registry: registry,
		logger:   log.NewHelper(logger),
		samples:  make(map[string][]callSample),
		now:      time.Now,
	}
	registry.SetSampleRecorder(h)
	return h
}

// Record implements SampleRecorder: one sample per real dependency call.
func (h *HealthAggregator) Record(dependency string, latency time.Duration, success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[dependency] = append(h.samples[dependency], callSample{
		at:      h.now(),
		latency: latency,
		success: success,
	})
}

// RecordCacheLookup records one cache hit or miss.
func (h *HealthAggregator) RecordCacheLookup(hit bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cacheLookups = append(h.cacheLookups, cacheSample{at: h.now(), hit: hit})
}

// Snapshot computes an immutable health snapshot over the trailing window.
// Empty windows yield neutral defaults (zero rates, healthy) rather than
// dividing by zero.
func (h *HealthAggregator) Snapshot(window time.Duration) *model.HealthStatus {
	now := h.now()
	cutoff := now.Add(-window)

	h.mu.Lock()
	perDep := make(map[string][]callSample, len(h.samples))
	for dep, samples := range h.samples {
		perDep[dep] = recentCalls(samples, cutoff)
	}
	hits, misses := 0, 0
	for _, c := range h.cacheLookups {
		if c.at.Before(cutoff) {
			continue
		}
		if c.hit {
			hits++
		} else {
			misses++
		}
	}
	h.mu.Unlock()

	var (
		total     int
		failures  int
		latencies []float64
	)
	services := make(map[string]*model.ServiceHealth, len(perDep))

	for dep, samples := range perDep {
		depTotal := len(samples)
		depFailures := 0
		var depLatencySum float64
		for _, s := range samples {
			ms := float64(s.latency) / float64(time.Millisecond)
			latencies = append(latencies, ms)
			depLatencySum += ms
			if !s.success {
				depFailures++
			}
		}
		total += depTotal
		failures += depFailures

		depErrorRate := 0.0
		depAvg := 0.0
		if depTotal > 0 {
			depErrorRate = float64(depFailures) / float64(depTotal) * 100
			depAvg = depLatencySum / float64(depTotal)
		}

		services[dep] = &model.ServiceHealth{
			Name:         dep,
			Status:       h.serviceStatus(dep, depErrorRate),
			CircuitState: h.registry.State(dep),
			ErrorRate:    depErrorRate,
			AvgLatency:   depAvg,
		}
	}

	metrics := model.HealthMetrics{SuccessRate: 100}
	if total > 0 {
		metrics.ErrorRate = float64(failures) / float64(total) * 100
		metrics.SuccessRate = 100 - metrics.ErrorRate
	}
	if len(latencies) > 0 {
		sort.Float64s(latencies)
		var sum float64
		for _, l := range latencies {
			sum += l
		}
		metrics.AvgLatency = sum / float64(len(latencies))
		metrics.P95Latency = percentile(latencies, 95)
		metrics.P99Latency = percentile(latencies, 99)
	}
	if hits+misses > 0 {
		metrics.CacheHitRate = float64(hits) / float64(hits+misses) * 100
	}

	return &model.HealthStatus{
		Overall:   h.overall(metrics.ErrorRate),
		Services:  services,
		Metrics:   metrics,
		Window:    window,
		LastCheck: now,
	}
}

// Refresh recomputes the alerting-window snapshot and publishes it as the
// latest. Driven by the periodic health-check tick.
func (h *HealthAggregator) Refresh() *model.HealthStatus {
	status := h.Snapshot(h.cfg.AlertingWindow)
	h.latest.Store(status)

	h.logger.Debugw("health snapshot refreshed",
		"overall", status.Overall,
		"error_rate", status.Metrics.ErrorRate,
		"p95_ms", status.Metrics.P95Latency,
		"cache_hit_rate", status.Metrics.CacheHitRate)

	return status
}

// Latest returns the most recent published snapshot, computing one on
// demand before the first tick.
func (h *HealthAggregator) Latest() *model.HealthStatus {
	if s := h.latest.Load(); s != nil {
		return s
	}
	return h.Refresh()
}

// OrchestrationSnapshot computes a snapshot over the short orchestration
// window used for mode selection.
func (h *HealthAggregator) OrchestrationSnapshot() *model.HealthStatus {
	return h.Snapshot(h.cfg.OrchestrationWindow)
}

// SoftReset drops samples older than the alerting window and zeroes the
// breakers' cumulative counters. Driven by the periodic metrics reset.
func (h *HealthAggregator) SoftReset() {
	cutoff := h.now().Add(-h.cfg.AlertingWindow)

	h.mu.Lock()
	for dep, samples := range h.samples {
		h.samples[dep] = recentCalls(samples, cutoff)
	}
	kept := h.cacheLookups[:0]
	for _, c := range h.cacheLookups {
		if !c.at.Before(cutoff) {
			kept = append(kept, c)
		}
	}
	h.cacheLookups = kept
	h.mu.Unlock()

	h.registry.SoftResetAll()
	h.logger.Debugw("metrics soft reset completed")
}

// overall maps the aggregate error rate to the tri-state verdict.
func (h *HealthAggregator) overall(errorRate float64) model.OverallHealth {
	switch {
	case errorRate >= h.cfg.DegradedModeThreshold:
		return model.HealthCritical
	case errorRate >= h.cfg.FallbackThreshold:
		return model.HealthDegraded
	default:
		return model.HealthHealthy
	}
}

// serviceStatus mirrors the owning breaker's state, with elevated error
// rate reported as degraded.
func (h *HealthAggregator) serviceStatus(dep string, errorRate float64) model.ServiceStatus {
	switch h.registry.State(dep) {
	case model.CircuitOpen:
		return model.ServiceDown
	case model.CircuitHalfOpen:
		return model.ServiceDegraded
	}
	if errorRate >= h.cfg.FallbackThreshold {
		return model.ServiceDegraded
	}
	return model.ServiceUp
}

// recentCalls returns the samples at or after the cutoff. Samples are
// appended in time order, so a binary search finds the boundary.
func recentCalls(samples []callSample, cutoff time.Time) []callSample {
	idx := sort.Search(len(samples), func(i int) bool {
		return !samples[i].at.Before(cutoff)
	})
	if idx == len(samples) {
		return nil
	}
	out := make([]callSample, len(samples)-idx)
	copy(out, samples[idx:])
	return out
}

// percentile interpolates over a sorted sample set:
// index = ceil(p/100 * n) - 1, clamped to [0, n).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
