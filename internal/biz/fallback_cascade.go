package biz

import (
	"context"
	"fmt"
	"time"

	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// MetadataSourceEmergency marks a result produced by the unconditional
// exhaustion path rather than an accepted strategy.
const MetadataSourceEmergency = "emergency"

// StrategyProvider implements one fallback strategy. Providers are pluggable
// behind this interface; ordering, weights and thresholds live in
// configuration, not here.
type StrategyProvider interface {
	// Method returns the strategy identifier matching the config table.
	Method() string

	// Fetch produces a fallback result. It must honor context cancellation;
	// the cascade bounds it with the strategy's max response time.
	Fetch(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) (*model.FallbackResult, error)
}

// strategyEntry pairs one configured strategy with its provider.
type strategyEntry struct {
	cfg      *conf.Strategy
	provider StrategyProvider
}

// FallbackCascade tries recovery strategies strictly in descending priority
// order until one yields an acceptable result. Run never fails: on total
// exhaustion it returns a minimal static result with confidence 0.1.
type FallbackCascade struct {
	entries []*strategyEntry
	sink    MetricsSink
	logger  *log.Helper
}

// NewFallbackCascade builds the cascade from the configured strategy table
// (already sorted by descending weight) and the available providers.
// Strategies without a matching provider are dropped with a warning.
func NewFallbackCascade(cfg *conf.Fallback, providers []StrategyProvider, sink MetricsSink, logger log.Logger) *FallbackCascade {
	helper := log.NewHelper(logger)

	byMethod := make(map[string]StrategyProvider, len(providers))
	for _, p := range providers {
		byMethod[p.Method()] = p
	}

	entries := make([]*strategyEntry, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		p, ok := byMethod[s.Method]
		if !ok {
			helper.Warnw("no provider for configured fallback strategy, dropping",
				"method", s.Method)
			continue
		}
		entries = append(entries, &strategyEntry{cfg: s, provider: p})
	}

	return &FallbackCascade{
		entries: entries,
		sink:    sink,
		logger:  helper,
	}
}

// Run executes the cascade. Strategies run strictly sequentially: a later
// strategy only runs once the prior one was rejected. Each attempt is
// bounded by the strategy's max response time; a strategy that errors or
// times out is never retried within the same run.
func (c *FallbackCascade) Run(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) *model.FallbackResult {
	start := time.Now()

	for _, e := range c.entries {
		if ctx.Err() != nil {
			return c.emergency(start, "caller cancelled")
		}

		if e.cfg.RequiresContext && user == nil {
			c.logger.Debugw("strategy skipped, context data unavailable",
				"method", e.cfg.Method)
			continue
		}

		result, err := c.attempt(ctx, e, req, user)
		if err != nil {
			c.logger.Warnw("fallback strategy failed",
				"method", e.cfg.Method,
				"error", err)
			if c.sink != nil {
				c.sink.RecordMetric("fallback_strategy_failure", 1, "count",
					map[string]string{"method": e.cfg.Method})
			}
			continue
		}

		if result == nil || len(result.Items) == 0 {
			c.logger.Debugw("strategy rejected, empty result",
				"method", e.cfg.Method)
			continue
		}
		if result.Confidence < e.cfg.MinConfidence {
			c.logger.Debugw("strategy rejected, confidence below floor",
				"method", e.cfg.Method,
				"confidence", result.Confidence,
				"min_confidence", e.cfg.MinConfidence)
			continue
		}

		result.MethodUsed = e.cfg.Method
		result.ProcessingTime = time.Since(start)
		if result.Metadata.Source == "" {
			result.Metadata.Source = e.cfg.Method
		}

		c.logger.Infow("fallback strategy accepted",
			"method", e.cfg.Method,
			"items", len(result.Items),
			"confidence", result.Confidence,
			"elapsed", result.ProcessingTime)
		return result
	}

	return c.emergency(start, "all strategies exhausted")
}

// Emergency returns the unconditional static result directly, bypassing the
// strategy table. Used by the orchestrator when retries are exhausted.
func (c *FallbackCascade) Emergency(reason string) *model.FallbackResult {
	return c.emergency(time.Now(), reason)
}

// attempt runs one strategy bounded by its max response time. The wait is
// bounded even for a non-cooperative provider; the loser of the race is
// cancelled through the derived context.
func (c *FallbackCascade) attempt(ctx context.Context, e *strategyEntry, req *model.RecommendationRequest, user *model.UserContext) (*model.FallbackResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.MaxResponseTime)
	defer cancel()

	type outcome struct {
		result *model.FallbackResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		r, err := e.provider.Fetch(attemptCtx, req, user)
		done <- outcome{result: r, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("strategy %s exceeded %s: %w",
			e.cfg.Method, e.cfg.MaxResponseTime, attemptCtx.Err())
	}
}

// emergency builds the guaranteed static result. No I/O, bounded near-zero
// time, always succeeds.
func (c *FallbackCascade) emergency(start time.Time, reason string) *model.FallbackResult {
	c.logger.Warnw("fallback cascade exhausted, serving emergency result",
		"reason", reason)
	if c.sink != nil {
		c.sink.RecordMetric("fallback_emergency", 1, "count", nil)
	}

	return &model.FallbackResult{
		Items:          emergencyCatalog(),
		MethodUsed:     "emergency_static",
		Confidence:     0.1,
		ProcessingTime: time.Since(start),
		Metadata: model.ResultMetadata{
			Source:  MetadataSourceEmergency,
			Reasons: []string{reason},
		},
	}
}

// emergencyCatalog is the minimal static payload served when everything
// else failed. Broad, safe picks that need no personalization.
func emergencyCatalog() []*model.MovieItem {
	return []*model.MovieItem{
		{ID: 1, Title: "The Shawshank Redemption", Genres: []string{"Drama"}, Score: 0.1},
		{ID: 2, Title: "The Godfather", Genres: []string{"Crime", "Drama"}, Score: 0.1},
		{ID: 3, Title: "Spirited Away", Genres: []string{"Animation", "Fantasy"}, Score: 0.1},
	}
}
