package biz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"
	pkgerrors "ReelGuard/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// ServingMode is the orchestrator's per-request serving decision.
type ServingMode string

const (
	ModePrimary      ServingMode = "primary"
	ModeCacheFirst   ServingMode = "cache_first"
	ModeDegraded     ServingMode = "degraded"
	ModeFallbackOnly ServingMode = "fallback_only"
)

// cacheTagRecommendations tags every cached reliable result so recovery
// actions can invalidate them in one sweep.
const cacheTagRecommendations = "recommendations"

// ReliabilityUsecase is the single entry point of the reliability core. It
// reads the orchestration-window health snapshot, picks a serving mode, and
// drives the primary provider, the cache and the fallback cascade through
// the circuit breakers. GetReliableResult never returns an error: total
// exhaustion produces the emergency result.
type ReliabilityUsecase struct {
	cfg       *conf.Orchestrator
	registry  *CircuitRegistry
	health    *HealthAggregator
	cascade   *FallbackCascade
	provider  RecommendationProvider
	cache     CacheRepo
	fallbacks FallbackDataRepo
	sink      MetricsSink
	logger    *log.Helper

	// sleep is injectable so retry tests do not wait wall-clock delays.
	sleep func(ctx context.Context, d time.Duration)
}

// NewReliabilityUsecase wires the orchestrator over its collaborators.
func NewReliabilityUsecase(
	cfg *conf.Orchestrator,
	registry *CircuitRegistry,
	health *HealthAggregator,
	cascade *FallbackCascade,
	provider RecommendationProvider,
	cache CacheRepo,
	fallbacks FallbackDataRepo,
	sink MetricsSink,
	logger log.Logger,
) *ReliabilityUsecase {
	return &ReliabilityUsecase{
		cfg:       cfg,
		registry:  registry,
		health:    health,
		cascade:   cascade,
		provider:  provider,
		cache:     cache,
		fallbacks: fallbacks,
		sink:      sink,
		logger:    log.NewHelper(logger),
		sleep:     sleepCtx,
	}
}

// GetReliableResult serves one recommendation request through the full
// reliability pipeline. The returned result always carries at least the
// emergency payload.
func (uc *ReliabilityUsecase) GetReliableResult(ctx context.Context, req *model.RecommendationRequest) *model.ReliableResult {
	start := time.Now()

	snapshot := uc.health.OrchestrationSnapshot()
	mode := uc.selectMode(snapshot)
	effective := uc.effectiveRequest(req, mode)

	uc.logger.Infow("orchestrating request",
		"user_id", req.UserID,
		"mode", mode,
		"overall", snapshot.Overall,
		"error_rate", snapshot.Metrics.ErrorRate)

	user := uc.loadUserContext(ctx, req.UserID)

	var result *model.ReliableResult
	for attempt := 0; attempt <= uc.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: delay grows with the attempt number.
			uc.sleep(ctx, time.Duration(attempt)*uc.cfg.RetryDelay)
			if ctx.Err() != nil {
				break
			}
			uc.logger.Warnw("retrying request",
				"user_id", req.UserID,
				"attempt", attempt,
				"mode", mode)
		}

		result = uc.serve(ctx, mode, effective, user)
		result.RetryCount = attempt
		if result.MethodUsed != MetadataSourceEmergency {
			break
		}
	}

	if result == nil || result.MethodUsed == MetadataSourceEmergency {
		retries := 0
		if result != nil {
			retries = result.RetryCount
		}
		result = uc.emergencyResult(snapshot)
		result.RetryCount = retries
		if uc.sink != nil {
			uc.sink.RecordMetric("orchestrator_emergency", 1, "count", nil)
		}
	}

	result.Health = snapshot.Overall
	result.Elapsed = time.Since(start)

	if uc.sink != nil {
		uc.sink.RecordMetric("orchestrator_request", 1, "count", map[string]string{
			"mode":   string(mode),
			"source": string(result.Source),
		})
	}
	return result
}

// TriggerRecovery runs one named recovery action. Exposed both to the alert
// manager's auto-recovery and to the manual operations endpoint.
func (uc *ReliabilityUsecase) TriggerRecovery(ctx context.Context, action string) error {
	uc.logger.Infow("running recovery action", "action", action)

	switch action {
	case model.RecoveryResetCircuits:
		uc.registry.ResetAll()
		return nil

	case model.RecoveryClearCache:
		return uc.cache.InvalidateByTag(ctx, cacheTagRecommendations)

	case model.RecoveryWarmCache:
		items, err := uc.fallbacks.Trending(ctx, 20)
		if err != nil {
			return fmt.Errorf("warm cache: %w", err)
		}
		warm := &model.ReliableResult{
			Items:      items,
			Source:     model.SourceFallback,
			MethodUsed: "trending",
			Confidence: confTrending,
		}
		return uc.cache.Set(ctx, cacheKey(&model.RecommendationRequest{Limit: 20}), warm, &CacheOptions{
			TTL:      uc.cfg.CacheTTL,
			Tags:     []string{cacheTagRecommendations},
			Priority: 1,
		})

	default:
		return fmt.Errorf("unknown recovery action %q", action)
	}
}

// selectMode maps the orchestration-window snapshot to a serving mode.
// Critical health never touches the primary provider; degraded health
// prefers the cache when the cache circuit is still usable.
func (uc *ReliabilityUsecase) selectMode(snapshot *model.HealthStatus) ServingMode {
	switch snapshot.Overall {
	case model.HealthCritical:
		return ModeFallbackOnly
	case model.HealthDegraded:
		if uc.registry.State(model.DependencyCache) != model.CircuitOpen {
			return ModeCacheFirst
		}
		return ModeDegraded
	default:
		return ModePrimary
	}
}

// effectiveRequest shrinks the requested result size in degraded mode.
func (uc *ReliabilityUsecase) effectiveRequest(req *model.RecommendationRequest, mode ServingMode) *model.RecommendationRequest {
	if mode != ModeDegraded {
		return req
	}
	reduced := *req
	reduced.Limit = int(math.Ceil(float64(req.Limit) * uc.cfg.DegradedSizeFactor))
	if reduced.Limit < 1 {
		reduced.Limit = 1
	}
	return &reduced
}

// serve executes one attempt in the chosen mode.
func (uc *ReliabilityUsecase) serve(ctx context.Context, mode ServingMode, req *model.RecommendationRequest, user *model.UserContext) *model.ReliableResult {
	switch mode {
	case ModeCacheFirst:
		if cached := uc.fromCache(ctx, req); cached != nil {
			return cached
		}
		return uc.fromPrimary(ctx, req, user)

	case ModeDegraded:
		result := uc.fromCascade(ctx, req, user)
		result.Source = model.SourceDegraded
		result.Confidence *= uc.cfg.DegradedConfidenceFactor
		return result

	case ModeFallbackOnly:
		return uc.fromCascade(ctx, req, user)

	default:
		return uc.fromPrimary(ctx, req, user)
	}
}

// fromPrimary calls the provider through its breaker with the cascade as the
// breaker-level fallback. A nominal answer is written through to the cache.
func (uc *ReliabilityUsecase) fromPrimary(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) *model.ReliableResult {
	breaker := uc.registry.GetOrCreate(model.DependencyAIRecommendations)

	type primaryPayload struct {
		items      []*model.MovieItem
		confidence float64
	}

	res := breaker.Execute(ctx,
		func(opCtx context.Context) (any, error) {
			items, confidence, err := uc.provider.GetRecommendations(opCtx, req)
			if err != nil {
				return nil, err
			}
			return &primaryPayload{items: items, confidence: confidence}, nil
		},
		func(opCtx context.Context) (any, error) {
			return uc.cascade.Run(opCtx, req, user), nil
		},
	)

	if res.Success && !res.FromFallback {
		payload := res.Data.(*primaryPayload)
		result := &model.ReliableResult{
			Items:        payload.items,
			Source:       model.SourcePrimary,
			MethodUsed:   "ai_provider",
			Confidence:   payload.confidence,
			CircuitState: res.State,
		}
		uc.writeThrough(ctx, req, result)
		return result
	}

	if res.Success {
		fb := res.Data.(*model.FallbackResult)
		return uc.wrapFallback(fb, res.State)
	}

	// The breaker only surfaces an error here when no fallback ran, which
	// means the caller's context ended. Serve the static result.
	uc.logger.Warnw("primary path yielded no result",
		"error", res.Err,
		"circuit_open", pkgerrors.IsCircuitOpen(res.Err))
	return uc.wrapFallback(uc.cascade.Emergency("primary path aborted"), res.State)
}

// fromCascade runs the cascade directly, bypassing the primary provider.
func (uc *ReliabilityUsecase) fromCascade(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) *model.ReliableResult {
	fb := uc.cascade.Run(ctx, req, user)
	return uc.wrapFallback(fb, uc.registry.State(model.DependencyAIRecommendations))
}

// fromCache reads a previously served result through the cache breaker.
// Returns nil on miss or cache failure.
func (uc *ReliabilityUsecase) fromCache(ctx context.Context, req *model.RecommendationRequest) *model.ReliableResult {
	breaker := uc.registry.GetOrCreate(model.DependencyCache)

	res := breaker.Execute(ctx, func(opCtx context.Context) (any, error) {
		var cached model.ReliableResult
		err := uc.cache.Get(opCtx, cacheKey(req), &cached)
		if errors.Is(err, ErrCacheNotFound) {
			// A miss is a successful lookup with no data; only real store
			// failures feed the cache breaker.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &cached, nil
	}, nil)

	if !res.Success || res.Data == nil {
		return nil
	}

	cached := res.Data.(*model.ReliableResult)
	cached.Source = model.SourceCache
	cached.CircuitState = res.State
	return cached
}

// writeThrough caches a nominal primary answer for the cache_first path.
// Best effort: a cache write failure is recorded on the cache breaker but
// never surfaces to the caller.
func (uc *ReliabilityUsecase) writeThrough(ctx context.Context, req *model.RecommendationRequest, result *model.ReliableResult) {
	breaker := uc.registry.GetOrCreate(model.DependencyCache)
	breaker.Execute(ctx, func(opCtx context.Context) (any, error) {
		err := uc.cache.Set(opCtx, cacheKey(req), result, &CacheOptions{
			TTL:      uc.cfg.CacheTTL,
			Tags:     []string{cacheTagRecommendations},
			Priority: 1,
		})
		return nil, err
	}, nil)
}

// loadUserContext loads the optional per-user context through the database
// breaker. Missing users and database failures both yield nil, which simply
// skips the context-dependent strategies.
func (uc *ReliabilityUsecase) loadUserContext(ctx context.Context, userID int64) *model.UserContext {
	breaker := uc.registry.GetOrCreate(model.DependencyDatabase)

	res := breaker.Execute(ctx, func(opCtx context.Context) (any, error) {
		return uc.fallbacks.UserContext(opCtx, userID)
	}, nil)

	if !res.Success || res.Data == nil {
		return nil
	}
	user, _ := res.Data.(*model.UserContext)
	return user
}

// wrapFallback lifts a cascade result into the orchestrator's result shape.
func (uc *ReliabilityUsecase) wrapFallback(fb *model.FallbackResult, state model.CircuitState) *model.ReliableResult {
	return &model.ReliableResult{
		Items:        fb.Items,
		Source:       model.SourceFallback,
		MethodUsed:   methodOf(fb),
		Confidence:   fb.Confidence,
		FallbackUsed: true,
		CircuitState: state,
	}
}

// methodOf distinguishes the exhaustion path from an accepted strategy. The
// retry loop treats an emergency-sourced attempt as failed.
func methodOf(fb *model.FallbackResult) string {
	if fb.Metadata.Source == MetadataSourceEmergency {
		return MetadataSourceEmergency
	}
	return fb.MethodUsed
}

// emergencyResult is the final answer when every retry exhausted. The
// circuit state is reported as EMERGENCY rather than any single breaker's
// state because the whole pipeline, not one dependency, gave out.
func (uc *ReliabilityUsecase) emergencyResult(snapshot *model.HealthStatus) *model.ReliableResult {
	fb := uc.cascade.Emergency("retries exhausted")
	return &model.ReliableResult{
		Items:        fb.Items,
		Source:       model.SourceFallback,
		MethodUsed:   fb.MethodUsed,
		Confidence:   fb.Confidence,
		FallbackUsed: true,
		CircuitState: model.CircuitEmergency,
		Health:       snapshot.Overall,
	}
}

// cacheKey builds a stable cache key for one request shape.
func cacheKey(req *model.RecommendationRequest) string {
	return fmt.Sprintf("recs:%d:%s:%d", req.UserID, strings.Join(req.Genres, ","), req.Limit)
}

// sleepCtx waits for d or until the context ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
