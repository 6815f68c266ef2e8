package biz

import (
	"context"
	"encoding/json"
	"errors"
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

// fakeProvider is a scriptable RecommendationProvider.
type fakeProvider struct {
	mu         sync.Mutex
	items      []*model.MovieItem
	confidence float64
	err        error
	calls      int
}

func (p *fakeProvider) GetRecommendations(ctx context.Context, req *model.RecommendationRequest) ([]*model.MovieItem, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, 0, p.err
	}
	return p.items, p.confidence, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeCache is an in-memory CacheRepo.
type fakeCache struct {
	mu          sync.Mutex
	store       map[string][]byte
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	raw, ok := c.store[key]
	c.mu.Unlock()
	if !ok {
		return ErrCacheNotFound
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value any, opts *CacheOptions) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.store[key] = raw
	c.mu.Unlock()
	return nil
}

func (c *fakeCache) InvalidateByTag(ctx context.Context, tag string) error {
	c.mu.Lock()
	c.invalidated = append(c.invalidated, tag)
	c.store = make(map[string][]byte)
	c.mu.Unlock()
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}

// fakeMovieRepo serves canned fallback data.
type fakeMovieRepo struct {
	trendingItems []*model.MovieItem
	user          *model.UserContext
}

func (r *fakeMovieRepo) UserHistory(ctx context.Context, userID int64, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (r *fakeMovieRepo) CoWatched(ctx context.Context, userID int64, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (r *fakeMovieRepo) SimilarToMovies(ctx context.Context, movieIDs []int64, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (r *fakeMovieRepo) PopularByGenre(ctx context.Context, genres []string, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (r *fakeMovieRepo) Trending(ctx context.Context, limit int) ([]*model.MovieItem, error) {
	if len(r.trendingItems) > limit {
		return r.trendingItems[:limit], nil
	}
	return r.trendingItems, nil
}

func (r *fakeMovieRepo) RandomPopular(ctx context.Context, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (r *fakeMovieRepo) UserContext(ctx context.Context, userID int64) (*model.UserContext, error) {
	return r.user, nil
}

func testOrchestratorConfig() *conf.Orchestrator {
	return &conf.Orchestrator{
		MaxRetries:               2,
		RetryDelay:               time.Millisecond,
		DegradedConfidenceFactor: 0.8,
		DegradedSizeFactor:       0.5,
		CacheTTL:                 time.Minute,
	}
}

type orchestratorFixture struct {
	uc       *ReliabilityUsecase
	registry *CircuitRegistry
	health   *HealthAggregator
	provider *fakeProvider
	cache    *fakeCache
	repo     *fakeMovieRepo
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)

	registry := NewCircuitRegistry(testBreakerConfig(), nil, logger)
	health := NewHealthAggregator(testHealthConfig(), registry, logger)

	repo := &fakeMovieRepo{trendingItems: items(10)}
	providers := NewStrategyProviders(repo)
	cascade := NewFallbackCascade(
		cascadeConfig(&conf.Strategy{
			Method:          "trending",
			Weight:          0.4,
			MinConfidence:   0.4,
			MaxResponseTime: 100 * time.Millisecond,
		}),
		providers, nil, logger,
	)

	provider := &fakeProvider{items: items(5), confidence: 0.92}
	cache := newFakeCache()

	uc := NewReliabilityUsecase(
		testOrchestratorConfig(), registry, health, cascade,
		provider, cache, repo, nil, logger,
	)
	uc.sleep = func(ctx context.Context, d time.Duration) {}

	return &orchestratorFixture{
		uc:       uc,
		registry: registry,
		health:   health,
		provider: provider,
		cache:    cache,
		repo:     repo,
	}
}

// recordErrorRate seeds the orchestration window with the given failure
// ratio out of total calls.
func (f *orchestratorFixture) recordErrorRate(failures, total int) {
	for i := 0; i < total; i++ {
		f.health.Record(model.DependencyAIRecommendations, 50*time.Millisecond, i >= failures)
	}
}

func TestOrchestrator_HealthyServesPrimary(t *testing.T) {
	f := newOrchestratorFixture(t)
	req := &model.RecommendationRequest{UserID: 42, Limit: 5}

	result := f.uc.GetReliableResult(context.Background(), req)

	assert.Equal(t, model.SourcePrimary, result.Source)
	assert.Equal(t, "ai_provider", result.MethodUsed)
	assert.Equal(t, 0.92, result.Confidence)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, 0, result.RetryCount)
	assert.Len(t, result.Items, 5)

	// Nominal answers are written through for the cache_first path
	assert.True(t, f.cache.has("recs:42::5"))
}

func TestOrchestrator_CriticalHealthNeverCallsPrimary(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.recordErrorRate(3, 10) // 30% error rate, critical

	result := f.uc.GetReliableResult(context.Background(), &model.RecommendationRequest{UserID: 42, Limit: 5})

	assert.Equal(t, 0, f.provider.callCount(), "fallback_only mode must never touch the primary provider")
	assert.Equal(t, model.SourceFallback, result.Source)
	assert.Equal(t, "trending", result.MethodUsed)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, model.HealthCritical, result.Health)
}

func TestOrchestrator_DegradedHealthPrefersCache(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.recordErrorRate(3, 20) // 15% error rate, degraded

	// Pre-populate the cache with an earlier nominal answer
	cached := &model.ReliableResult{
		Items:      items(5),
		Source:     model.SourcePrimary,
		MethodUsed: "ai_provider",
		Confidence: 0.9,
	}
	require.NoError(t, f.cache.Set(context.Background(), "recs:42::5", cached, nil))

	result := f.uc.GetReliableResult(context.Background(), &model.RecommendationRequest{UserID: 42, Limit: 5})

	assert.Equal(t, model.SourceCache, result.Source)
	assert.Equal(t, 0, f.provider.callCount())
	assert.Len(t, result.Items, 5)
}

func TestOrchestrator_CacheMissInCacheFirstFallsToPrimary(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.recordErrorRate(3, 20)

	result := f.uc.GetReliableResult(context.Background(), &model.RecommendationRequest{UserID: 42, Limit: 5})

	assert.Equal(t, model.SourcePrimary, result.Source)
	assert.Equal(t, 1, f.provider.callCount())
}

func TestOrchestrator_DegradedModeScalesDown(t *testing.T) {
	f := newOrchestratorFixture(t)
	// 3 seeded failures plus the 3 cache breaker failures below stay between
	// the degraded and critical thresholds: 6 of 43 is about 14%
	f.recordErrorRate(3, 40)

	// An open cache circuit rules out cache_first
	cacheBreaker := f.registry.GetOrCreate(model.DependencyCache)
	for i := 0; i < 3; i++ {
		cacheBreaker.Execute(context.Background(), failOp(errors.New("redis down")), nil)
	}
	require.Equal(t, model.CircuitOpen, f.registry.State(model.DependencyCache))

	result := f.uc.GetReliableResult(context.Background(), &model.RecommendationRequest{UserID: 42, Limit: 10})

	assert.Equal(t, model.SourceDegraded, result.Source)
	assert.Equal(t, 0, f.provider.callCount())
	// Limit 10 scaled by 0.5
	assert.Len(t, result.Items, 5)
	// Trending base confidence 0.45 scaled by 0.8
	assert.InDelta(t, 0.36, result.Confidence, 0.001)
}

func TestOrchestrator_PrimaryFailureFallsBack(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.provider.err = errors.New("provider exploded")

	result := f.uc.GetReliableResult(context.Background(), &model.RecommendationRequest{UserID: 42, Limit: 5})

	assert.Equal(t, model.SourceFallback, result.Source)
	assert.Equal(t, "trending", result.MethodUsed)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, 0, result.RetryCount, "an accepted fallback is not a failed attempt")
}

func TestOrchestrator_ExhaustionServesEmergency(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.provider.err = errors.New("provider exploded")
	f.repo.trendingItems = nil // cascade has nothing to serve

	result := f.uc.GetReliableResult(context.Background(), &model.RecommendationRequest{UserID: 42, Limit: 5})

	require.NotEmpty(t, result.Items, "emergency result must always carry items")
	assert.Equal(t, "emergency_static", result.MethodUsed)
	assert.Equal(t, model.CircuitEmergency, result.CircuitState)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, 0.1, result.Confidence)
	assert.Equal(t, 2, result.RetryCount, "all retries must be consumed before the emergency answer")
}

func TestOrchestrator_TriggerRecoveryResetCircuits(t *testing.T) {
	f := newOrchestratorFixture(t)

	b := f.registry.GetOrCreate(model.DependencyAIRecommendations)
	for i := 0; i < 3; i++ {
		b.Execute(context.Background(), failOp(errors.New("down")), nil)
	}
	require.Equal(t, model.CircuitOpen, f.registry.State(model.DependencyAIRecommendations))

	err := f.uc.TriggerRecovery(context.Background(), model.RecoveryResetCircuits)

	require.NoError(t, err)
	assert.Equal(t, model.CircuitClosed, f.registry.State(model.DependencyAIRecommendations))
}

func TestOrchestrator_TriggerRecoveryClearCache(t *testing.T) {
	f := newOrchestratorFixture(t)

	err := f.uc.TriggerRecovery(context.Background(), model.RecoveryClearCache)

	require.NoError(t, err)
	assert.Equal(t, []string{"recommendations"}, f.cache.invalidated)
}

func TestOrchestrator_TriggerRecoveryWarmCache(t *testing.T) {
	f := newOrchestratorFixture(t)

	err := f.uc.TriggerRecovery(context.Background(), model.RecoveryWarmCache)

	require.NoError(t, err)
	assert.True(t, f.cache.has("recs:0::20"))
}

func TestOrchestrator_TriggerRecoveryUnknownAction(t *testing.T) {
	f := newOrchestratorFixture(t)

	err := f.uc.TriggerRecovery(context.Background(), "reboot_everything")

	assert.Error(t, err)
}
