package service

import (
	"context"
	"io"
	"testing"
	"time"

	"ReelGuard/internal/biz"
	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// stubProvider always serves a fixed answer.
type stubProvider struct {
	items []*model.MovieItem
}

func (p *stubProvider) GetRecommendations(ctx context.Context, req *model.RecommendationRequest) ([]*model.MovieItem, float64, error) {
	return p.items, 0.9, nil
}

// stubCache is a minimal in-memory CacheRepo that always misses.
type stubCache struct{}

func (c *stubCache) Get(ctx context.Context, key string, dest any) error {
	return biz.ErrCacheNotFound
}

func (c *stubCache) Set(ctx context.Context, key string, value any, opts *biz.CacheOptions) error {
	return nil
}

func (c *stubCache) InvalidateByTag(ctx context.Context, tag string) error {
	return nil
}

// stubFallbackData serves a static trending list.
type stubFallbackData struct{}

func (s *stubFallbackData) UserHistory(ctx context.Context, userID int64, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (s *stubFallbackData) CoWatched(ctx context.Context, userID int64, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (s *stubFallbackData) SimilarToMovies(ctx context.Context, movieIDs []int64, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (s *stubFallbackData) PopularByGenre(ctx context.Context, genres []string, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (s *stubFallbackData) Trending(ctx context.Context, limit int) ([]*model.MovieItem, error) {
	return []*model.MovieItem{{ID: 1, Title: "Heat"}}, nil
}

func (s *stubFallbackData) RandomPopular(ctx context.Context, limit int) ([]*model.MovieItem, error) {
	return nil, nil
}

func (s *stubFallbackData) UserContext(ctx context.Context, userID int64) (*model.UserContext, error) {
	return nil, nil
}

func newTestService(t *testing.T) *ReliabilityService {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)

	breakerCfg := &conf.Breaker{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
		OperationTimeout: time.Second,
	}
	healthCfg := &conf.Health{
		FallbackThreshold:     10,
		DegradedModeThreshold: 25,
		OrchestrationWindow:   time.Minute,
		AlertingWindow:        5 * time.Minute,
	}
	orchCfg := &conf.Orchestrator{
		MaxRetries:               1,
		RetryDelay:               time.Millisecond,
		DegradedConfidenceFactor: 0.8,
		DegradedSizeFactor:       0.5,
		CacheTTL:                 time.Minute,
	}
	fallbackCfg := &conf.Fallback{
		Strategies: []*conf.Strategy{
			{Method: "trending", Weight: 0.4, MinConfidence: 0.1, MaxResponseTime: time.Second},
		},
	}

	registry := biz.NewCircuitRegistry(breakerCfg, nil, logger)
	health := biz.NewHealthAggregator(healthCfg, registry, logger)
	repo := &stubFallbackData{}
	cascade := biz.NewFallbackCascade(fallbackCfg, biz.NewStrategyProviders(repo), nil, logger)
	uc := biz.NewReliabilityUsecase(orchCfg, registry, health, cascade,
		&stubProvider{items: []*model.MovieItem{{ID: 10, Title: "Ran"}}},
		&stubCache{}, repo, nil, logger)
	alerts := biz.NewAlertManager(&conf.Alerting{DefaultCooldown: 5 * time.Minute}, uc, nil, nil, logger)

	return NewReliabilityService(uc, health, registry, alerts, logger)
}

func TestGetRecommendations_RejectsInvalidUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetRecommendations(context.Background(), &GetRecommendationsRequest{UserID: 0})

	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestGetRecommendations_DefaultsAndServes(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.GetRecommendations(context.Background(), &GetRecommendationsRequest{UserID: 42})

	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.Equal(t, model.SourcePrimary, resp.Result.Source)
	assert.NotEmpty(t, resp.Result.Items)
}

func TestGetSystemHealth_ReportsUptimeAndStates(t *testing.T) {
	svc := newTestService(t)

	// Serve once so circuit state exists
	_, err := svc.GetRecommendations(context.Background(), &GetRecommendationsRequest{UserID: 42})
	require.NoError(t, err)

	resp, err := svc.GetSystemHealth(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, resp.Status)
	assert.Contains(t, resp.CircuitStates, model.DependencyAIRecommendations)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, float64(0))
}

func TestAlertRuleLifecycle(t *testing.T) {
	svc := newTestService(t)

	rules, err := svc.ListAlertRules(context.Background())
	require.NoError(t, err)
	initial := len(rules.Rules)

	_, err = svc.AddAlertRule(context.Background(), &model.AlertRule{
		ID:         "custom-latency",
		MetricName: model.MetricAvgLatency,
		Threshold:  2000,
		Comparator: model.CompareGT,
		Severity:   model.SeverityWarning,
		Enabled:    true,
	})
	require.NoError(t, err)

	rules, err = svc.ListAlertRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules.Rules, initial+1)

	_, err = svc.RemoveAlertRule(context.Background(), "custom-latency")
	require.NoError(t, err)

	_, err = svc.RemoveAlertRule(context.Background(), "custom-latency")
	require.Error(t, err)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.NotFound, st.Code())
}

func TestAddAlertRule_RejectsInvalid(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.AddAlertRule(context.Background(), &model.AlertRule{
		MetricName: model.MetricErrorRate,
	})

	require.Error(t, err)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestResolveAlert_IdempotentResponse(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.ResolveAlert(context.Background(), "no-such-alert")

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "alert already resolved or unknown", resp.Message)
}

func TestTriggerRecovery_ValidatesAction(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.TriggerRecovery(context.Background(), "unknown_action")
	require.Error(t, err)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.InvalidArgument, st.Code())

	resp, err := svc.TriggerRecovery(context.Background(), model.RecoveryResetCircuits)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}
