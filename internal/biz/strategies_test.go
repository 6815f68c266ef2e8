package biz

import (
	"context"
	"io"
	"testing"

	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStrategyProviders_CoversConfiguredTable(t *testing.T) {
	providers := NewStrategyProviders(&fakeMovieRepo{})

	methods := make(map[string]bool, len(providers))
	for _, p := range providers {
		methods[p.Method()] = true
	}

	for _, want := range []string{
		"user_history", "collaborative", "content_based",
		"genre_popularity", "trending", "random_popular", "emergency_static",
	} {
		assert.True(t, methods[want], "missing provider for %s", want)
	}
}

func TestStrategyResult_FillRatioScalesConfidence(t *testing.T) {
	full := strategyResult(items(5), 5, 0.8)
	require.NotNil(t, full)
	assert.Equal(t, 0.8, full.Confidence)

	// Half-filled result halves the confidence
	half := strategyResult(items(5), 10, 0.8)
	require.NotNil(t, half)
	assert.InDelta(t, 0.4, half.Confidence, 0.001)

	assert.Nil(t, strategyResult(nil, 5, 0.8))
}

func TestContentBasedStrategy_NeedsWatchedMovies(t *testing.T) {
	s := &contentBasedStrategy{repo: &fakeMovieRepo{}}

	result, err := s.Fetch(context.Background(), request(), nil)
	require.NoError(t, err)
	assert.Nil(t, result, "no user context means nothing to seed similarity with")

	result, err = s.Fetch(context.Background(), request(), &model.UserContext{UserID: 42})
	require.NoError(t, err)
	assert.Nil(t, result, "empty watch history means nothing to seed similarity with")
}

func TestEmergencyStaticStrategy_AlwaysServes(t *testing.T) {
	s := &emergencyStaticStrategy{}

	result, err := s.Fetch(context.Background(), request(), nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Items)
	assert.Equal(t, 0.1, result.Confidence)
}

func TestTrendingStrategy_UsesRepo(t *testing.T) {
	repo := &fakeMovieRepo{trendingItems: items(5)}
	providers := NewStrategyProviders(repo)

	cascade := NewFallbackCascade(
		cascadeConfig(strategyConf("trending", 0.4, false)),
		providers, nil, log.NewStdLogger(io.Discard),
	)

	result := cascade.Run(context.Background(), request(), nil)
	assert.Equal(t, "trending", result.MethodUsed)
	assert.Len(t, result.Items, 5)
}
