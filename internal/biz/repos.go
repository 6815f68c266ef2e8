package biz

import (
	"context"
	"errors"
	"time"

	"ReelGuard/internal/model"
)

// ErrCacheNotFound is returned by CacheRepo.Get when a key does not exist.
// A miss is a normal outcome, not a cache dependency failure.
var ErrCacheNotFound = errors.New("cache: key not found")

// RecommendationProvider is the primary recommendation source (a generative
// AI service). Assumed slow and unreliable; always called through a circuit
// breaker. Returns the items and the provider's own confidence score.
type RecommendationProvider interface {
	GetRecommendations(ctx context.Context, req *model.RecommendationRequest) ([]*model.MovieItem, float64, error)
}

// CacheOptions controls cache writes.
type CacheOptions struct {
	TTL      time.Duration
	Tags     []string
	Priority int
}

// CacheRepo defines the cache store contract. Assumed fast but fallible;
// implementations must degrade gracefully when the backing store is down.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer
// and implemented in data layer.
type CacheRepo interface {
	// Get retrieves a value and deserializes it into dest.
	// Returns ErrCacheNotFound if the key does not exist.
	Get(ctx context.Context, key string, dest any) error

	// Set stores a value with TTL, tags and priority.
	Set(ctx context.Context, key string, value any, opts *CacheOptions) error

	// InvalidateByTag removes every key carrying the tag.
	InvalidateByTag(ctx context.Context, tag string) error
}

// FallbackDataRepo provides the read-only fallback data sources. Each query
// may return an empty set but must not hang; implementations bound every
// call with the caller's context.
type FallbackDataRepo interface {
	// UserHistory derives recommendations from the user's viewing history.
	UserHistory(ctx context.Context, userID int64, limit int) ([]*model.MovieItem, error)

	// CoWatched returns movies watched by users with overlapping history.
	CoWatched(ctx context.Context, userID int64, limit int) ([]*model.MovieItem, error)

	// SimilarToMovies returns movies similar to the given seed movies.
	SimilarToMovies(ctx context.Context, movieIDs []int64, limit int) ([]*model.MovieItem, error)

	// PopularByGenre returns the most popular movies within the genres.
	PopularByGenre(ctx context.Context, genres []string, limit int) ([]*model.MovieItem, error)

	// Trending returns currently trending movies.
	Trending(ctx context.Context, limit int) ([]*model.MovieItem, error)

	// RandomPopular returns a random slice of the popular candidate pool.
	// Explicitly non-deterministic.
	RandomPopular(ctx context.Context, limit int) ([]*model.MovieItem, error)

	// UserContext loads the per-user context consumed by context-dependent
	// strategies. A missing user yields (nil, nil).
	UserContext(ctx context.Context, userID int64) (*model.UserContext, error)
}

// MetricsSink receives metric records from the reliability core.
type MetricsSink interface {
	RecordMetric(name string, value float64, unit string, tags map[string]string)
}

// AlertEventLogger journals alert lifecycle events. Implementations are
// asynchronous and best-effort; they must never block the caller.
type AlertEventLogger interface {
	LogAlertRaised(ctx context.Context, alert *model.Alert)
	LogAlertResolved(ctx context.Context, alert *model.Alert)
	LogRecoveryRun(ctx context.Context, metricName, action string, runErr error)
}
