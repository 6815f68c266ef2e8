// Package data provides data access layer implementations.
// It handles database connections and data persistence.
package data

import (
	"ReelGuard/internal/biz"
	"ReelGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewMySQLClient,
	NewCacheRepo,
	NewMovieRepo,
	NewAlertEventLogger,
	NewMetricsSink,
	wire.Bind(new(biz.CacheRepo), new(*cacheRepo)),
	wire.Bind(new(biz.FallbackDataRepo), new(*movieRepo)),
	wire.Bind(new(biz.AlertEventLogger), new(*AlertEventLoggerImpl)),
	wire.Bind(new(biz.MetricsSink), new(*metricsSink)),
	wire.Bind(new(LookupRecorder), new(*biz.HealthAggregator)),
)

// Data contains all data layer dependencies.
type Data struct {
	// redisClient is the Redis client for caching and metric counters
	redisClient *redis.Client
	// db is the GORM MySQL client backing the fallback data sources
	db *gorm.DB
}

// NewData creates a new Data instance with all data layer dependencies.
// Redis connection failure does not prevent application startup (graceful degradation).
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, caching will be unavailable")
	}

	d := &Data{
		redisClient: rdb,
		db:          db,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// Redis and MySQL cleanup are handled by their constructors' cleanup
		// functions, which Wire calls automatically.
	}

	return d, cleanup, nil
}

// GetRedisClient returns the Redis client for advanced operations.
func (d *Data) GetRedisClient() *redis.Client {
	return d.redisClient
}

// GetDB returns the GORM client for repository use.
func (d *Data) GetDB() *gorm.DB {
	return d.db
}
