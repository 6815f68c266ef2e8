package data

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// metricCounterTTL expires metric counters after two days so abandoned tag
// combinations do not accumulate.
const metricCounterTTL = 48 * time.Hour

// metricsSink implements biz.MetricsSink. Every metric is emitted as a
// structured log line; counters are additionally accumulated in Redis as
// per-day keys for dashboards. Redis writes are best effort and bounded.
type metricsSink struct {
	client *redis.Client
	logger *log.Helper
}

// NewMetricsSink creates the metrics sink.
func NewMetricsSink(d *Data, logger log.Logger) *metricsSink {
	return &metricsSink{
		client: d.redisClient,
		logger: log.NewHelper(logger),
	}
}

// RecordMetric records one metric sample.
func (s *metricsSink) RecordMetric(name string, value float64, unit string, tags map[string]string) {
	fields := []interface{}{
		"type", "metric",
		"metric", name,
		"value", value,
		"unit", unit,
	}
	for k, v := range tags {
		fields = append(fields, k, v)
	}
	s.logger.Debugw(append([]interface{}{"metric recorded"}, fields...)...)

	if s.client == nil || unit != "count" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	key := counterKey(name, tags)
	pipe := s.client.Pipeline()
	pipe.IncrByFloat(ctx, key, value)
	pipe.Expire(ctx, key, metricCounterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Debugw("metric counter write skipped", "metric", name, "error", err)
	}
}

// counterKey builds a stable per-day counter key: metric:{name}:{tags}:{day}.
// Tags are sorted so the same tag set always yields the same key.
func counterKey(name string, tags map[string]string) string {
	key := "metric:" + name
	if len(tags) > 0 {
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key += fmt.Sprintf(":%s=%s", k, tags[k])
		}
	}
	return key + ":" + time.Now().UTC().Format("2006-01-02")
}
