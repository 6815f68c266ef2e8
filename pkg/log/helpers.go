package log

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends Kratos log.Helper with domain-tagged log methods.
// The "type" field groups related log lines for dashboard filtering.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates an enhanced log helper.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

// Circuit records circuit breaker state transitions and denials.
func (h *LogHelper) Circuit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "circuit")
	h.Infow(allKvs...)
}

// Cascade records fallback cascade progress.
func (h *LogHelper) Cascade(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "cascade")
	h.Infow(allKvs...)
}

// Health records health aggregation results.
func (h *LogHelper) Health(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "health")
	h.Infow(allKvs...)
}

// Alert records alert lifecycle events at warn level.
func (h *LogHelper) Alert(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "alert")
	h.Warnw(allKvs...)
}

// Request records HTTP request logs.
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}

// Database records database operation logs at debug level.
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "database")
	h.Debugw(allKvs...)
}

// Cache records cache operation logs at debug level.
func (h *LogHelper) Cache(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "cache")
	h.Debugw(allKvs...)
}

// Startup records startup logs.
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "startup")
	h.Infow(allKvs...)
}
