package model

import "time"

// CircuitState is the state of a circuit breaker.
type CircuitState string

const (
	// CircuitClosed allows all requests through.
	CircuitClosed CircuitState = "CLOSED"
	// CircuitOpen denies requests until the recovery timeout elapses.
	CircuitOpen CircuitState = "OPEN"
	// CircuitHalfOpen admits probe requests to test recovery.
	CircuitHalfOpen CircuitState = "HALF_OPEN"
	// CircuitEmergency is reported on results produced by the unconditional
	// emergency path after all retries are exhausted. It is never a real
	// breaker state.
	CircuitEmergency CircuitState = "EMERGENCY"
)

// Dependency names used as circuit breaker registry keys.
const (
	DependencyAIRecommendations = "ai_recommendations"
	DependencyCache             = "cache"
	DependencyDatabase          = "database"
)

// CircuitMetrics holds the counters of one circuit breaker. Counters are
// mutated only by the owning breaker and only increase, except through the
// periodic soft reset.
type CircuitMetrics struct {
	TotalRequests        int64      `json:"total_requests"`
	SuccessCount         int64      `json:"success_count"`
	FailureCount         int64      `json:"failure_count"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	LastFailureTime      *time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime      *time.Time `json:"last_success_time,omitempty"`
	StateChangedAt       time.Time  `json:"state_changed_at"`
}

// CircuitResult is the outcome of one CircuitBreaker.Execute call.
// Failures surface here as Success=false; Execute never returns an error.
type CircuitResult struct {
	Success       bool
	Data          any
	Err           error
	State         CircuitState
	ExecutionTime time.Duration
	FromFallback  bool
}
