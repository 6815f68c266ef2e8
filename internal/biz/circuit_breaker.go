package biz

import (
	"context"
	"sync"
	"time"

	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"
	pkgerrors "ReelGuard/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// Operation is a unit of work protected by a circuit breaker. It must honor
// context cancellation; the breaker bounds it with the configured operation
// timeout.
type Operation func(ctx context.Context) (any, error)

// SampleRecorder receives one sample per real dependency call. Denied calls
// are not samples: the dependency was never touched.
type SampleRecorder interface {
	Record(dependency string, latency time.Duration, success bool)
}

// CircuitBreaker is a per-dependency failure-isolation state machine.
//
// CLOSED executes operations under the operation timeout; FailureThreshold
// consecutive failures transition to OPEN. OPEN denies calls until
// RecoveryTimeout elapses, then admits exactly one transition to HALF_OPEN.
// HALF_OPEN executes as CLOSED; SuccessThreshold consecutive successes close
// the circuit, any single failure reopens it.
//
// Concurrent calls against the same breaker share CircuitMetrics; all
// mutation happens under the breaker's mutex.
type CircuitBreaker struct {
	name     string
	cfg      *conf.Breaker
	recorder SampleRecorder
	sink     MetricsSink
	logger   *log.Helper

	mu      sync.Mutex
	state   model.CircuitState
	metrics model.CircuitMetrics
	lastErr error

	// now is injectable for deterministic transition tests.
	now func() time.Time
}

// NewCircuitBreaker creates a breaker for one named dependency.
func NewCircuitBreaker(name string, cfg *conf.Breaker, recorder SampleRecorder, sink MetricsSink, logger log.Logger) *CircuitBreaker {
	b := &CircuitBreaker{
		name:     name,
		cfg:      cfg,
		recorder: recorder,
		sink:     sink,
		logger:   log.NewHelper(logger),
		state:    model.CircuitClosed,
		now:      time.Now,
	}
	b.metrics.StateChangedAt = b.now()
	return b
}

// Name returns the dependency name this breaker guards.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() model.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns a copy of the breaker's counters.
func (b *CircuitBreaker) Metrics() model.CircuitMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// Execute runs the operation under the breaker's protection. The optional
// fallback is invoked when the circuit denies the call or the operation
// fails. Execute never returns an error; failures surface as Success=false
// in the result.
func (b *CircuitBreaker) Execute(ctx context.Context, op Operation, fallback Operation) *model.CircuitResult {
	start := b.now()

	admitted, state := b.admit()
	if !admitted {
		b.logger.Debugw("circuit open, call denied",
			"dependency", b.name,
			"state", state)
		if b.sink != nil {
			b.sink.RecordMetric("circuit_denial", 1, "count", map[string]string{"dependency": b.name})
		}

		if fallback == nil {
			return &model.CircuitResult{
				Success:       false,
				Err:           pkgerrors.NewCircuitOpen(b.name),
				State:         state,
				ExecutionTime: b.now().Sub(start),
			}
		}
		return b.runFallback(ctx, fallback, start)
	}

	data, err := b.runBounded(ctx, op)
	elapsed := b.now().Sub(start)

	if err != nil {
		// A caller-cancelled or caller-expired attempt is neither success
		// nor failure: the dependency's health was not observed, so
		// counters stay untouched. Only expiry of the breaker's own
		// operation timeout counts, and then the parent context is alive.
		if ctx.Err() != nil {
			return &model.CircuitResult{
				Success:       false,
				Err:           err,
				State:         b.State(),
				ExecutionTime: elapsed,
			}
		}

		relErr := pkgerrors.Classify(b.name, err)
		state := b.recordFailure(relErr)
		if b.recorder != nil {
			b.recorder.Record(b.name, elapsed, false)
		}

		if fallback != nil {
			return b.runFallback(ctx, fallback, start)
		}
		return &model.CircuitResult{
			Success:       false,
			Err:           relErr,
			State:         state,
			ExecutionTime: elapsed,
		}
	}

	state = b.recordSuccess()
	if b.recorder != nil {
		b.recorder.Record(b.name, elapsed, true)
	}

	return &model.CircuitResult{
		Success:       true,
		Data:          data,
		State:         state,
		ExecutionTime: elapsed,
	}
}

// Reset forces the breaker back to CLOSED and zeroes consecutive counters.
// Used by recovery actions.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != model.CircuitClosed {
		b.transitionLocked(model.CircuitClosed, "manual reset")
	}
	b.metrics.ConsecutiveFailures = 0
	b.metrics.ConsecutiveSuccesses = 0
	b.lastErr = nil
}

// SoftReset zeroes the cumulative counters while preserving state and
// consecutive counts. Called by the periodic metrics reset; the only path
// on which counters decrease.
func (b *CircuitBreaker) SoftReset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.TotalRequests = 0
	b.metrics.SuccessCount = 0
	b.metrics.FailureCount = 0
}

// admit decides whether a call may proceed and performs the OPEN→HALF_OPEN
// transition when the recovery timeout has elapsed. Exactly one caller wins
// that transition; it proceeds as the probe.
func (b *CircuitBreaker) admit() (bool, model.CircuitState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case model.CircuitClosed, model.CircuitHalfOpen:
		return true, b.state
	case model.CircuitOpen:
		if b.now().Sub(b.metrics.StateChangedAt) > b.cfg.RecoveryTimeout {
			b.transitionLocked(model.CircuitHalfOpen, "recovery timeout elapsed")
			return true, b.state
		}
		return false, b.state
	}
	return false, b.state
}

// runBounded executes the operation under the operation timeout. The wait is
// bounded even when the operation ignores cancellation; the loser of the
// race is cancelled through the derived context.
func (b *CircuitBreaker) runBounded(ctx context.Context, op Operation) (any, error) {
	opCtx, cancel := context.WithTimeout(ctx, b.cfg.OperationTimeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		data, err := op(opCtx)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		return out.data, out.err
	case <-opCtx.Done():
		return nil, opCtx.Err()
	}
}

// runFallback executes the fallback bounded by the operation timeout.
func (b *CircuitBreaker) runFallback(ctx context.Context, fallback Operation, start time.Time) *model.CircuitResult {
	data, err := b.runBounded(ctx, fallback)
	elapsed := b.now().Sub(start)

	if err != nil {
		return &model.CircuitResult{
			Success:       false,
			Err:           err,
			State:         b.State(),
			ExecutionTime: elapsed,
			FromFallback:  true,
		}
	}
	return &model.CircuitResult{
		Success:       true,
		Data:          data,
		State:         b.State(),
		ExecutionTime: elapsed,
		FromFallback:  true,
	}
}

// recordFailure updates counters and drives CLOSED→OPEN and HALF_OPEN→OPEN
// transitions. Returns the state after recording.
func (b *CircuitBreaker) recordFailure(err error) model.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.metrics.TotalRequests++
	b.metrics.FailureCount++
	b.metrics.ConsecutiveFailures++
	b.metrics.ConsecutiveSuccesses = 0
	b.metrics.LastFailureTime = &now
	b.lastErr = err

	switch b.state {
	case model.CircuitHalfOpen:
		// A single failure while probing reopens immediately.
		b.transitionLocked(model.CircuitOpen, "probe failed")
	case model.CircuitClosed:
		if b.metrics.ConsecutiveFailures >= b.cfg.FailureThreshold {
			b.transitionLocked(model.CircuitOpen, "failure threshold reached")
		}
	}

	return b.state
}

// recordSuccess updates counters and drives the HALF_OPEN→CLOSED transition.
func (b *CircuitBreaker) recordSuccess() model.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.metrics.TotalRequests++
	b.metrics.SuccessCount++
	b.metrics.ConsecutiveSuccesses++
	b.metrics.LastSuccessTime = &now

	switch b.state {
	case model.CircuitClosed:
		b.metrics.ConsecutiveFailures = 0
	case model.CircuitHalfOpen:
		if b.metrics.ConsecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transitionLocked(model.CircuitClosed, "success threshold reached")
			b.metrics.ConsecutiveFailures = 0
		}
	}

	return b.state
}

// transitionLocked performs a state transition. Caller holds the mutex.
func (b *CircuitBreaker) transitionLocked(to model.CircuitState, reason string) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.metrics.StateChangedAt = b.now()
	if to == model.CircuitHalfOpen || to == model.CircuitClosed {
		b.metrics.ConsecutiveSuccesses = 0
	}

	b.logger.Infow("circuit state transition",
		"dependency", b.name,
		"from", from,
		"to", to,
		"reason", reason,
		"consecutive_failures", b.metrics.ConsecutiveFailures,
		"last_error", b.lastErr)

	if b.sink != nil {
		b.sink.RecordMetric("circuit_state_change", 1, "count", map[string]string{
			"dependency": b.name,
			"from":       string(from),
			"to":         string(to),
		})
	}
}
