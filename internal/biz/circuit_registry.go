package biz

import (
	"sync"

	"ReelGuard/internal/conf"
	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitRegistry owns one CircuitBreaker per dependency name. Breakers are
// lazily created on first use and live for the process lifetime. The
// registry is the only long-lived shared mutable state besides the alert
// store; GetOrCreate is atomic so concurrent first calls against the same
// name converge on a single instance.
//
// The registry is constructed explicitly and injected; there is no global
// accessor, so tests get isolated instances.
type CircuitRegistry struct {
	cfg      *conf.Breaker
	recorder SampleRecorder
	sink     MetricsSink
	logger   log.Logger

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitRegistry creates an empty registry.
func NewCircuitRegistry(cfg *conf.Breaker, sink MetricsSink, logger log.Logger) *CircuitRegistry {
	return &CircuitRegistry{
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// SetSampleRecorder wires the health aggregator into every breaker the
// registry creates. Must be called before traffic; breakers created earlier
// keep a nil recorder.
func (r *CircuitRegistry) SetSampleRecorder(recorder SampleRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = recorder
	for _, b := range r.breakers {
		b.recorder = recorder
	}
}

// GetOrCreate returns the breaker for a dependency name, creating it on
// first use. Idempotent: repeated calls with the same name return the same
// instance.
func (r *CircuitRegistry) GetOrCreate(name string) *CircuitBreaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if b, ok = r.breakers[name]; ok {
		return b
	}

	b = NewCircuitBreaker(name, r.cfg, r.recorder, r.sink, r.logger)
	r.breakers[name] = b
	return b
}

// States returns the current state of every registered breaker.
func (r *CircuitRegistry) States() map[string]model.CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]model.CircuitState, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State()
	}
	return states
}

// State returns one breaker's state, defaulting to CLOSED for dependencies
// that have not been called yet.
func (r *CircuitRegistry) State(name string) model.CircuitState {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if !ok {
		return model.CircuitClosed
	}
	return b.State()
}

// ResetAll forces every breaker back to CLOSED. Used by the reset_circuits
// recovery action.
func (r *CircuitRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

// SoftResetAll zeroes cumulative counters on every breaker. Driven by the
// periodic metrics reset timer.
func (r *CircuitRegistry) SoftResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.SoftReset()
	}
}
