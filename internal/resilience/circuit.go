// Package resilience provides retry and circuit breaker helpers for calls to
// the imagery catalog and asset hosts.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until ResetTimeout passes.
	CircuitOpen
	// CircuitHalfOpen lets trial requests through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls breaker behaviour.
type CircuitBreakerConfig struct {
	// Name labels log lines.
	Name string
	// FailureThreshold consecutive failures open the circuit. Default: 5.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open. Default: 30s.
	ResetTimeout time.Duration
	// ShouldTrip decides whether an error counts as a failure. Nil means
	// IsTransient, so bad requests never open the circuit.
	ShouldTrip func(err error) bool
}

// DefaultCircuitBreakerConfig returns the defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// CircuitBreaker stops calling a failing service for a while.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
	nowFunc     func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	d := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = d.ResetTimeout
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsTransient
	}
	return &CircuitBreaker{cfg: cfg, nowFunc: time.Now}
}

// ExecuteVal runs fn unless the circuit is open, recording the outcome.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cb == nil {
		return fn(ctx)
	}
	if err := cb.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	cb.record(err)
	return val, err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.lastFailure) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return nil
	}
	if cb.nowFunc().Sub(cb.lastFailure) >= cb.cfg.ResetTimeout {
		cb.transition(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.cfg.ShouldTrip(err) {
		cb.failures = 0
		if cb.state == CircuitHalfOpen {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.failures++
	cb.lastFailure = cb.nowFunc()
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.transition(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	zap.L().Warn("circuit breaker state change",
		zap.String("service", cb.cfg.Name),
		zap.Stringer("from", cb.state),
		zap.Stringer("to", to),
	)
	cb.state = to
}
