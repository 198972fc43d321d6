// Package resilience guards calls to the optional backends (PostgreSQL,
// Redis, Kafka). Failures it gives up on carry apperrors.ErrUnavailable or
// apperrors.ErrTimeout, so the HTTP layer answers 503 without knowing which
// backend failed.
package resilience

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/metrics"
)

// ErrCircuitOpen is in the chain of every call rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeFunc observes breaker transitions. It runs after the breaker's
// lock is released, and once with from == to when the breaker is created.
type StateChangeFunc func(name string, from, to State)

// ReportTo publishes breaker state and transitions to m.
func ReportTo(m *metrics.Metrics) StateChangeFunc {
	return func(name string, from, to State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if from != to {
			m.BreakerTransitionsTotal.WithLabelValues(name, to.String()).Inc()
		}
	}
}

// CircuitBreakerConfig controls failure thresholds and recovery timing.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	OnStateChange       StateChangeFunc
}

// CircuitBreaker fails fast once a backend has failed FailureThreshold times
// in a row, then lets HalfOpenMaxRequests trial calls through after
// ResetTimeout.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenRequests    int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	cb := &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "breaker", name),
	}
	if cfg.OnStateChange != nil {
		cfg.OnStateChange(name, StateClosed, StateClosed)
	}
	return cb
}

// Execute runs fn unless the breaker is open, and records its outcome.
// A rejected call returns an error matching both ErrCircuitOpen and
// apperrors.ErrUnavailable without running fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker regardless of its current state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.transitionLocked(StateClosed)
	cb.mu.Unlock()
	if from != StateClosed {
		cb.logger.Info("circuit reset", "from", from)
	}
	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - time.Since(cb.openedAt)
		if wait > 0 {
			cb.mu.Unlock()
			return apperrors.Wrap(apperrors.ErrUnavailable, http.StatusServiceUnavailable, ErrCircuitOpen,
				"%s: retry after %v", cb.name, wait.Round(time.Millisecond))
		}
		from := cb.transitionLocked(StateHalfOpen)
		cb.halfOpenRequests = 1
		cb.mu.Unlock()
		cb.notify(from, StateHalfOpen)
		return nil
	case StateHalfOpen:
		defer cb.mu.Unlock()
		if cb.halfOpenRequests >= cb.cfg.HalfOpenMaxRequests {
			return apperrors.Wrap(apperrors.ErrUnavailable, http.StatusServiceUnavailable, ErrCircuitOpen,
				"%s: trial call in flight", cb.name)
		}
		cb.halfOpenRequests++
		return nil
	default:
		cb.mu.Unlock()
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	from, to := cb.state, cb.state
	if err == nil {
		cb.consecutiveFailures = 0
		if cb.state == StateHalfOpen {
			to = StateClosed
		}
	} else {
		cb.consecutiveFailures++
		if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			to = StateOpen
			cb.openedAt = time.Now()
		}
	}
	if to != from {
		cb.transitionLocked(to)
	}
	failures := cb.consecutiveFailures
	cb.mu.Unlock()

	switch {
	case to == from:
	case to == StateOpen:
		cb.logger.Warn("circuit opened", "from", from, "consecutive_failures", failures, "error", err)
		cb.notify(from, to)
	default:
		cb.logger.Info("circuit closed", "from", from)
		cb.notify(from, to)
	}
}

// transitionLocked moves to state and returns the previous one.
func (cb *CircuitBreaker) transitionLocked(state State) State {
	from := cb.state
	cb.state = state
	if state != StateOpen {
		cb.halfOpenRequests = 0
	}
	if state == StateClosed {
		cb.consecutiveFailures = 0
	}
	return from
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to || cb.cfg.OnStateChange == nil {
		return
	}
	cb.cfg.OnStateChange(cb.name, from, to)
}
