package roadservice

import (
	"errors"
	"sync"
	"time"

	"github.com/fleetshuttle/router/internal/domain/shared"
)

// CircuitState is the state of a circuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// ErrCircuitOpen is returned when a circuitBreaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// circuitBreaker keeps a flapping per-city backend from hanging every
// request in this pipeline behind it; once open, callers get an immediate
// route-infeasible error instead of waiting out the HTTP timeout.
type circuitBreaker struct {
	maxFailures     int
	timeout         time.Duration
	state           CircuitState
	failureCount    int
	lastFailureTime time.Time
	mu              sync.RWMutex
	clock           shared.Clock
}

func newCircuitBreaker(maxFailures int, timeout time.Duration, clock shared.Clock) *circuitBreaker {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &circuitBreaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		state:       CircuitClosed,
		clock:       clock,
	}
}

func (cb *circuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		elapsed := cb.clock.Now().Sub(cb.lastFailureTime)
		if elapsed >= cb.timeout {
			cb.state = CircuitHalfOpen
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *circuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.clock.Now()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		return
	}
	if cb.failureCount >= cb.maxFailures {
		cb.state = CircuitOpen
	}
}

func (cb *circuitBreaker) onSuccess() {
	cb.failureCount = 0
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
	}
}

func (cb *circuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
