// Package circuitbreaker protects external collaborators from repeated calls
// while they are failing. The pricing client trips its breaker after a run of
// failures so one broken source cannot stretch a wallet scan with timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/portfolio-reconciler/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means the circuit is testing if the service has recovered
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name        string
	MaxFailures int           // consecutive failures before opening
	Timeout     time.Duration // time to wait before attempting half-open
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:        name,
		MaxFailures: 5,
		Timeout:     30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name        string
	maxFailures int
	timeout     time.Duration

	mu               sync.Mutex
	state            State
	consecutiveFails int
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:            config.Name,
		maxFailures:     config.MaxFailures,
		timeout:         config.Timeout,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute executes a function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)
	return err
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// beforeRequest checks if a request can be executed
func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) > cb.timeout {
			cb.setState(StateHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// afterRequest records the result of a call
func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.consecutiveFails = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		return
	}

	cb.consecutiveFails++
	if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.maxFailures {
		cb.setState(StateOpen)
	}
}

// setState transitions the breaker; caller holds the lock
func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}
	cb.state = state
	cb.lastStateChange = time.Now()
	cb.consecutiveFails = 0

	logging.WithFields(map[string]interface{}{
		"circuitBreaker": cb.name,
		"state":          state,
	}).Info("Circuit breaker state changed")
}
