// Package breaker guards document-mutation calls with a circuit
// breaker.
//
// State machine:
//
//	CLOSED -> OPEN       failures reach the threshold, or one critical
//	                     failure (connection/SSL/timeout/memory)
//	OPEN -> HALF_OPEN    recovery timeout elapses
//	HALF_OPEN -> CLOSED  SuccessThreshold consecutive successes
//	HALF_OPEN -> OPEN    any failure
//
// One breaker instance guards one mutation endpoint for the life of the
// process; it is never reset except by its own state machine.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deckflow/deckflow-go/deckflow"
)

// State represents the circuit breaker state.
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
		return "half_open"
	default:
		return "unknown"
	}
}

// OpenError is returned when the breaker rejects a call without
// invoking the wrapped function.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is open, retry after %s", e.Name, e.RetryAfter)
}

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold is the failure count that opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before
	// probation.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the consecutive successes needed to close
	// from half-open.
	SuccessThreshold int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Metrics tracks breaker activity. Guarded by the breaker's mutex.
type Metrics struct {
	TotalCalls     int64
	TotalFailures  int64
	TotalSuccesses int64
	RejectedCalls  int64
	StateChanges   map[string]int64
}

// Breaker is a process-wide circuit breaker for one endpoint.
type Breaker struct {
	name   string
	config Config
	logger *slog.Logger

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	metrics         Metrics
	onOpen          func(name, cause string)
}

// New creates a breaker. Zero config fields fall back to defaults.
func New(name string, config Config, logger *slog.Logger) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 2
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
		metrics: Metrics{
			StateChanges: make(map[string]int64),
		},
	}
}

// OnOpen registers a callback fired whenever the circuit trips open,
// with the failure that tripped it. The callback runs outside the
// breaker's mutex.
func (b *Breaker) OnOpen(fn func(name, cause string)) {
	b.mu.Lock()
	b.onOpen = fn
	b.mu.Unlock()
}

// Do runs fn through the breaker. When the circuit is open the call is
// rejected immediately with an OpenError.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if time.Since(b.lastFailureTime) >= b.config.RecoveryTimeout {
			b.changeState(StateHalfOpen)
			b.successCount = 0
		} else {
			b.metrics.RejectedCalls++
			retryAfter := b.config.RecoveryTimeout - time.Since(b.lastFailureTime)
			b.mu.Unlock()
			return &OpenError{Name: b.name, RetryAfter: retryAfter}
		}
	}
	b.metrics.TotalCalls++
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	opened := false
	if err != nil {
		opened = b.onFailure(err)
	} else {
		b.onSuccess()
	}
	cb := b.onOpen
	b.mu.Unlock()

	if opened && cb != nil {
		cb(b.name, err.Error())
	}
	return err
}

func (b *Breaker) onSuccess() {
	b.metrics.TotalSuccesses++
	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.changeState(StateClosed)
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// onFailure reports whether this failure tripped the circuit open.
func (b *Breaker) onFailure(err error) bool {
	b.metrics.TotalFailures++
	b.lastFailureTime = time.Now()
	prev := b.state

	if deckflow.IsCritical(err) {
		// Critical signatures bypass the counted threshold.
		b.failureCount = b.config.FailureThreshold
		if b.state != StateOpen {
			b.logger.Error("critical failure, forcing circuit open",
				"breaker", b.name, "error", err)
			b.changeState(StateOpen)
		}
		return prev != StateOpen
	}

	switch b.state {
	case StateHalfOpen:
		b.changeState(StateOpen)
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.changeState(StateOpen)
		}
	}
	return prev != StateOpen && b.state == StateOpen
}

// changeState must be called with the mutex held.
func (b *Breaker) changeState(next State) {
	if b.state == next {
		return
	}
	key := fmt.Sprintf("%s->%s", b.state, next)
	b.metrics.StateChanges[key]++
	b.logger.Info("circuit breaker state change",
		"breaker", b.name, "from", b.state.String(), "to", next.String())
	b.state = next
}

// State returns the current state, accounting for an elapsed recovery
// timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.lastFailureTime) >= b.config.RecoveryTimeout {
		return StateHalfOpen
	}
	return b.state
}

// FailureCount returns the current counted failures.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Snapshot returns a copy of the breaker metrics.
func (b *Breaker) Snapshot() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.metrics
	m.StateChanges = make(map[string]int64, len(b.metrics.StateChanges))
	for k, v := range b.metrics.StateChanges {
		m.StateChanges[k] = v
	}
	return m
}
